package domain

import "math"

// Keys every trial adds to the metadata it persists.
const (
	MetaTrial    = "trial"
	MetaFilename = "filename"
)

// RunRecord is one row of a directory's metadata index. Trial is NaN when
// the file name had to be supplied by hand.
type RunRecord struct {
	SweepID  string
	Trial    float64
	Filename string
	Metadata Metadata
}

func (r RunRecord) HasTrialIndex() bool {
	return !math.IsNaN(r.Trial)
}
