package sweep

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/animus-labs/labkit/internal/domain"
)

// Plan is the validated Cartesian product of a parameter set.
type Plan struct {
	Names      []string
	candidates [][]any
	Trials     int
}

// BuildPlan validates params and prepares the product. The last name in
// params.Order varies fastest.
func BuildPlan(params domain.ParameterSet, trials int) (Plan, error) {
	issues := &ConfigError{}
	if trials < 1 {
		issues.Add(fmt.Sprintf("trials must be >= 1, got %d", trials))
	}

	declared := params.ScanNames()
	ordered := slices.Clone(params.Order)
	sort.Strings(ordered)
	ordered = slices.Compact(ordered)
	if !slices.Equal(declared, ordered) || len(ordered) != len(params.Order) {
		issues.Add(fmt.Sprintf("scan parameters [%s] do not match order [%s]",
			strings.Join(declared, ", "), strings.Join(params.Order, ", ")))
		return Plan{}, issues
	}

	plan := Plan{Names: slices.Clone(params.Order), Trials: trials}
	for _, name := range plan.Names {
		values, err := params.Candidates(name)
		if err != nil {
			issues.Add(err.Error())
			continue
		}
		plan.candidates = append(plan.candidates, values)
	}
	if err := issues.OrNil(); err != nil {
		return Plan{}, err
	}
	return plan, nil
}

// Size is the number of distinct combinations.
func (p Plan) Size() int {
	n := 1
	for _, values := range p.candidates {
		n *= len(values)
	}
	return n
}

// Total is the number of trials the sweep will run.
func (p Plan) Total() int {
	return p.Size() * p.Trials
}

// Combinations enumerates the product, rightmost name fastest.
func (p Plan) Combinations() []domain.Combination {
	size := p.Size()
	out := make([]domain.Combination, 0, size)
	idx := make([]int, len(p.candidates))
	for i := 0; i < size; i++ {
		values := make([]any, len(p.candidates))
		for k, c := range idx {
			values[k] = p.candidates[k][c]
		}
		out = append(out, domain.Combination{Names: slices.Clone(p.Names), Values: values})
		for k := len(idx) - 1; k >= 0; k-- {
			idx[k]++
			if idx[k] < len(p.candidates[k]) {
				break
			}
			idx[k] = 0
		}
	}
	return out
}
