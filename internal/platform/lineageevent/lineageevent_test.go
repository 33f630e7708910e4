package lineageevent

import (
	"context"
	"testing"
	"time"
)

func TestComputeIntegritySHA256_Deterministic(t *testing.T) {
	event := Event{
		OccurredAt:  time.Unix(1700000000, 0).UTC(),
		Actor:       "analyst",
		RunID:       "run-1",
		SubjectType: SubjectSnapshot,
		SubjectID:   "data2",
		Predicate:   PredicateDerivedFrom,
		ObjectType:  SubjectSnapshot,
		ObjectID:    "data1",
	}
	meta := []byte(`{"transform":"scale","modifies":"v_scaled"}`)

	a, err := ComputeIntegritySHA256(event, meta)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	b, err := ComputeIntegritySHA256(event, meta)
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if a != b {
		t.Fatalf("integrity mismatch: %q vs %q", a, b)
	}

	c, err := ComputeIntegritySHA256(event, []byte(`{"transform":"offset"}`))
	if err != nil {
		t.Fatalf("ComputeIntegritySHA256() err=%v", err)
	}
	if a == c {
		t.Fatalf("expected integrity to differ on metadata")
	}
}

func TestSnapshotEventPredicate(t *testing.T) {
	derived := SnapshotEvent("analyst", "run-1", "data0", "data1", false, nil)
	if derived.Predicate != PredicateDerivedFrom || derived.SubjectID != "data1" || derived.ObjectID != "data0" {
		t.Fatalf("unexpected event %+v", derived)
	}
	if err := derived.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
	skipped := SnapshotEvent("analyst", "run-1", "data1", "data2", true, nil)
	if skipped.Predicate != PredicateSkipped {
		t.Fatalf("expected skipped predicate, got %q", skipped.Predicate)
	}
}

func TestInsertRequiresQueryer(t *testing.T) {
	if _, err := Insert(context.Background(), nil, Event{}); err == nil {
		t.Fatalf("expected error without queryer")
	}
}
