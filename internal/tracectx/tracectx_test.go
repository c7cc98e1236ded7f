package tracectx

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/steveyegge/langsmith-go/internal/runtree"
)

func TestWithParentRestoresOnSiblingContext(t *testing.T) {
	base := context.Background()
	rt := runtree.NewRoot(nil, runtree.RunTypeChain, "root")

	ctx := WithParent(base, rt)
	if Parent(ctx) != rt {
		t.Fatalf("Parent should return the entered run")
	}
	if Parent(base) != nil {
		t.Fatalf("base context should be unaffected by WithParent")
	}
}

func TestFanoutNoReplicasReturnsUnchanged(t *testing.T) {
	run := runtree.Run{ID: uuid.New(), DottedOrder: "seg"}
	out := Fanout(context.Background(), run)
	if len(out) != 1 || out[0].DottedOrder != "seg" {
		t.Fatalf("Fanout with no replicas should return run unchanged")
	}
}

// TestFanoutMatchesScenarioS5 covers spec.md §8 S5: a run created under a
// replicas scope emits one variant with full inherited ancestry and one
// rerooted variant.
func TestFanoutMatchesScenarioS5(t *testing.T) {
	parentID := uuid.New()
	run := runtree.Run{
		ID:          uuid.New(),
		TraceID:     parentID,
		ParentRunID: &parentID,
		DottedOrder: "20240101T000000000000Z" + parentID.String() + ".seg2",
	}

	ctx := WithReplicas(context.Background(), []Replica{
		{Project: "proj_A"},
		{Project: "proj_B", Reroot: true},
	})

	out := Fanout(ctx, run)
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}

	a, b := out[0], out[1]
	if a.SessionName != "proj_A" || a.ParentRunID == nil || *a.ParentRunID != parentID {
		t.Fatalf("replica A should keep full ancestry, got %+v", a)
	}
	if b.SessionName != "proj_B" || b.ParentRunID != nil {
		t.Fatalf("replica B should have parent_run_id cleared, got %+v", b)
	}
	if b.TraceID != b.ID {
		t.Fatalf("replica B trace_id should equal its own id")
	}
	if b.DottedOrder != "seg2" {
		t.Fatalf("replica B dotted_order = %q, want collapsed to final segment", b.DottedOrder)
	}
}
