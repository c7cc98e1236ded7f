package runtree

import (
	"time"

	"github.com/google/uuid"

	"github.com/steveyegge/langsmith-go/internal/idgen"
)

// Enqueuer is the minimal surface RunTree needs to post/patch itself. The
// client façade implements it; runtree never imports client, avoiding a
// cycle (spec.md §4.9's Client owns the queue, §4.2's RunTree just calls
// through it).
type Enqueuer interface {
	EnqueuePostRun(run Run)
	EnqueuePatchRun(run Run)
}

// RunTree is a live, mutable handle on a Run plus enough context to create
// children and emit operations against it.
type RunTree struct {
	Run
	enqueuer Enqueuer
}

// RootOption configures a newly created root or child RunTree.
type RootOption func(*Run)

func WithInputs(inputs any) RootOption   { return func(r *Run) { r.Inputs = inputs } }
func WithTags(tags []string) RootOption  { return func(r *Run) { r.Tags = append([]string(nil), tags...) } }
func WithMetadata(md map[string]any) RootOption {
	return func(r *Run) { r.Extra.Metadata = md }
}
func WithSessionName(name string) RootOption { return func(r *Run) { r.SessionName = name } }
func WithStartTime(t time.Time) RootOption   { return func(r *Run) { r.StartTime = t } }
func WithReferenceExampleID(id uuid.UUID) RootOption {
	return func(r *Run) { r.ReferenceExampleID = &id }
}

// NewRoot creates a root run: trace_id equals its own id, dotted_order is
// a single segment (spec.md §3 invariants).
func NewRoot(enqueuer Enqueuer, runType RunType, name string, opts ...RootOption) *RunTree {
	run := Run{
		RunType:   runType,
		Name:      name,
		StartTime: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&run)
	}
	run.ID = idgen.NewAt(run.StartTime)
	run.TraceID = run.ID
	run.DottedOrder = segment(run.StartTime, run.ID)

	return &RunTree{Run: run, enqueuer: enqueuer}
}

// CreateChild derives the child's trace_id from self, appends a new
// segment to self's dotted_order, and sets parent_run_id = self.id
// (spec.md §4.2). The child's own id is a fresh UUIDv7 whose timestamp
// matches the child's start_time, never the parent's.
func (rt *RunTree) CreateChild(runType RunType, name string, opts ...RootOption) *RunTree {
	run := Run{
		RunType:   runType,
		Name:      name,
		StartTime: time.Now().UTC(),
		// inherited ambient fields, may be overridden by opts
		SessionName: rt.SessionName,
		Tags:        append([]string(nil), rt.Tags...),
		Replicas:    append([]Replica(nil), rt.Replicas...),
	}
	for _, opt := range opts {
		opt(&run)
	}
	// spec.md §3 invariant: parent.start_time <= child.start_time.
	if run.StartTime.Before(rt.StartTime) {
		run.StartTime = rt.StartTime
	}

	run.ID = idgen.NewAt(run.StartTime)
	run.TraceID = rt.TraceID
	parent := rt.ID
	run.ParentRunID = &parent
	run.DottedOrder = rt.DottedOrder + "." + segment(run.StartTime, run.ID)

	return &RunTree{Run: run, enqueuer: rt.enqueuer}
}

// End sets terminal fields. Last call wins (idempotent-ish per spec.md
// §4.2); it does not enqueue anything by itself.
func (rt *RunTree) End(outputs any, runErr *string, endTime *time.Time) {
	if outputs != nil {
		rt.Outputs = outputs
	}
	rt.Error = runErr
	if endTime != nil {
		t := *endTime
		rt.EndTime = &t
	} else {
		now := time.Now().UTC()
		rt.EndTime = &now
	}
}

// AddEvent appends one streaming event (spec.md §3).
func (rt *RunTree) AddEvent(name string, kwargs map[string]any) {
	rt.Events = append(rt.Events, Event{Name: name, Time: time.Now().UTC(), Kwargs: kwargs})
}

// Post enqueues one PostRun from a snapshot of the run at call time
// (spec.md §4.2).
func (rt *RunTree) Post() {
	if rt.enqueuer == nil {
		return
	}
	rt.enqueuer.EnqueuePostRun(rt.Run.Snapshot())
}

// Patch enqueues one PatchRun carrying the run's current end-state fields
// (spec.md §4.2).
func (rt *RunTree) Patch() {
	if rt.enqueuer == nil {
		return
	}
	rt.enqueuer.EnqueuePatchRun(rt.Run.Snapshot())
}
