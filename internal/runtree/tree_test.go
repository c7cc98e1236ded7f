package runtree

import (
	"strings"
	"testing"
)

type fakeEnqueuer struct {
	posts  []Run
	patches []Run
}

func (f *fakeEnqueuer) EnqueuePostRun(run Run)  { f.posts = append(f.posts, run) }
func (f *fakeEnqueuer) EnqueuePatchRun(run Run) { f.patches = append(f.patches, run) }

func TestRootRunTraceIDEqualsOwnID(t *testing.T) {
	root := NewRoot(nil, RunTypeChain, "parent")
	if root.TraceID != root.ID {
		t.Fatalf("root.TraceID = %v, want equal to root.ID = %v", root.TraceID, root.ID)
	}
	if strings.Contains(root.DottedOrder, ".") {
		t.Fatalf("root dotted_order %q should be a single segment", root.DottedOrder)
	}
}

func TestChildDottedOrderPrefix(t *testing.T) {
	root := NewRoot(nil, RunTypeChain, "parent")
	child := root.CreateChild(RunTypeTool, "child")

	if !strings.HasPrefix(child.DottedOrder, root.DottedOrder+".") {
		t.Fatalf("child.DottedOrder %q does not start with parent prefix %q", child.DottedOrder, root.DottedOrder+".")
	}
	if child.TraceID != root.TraceID {
		t.Fatalf("child.TraceID = %v, want %v", child.TraceID, root.TraceID)
	}
	if child.ParentRunID == nil || *child.ParentRunID != root.ID {
		t.Fatalf("child.ParentRunID = %v, want %v", child.ParentRunID, root.ID)
	}
	if !child.StartTime.After(root.StartTime) && !child.StartTime.Equal(root.StartTime) {
		t.Fatalf("child.StartTime %v should be >= parent.StartTime %v", child.StartTime, root.StartTime)
	}
}

func TestPostPatchEnqueueSnapshots(t *testing.T) {
	enq := &fakeEnqueuer{}
	root := NewRoot(enq, RunTypeChain, "parent")
	root.Post()

	outputs := map[string]any{"y": 2}
	root.End(outputs, nil, nil)
	root.Patch()

	if len(enq.posts) != 1 {
		t.Fatalf("want 1 post, got %d", len(enq.posts))
	}
	if len(enq.patches) != 1 {
		t.Fatalf("want 1 patch, got %d", len(enq.patches))
	}
	if enq.posts[0].Outputs != nil {
		t.Fatalf("post snapshot should predate End(), got Outputs=%v", enq.posts[0].Outputs)
	}
	if enq.patches[0].EndTime == nil {
		t.Fatalf("patch snapshot should carry EndTime")
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	root := NewRoot(nil, RunTypeChain, "parent",
		WithTags([]string{"a", "b"}),
		WithMetadata(map[string]any{"k": "v"}),
		WithSessionName("proj"),
	)
	child := root.CreateChild(RunTypeTool, "child")

	headers := child.ToHeaders()
	stub, err := FromHeaders(headers[HeaderTrace], headers[HeaderBaggage])
	if err != nil {
		t.Fatalf("FromHeaders: %v", err)
	}

	reconstructed, err := stub.AsParent(nil)
	if err != nil {
		t.Fatalf("AsParent: %v", err)
	}

	if reconstructed.ID != child.ID {
		t.Fatalf("reconstructed.ID = %v, want %v", reconstructed.ID, child.ID)
	}
	if reconstructed.TraceID != child.TraceID {
		t.Fatalf("reconstructed.TraceID = %v, want %v", reconstructed.TraceID, child.TraceID)
	}
	if reconstructed.DottedOrder != child.DottedOrder {
		t.Fatalf("reconstructed.DottedOrder = %q, want %q", reconstructed.DottedOrder, child.DottedOrder)
	}
	if reconstructed.SessionName != "proj" {
		t.Fatalf("reconstructed.SessionName = %q, want proj", reconstructed.SessionName)
	}
}

func TestHeaderRoundTripCarriesReplicas(t *testing.T) {
	root := NewRoot(nil, RunTypeChain, "parent")
	root.Replicas = []Replica{
		{Project: "proj_A"},
		{Project: "proj_B", Reroot: true},
	}

	headers := root.ToHeaders()
	stub, err := FromHeaders(headers[HeaderTrace], headers[HeaderBaggage])
	if err != nil {
		t.Fatalf("FromHeaders: %v", err)
	}
	if len(stub.Replicas) != 2 {
		t.Fatalf("stub.Replicas = %+v, want 2 entries", stub.Replicas)
	}
	if stub.Replicas[0] != (Replica{Project: "proj_A"}) {
		t.Fatalf("stub.Replicas[0] = %+v, want {proj_A false}", stub.Replicas[0])
	}
	if stub.Replicas[1] != (Replica{Project: "proj_B", Reroot: true}) {
		t.Fatalf("stub.Replicas[1] = %+v, want {proj_B true}", stub.Replicas[1])
	}

	reconstructed, err := stub.AsParent(nil)
	if err != nil {
		t.Fatalf("AsParent: %v", err)
	}
	if len(reconstructed.Replicas) != 2 {
		t.Fatalf("reconstructed.Replicas = %+v, want carried over from the stub", reconstructed.Replicas)
	}

	// A child created under the reconstructed parent should inherit the
	// same replica scope, so a reroot decided upstream of the process
	// boundary still applies downstream of it.
	child := reconstructed.CreateChild(RunTypeTool, "child")
	if len(child.Replicas) != 2 || child.Replicas[1].Project != "proj_B" {
		t.Fatalf("child.Replicas = %+v, want inherited from reconstructed parent", child.Replicas)
	}
}

func TestCrossProcessChildAttachesToDecodedParent(t *testing.T) {
	// S4: P1 runs root R, P2 decodes headers and creates child C under the stub.
	p1Enq := &fakeEnqueuer{}
	root := NewRoot(p1Enq, RunTypeChain, "root")
	headers := root.ToHeaders()

	stub, err := FromHeaders(headers[HeaderTrace], headers[HeaderBaggage])
	if err != nil {
		t.Fatalf("FromHeaders: %v", err)
	}
	p2Enq := &fakeEnqueuer{}
	parentStub, err := stub.AsParent(p2Enq)
	if err != nil {
		t.Fatalf("AsParent: %v", err)
	}

	child := parentStub.CreateChild(RunTypeTool, "C")
	child.End(map[string]any{"ok": true}, nil, nil)
	child.Post()
	child.Patch()

	if child.ParentRunID == nil || *child.ParentRunID != root.ID {
		t.Fatalf("child.ParentRunID = %v, want %v", child.ParentRunID, root.ID)
	}
	if child.TraceID != root.ID {
		t.Fatalf("child.TraceID = %v, want root.ID %v", child.TraceID, root.ID)
	}
	if !strings.HasPrefix(child.DottedOrder, root.DottedOrder+".") {
		t.Fatalf("child.DottedOrder %q should start with %q", child.DottedOrder, root.DottedOrder+".")
	}
}
