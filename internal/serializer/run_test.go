package serializer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/steveyegge/langsmith-go/internal/idgen"
	"github.com/steveyegge/langsmith-go/internal/runtree"
)

func TestSerializeRunSplitsDetachableFields(t *testing.T) {
	start := time.Now().UTC()
	run := runtree.Run{
		ID:          idgen.NewAt(start),
		TraceID:     idgen.NewAt(start),
		DottedOrder: "seg",
		RunType:     runtree.RunTypeChain,
		Name:        "parent",
		StartTime:   start,
		Inputs:      map[string]any{"q": "hi"},
		Outputs:     map[string]any{"a": "there"},
		Events:      []runtree.Event{{Name: "tick", Time: start}},
	}

	op, err := SerializeRun(KindPostRun, run)
	if err != nil {
		t.Fatalf("SerializeRun: %v", err)
	}

	var header map[string]any
	if err := json.Unmarshal(op.HeaderBytes, &header); err != nil {
		t.Fatalf("header not valid JSON: %v", err)
	}
	if _, present := header["inputs"]; present {
		t.Fatalf("header should not contain inputs")
	}
	if _, present := header["outputs"]; present {
		t.Fatalf("header should not contain outputs")
	}

	if op.Inputs == nil {
		t.Fatalf("Inputs should be populated separately")
	}
	if op.Outputs == nil {
		t.Fatalf("Outputs should be populated separately")
	}
	if op.Events == nil {
		t.Fatalf("Events should be populated separately")
	}
}

func TestSerializeRunAssignsIncreasingCreationSeq(t *testing.T) {
	run := runtree.Run{ID: idgen.New(), TraceID: idgen.New(), StartTime: time.Now()}
	op1, err := SerializeRun(KindPostRun, run)
	if err != nil {
		t.Fatalf("SerializeRun: %v", err)
	}
	op2, err := SerializeRun(KindPatchRun, run)
	if err != nil {
		t.Fatalf("SerializeRun: %v", err)
	}
	if op2.CreationSeq <= op1.CreationSeq {
		t.Fatalf("op2.CreationSeq %d should be greater than op1.CreationSeq %d", op2.CreationSeq, op1.CreationSeq)
	}
}
