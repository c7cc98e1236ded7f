package opbuffer

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/steveyegge/langsmith-go/internal/serializer"
)

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

// TestCoalesceMergesPostAndPatch covers spec.md §8 scenario S1: a post
// followed by a patch for the same run in one drained batch produces a
// single PostRun with the patch's fields overlaid.
func TestCoalesceMergesPostAndPatch(t *testing.T) {
	id := uuid.New()
	post := serializer.Operation{
		Kind:        serializer.KindPostRun,
		ID:          id,
		CreationSeq: 1,
		HeaderBytes: mustMarshal(t, map[string]any{"name": "run", "end_time": nil}),
		Inputs:      mustMarshal(t, map[string]any{"q": "hi"}),
	}
	patch := serializer.Operation{
		Kind:        serializer.KindPatchRun,
		ID:          id,
		CreationSeq: 2,
		HeaderBytes: mustMarshal(t, map[string]any{"end_time": "2024-01-01T00:00:00Z"}),
		Outputs:     mustMarshal(t, map[string]any{"a": "bye"}),
	}

	out := Coalesce([]serializer.Operation{post, patch})
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if out[0].Kind != serializer.KindPostRun {
		t.Fatalf("merged op kind = %v, want PostRun", out[0].Kind)
	}

	var header map[string]any
	if err := json.Unmarshal(out[0].HeaderBytes, &header); err != nil {
		t.Fatalf("header not valid JSON: %v", err)
	}
	if header["name"] != "run" {
		t.Fatalf("name = %v, want run", header["name"])
	}
	if header["end_time"] != "2024-01-01T00:00:00Z" {
		t.Fatalf("end_time = %v, want patch's value", header["end_time"])
	}
	if string(out[0].Outputs) != string(patch.Outputs) {
		t.Fatalf("Outputs not overlaid from patch")
	}
	if string(out[0].Inputs) != string(post.Inputs) {
		t.Fatalf("Inputs should survive from post since patch left them unset")
	}
}

// TestCoalesceConcatenatesEventsAcrossPatches covers spec.md §8 scenario
// S2: two patches against the same post each add events; coalescing must
// concatenate all of them in creation_seq order, not drop either.
func TestCoalesceConcatenatesEventsAcrossPatches(t *testing.T) {
	id := uuid.New()
	post := serializer.Operation{
		Kind:        serializer.KindPostRun,
		ID:          id,
		CreationSeq: 1,
		HeaderBytes: mustMarshal(t, map[string]any{"name": "run"}),
		Events:      mustMarshal(t, []map[string]any{{"name": "start"}}),
	}
	patch1 := serializer.Operation{
		Kind:        serializer.KindPatchRun,
		ID:          id,
		CreationSeq: 3,
		HeaderBytes: mustMarshal(t, map[string]any{}),
		Events:      mustMarshal(t, []map[string]any{{"name": "mid"}}),
	}
	patch2 := serializer.Operation{
		Kind:        serializer.KindPatchRun,
		ID:          id,
		CreationSeq: 2,
		HeaderBytes: mustMarshal(t, map[string]any{}),
		Events:      mustMarshal(t, []map[string]any{{"name": "early"}}),
	}

	// patch2 has a lower CreationSeq than patch1 despite appearing later
	// in the batch slice; Coalesce must order by CreationSeq, not slice order.
	out := Coalesce([]serializer.Operation{post, patch1, patch2})
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}

	var events []map[string]any
	if err := json.Unmarshal(out[0].Events, &events); err != nil {
		t.Fatalf("events not valid JSON: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	want := []string{"start", "early", "mid"}
	for i, w := range want {
		if events[i]["name"] != w {
			t.Fatalf("events[%d].name = %v, want %v", i, events[i]["name"], w)
		}
	}
}

// TestCoalescePassesThroughStandalonePatch covers the case where a
// patch's corresponding post was flushed in an earlier batch: it must
// pass through unmodified rather than being dropped or merged with
// something unrelated.
func TestCoalescePassesThroughStandalonePatch(t *testing.T) {
	patch := serializer.Operation{
		Kind:        serializer.KindPatchRun,
		ID:          uuid.New(),
		CreationSeq: 1,
		HeaderBytes: mustMarshal(t, map[string]any{"end_time": "now"}),
	}

	out := Coalesce([]serializer.Operation{patch})
	if len(out) != 1 || out[0].Kind != serializer.KindPatchRun {
		t.Fatalf("standalone patch should pass through unchanged, got %+v", out)
	}
}

// TestCoalescePassesThroughFeedback ensures PostFeedback operations are
// never merged with anything, since they have no header/inputs/outputs
// shape to merge.
func TestCoalescePassesThroughFeedback(t *testing.T) {
	runID := uuid.New()
	post := serializer.Operation{Kind: serializer.KindPostRun, ID: runID, CreationSeq: 1, HeaderBytes: mustMarshal(t, map[string]any{})}
	feedback := serializer.Operation{Kind: serializer.KindPostFeedback, ID: uuid.New(), CreationSeq: 2, FeedbackBody: mustMarshal(t, map[string]any{"key": "correctness"})}

	out := Coalesce([]serializer.Operation{post, feedback})
	if len(out) != 2 {
		t.Fatalf("len(out) = %d, want 2", len(out))
	}
}

func TestCoalesceMergesAttachmentsByKey(t *testing.T) {
	id := uuid.New()
	post := serializer.Operation{
		Kind:        serializer.KindPostRun,
		ID:          id,
		CreationSeq: 1,
		HeaderBytes: mustMarshal(t, map[string]any{}),
		Attachments: map[string]serializer.Attachment{"a": {MimeType: "text/plain", Data: []byte("1")}},
	}
	patch := serializer.Operation{
		Kind:        serializer.KindPatchRun,
		ID:          id,
		CreationSeq: 2,
		HeaderBytes: mustMarshal(t, map[string]any{}),
		Attachments: map[string]serializer.Attachment{"b": {MimeType: "text/plain", Data: []byte("2")}},
	}

	out := Coalesce([]serializer.Operation{post, patch})
	if len(out) != 1 {
		t.Fatalf("len(out) = %d, want 1", len(out))
	}
	if len(out[0].Attachments) != 2 {
		t.Fatalf("len(Attachments) = %d, want 2", len(out[0].Attachments))
	}
}
