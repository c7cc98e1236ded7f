package opbuffer

import (
	"encoding/json"
	"sort"

	"github.com/steveyegge/langsmith-go/internal/serializer"
)

// Coalesce merges, for each run id present in batch, a PostRun with any
// PatchRuns sharing that id into a single PostRun (spec.md §4.4): the
// backend then only ever sees that run once, fully formed, instead of a
// create followed by n updates. Patches are applied in creation_seq
// order. A PatchRun whose id has no PostRun in this batch passes through
// unchanged, as does every PostFeedback.
func Coalesce(batch []serializer.Operation) []serializer.Operation {
	postIdx := make(map[string]int, len(batch))
	patchIdx := make(map[string][]int, len(batch))

	for i, op := range batch {
		switch op.Kind {
		case serializer.KindPostRun:
			postIdx[op.ID.String()] = i
		case serializer.KindPatchRun:
			key := op.ID.String()
			patchIdx[key] = append(patchIdx[key], i)
		}
	}

	consumed := make(map[int]bool, len(batch))
	for key, idxs := range patchIdx {
		postI, ok := postIdx[key]
		if !ok {
			continue
		}
		sort.Slice(idxs, func(a, b int) bool {
			return batch[idxs[a]].CreationSeq < batch[idxs[b]].CreationSeq
		})
		post := batch[postI]
		for _, pi := range idxs {
			post = applyPatch(post, batch[pi])
			consumed[pi] = true
		}
		batch[postI] = post
	}

	out := make([]serializer.Operation, 0, len(batch))
	for i, op := range batch {
		if consumed[i] {
			continue
		}
		out = append(out, op)
	}
	return out
}

// applyPatch overlays patch onto post: header keys merge shallowly with
// patch's non-null keys winning, inputs/outputs are replaced when the
// patch sets them, events concatenate in patch-application order, and
// attachments merge by key with the patch's entries winning.
func applyPatch(post, patch serializer.Operation) serializer.Operation {
	if merged, ok := mergeHeaders(post.HeaderBytes, patch.HeaderBytes); ok {
		post.HeaderBytes = merged
	}
	if patch.Inputs != nil {
		post.Inputs = patch.Inputs
	}
	if patch.Outputs != nil {
		post.Outputs = patch.Outputs
	}
	if merged, ok := concatEvents(post.Events, patch.Events); ok {
		post.Events = merged
	}
	if len(patch.Attachments) > 0 {
		if post.Attachments == nil {
			post.Attachments = make(map[string]serializer.Attachment, len(patch.Attachments))
		}
		for name, a := range patch.Attachments {
			post.Attachments[name] = a
		}
	}
	return post
}

func mergeHeaders(postHeader, patchHeader []byte) ([]byte, bool) {
	if len(patchHeader) == 0 {
		return nil, false
	}
	var base, overlay map[string]any
	if err := json.Unmarshal(postHeader, &base); err != nil {
		return nil, false
	}
	if err := json.Unmarshal(patchHeader, &overlay); err != nil {
		return nil, false
	}
	for k, v := range overlay {
		if v == nil {
			continue
		}
		base[k] = v
	}
	merged, err := json.Marshal(base)
	if err != nil {
		return nil, false
	}
	return merged, true
}

func concatEvents(postEvents, patchEvents []byte) ([]byte, bool) {
	if len(patchEvents) == 0 {
		return nil, false
	}
	var tail []json.RawMessage
	if err := json.Unmarshal(patchEvents, &tail); err != nil {
		return nil, false
	}
	var head []json.RawMessage
	if len(postEvents) > 0 {
		if err := json.Unmarshal(postEvents, &head); err != nil {
			return nil, false
		}
	}
	merged, err := json.Marshal(append(head, tail...))
	if err != nil {
		return nil, false
	}
	return merged, true
}
