package serializer

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// Kind identifies which mutation an Operation represents.
type Kind int

const (
	KindPostRun Kind = iota
	KindPatchRun
	KindPostFeedback
)

func (k Kind) String() string {
	switch k {
	case KindPostRun:
		return "post"
	case KindPatchRun:
		return "patch"
	case KindPostFeedback:
		return "feedback"
	default:
		return "unknown"
	}
}

// Rank is the kind_rank spec.md §4.4 orders a batch by: post before patch
// before feedback, so the backend always sees a run created before it sees
// it updated.
func (k Kind) Rank() int {
	return int(k)
}

var creationSeq atomic.Uint64

// NextCreationSeq returns a process-wide monotonic counter used to break
// ties between operations that share a dotted_order and kind_rank — e.g.
// two patches enqueued back to back for the same run (see SPEC_FULL.md §3's
// resolution of the original source's unnamed ordering key).
func NextCreationSeq() uint64 {
	return creationSeq.Add(1)
}

// Operation is the serializer's output: one mutation ready for the
// OpBuffer (spec.md §3 "Operation").
type Operation struct {
	Kind    Kind
	ID      uuid.UUID
	TraceID uuid.UUID

	// DottedOrder and CreationSeq together form the OpBuffer's priority
	// key (spec.md §4.4): (dotted_order, creation_seq, kind_rank).
	DottedOrder string
	CreationSeq uint64

	// HeaderBytes is the JSON of the run minus inputs/outputs/events/attachments
	// (spec.md §3). Always present for PostRun/PatchRun; nil for PostFeedback.
	HeaderBytes []byte

	Inputs      []byte
	Outputs     []byte
	Events      []byte
	Attachments map[string]Attachment

	// FeedbackBody is the JSON body of a PostFeedback operation.
	FeedbackBody []byte
}

// Attachment is a serialized attachment ready for the multipart body
// (spec.md §6.1).
type Attachment struct {
	MimeType string
	Data     []byte
}
