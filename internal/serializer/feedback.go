package serializer

import (
	"time"

	"github.com/google/uuid"
)

// Feedback is the input to SerializeFeedback: one user- or
// evaluator-supplied rating attached to a run (spec.md §4.9 create_feedback).
type Feedback struct {
	ID        uuid.UUID
	RunID     uuid.UUID
	TraceID   uuid.UUID
	Key       string
	Score     *float64
	Value     any
	Comment   *string
	CreatedAt time.Time
}

type wireFeedback struct {
	ID        uuid.UUID `json:"id"`
	RunID     uuid.UUID `json:"run_id"`
	TraceID   uuid.UUID `json:"trace_id"`
	Key       string    `json:"key"`
	Score     *float64  `json:"score,omitempty"`
	Value     any       `json:"value,omitempty"`
	Comment   *string   `json:"comment,omitempty"`
	CreatedAt string    `json:"created_at"`
}

// SerializeFeedback encodes a Feedback as a PostFeedback Operation
// (spec.md §3 Operation variants, §4.9 create_feedback).
func SerializeFeedback(fb Feedback) (Operation, error) {
	body, err := Marshal(wireFeedback{
		ID:        fb.ID,
		RunID:     fb.RunID,
		TraceID:   fb.TraceID,
		Key:       fb.Key,
		Score:     fb.Score,
		Value:     fb.Value,
		Comment:   fb.Comment,
		CreatedAt: fb.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return Operation{}, err
	}

	return Operation{
		Kind:         KindPostFeedback,
		ID:           fb.ID,
		TraceID:      fb.TraceID,
		CreationSeq:  NextCreationSeq(),
		FeedbackBody: body,
	}, nil
}
