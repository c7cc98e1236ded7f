package serializer

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/steveyegge/langsmith-go/internal/runtree"
	"github.com/steveyegge/langsmith-go/internal/telemetry"
)

// wireRun is the JSON shape of a run's header part — every Run field
// except the four detachable ones (spec.md §3 Operation definition).
type wireRun struct {
	ID                 uuid.UUID       `json:"id"`
	TraceID            uuid.UUID       `json:"trace_id"`
	ParentRunID         *uuid.UUID      `json:"parent_run_id,omitempty"`
	DottedOrder        string          `json:"dotted_order"`
	RunType            runtree.RunType `json:"run_type"`
	Name               string          `json:"name"`
	StartTime          string          `json:"start_time"`
	EndTime            *string         `json:"end_time,omitempty"`
	Error              *string         `json:"error,omitempty"`
	Extra              runtree.Extra   `json:"extra,omitempty"`
	Tags               []string        `json:"tags,omitempty"`
	SessionName        string          `json:"session_name,omitempty"`
	SessionID          *uuid.UUID      `json:"session_id,omitempty"`
	ReferenceExampleID *uuid.UUID      `json:"reference_example_id,omitempty"`
}

func toWireRun(run runtree.Run) wireRun {
	w := wireRun{
		ID:                 run.ID,
		TraceID:            run.TraceID,
		ParentRunID:        run.ParentRunID,
		DottedOrder:        run.DottedOrder,
		RunType:            run.RunType,
		Name:               run.Name,
		StartTime:          run.StartTime.UTC().Format("2006-01-02T15:04:05.000000Z"),
		Error:              run.Error,
		Extra:              run.Extra,
		Tags:               run.Tags,
		SessionName:        run.SessionName,
		SessionID:          run.SessionID,
		ReferenceExampleID: run.ReferenceExampleID,
	}
	if run.EndTime != nil {
		s := run.EndTime.UTC().Format("2006-01-02T15:04:05.000000Z")
		w.EndTime = &s
	}
	return w
}

// SerializeRun pops inputs/outputs/events/attachments out of run, encodes
// the remainder as the header JSON, and encodes each popped field
// separately (spec.md §4.3 serialize_run).
func SerializeRun(kind Kind, run runtree.Run) (Operation, error) {
	if kind != KindPostRun && kind != KindPatchRun {
		return Operation{}, fmt.Errorf("SerializeRun: unsupported kind %s", kind)
	}

	header, err := Marshal(toWireRun(run))
	if err != nil {
		telemetry.WarnOnce("serialize-header-"+run.ID.String(), "dropping header fields for run %s: %v", run.ID, err)
		return Operation{}, fmt.Errorf("%w: run header", ErrUnserializable)
	}

	op := Operation{
		Kind:        kind,
		ID:          run.ID,
		TraceID:     run.TraceID,
		DottedOrder: run.DottedOrder,
		CreationSeq: NextCreationSeq(),
		HeaderBytes: header,
	}

	if run.Inputs != nil {
		if b, err := Marshal(run.Inputs); err != nil {
			telemetry.WarnOnce("serialize-inputs-"+run.ID.String(), "eliding inputs for run %s: %v", run.ID, err)
		} else {
			op.Inputs = b
		}
	}
	if run.Outputs != nil {
		if b, err := Marshal(run.Outputs); err != nil {
			telemetry.WarnOnce("serialize-outputs-"+run.ID.String(), "eliding outputs for run %s: %v", run.ID, err)
		} else {
			op.Outputs = b
		}
	}
	if len(run.Events) > 0 {
		if b, err := Marshal(run.Events); err != nil {
			telemetry.WarnOnce("serialize-events-"+run.ID.String(), "eliding events for run %s: %v", run.ID, err)
		} else {
			op.Events = b
		}
	}
	if len(run.Attachments) > 0 {
		op.Attachments = make(map[string]Attachment, len(run.Attachments))
		for name, a := range run.Attachments {
			op.Attachments[name] = Attachment{MimeType: a.MimeType, Data: a.Data}
		}
	}

	return op, nil
}
