// Package compressor streams serialized operations into a zstd-compressed
// multipart/form-data body (spec.md §4.5, §6.1), handing a finished Batch
// to the uploader whenever a FlushPolicy decides the boundary has been
// crossed. Grounded on original_source's _compressed_runs.py /
// _compressed_traces.py: both wrap a single ZstdCompressor stream_writer
// over an in-memory buffer and reset it on finalize; this is the same
// shape built on github.com/dolthub/gozstd's streaming Writer instead of
// python-zstandard.
package compressor

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"
	"sync"

	"github.com/dolthub/gozstd"

	"github.com/steveyegge/langsmith-go/internal/serializer"
	"github.com/steveyegge/langsmith-go/internal/telemetry"
)

// FlushPolicy decides whether the in-progress stream has crossed its
// boundary and must be finalized into a Batch (spec.md §4.5). Exported as
// an interface, per DESIGN.md's Open Question resolution, so a future
// per-trace boundary strategy can be swapped in without changing
// Compressor's public surface; only the global size-limit policy ships.
type FlushPolicy interface {
	ShouldFlush(uncompressedBytes, rawBufferBytes uint64) bool
}

// SizeLimitPolicy flushes once either the running uncompressed-byte
// counter or the raw (compressed, pre-finalize) buffer size exceeds
// Limit — the server-advertised size_limit_bytes (spec.md §4.5).
type SizeLimitPolicy struct {
	Limit uint64
}

// ShouldFlush implements FlushPolicy.
func (p SizeLimitPolicy) ShouldFlush(uncompressedBytes, rawBufferBytes uint64) bool {
	return uncompressedBytes > p.Limit || rawBufferBytes > p.Limit
}

// Batch is a finalized compressed multipart body ready for the uploader
// (spec.md §4.5, §6.1).
type Batch struct {
	Body             []byte
	Boundary         string
	RunCount         int
	UncompressedSize uint64
	// TraceSummary is the "trace=<id>,id=<id>; ..." header value
	// summarizing every operation folded into Body (spec.md §6.1).
	TraceSummary string
}

// Compressor guards Write and Flush with a mutex. spec.md §4.6 gives
// each control/sub-thread its own Compressor instance, with only the
// Uploader shared across threads.
type Compressor struct {
	mu     sync.Mutex
	policy FlushPolicy
	level  int

	buf       *bytes.Buffer
	mpw       *multipart.Writer
	zw        *gozstd.Writer
	runCount  int
	uncompSz  uint64
	summary   []string
}

// New creates a Compressor at the given zstd level (spec.md §4.5 default
// 1), flushing whenever policy says the boundary has been crossed.
func New(policy FlushPolicy, level int) *Compressor {
	c := &Compressor{policy: policy, level: level}
	c.reset()
	return c
}

func (c *Compressor) reset() {
	c.buf = &bytes.Buffer{}
	c.zw = gozstd.NewWriterLevel(c.buf, c.level)
	c.mpw = multipart.NewWriter(c.zw)
	c.runCount = 0
	c.uncompSz = 0
	c.summary = nil
}

func writePart(mpw *multipart.Writer, name, contentType string, body []byte) error {
	if len(body) == 0 {
		return nil
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q`, name))
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w, err := mpw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("compressor: create part %s: %w", name, err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("compressor: write part %s: %w", name, err)
	}
	return nil
}

// Write frames op as the parts described in spec.md §6.1, appends it to
// the in-progress stream, and returns a finished Batch plus true when the
// FlushPolicy reports the boundary has been crossed (spec.md §4.5).
func (c *Compressor) Write(op serializer.Operation) (*Batch, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idStr := op.ID.String()

	if op.Kind == serializer.KindPostFeedback {
		if err := writePart(c.mpw, "feedback."+idStr, "application/json", op.FeedbackBody); err != nil {
			return nil, false, err
		}
		c.uncompSz += uint64(len(op.FeedbackBody))
	} else {
		prefix := op.Kind.String() + "." + idStr
		if err := writePart(c.mpw, prefix, "application/json", op.HeaderBytes); err != nil {
			return nil, false, err
		}
		if err := writePart(c.mpw, prefix+".inputs", "application/json", op.Inputs); err != nil {
			return nil, false, err
		}
		if err := writePart(c.mpw, prefix+".outputs", "application/json", op.Outputs); err != nil {
			return nil, false, err
		}
		if err := writePart(c.mpw, prefix+".events", "application/json", op.Events); err != nil {
			return nil, false, err
		}
		for key, a := range op.Attachments {
			if err := writePart(c.mpw, "attachment."+idStr+"."+key, a.MimeType, a.Data); err != nil {
				return nil, false, err
			}
			c.uncompSz += uint64(len(a.Data))
		}
		c.uncompSz += uint64(len(op.HeaderBytes) + len(op.Inputs) + len(op.Outputs) + len(op.Events))
	}

	c.runCount++
	c.summary = append(c.summary, fmt.Sprintf("trace=%s,id=%s", op.TraceID, idStr))

	if err := c.zw.Flush(); err != nil {
		return nil, false, fmt.Errorf("compressor: flush: %w", err)
	}

	if !c.policy.ShouldFlush(c.uncompSz, uint64(c.buf.Len())) {
		return nil, false, nil
	}

	batch, err := c.finalizeLocked()
	return batch, true, err
}

// Flush forces finalization of the current stream even if the
// FlushPolicy hasn't crossed its boundary yet, returning nil if nothing
// has been written since the last finalize. Used by WorkerPool's
// shutdown drain (spec.md §4.6) so a partial batch isn't lost on exit.
func (c *Compressor) Flush() (*Batch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runCount == 0 {
		return nil, nil
	}
	return c.finalizeLocked()
}

func (c *Compressor) finalizeLocked() (*Batch, error) {
	boundary := c.mpw.Boundary()
	if err := c.mpw.Close(); err != nil {
		return nil, fmt.Errorf("compressor: close multipart writer: %w", err)
	}
	if err := c.zw.Close(); err != nil {
		return nil, fmt.Errorf("compressor: close zstd writer: %w", err)
	}

	batch := &Batch{
		Body:             append([]byte(nil), c.buf.Bytes()...),
		Boundary:         boundary,
		RunCount:         c.runCount,
		UncompressedSize: c.uncompSz,
		TraceSummary:     strings.Join(c.summary, "; "),
	}

	telemetry.Metrics.CompressedBytes.Add(context.Background(), int64(len(batch.Body)))

	c.reset()
	return batch, nil
}
