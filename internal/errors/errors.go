// Package errors defines the error taxonomy the ingestion pipeline raises
// or logs. Kinds, not concrete types: callers match with errors.Is against
// the sentinels below, and background failures are classified by wrapping
// one of them.
package errors

import "errors"

// Sentinel kinds. Wrap with fmt.Errorf("...: %w", Kind) for context.
var (
	// ErrConfiguration covers a missing api key against a remote endpoint,
	// an invalid endpoint URL, or conflicting hide-inputs/required-field
	// settings. Raised synchronously at Client construction.
	ErrConfiguration = errors.New("configuration error")

	// ErrBackpressure is returned synchronously from an enqueue call when
	// the uncompressed queue byte cap is reached and the caller opted out
	// of blocking.
	ErrBackpressure = errors.New("queue byte cap reached")

	// ErrSerialization covers a value the serializer could not represent
	// even after exhausting its fallback paths. Never fatal: the offending
	// field is elided and the run continues.
	ErrSerialization = errors.New("serialization error")

	// ErrTransport covers network failures, 408/429/5xx responses, and any
	// other classification from the uploader that may be retried.
	ErrTransport = errors.New("transport error")

	// ErrServerRejected covers a non-retryable 4xx response. The batch is
	// dropped; it is never surfaced to the producing goroutine.
	ErrServerRejected = errors.New("server rejected batch")
)

// Is reports whether err is classified as kind, following wrapped chains.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
