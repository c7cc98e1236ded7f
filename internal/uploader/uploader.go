// Package uploader sends compressed batches to the ingest endpoint and
// classifies the response (spec.md §4.7, §6.1, §6.3). Grounded on the
// teacher's internal/storage/dolt/store.go withRetry/isRetryableError
// shape: a classifier predicate plus a cenkalti/backoff-driven retry
// loop, generalized from MySQL driver errors to HTTP status codes.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/steveyegge/langsmith-go/internal/compressor"
	"github.com/steveyegge/langsmith-go/internal/config"
	langerrors "github.com/steveyegge/langsmith-go/internal/errors"
	"github.com/steveyegge/langsmith-go/internal/telemetry"
)

// Config holds the uploader's connection and retry settings (spec.md
// §4.10's endpoint/api_key/service_key/retry_max_attempts/retry_max_backoff).
type Config struct {
	Endpoint       string
	APIKey         string
	ServiceKey     string
	BatchIngest    bool // true once the server has advertised batch-ingest mode
	MaxAttempts    int
	MaxBackoff     time.Duration
}

// Uploader is safe for concurrent use by multiple sub-threads (spec.md
// §4.7): it holds no mutable state beyond its *http.Client, which is
// itself safe for concurrent use.
type Uploader struct {
	cfg    Config
	client *http.Client
}

// New creates an Uploader against cfg. client may be nil to use
// http.DefaultClient; tests pass a client wired to an httptest.Server.
func New(cfg Config, client *http.Client) *Uploader {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Uploader{cfg: cfg, client: client}
}

func (u *Uploader) path() string {
	if u.cfg.BatchIngest {
		return "/runs/batch"
	}
	return "/runs/multipart"
}

func (u *Uploader) newRequest(ctx context.Context, batch *compressor.Batch) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.cfg.Endpoint+u.path(), bytes.NewReader(batch.Body))
	if err != nil {
		return nil, err
	}
	if u.cfg.APIKey != "" {
		req.Header.Set("x-api-key", u.cfg.APIKey)
	}
	if u.cfg.ServiceKey != "" {
		req.Header.Set("x-service-key", u.cfg.ServiceKey)
	}
	req.Header.Set("Content-Encoding", "zstd")
	req.Header.Set("Content-Type", fmt.Sprintf("multipart/form-data; boundary=%s", batch.Boundary))
	if batch.TraceSummary != "" {
		req.Header.Set("trace-context", batch.TraceSummary)
	}
	return req, nil
}

// outcome classifies one response per spec.md §6.3.
type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRetry
	outcomeDrop
	outcomeFollow
)

func classify(resp *http.Response) outcome {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return outcomeSuccess
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return outcomeFollow
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return outcomeRetry
	case resp.StatusCode >= 500:
		return outcomeRetry
	default:
		return outcomeDrop
	}
}

// retryAfter parses the Retry-After header as either a delta-seconds
// integer or an HTTP-date (spec.md §4.7).
func retryAfter(resp *http.Response) (time.Duration, bool) {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d, true
		}
	}
	return 0, false
}

// Upload sends batch, retrying retryable outcomes with exponential
// backoff honoring Retry-After on 429 (spec.md §4.7, §8 scenario S6). It
// returns nil on success, a wrapped ErrServerRejected when the batch is
// dropped on a non-retryable status, and a wrapped ErrTransport when the
// request cannot be built or every attempt is exhausted. Upload does not
// touch byte accounting; the caller releases it whatever the outcome.
func (u *Uploader) Upload(ctx context.Context, batch *compressor.Batch) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = u.cfg.MaxBackoff
	bo.MaxElapsedTime = 0

	var lastErr error
	attempts := 0
	for attempts < u.cfg.MaxAttempts {
		attempts++

		req, err := u.newRequest(ctx, batch)
		if err != nil {
			return fmt.Errorf("%w: build request: %v", langerrors.ErrTransport, err)
		}

		resp, err := u.client.Do(req)
		if err != nil {
			lastErr = err
			if attempts >= u.cfg.MaxAttempts {
				break
			}
			sleep(ctx, bo.NextBackOff())
			continue
		}

		result := classify(resp)
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch result {
		case outcomeSuccess:
			telemetry.Metrics.BatchesUploaded.Add(ctx, 1)
			if attempts > 1 {
				telemetry.Metrics.RetryCount.Add(ctx, int64(attempts-1))
			}
			return nil
		case outcomeFollow:
			// Followed once implicitly by http.Client's redirect policy;
			// reaching here on a raw 3xx means the client didn't follow
			// it (e.g. a non-GET redirect) — treat as success washout.
			telemetry.Metrics.BatchesUploaded.Add(ctx, 1)
			return nil
		case outcomeDrop:
			telemetry.Metrics.BatchesDropped.Add(ctx, 1)
			telemetry.WarnOnce(fmt.Sprintf("uploader-drop-%d", resp.StatusCode),
				"ingest rejected batch with non-retryable status %d; dropping", resp.StatusCode)
			return fmt.Errorf("%w: status %d", langerrors.ErrServerRejected, resp.StatusCode)
		case outcomeRetry:
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			if attempts >= u.cfg.MaxAttempts {
				break
			}
			wait := bo.NextBackOff()
			if d, ok := retryAfter(resp); ok {
				wait = d
			}
			sleep(ctx, wait)
		}
	}

	if attempts > 1 {
		telemetry.Metrics.RetryCount.Add(ctx, int64(attempts-1))
	}
	return fmt.Errorf("%w: exhausted %d attempts: %v", langerrors.ErrTransport, attempts, lastErr)
}

// infoResponse mirrors the ingest service's /info shape enough to read
// batch_ingest_config (spec.md §9 server-advertised config merging).
type infoResponse struct {
	BatchIngestConfig struct {
		SizeLimit              *int    `json:"size_limit"`
		SizeLimitBytes         *uint64 `json:"size_limit_bytes"`
		ScaleUpQSizeTrigger    *int    `json:"scale_up_qsize_trigger"`
		ScaleUpNThreadsLimit   *int    `json:"scale_up_nthreads_limit"`
		ScaleDownNEmptyTrigger *int    `json:"scale_down_nempty_trigger"`
	} `json:"batch_ingest_config"`
}

// FetchInfo calls the ingest service's /info endpoint once and returns the
// batch_ingest_config it advertises, for the caller to merge over its
// local Config via Config.MergeServerInfo. A transport or decode failure
// just means the client keeps its own defaults, so this never returns an
// error the caller must act on beyond logging.
func (u *Uploader) FetchInfo(ctx context.Context) (config.BatchIngestInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.cfg.Endpoint+"/info", nil)
	if err != nil {
		return config.BatchIngestInfo{}, err
	}
	if u.cfg.APIKey != "" {
		req.Header.Set("x-api-key", u.cfg.APIKey)
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return config.BatchIngestInfo{}, fmt.Errorf("%w: %v", langerrors.ErrTransport, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return config.BatchIngestInfo{}, fmt.Errorf("%w: status %d", langerrors.ErrTransport, resp.StatusCode)
	}

	var info infoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return config.BatchIngestInfo{}, fmt.Errorf("decode /info response: %w", err)
	}

	return config.BatchIngestInfo{
		SizeLimit:              info.BatchIngestConfig.SizeLimit,
		SizeLimitBytes:         info.BatchIngestConfig.SizeLimitBytes,
		ScaleUpQSizeTrigger:    info.BatchIngestConfig.ScaleUpQSizeTrigger,
		ScaleUpNThreadsLimit:   info.BatchIngestConfig.ScaleUpNThreadsLimit,
		ScaleDownNEmptyTrigger: info.BatchIngestConfig.ScaleDownNEmptyTrigger,
	}, nil
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
