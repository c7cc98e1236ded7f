package telemetry

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meter is the OTel meter for pipeline-internal health instruments. It uses
// the global provider, which is a no-op until a host process installs a
// real one — the pipeline never configures an exporter itself; exporting
// traces/metrics is the host application's concern, not this library's
// (spec.md §1 non-goals).
var meter = otel.Meter("github.com/steveyegge/langsmith-go")

// Metrics holds the counters and gauges the worker pool, compressor, and
// uploader update as they run. Instruments are registered against the
// global delegating provider at init time, mirroring the teacher's
// doltMetrics pattern in internal/storage/dolt/store.go, so they start
// forwarding the moment a host installs a real MeterProvider.
var Metrics = newInstruments()

type instruments struct {
	BatchesUploaded   metric.Int64Counter
	BatchesDropped    metric.Int64Counter
	RetryCount        metric.Int64Counter
	SubThreadsSpawned metric.Int64Counter
	SubThreadsExited  metric.Int64Counter
	QueueBytes        metric.Int64UpDownCounter
	CompressedBytes   metric.Int64Counter
}

func newInstruments() instruments {
	batchesUploaded, _ := meter.Int64Counter("langsmith.batches.uploaded")
	batchesDropped, _ := meter.Int64Counter("langsmith.batches.dropped")
	retryCount, _ := meter.Int64Counter("langsmith.uploader.retries")
	subSpawned, _ := meter.Int64Counter("langsmith.workerpool.subthreads.spawned")
	subExited, _ := meter.Int64Counter("langsmith.workerpool.subthreads.exited")
	queueBytes, _ := meter.Int64UpDownCounter("langsmith.queue.uncompressed_bytes")
	compressedBytes, _ := meter.Int64Counter("langsmith.compressor.bytes_out")

	return instruments{
		BatchesUploaded:   batchesUploaded,
		BatchesDropped:    batchesDropped,
		RetryCount:        retryCount,
		SubThreadsSpawned: subSpawned,
		SubThreadsExited:  subExited,
		QueueBytes:        queueBytes,
		CompressedBytes:   compressedBytes,
	}
}
