package config

// BatchIngestInfo is the subset of the ingest service's "info" response
// spec.md §9 calls `batch_ingest_config`. Every field is a pointer so a
// present-but-zero value (e.g. `size_limit_bytes: 0`) is distinguishable
// from an absent one — only present keys override the client's defaults.
type BatchIngestInfo struct {
	SizeLimit       *int
	SizeLimitBytes  *uint64
	ScaleUpQSizeTrigger    *int
	ScaleUpNThreadsLimit   *int
	ScaleDownNEmptyTrigger *int
}

// MergeServerInfo overrides cfg's worker-pool knobs with whatever info
// advertises, leaving every field info leaves nil untouched (spec.md §9:
// "these override defaults only where present; missing keys keep
// defaults").
func (c *Config) MergeServerInfo(info BatchIngestInfo) {
	if info.SizeLimit != nil {
		c.BatchSizeLimit = *info.SizeLimit
	}
	if info.SizeLimitBytes != nil {
		c.BatchByteLimit = *info.SizeLimitBytes
	}
	if info.ScaleUpQSizeTrigger != nil {
		c.ScaleUpQSizeTrigger = *info.ScaleUpQSizeTrigger
	}
	if info.ScaleUpNThreadsLimit != nil {
		c.ScaleUpNThreadsLimit = *info.ScaleUpNThreadsLimit
	}
	if info.ScaleDownNEmptyTrigger != nil {
		c.ScaleDownNEmptyTrigger = *info.ScaleDownNEmptyTrigger
	}
}
