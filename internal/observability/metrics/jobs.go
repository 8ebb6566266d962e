// Package metrics provides helpers for emitting standardised enrichment job metrics.
package metrics

import (
	"time"

	obserrors "github.com/rowmill/rowmill/internal/observability/errors"
	"github.com/rowmill/rowmill/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// DedupSummary captures end-of-run dedup cache effectiveness.
type DedupSummary struct {
	Planned int64
	Issued  int64
	Avoided int64
	Unique  int64
}

// EmitDedupSummary emits the dedup effectiveness counters for one finished run.
func EmitDedupSummary(sink statsd.Sink, jobID string, s DedupSummary) {
	if sink == nil {
		return
	}
	tags := map[string]string{"job_id": jobID}
	sink.Count("dedup.calls_planned", s.Planned, tags)
	sink.Count("dedup.calls_issued", s.Issued, tags)
	sink.Count("dedup.calls_avoided", s.Avoided, tags)
	sink.Count("dedup.unique_keys", s.Unique, tags)
	if s.Planned > 0 {
		sink.Gauge("dedup.avoided_fraction", float64(s.Avoided)/float64(s.Planned), tags)
	}
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k != "" {
			out[k] = v
		}
	}
	return out
}
