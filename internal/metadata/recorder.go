package metadata

import (
	"io"
	"sync"
	"time"

	"github.com/go-logfmt/logfmt"
)

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Crawl depth
- Proxy and user-agent identifiers
- Error causes and artifact locations

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Structured logging is preferred.

Allowed:
- Primitive values
- Timestamps
- URLs (as values, not objects with behavior)
- Status codes
- Durations
- Identifiers (session ID, proxy ID)
*/

// MetadataSink is the sole channel through which crawl components report
// observability data. It must never be consulted to make a scheduling,
// retry, or admission decision — see the ErrorCause and ArtifactKind rules.
type MetadataSink interface {
	RecordFetch(event FetchEvent)
	RecordAssetFetch(event AssetFetchEvent)
	RecordError(record ErrorRecord)
	RecordArtifact(kind ArtifactKind, path string, attrs ...Attribute)
	RecordFinalCrawlStats(stats CrawlStats)
}

// NoopSink discards everything. Useful for tests and for library callers
// who have no interest in observability output.
type NoopSink struct{}

func (NoopSink) RecordFetch(FetchEvent)                              {}
func (NoopSink) RecordAssetFetch(AssetFetchEvent)                    {}
func (NoopSink) RecordError(ErrorRecord)                              {}
func (NoopSink) RecordArtifact(ArtifactKind, string, ...Attribute)    {}
func (NoopSink) RecordFinalCrawlStats(CrawlStats)                    {}

// LogRecorder is a MetadataSink backed by logfmt, the structured encoding
// used throughout the engine for anything destined for an operator's log
// stream rather than the persisted store.
type LogRecorder struct {
	mu  sync.Mutex
	enc *logfmt.Encoder
}

func NewLogRecorder(w io.Writer) *LogRecorder {
	return &LogRecorder{enc: logfmt.NewEncoder(w)}
}

func (r *LogRecorder) write(kv ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.enc.EncodeKeyvals(kv...)
	_ = r.enc.EndRecord()
}

func (r *LogRecorder) RecordFetch(event FetchEvent) {
	r.write(
		"event", "fetch",
		"url", event.FetchURL,
		"status", event.HTTPStatus,
		"duration_ms", event.Duration.Milliseconds(),
		"content_type", event.ContentType,
		"retries", event.RetryCount,
		"depth", event.CrawlDepth,
	)
}

func (r *LogRecorder) RecordAssetFetch(event AssetFetchEvent) {
	r.write(
		"event", "asset_fetch",
		"url", event.AssetURL,
		"source", event.SourcePageURL,
		"accessible", event.Accessible,
		"status", event.HTTPStatus,
		"content_type", event.ContentType,
		"content_length", event.ContentLength,
	)
}

func (r *LogRecorder) RecordError(record ErrorRecord) {
	kv := []interface{}{
		"event", "error",
		"package", record.PackageName,
		"action", record.Action,
		"cause", causeLabel(record.Cause),
		"error", record.ErrorString,
		"time", record.ObservedAt.Format(time.RFC3339),
	}
	for _, a := range record.Attrs {
		kv = append(kv, string(a.Key), a.Value)
	}
	r.write(kv...)
}

func (r *LogRecorder) RecordArtifact(kind ArtifactKind, path string, attrs ...Attribute) {
	kv := []interface{}{
		"event", "artifact",
		"kind", string(kind),
		"path", path,
	}
	for _, a := range attrs {
		kv = append(kv, string(a.Key), a.Value)
	}
	r.write(kv...)
}

func (r *LogRecorder) RecordFinalCrawlStats(stats CrawlStats) {
	r.write(
		"event", "crawl_stats",
		"session_id", stats.SessionID,
		"pages_visited", stats.PagesVisited,
		"links_found", stats.LinksFound,
		"new_links", stats.NewLinks,
		"duplicates", stats.Duplicates,
		"errors", stats.Errors,
		"accessible", stats.Accessible,
		"broken", stats.Broken,
		"blocked", stats.Blocked,
		"captchas", stats.CAPTCHAs,
		"duration_ms", stats.DurationMs,
		"terminal_state", stats.TerminalState,
	)
}

func causeLabel(c ErrorCause) string {
	switch c {
	case CauseNetworkFailure:
		return "network_failure"
	case CausePolicyDisallow:
		return "policy_disallow"
	case CauseContentInvalid:
		return "content_invalid"
	case CauseStorageFailure:
		return "storage_failure"
	case CauseInvariantViolation:
		return "invariant_violation"
	case CauseRetryFailure:
		return "retry_failure"
	default:
		return "unknown"
	}
}
