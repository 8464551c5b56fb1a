package metadata

import (
	"time"
)

// FetchEvent describes a single completed page fetch, independent of
// whether it was served via the HTTP page adapter or a headless browser.
type FetchEvent struct {
	FetchURL    string
	HTTPStatus  int
	Duration    time.Duration
	ContentType string
	RetryCount  int
	CrawlDepth  int
}

// AssetFetchEvent describes a validated candidate PDF link, as produced by
// the link validator rather than the page navigator.
type AssetFetchEvent struct {
	AssetURL      string
	SourcePageURL string
	Accessible    bool
	HTTPStatus    int
	ContentType   string
	ContentLength int64
}

/*
CrawlStats
  - Summarizes one discovery session
  - Contains only aggregate counts and durations
  - Is accumulated by the orchestrator while the session runs and saved
    with each checkpoint and session-counter update
  - Is recorded to the metadata sink exactly once, when the session ends
  - Must not influence scheduling, retries, or crawl termination
  - Must be constructed without reading metadata
*/
type CrawlStats struct {
	SessionID     string
	PagesVisited  int
	LinksFound    int
	NewLinks      int
	Duplicates    int
	Errors        int
	Accessible    int
	Broken        int
	Blocked       int
	CAPTCHAs      int
	DurationMs    int64
	TerminalState string
}

type ArtifactRecord struct {
	paths string
}

/*
	ErrorCause is a closed, canonical classification used exclusively for
	observability (logging, metrics, reporting).

	Rules:
	 - ErrorCause is for observability only.
	 - It must never be used to derive retry, continuation, or abort decisions.
	 - Any use of metadata.ErrorCause outside logging, metrics, or reporting is a design violation.
	 - ErrorCause MUST NOT influence control flow.
	 - ErrorCause MUST NOT be used for retry, continuation, or abort decisions.
	 - ErrorCause values MUST have stable, package-agnostic semantics.
	 - Pipeline packages MAY map their local errors to ErrorCause,
	   but MUST NOT invent new meanings.
	Non-goals:
	 - ErrorCause does not encode severity.
	 - ErrorCause does not imply retryability.
	 - ErrorCause does not imply crawl termination.
	 - ErrorCause does not imply correctness of downstream behavior.

If a failure does not clearly match a defined cause, CauseUnknown MUST be used.
*/
type ErrorCause int

/*
Canonical ErrorCause Table

# CauseUnknown

Meaning:
  - The failure does not map cleanly to any known category.
  - Used as a safe fallback.

Examples:
  - Unexpected internal errors
  - Unclassified third-party library failures

# CauseNetworkFailure

Meaning:
  - Failure caused by network transport or remote availability.

Examples:
  - TCP timeouts
  - DNS resolution failures
  - Connection resets
  - Proxy dial failures

# CausePolicyDisallow

Meaning:
  - Crawling was disallowed by an explicit policy or rule.

Examples:
  - HTTP 403 / 401 interpreted as access denial
  - CAPTCHA block
  - rate-limit enforcement (HTTP 429)

# CauseContentInvalid

Meaning:
  - Content was fetched but could not be processed meaningfully.

Examples:
  - Non-HTML responses where HTML was expected
  - Broken DOM preventing link extraction
  - Malformed sitemap or JSON payload

# CauseStorageFailure

Meaning:
  - Failure while persisting crawl artifacts.

Examples:
  - Disk full
  - Write permission errors
  - Database unavailable

# CauseInvariantViolation

Meaning:
  - A system-level invariant was violated.

Examples:
  - Duplicate normalized URL bypassing the unique index
  - Impossible crawl depth
  - Internal consistency checks failing

# CauseRetryFailure

Meaning:
  - All attempts of a retried operation were exhausted.

Examples:
  - Link validator retries exceeded against a flaky host
  - Proxy pool exhausted candidates without finding a healthy proxy
*/
const (
	CauseUnknown = iota
	CauseNetworkFailure
	CausePolicyDisallow
	CauseContentInvalid
	CauseStorageFailure
	CauseInvariantViolation
	CauseRetryFailure
)

type ErrorRecord struct {
	PackageName string
	Action      string
	Cause       ErrorCause
	ErrorString string
	ObservedAt  time.Time
	Attrs       []Attribute
}

type Attribute struct {
	Key   AttributeKey
	Value string
}

func NewAttr(key AttributeKey, val string) Attribute {
	return Attribute{
		Key:   key,
		Value: val,
	}
}

type AttributeKey string

const (
	AttrTime       AttributeKey = "time"
	AttrURL        AttributeKey = "url"
	AttrHost       AttributeKey = "host"
	AttrPath       AttributeKey = "path"
	AttrDepth      AttributeKey = "depth"
	AttrField      AttributeKey = "field"
	AttrHTTPStatus AttributeKey = "http_status"
	AttrAssetURL   AttributeKey = "asset_url"
	AttrWritePath  AttributeKey = "write_path"
	AttrMessage    AttributeKey = "message"
	AttrProxy      AttributeKey = "proxy"
	AttrStrategy   AttributeKey = "strategy"
	AttrSessionID  AttributeKey = "session_id"
)

// ArtifactKind classifies a durable artifact produced by the engine, for
// observability only. The same non-control-flow discipline that applies to
// ErrorCause applies here: a sink must never branch crawl behavior on kind.
type ArtifactKind string

const (
	ArtifactCheckpoint   ArtifactKind = "checkpoint"
	ArtifactProxyCache   ArtifactKind = "proxy_cache"
	ArtifactCaptchaAlert ArtifactKind = "captcha_alert"
	ArtifactScreenshot   ArtifactKind = "screenshot"
)
