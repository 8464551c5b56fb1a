package storage

import "time"

// ProxyRecord mirrors a row in the proxy_health table. internal/proxypool
// owns scoring and selection; this package only persists and retrieves.
type ProxyRecord struct {
	Endpoint        string // scheme://host:port, primary key
	Source          string
	Protocol        string // http, https, socks4, socks5
	Host            string
	Port            int
	CountryCode     string
	TLSCapable      bool
	TotalRequests   int
	SuccessRequests int
	FailRequests    int
	AvgResponseTime float64 // seconds, rolling average
	LastUsed        time.Time
	LastSuccess     time.Time
	LastError       time.Time
	LastCheck       time.Time
	LastErrorMsg    string
	Healthy         bool
	Score           float64
}

type SessionStatus string

const (
	SessionRunning     SessionStatus = "running"
	SessionCompleted   SessionStatus = "completed"
	SessionFailed      SessionStatus = "failed"
	SessionInterrupted SessionStatus = "interrupted"
	SessionCancelled   SessionStatus = "cancelled"
)

type SessionMode string

const (
	ModeShallow SessionMode = "shallow"
	ModeDeep    SessionMode = "deep"
	ModeFull    SessionMode = "full"
)

// DiscoverySession mirrors a row in the discovery_session table: one per
// `discover` invocation. Status is terminal once set to anything other
// than SessionRunning.
type DiscoverySession struct {
	ID             string
	Mode           SessionMode
	MaxDepth       int
	StartTime      time.Time
	EndTime        time.Time
	Status         SessionStatus
	PagesVisited   int
	LinksFound     int
	NewLinks       int
	Duplicates     int
	Errors         int
	Accessible     int
	Broken         int
	Blocked        int
	ConfigSnapshot string // opaque, JSON-encoded
	Checkpoint     []byte // opaque checkpoint payload, if any
}

type LinkStatus string

const (
	LinkDiscovered LinkStatus = "discovered"
	LinkValidated  LinkStatus = "validated"
	LinkAccessible LinkStatus = "accessible"
	LinkBroken     LinkStatus = "broken"
	LinkBlocked    LinkStatus = "blocked"
	LinkDownloaded LinkStatus = "downloaded"
)

type ExtractionMethod string

const (
	ExtractionCSSSelector    ExtractionMethod = "css_pdf_selector"
	ExtractionRegexFallback  ExtractionMethod = "regex_fallback"
	ExtractionScriptScan     ExtractionMethod = "script_scan"
	ExtractionSitemap        ExtractionMethod = "sitemap"
	ExtractionPattern        ExtractionMethod = "pattern"
	ExtractionSearchAPI      ExtractionMethod = "search_api"
	ExtractionArchiveProbe   ExtractionMethod = "archive_probe"
	ExtractionTaxonomy       ExtractionMethod = "taxonomy"
	ExtractionFormSubmit     ExtractionMethod = "form_submit"
	ExtractionSeed           ExtractionMethod = "seed"
	ExtractionStructuredData ExtractionMethod = "structured_data"
)

// PDFLink mirrors a row in the pdf_link table. NormalizedURL is the
// store-wide unique key; once Status reaches a terminal validation value
// the row is updated in place, never re-inserted.
type PDFLink struct {
	ID               int64
	OriginalURL      string
	NormalizedURL    string
	SourceURL        string
	SessionID        string
	DiscoveredAt     time.Time
	ValidatedAt      *time.Time
	Status           LinkStatus
	HTTPStatus       int
	ContentType      string
	ContentLength    int64
	FinalURL         string
	RedirectCount    int
	ExtractionMethod ExtractionMethod
	Confidence       float64
	Metadata         string // opaque JSON bag: depth, strategy origin, etc.
}

// WriteResult is returned by Store.UpsertLink, reporting whether the call
// inserted a new row or updated an existing one by normalized URL.
type WriteResult struct {
	Link    PDFLink
	Existed bool
}
