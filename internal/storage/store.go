package storage

import (
	"database/sql"
	"time"

	"github.com/rohmanhakim/pdf-discovery-engine/internal/metadata"
	"github.com/rohmanhakim/pdf-discovery-engine/pkg/failure"

	_ "modernc.org/sqlite"
)

/*
Responsibilities
- Persist discovered PDF links, deduplicated by normalized URL
- Persist discovery session lifecycle and counters
- Persist proxy health records
- Never re-insert a PDFLink once its normalized URL exists; update in place

Output Characteristics
- Single embedded file, no external service dependency
- Idempotent upserts
- Safe for concurrent readers and a single writer (sqlite's own locking)
*/

const schema = `
CREATE TABLE IF NOT EXISTS pdf_link (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	original_url TEXT NOT NULL,
	normalized_url TEXT NOT NULL UNIQUE,
	source_url TEXT NOT NULL,
	session_id TEXT NOT NULL,
	discovered_at DATETIME NOT NULL,
	validated_at DATETIME,
	status TEXT NOT NULL,
	http_status INTEGER,
	content_type TEXT,
	content_length INTEGER,
	final_url TEXT,
	redirect_count INTEGER,
	extraction_method TEXT,
	confidence REAL,
	metadata TEXT
);
CREATE INDEX IF NOT EXISTS idx_pdf_link_status ON pdf_link(status);
CREATE INDEX IF NOT EXISTS idx_pdf_link_session ON pdf_link(session_id);

CREATE TABLE IF NOT EXISTS discovery_session (
	id TEXT PRIMARY KEY,
	mode TEXT NOT NULL,
	max_depth INTEGER,
	start_time DATETIME NOT NULL,
	end_time DATETIME,
	status TEXT NOT NULL,
	pages_visited INTEGER,
	links_found INTEGER,
	new_links INTEGER,
	duplicates INTEGER,
	errors INTEGER,
	accessible INTEGER,
	broken INTEGER,
	blocked INTEGER,
	config_snapshot TEXT,
	checkpoint BLOB
);
CREATE INDEX IF NOT EXISTS idx_session_status ON discovery_session(status);
CREATE INDEX IF NOT EXISTS idx_session_start_time ON discovery_session(start_time);

CREATE TABLE IF NOT EXISTS proxy_health (
	endpoint TEXT PRIMARY KEY,
	source TEXT,
	protocol TEXT,
	host TEXT,
	port INTEGER,
	country_code TEXT,
	tls_capable INTEGER,
	total_requests INTEGER,
	success_requests INTEGER,
	fail_requests INTEGER,
	avg_response_time REAL,
	last_used DATETIME,
	last_success DATETIME,
	last_error DATETIME,
	last_check DATETIME,
	last_error_msg TEXT,
	healthy INTEGER,
	score REAL
);
CREATE INDEX IF NOT EXISTS idx_proxy_score ON proxy_health(score);
CREATE INDEX IF NOT EXISTS idx_proxy_healthy ON proxy_health(healthy);
`

type Store struct {
	db           *sql.DB
	metadataSink metadata.MetadataSink
}

// Open creates (if necessary) and migrates the sqlite-backed store at path.
// path may be ":memory:" for ephemeral, in-process use (tests, dry runs).
func Open(path string, metadataSink metadata.MetadataSink) (*Store, failure.ClassifiedError) {
	if metadataSink == nil {
		metadataSink = metadata.NoopSink{}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &StorageError{Message: err.Error(), Retryable: false, Cause: ErrCauseOpenFailed}
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single writer, avoid SQLITE_BUSY under our own load
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, &StorageError{Message: err.Error(), Retryable: false, Cause: ErrCauseMigrateFailed}
	}
	return &Store{db: db, metadataSink: metadataSink}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) recordError(action string, cause StorageErrorCause, err error, url string) {
	s.metadataSink.RecordError(metadata.ErrorRecord{
		PackageName: "storage",
		Action:      action,
		Cause:       mapStorageErrorToMetadataCause(cause),
		ErrorString: err.Error(),
		ObservedAt:  time.Now(),
		Attrs:       []metadata.Attribute{metadata.NewAttr(metadata.AttrURL, url)},
	})
}

// UpsertLink inserts a new PDFLink or, if normalized_url already exists,
// updates the existing row in place. WriteResult.Existed reports which
// branch was taken.
func (s *Store) UpsertLink(link PDFLink) (WriteResult, failure.ClassifiedError) {
	if link.DiscoveredAt.IsZero() {
		link.DiscoveredAt = time.Now()
	}

	existing, found, err := s.getLinkByNormalizedURL(link.NormalizedURL)
	if err != nil {
		s.recordError("UpsertLink", ErrCauseQueryFailed, err, link.NormalizedURL)
		return WriteResult{}, &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
	}

	if found {
		link.ID = existing.ID
		link.DiscoveredAt = existing.DiscoveredAt
		_, err := s.db.Exec(`
			UPDATE pdf_link SET
				original_url=?, source_url=?, session_id=?, validated_at=?, status=?,
				http_status=?, content_type=?, content_length=?, final_url=?,
				redirect_count=?, extraction_method=?, confidence=?, metadata=?
			WHERE normalized_url=?`,
			link.OriginalURL, link.SourceURL, link.SessionID, link.ValidatedAt, string(link.Status),
			link.HTTPStatus, link.ContentType, link.ContentLength, link.FinalURL,
			link.RedirectCount, string(link.ExtractionMethod), link.Confidence, link.Metadata,
			link.NormalizedURL,
		)
		if err != nil {
			s.recordError("UpsertLink", ErrCauseWriteFailure, err, link.NormalizedURL)
			return WriteResult{}, &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
		}
		return WriteResult{Link: link, Existed: true}, nil
	}

	res, err := s.db.Exec(`
		INSERT INTO pdf_link (
			original_url, normalized_url, source_url, session_id, discovered_at,
			validated_at, status, http_status, content_type, content_length,
			final_url, redirect_count, extraction_method, confidence, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		link.OriginalURL, link.NormalizedURL, link.SourceURL, link.SessionID, link.DiscoveredAt,
		link.ValidatedAt, string(link.Status), link.HTTPStatus, link.ContentType, link.ContentLength,
		link.FinalURL, link.RedirectCount, string(link.ExtractionMethod), link.Confidence, link.Metadata,
	)
	if err != nil {
		s.recordError("UpsertLink", ErrCauseWriteFailure, err, link.NormalizedURL)
		return WriteResult{}, &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
	}
	id, _ := res.LastInsertId()
	link.ID = id
	return WriteResult{Link: link, Existed: false}, nil
}

func (s *Store) GetLinkByNormalizedURL(normalizedURL string) (PDFLink, bool, failure.ClassifiedError) {
	link, found, err := s.getLinkByNormalizedURL(normalizedURL)
	if err != nil {
		s.recordError("GetLinkByNormalizedURL", ErrCauseQueryFailed, err, normalizedURL)
		return PDFLink{}, false, &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
	}
	return link, found, nil
}

func (s *Store) getLinkByNormalizedURL(normalizedURL string) (PDFLink, bool, error) {
	row := s.db.QueryRow(`
		SELECT id, original_url, normalized_url, source_url, session_id, discovered_at,
			validated_at, status, http_status, content_type, content_length,
			final_url, redirect_count, extraction_method, confidence, metadata
		FROM pdf_link WHERE normalized_url = ?`, normalizedURL)

	var link PDFLink
	var status, extractionMethod string
	var validatedAt sql.NullTime
	err := row.Scan(
		&link.ID, &link.OriginalURL, &link.NormalizedURL, &link.SourceURL, &link.SessionID,
		&link.DiscoveredAt, &validatedAt, &status, &link.HTTPStatus, &link.ContentType,
		&link.ContentLength, &link.FinalURL, &link.RedirectCount, &extractionMethod,
		&link.Confidence, &link.Metadata,
	)
	if err == sql.ErrNoRows {
		return PDFLink{}, false, nil
	}
	if err != nil {
		return PDFLink{}, false, err
	}
	link.Status = LinkStatus(status)
	link.ExtractionMethod = ExtractionMethod(extractionMethod)
	if validatedAt.Valid {
		t := validatedAt.Time
		link.ValidatedAt = &t
	}
	return link, true, nil
}

// CountDistinctNormalizedURLs supports the uniqueness invariant check in
// tests and diagnostics: it must always equal the row count of pdf_link.
func (s *Store) CountDistinctNormalizedURLs() (int, failure.ClassifiedError) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(DISTINCT normalized_url) FROM pdf_link`).Scan(&count); err != nil {
		return 0, &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
	}
	return count, nil
}

func (s *Store) CreateSession(session DiscoverySession) failure.ClassifiedError {
	if session.StartTime.IsZero() {
		session.StartTime = time.Now()
	}
	if session.Status == "" {
		session.Status = SessionRunning
	}
	_, err := s.db.Exec(`
		INSERT INTO discovery_session (
			id, mode, max_depth, start_time, status, pages_visited, links_found,
			new_links, duplicates, errors, accessible, broken, blocked, config_snapshot
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, string(session.Mode), session.MaxDepth, session.StartTime, string(session.Status),
		session.PagesVisited, session.LinksFound, session.NewLinks, session.Duplicates,
		session.Errors, session.Accessible, session.Broken, session.Blocked, session.ConfigSnapshot,
	)
	if err != nil {
		s.recordError("CreateSession", ErrCauseWriteFailure, err, "")
		return &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
	}
	return nil
}

// UpdateSessionCounters overwrites the mutable counters of a running
// session. Called periodically by the orchestrator, not on every link.
func (s *Store) UpdateSessionCounters(sessionID string, stats metadata.CrawlStats) failure.ClassifiedError {
	_, err := s.db.Exec(`
		UPDATE discovery_session SET
			pages_visited=?, links_found=?, new_links=?, duplicates=?, errors=?,
			accessible=?, broken=?, blocked=?
		WHERE id=?`,
		stats.PagesVisited, stats.LinksFound, stats.NewLinks, stats.Duplicates,
		stats.Errors, stats.Accessible, stats.Broken, stats.CAPTCHAs, sessionID,
	)
	if err != nil {
		s.recordError("UpdateSessionCounters", ErrCauseWriteFailure, err, "")
		return &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
	}
	return nil
}

// FinalizeSession sets a terminal status and end_time. status must not be
// SessionRunning: the session lifecycle only moves forward once.
func (s *Store) FinalizeSession(sessionID string, status SessionStatus) failure.ClassifiedError {
	if status == SessionRunning {
		return &StorageError{Message: "cannot finalize to running", Retryable: false, Cause: ErrCauseWriteFailure}
	}
	_, err := s.db.Exec(`UPDATE discovery_session SET status=?, end_time=? WHERE id=?`,
		string(status), time.Now(), sessionID)
	if err != nil {
		s.recordError("FinalizeSession", ErrCauseWriteFailure, err, "")
		return &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
	}
	return nil
}

// ListOriginalURLs supports the Pattern Generator seed strategy, which
// needs every previously discovered URL to build numeric skeletons from.
func (s *Store) ListOriginalURLs() ([]string, failure.ClassifiedError) {
	rows, err := s.db.Query(`SELECT original_url FROM pdf_link`)
	if err != nil {
		s.recordError("ListOriginalURLs", ErrCauseQueryFailed, err, "")
		return nil, &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *Store) GetSession(sessionID string) (DiscoverySession, bool, failure.ClassifiedError) {
	row := s.db.QueryRow(`
		SELECT id, mode, max_depth, start_time, end_time, status, pages_visited,
			links_found, new_links, duplicates, errors, accessible, broken, blocked, config_snapshot
		FROM discovery_session WHERE id=?`, sessionID)

	var session DiscoverySession
	var mode, status string
	var endTime sql.NullTime
	err := row.Scan(
		&session.ID, &mode, &session.MaxDepth, &session.StartTime, &endTime, &status,
		&session.PagesVisited, &session.LinksFound, &session.NewLinks, &session.Duplicates,
		&session.Errors, &session.Accessible, &session.Broken, &session.Blocked, &session.ConfigSnapshot,
	)
	if err == sql.ErrNoRows {
		return DiscoverySession{}, false, nil
	}
	if err != nil {
		s.recordError("GetSession", ErrCauseQueryFailed, err, "")
		return DiscoverySession{}, false, &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
	}
	session.Mode = SessionMode(mode)
	session.Status = SessionStatus(status)
	if endTime.Valid {
		session.EndTime = endTime.Time
	}
	return session, true, nil
}

// UpsertProxyRecord persists the durable view of a proxy's health; the
// live scoring and selection decisions stay in-memory in internal/proxypool,
// this is the audit trail and cross-restart seed.
func (s *Store) UpsertProxyRecord(p ProxyRecord) failure.ClassifiedError {
	_, err := s.db.Exec(`
		INSERT INTO proxy_health (
			endpoint, source, protocol, host, port, country_code, tls_capable,
			total_requests, success_requests, fail_requests, avg_response_time,
			last_used, last_success, last_error, last_check, last_error_msg, healthy, score
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(endpoint) DO UPDATE SET
			source=excluded.source, protocol=excluded.protocol, host=excluded.host,
			port=excluded.port, country_code=excluded.country_code, tls_capable=excluded.tls_capable,
			total_requests=excluded.total_requests, success_requests=excluded.success_requests,
			fail_requests=excluded.fail_requests, avg_response_time=excluded.avg_response_time,
			last_used=excluded.last_used, last_success=excluded.last_success,
			last_error=excluded.last_error, last_check=excluded.last_check,
			last_error_msg=excluded.last_error_msg, healthy=excluded.healthy, score=excluded.score`,
		p.Endpoint, p.Source, p.Protocol, p.Host, p.Port, p.CountryCode, p.TLSCapable,
		p.TotalRequests, p.SuccessRequests, p.FailRequests, p.AvgResponseTime,
		p.LastUsed, p.LastSuccess, p.LastError, p.LastCheck, p.LastErrorMsg, p.Healthy, p.Score,
	)
	if err != nil {
		s.recordError("UpsertProxyRecord", ErrCauseWriteFailure, err, p.Endpoint)
		return &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseWriteFailure}
	}
	return nil
}

func (s *Store) ListHealthyProxies() ([]ProxyRecord, failure.ClassifiedError) {
	rows, err := s.db.Query(`
		SELECT endpoint, source, protocol, host, port, country_code, tls_capable,
			total_requests, success_requests, fail_requests, avg_response_time,
			last_used, last_success, last_error, last_check, last_error_msg, healthy, score
		FROM proxy_health WHERE healthy = 1 ORDER BY score DESC`)
	if err != nil {
		s.recordError("ListHealthyProxies", ErrCauseQueryFailed, err, "")
		return nil, &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
	}
	defer rows.Close()

	var out []ProxyRecord
	for rows.Next() {
		var p ProxyRecord
		if err := rows.Scan(
			&p.Endpoint, &p.Source, &p.Protocol, &p.Host, &p.Port, &p.CountryCode, &p.TLSCapable,
			&p.TotalRequests, &p.SuccessRequests, &p.FailRequests, &p.AvgResponseTime,
			&p.LastUsed, &p.LastSuccess, &p.LastError, &p.LastCheck, &p.LastErrorMsg, &p.Healthy, &p.Score,
		); err != nil {
			return nil, &StorageError{Message: err.Error(), Retryable: true, Cause: ErrCauseQueryFailed}
		}
		out = append(out, p)
	}
	return out, nil
}
