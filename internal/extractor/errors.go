package extractor

import (
	"fmt"

	"github.com/rohmanhakim/pdf-discovery-engine/internal/metadata"
	"github.com/rohmanhakim/pdf-discovery-engine/pkg/failure"
)

type ExtractionErrorCause string

const (
	ErrCauseNotHTML ExtractionErrorCause = "not_html"
	ErrCauseBadURL  ExtractionErrorCause = "bad_url"
)

type ExtractionError struct {
	Message   string
	Retryable bool
	Cause     ExtractionErrorCause
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction error: %s: %s", e.Cause, e.Message)
}

func (e *ExtractionError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// mapExtractionErrorToMetadataCause maps extractor-local error semantics
// to the canonical metadata.ErrorCause table. Observational only, must
// never be used to derive control-flow decisions.
func mapExtractionErrorToMetadataCause(cause ExtractionErrorCause) metadata.ErrorCause {
	switch cause {
	case ErrCauseNotHTML:
		return metadata.CauseContentInvalid
	case ErrCauseBadURL:
		return metadata.CauseInvariantViolation
	default:
		return metadata.CauseUnknown
	}
}
