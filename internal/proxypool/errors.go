package proxypool

import (
	"fmt"

	"github.com/rohmanhakim/pdf-discovery-engine/pkg/failure"
)

type PoolError struct {
	Message   string
	Retryable bool
}

func (e *PoolError) Error() string { return fmt.Sprintf("proxy pool error: %s", e.Message) }

func (e *PoolError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}
