package scheduler

import (
	"time"

	"github.com/rohmanhakim/pdf-discovery-engine/internal/storage"
)

/*
Responsibilities
- Shape the data the Orchestrator hands back to a caller as it runs:
  one record per discovered PDF, plus the terminal run summary
- Nothing here decides scheduling policy; that lives in scheduler.go
*/

// DiscoveredPDF is one PDFLink as it crosses the Orchestrator's output
// stream, the moment it is written to the Store.
type DiscoveredPDF struct {
	Link      storage.PDFLink
	SourceURL string
	Depth     int
}

// RunOutcome is the terminal summary of one Run call, returned once the
// output channel closes.
type RunOutcome struct {
	SessionID string
	Status    storage.SessionStatus
	Err       error
}

// pendingPage is a BFS-ordered crawl candidate already admitted by the
// Frontier, carrying everything the page-processing step needs besides
// the Frontier itself.
type pendingPage struct {
	url   string
	depth int
}

// sessionClock lets tests stub elapsed-duration computation without
// depending on wall-clock time.
type sessionClock struct {
	start time.Time
}

func (c sessionClock) elapsedMs(now time.Time) int64 {
	return now.Sub(c.start).Milliseconds()
}
