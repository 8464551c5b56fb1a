package frontier

import (
	"sync"

	"github.com/rohmanhakim/pdf-discovery-engine/internal/config"
	"github.com/rohmanhakim/pdf-discovery-engine/pkg/urlutil"
)

/*
Frontier Responsibilities
- Maintain BFS ordering
- Deduplicate URLs by their normalized identity
- Track crawl depth
- Enforce MaxDepth and MaxPages
- Knows nothing about:
	- fetching
	- extraction
	- proxies
	- storage

It is a data structure + admission policy module, not a pipeline executor.
Submit is the sole admission authority: once a CrawlAdmissionCandidate has
been accepted by the orchestrator (scope and robots-equivalent checks
already passed), the frontier decides only whether it is a duplicate or
exceeds a configured limit.
*/

// CrawlFrontier is the BFS-ordered, depth-bucketed admission queue for
// crawl targets. All exported methods are safe for concurrent use.
type CrawlFrontier struct {
	mu sync.Mutex

	maxDepth int
	maxPages int

	queuesByDepth map[int]*FIFOQueue[CrawlToken]
	visited       Set[string]
	currentDepth  int
}

func NewCrawlFrontier() *CrawlFrontier {
	return &CrawlFrontier{
		queuesByDepth: make(map[int]*FIFOQueue[CrawlToken]),
		visited:       NewSet[string](),
	}
}

// Init wires limit configuration into a fresh frontier. It must be called
// exactly once, before any Submit/Dequeue call.
func (f *CrawlFrontier) Init(cfg config.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maxDepth = cfg.MaxDepth()
	f.maxPages = cfg.MaxPages()
}

// Submit admits a candidate into the frontier, or silently drops it if it
// is a duplicate of an already-visited URL or violates a configured limit.
// Submit never returns an error: rejection is a normal, expected outcome.
func (f *CrawlFrontier) Submit(candidate CrawlAdmissionCandidate) {
	f.mu.Lock()
	defer f.mu.Unlock()

	depth := candidate.DiscoveryMetadata().Depth()
	if f.maxDepth > 0 && depth >= f.maxDepth {
		return
	}
	if f.maxPages > 0 && f.visited.Size() >= f.maxPages {
		return
	}

	normalized := urlutil.NormalizeDiscoveryURL(candidate.TargetURL(), nil)
	key := normalized.String()
	if f.visited.Contains(key) {
		return
	}
	f.visited.Add(key)

	q, ok := f.queuesByDepth[depth]
	if !ok {
		q = NewFIFOQueue[CrawlToken]()
		f.queuesByDepth[depth] = q
	}
	q.Enqueue(NewCrawlToken(candidate.TargetURL(), depth))
}

// Dequeue returns the next token in strict BFS order: every token at depth
// D is returned before any token at depth D+1 is even eligible.
func (f *CrawlFrontier) Dequeue() (CrawlToken, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		q, ok := f.queuesByDepth[f.currentDepth]
		if !ok || q.Size() == 0 {
			if f.hasDeeperWork() {
				f.currentDepth++
				continue
			}
			return CrawlToken{}, false
		}
		return q.Dequeue()
	}
}

// hasDeeperWork reports whether any depth greater than or equal to the
// current depth still holds pending tokens. Must be called with f.mu held.
func (f *CrawlFrontier) hasDeeperWork() bool {
	for depth, q := range f.queuesByDepth {
		if depth >= f.currentDepth && q.Size() > 0 {
			return true
		}
	}
	return false
}

// IsDepthExhausted reports whether no tokens remain pending at depth.
// Negative depths are always considered exhausted.
func (f *CrawlFrontier) IsDepthExhausted(depth int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if depth < 0 {
		return true
	}
	q, ok := f.queuesByDepth[depth]
	return !ok || q.Size() == 0
}

// CurrentMinDepth returns the smallest depth with at least one pending
// token, or -1 if the frontier holds no pending work at all.
func (f *CrawlFrontier) CurrentMinDepth() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	min := -1
	for depth, q := range f.queuesByDepth {
		if q.Size() == 0 {
			continue
		}
		if min == -1 || depth < min {
			min = depth
		}
	}
	return min
}

// VisitedCount returns the number of unique normalized URLs ever admitted,
// regardless of whether they have since been dequeued. The set never
// shrinks.
func (f *CrawlFrontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited.Size()
}
