package proxypool

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rohmanhakim/pdf-discovery-engine/internal/metadata"
)

/*
Responsibilities
- Fetch candidate proxies from configured sources, validate them against
  an echo endpoint, and maintain a scored, prunable pool
- Hand out a proxy per the configured selection strategy, tolerating a
  direct (no-proxy) fallback when the pool is empty
- Persist its state to a cache file so a restart does not re-validate
  the world from scratch

Score is a pure function of the fields on each Record (§4.2); this
package is the only thing allowed to mutate those fields.
*/

type Config struct {
	Sources         []string
	CachePath       string
	EchoURL         string
	MinRequired     int
	RefreshEvery    time.Duration
	RefreshCron     string // e.g. "0 */6 * * *"; empty disables scheduled refresh
	ValidateTimeout time.Duration
	Concurrency     int
	RequireHTTPS    bool
	FlushEveryNUses int
}

func (c Config) withDefaults() Config {
	if c.MinRequired <= 0 {
		c.MinRequired = 1
	}
	if c.ValidateTimeout <= 0 {
		c.ValidateTimeout = 10 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 100
	}
	if c.FlushEveryNUses <= 0 {
		c.FlushEveryNUses = 10
	}
	return c
}

type Pool struct {
	mu           sync.Mutex
	cfg          Config
	records      map[string]*Record
	order        []string // insertion order, used for round-robin
	rrIndex      int
	usesSinceFlush int
	rng          *rand.Rand
	metadataSink metadata.MetadataSink
	httpClient   *http.Client
	cron         *cron.Cron
}

func New(cfg Config, metadataSink metadata.MetadataSink) *Pool {
	if metadataSink == nil {
		metadataSink = metadata.NoopSink{}
	}
	return &Pool{
		cfg:          cfg.withDefaults(),
		records:      make(map[string]*Record),
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		metadataSink: metadataSink,
		httpClient:   &http.Client{Timeout: cfg.withDefaults().ValidateTimeout},
	}
}

// Initialize adopts the on-disk cache if it yields at least MinRequired
// records, otherwise performs a full Refresh.
func (p *Pool) Initialize(ctx context.Context) error {
	if p.cfg.CachePath != "" {
		payload, ok, err := loadCache(p.cfg.CachePath)
		if err == nil && ok && len(payload.Proxies) >= p.cfg.MinRequired {
			p.mu.Lock()
			for i := range payload.Proxies {
				r := payload.Proxies[i]
				p.records[r.Endpoint] = &r
				p.order = append(p.order, r.Endpoint)
			}
			p.mu.Unlock()
			return nil
		}
	}
	return p.Refresh(ctx)
}

// Refresh fetches every configured source in parallel, merges candidates
// into the pool by endpoint, validates the merged set with bounded
// concurrency against EchoURL, prunes anything scoring below 10, and
// flushes the result to cache.
func (p *Pool) Refresh(ctx context.Context) error {
	candidates := p.fetchAllSources(ctx)

	p.mu.Lock()
	for _, c := range candidates {
		if p.cfg.RequireHTTPS && !c.TLS && c.Protocol != ProtocolSOCKS5 && c.Protocol != ProtocolSOCKS4 {
			continue
		}
		if _, exists := p.records[c.Endpoint]; !exists {
			rec := c
			rec.recomputeScore(time.Now())
			p.records[c.Endpoint] = &rec
			p.order = append(p.order, c.Endpoint)
		}
	}
	toValidate := make([]*Record, 0, len(p.records))
	for _, r := range p.records {
		toValidate = append(toValidate, r)
	}
	p.mu.Unlock()

	p.validateAll(ctx, toValidate)
	p.prune()

	if p.cfg.CachePath != "" {
		return saveCache(p.cfg.CachePath, p.snapshot())
	}
	return nil
}

func (p *Pool) fetchAllSources(ctx context.Context) []Record {
	type result struct {
		records []Record
		err     error
	}
	results := make(chan result, len(p.cfg.Sources))
	var wg sync.WaitGroup
	for _, src := range p.cfg.Sources {
		wg.Add(1)
		go func(source string) {
			defer wg.Done()
			recs, err := fetchSource(ctx, p.httpClient, source)
			results <- result{records: recs, err: err}
		}(src)
	}
	go func() { wg.Wait(); close(results) }()

	seen := make(map[string]struct{})
	var merged []Record
	for r := range results {
		if r.err != nil {
			p.metadataSink.RecordError(metadata.ErrorRecord{
				PackageName: "proxypool",
				Action:      "fetchAllSources",
				Cause:       metadata.CauseNetworkFailure,
				ErrorString: r.err.Error(),
				ObservedAt:  time.Now(),
			})
			continue
		}
		for _, rec := range r.records {
			if _, dup := seen[rec.Endpoint]; dup {
				continue
			}
			seen[rec.Endpoint] = struct{}{}
			merged = append(merged, rec)
		}
	}
	return merged
}

// validateAll issues a GET through each candidate to the echo URL with a
// bounded worker pool, marking the result on each record directly.
func (p *Pool) validateAll(ctx context.Context, candidates []*Record) {
	if p.cfg.EchoURL == "" || len(candidates) == 0 {
		return
	}
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, rec := range candidates {
		wg.Add(1)
		sem <- struct{}{}
		go func(rec *Record) {
			defer wg.Done()
			defer func() { <-sem }()
			p.validateOne(ctx, rec)
		}(rec)
	}
	wg.Wait()
}

func (p *Pool) validateOne(ctx context.Context, rec *Record) {
	transport, err := transportFor(rec)
	if err != nil {
		p.markResultLocked(rec.Endpoint, false, 0, err)
		return
	}
	client := &http.Client{Transport: transport, Timeout: p.cfg.ValidateTimeout}

	valCtx, cancel := context.WithTimeout(ctx, p.cfg.ValidateTimeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(valCtx, http.MethodGet, p.cfg.EchoURL, nil)
	if err != nil {
		p.markResultLocked(rec.Endpoint, false, 0, err)
		return
	}
	resp, err := client.Do(req)
	if err != nil {
		p.markResultLocked(rec.Endpoint, false, 0, err)
		return
	}
	defer resp.Body.Close()

	rtt := time.Since(start)
	if resp.StatusCode == http.StatusOK {
		p.markResultLocked(rec.Endpoint, true, rtt, nil)
	} else {
		p.markResultLocked(rec.Endpoint, false, rtt, fmt.Errorf("echo returned status %d", resp.StatusCode))
	}
}

// Next selects one proxy per strategy. ok is false when the pool has
// nothing usable; the caller should proceed direct (without a proxy) and
// log that fact.
func (p *Pool) Next(strategy SelectionStrategy) (Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.order) == 0 {
		return Record{}, false
	}

	eligible := p.eligibleLocked(30)
	pool := eligible
	if len(pool) == 0 {
		pool = p.order // fall back to the full pool
	}
	if len(pool) == 0 {
		return Record{}, false
	}

	switch strategy {
	case StrategyRoundRobin:
		endpoint := pool[p.rrIndex%len(pool)]
		p.rrIndex++
		return *p.records[endpoint], true

	case StrategyRandom:
		endpoint := pool[p.rng.Intn(len(pool))]
		return *p.records[endpoint], true

	case StrategyBest:
		return *p.records[p.bestLocked(pool)], true

	case StrategyWeighted:
		fallthrough
	default:
		return *p.records[p.weightedPickLocked(pool)], true
	}
}

func (p *Pool) eligibleLocked(minScore float64) []string {
	var out []string
	for _, endpoint := range p.order {
		if rec, ok := p.records[endpoint]; ok && rec.Score >= minScore {
			out = append(out, endpoint)
		}
	}
	return out
}

func (p *Pool) bestLocked(pool []string) string {
	best := pool[0]
	for _, endpoint := range pool[1:] {
		rec, bestRec := p.records[endpoint], p.records[best]
		if rec.Score > bestRec.Score || (rec.Score == bestRec.Score && rec.LastSuccess.After(bestRec.LastSuccess)) {
			best = endpoint
		}
	}
	return best
}

func (p *Pool) weightedPickLocked(pool []string) string {
	total := 0.0
	for _, endpoint := range pool {
		total += p.records[endpoint].Score + 1 // +1 so a zero-score record still has a sliver of a chance
	}
	if total <= 0 {
		return pool[p.rng.Intn(len(pool))]
	}
	target := p.rng.Float64() * total
	running := 0.0
	for _, endpoint := range pool {
		running += p.records[endpoint].Score + 1
		if running >= target {
			return endpoint
		}
	}
	return pool[len(pool)-1]
}

// MarkResult records the outcome of using a proxy for a real crawl
// request (as opposed to a validation probe) and recomputes its score.
func (p *Pool) MarkResult(endpoint string, success bool, rtt time.Duration, err error) {
	p.mu.Lock()
	p.markResultLocked(endpoint, success, rtt, err)
	flush := p.usesSinceFlush >= p.cfg.FlushEveryNUses
	if flush {
		p.usesSinceFlush = 0
	}
	payload := p.snapshotLocked()
	p.mu.Unlock()

	if flush && p.cfg.CachePath != "" {
		_ = saveCache(p.cfg.CachePath, payload)
	}
}

func (p *Pool) markResultLocked(endpoint string, success bool, rtt time.Duration, err error) {
	rec, ok := p.records[endpoint]
	if !ok {
		return
	}
	now := time.Now()
	rec.Total++
	rec.LastUsed = now
	rec.LastCheck = now
	if success {
		rec.Success++
		rec.LastSuccess = now
		if rec.AvgRTTSeconds == 0 {
			rec.AvgRTTSeconds = rtt.Seconds()
		} else {
			rec.AvgRTTSeconds = 0.8*rec.AvgRTTSeconds + 0.2*rtt.Seconds()
		}
	} else {
		rec.Fail++
		rec.LastError = now
		if err != nil {
			rec.LastErrMsg = err.Error()
		}
	}
	rec.recomputeScore(now)
	rec.Healthy = rec.Score >= 10
	p.usesSinceFlush++
}

// prune drops every record scoring below 10 from the active pool.
func (p *Pool) prune() {
	p.mu.Lock()
	defer p.mu.Unlock()

	var kept []string
	for _, endpoint := range p.order {
		rec := p.records[endpoint]
		if rec.Score < 10 {
			delete(p.records, endpoint)
			continue
		}
		kept = append(kept, endpoint)
	}
	p.order = kept
}

func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Stats{Total: len(p.order)}
	for _, endpoint := range p.order {
		if p.records[endpoint].Healthy {
			stats.Healthy++
		}
	}
	return stats
}

func (p *Pool) snapshot() CachePayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Pool) snapshotLocked() CachePayload {
	proxies := make([]Record, 0, len(p.order))
	for _, endpoint := range p.order {
		proxies = append(proxies, *p.records[endpoint])
	}
	sort.Slice(proxies, func(i, j int) bool { return proxies[i].Endpoint < proxies[j].Endpoint })
	return CachePayload{
		Proxies: proxies,
		Stats:   Stats{Total: len(proxies)},
	}
}

// StartScheduledRefresh begins a background refresh on cfg.RefreshCron.
// It shares Refresh's code path and never blocks the caller.
func (p *Pool) StartScheduledRefresh(ctx context.Context) error {
	if p.cfg.RefreshCron == "" {
		return nil
	}
	c := cron.New()
	_, err := c.AddFunc(p.cfg.RefreshCron, func() {
		if err := p.Refresh(ctx); err != nil {
			p.metadataSink.RecordError(metadata.ErrorRecord{
				PackageName: "proxypool",
				Action:      "StartScheduledRefresh",
				Cause:       metadata.CauseNetworkFailure,
				ErrorString: err.Error(),
				ObservedAt:  time.Now(),
			})
		}
	})
	if err != nil {
		return err
	}
	p.cron = c
	c.Start()
	return nil
}

func (p *Pool) Stop() {
	if p.cron != nil {
		p.cron.Stop()
	}
}

// DialTransport exposes the protocol-specific transport construction so
// callers (the Page adapter, the Validator) can issue requests through
// the proxy a Next() call just handed them.
func DialTransport(rec Record) (*http.Transport, error) {
	return transportFor(&rec)
}
