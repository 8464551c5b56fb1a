package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"

	"github.com/rohmanhakim/pdf-discovery-engine/internal/captcha"
	"github.com/rohmanhakim/pdf-discovery-engine/internal/checkpoint"
	"github.com/rohmanhakim/pdf-discovery-engine/internal/config"
	"github.com/rohmanhakim/pdf-discovery-engine/internal/extractor"
	"github.com/rohmanhakim/pdf-discovery-engine/internal/frontier"
	"github.com/rohmanhakim/pdf-discovery-engine/internal/metadata"
	"github.com/rohmanhakim/pdf-discovery-engine/internal/metrics"
	"github.com/rohmanhakim/pdf-discovery-engine/internal/page"
	"github.com/rohmanhakim/pdf-discovery-engine/internal/proxypool"
	"github.com/rohmanhakim/pdf-discovery-engine/internal/ratelimiter"
	"github.com/rohmanhakim/pdf-discovery-engine/internal/storage"
	"github.com/rohmanhakim/pdf-discovery-engine/internal/strategy"
	"github.com/rohmanhakim/pdf-discovery-engine/internal/useragent"
	"github.com/rohmanhakim/pdf-discovery-engine/internal/validator"
	pkglimiter "github.com/rohmanhakim/pdf-discovery-engine/pkg/limiter"
	"github.com/rohmanhakim/pdf-discovery-engine/pkg/urlutil"
)

/*
Orchestrator Responsibilities
- Own one discovery session end to end: seed generation, BFS traversal,
  extraction, validation, persistence, checkpointing
- Submit is the sole admission choke point into the Frontier, same as
  the old scheduler's robots-based admission; here admission passes
  through proxy/UA rotation, rate limiting, and CAPTCHA classification
  instead of a robots.txt check
- Treat the Frontier's own visited set as an ephemeral in-process
  dedup guard only. The durable, checkpoint-persisted visited set is
  this package's own sessionState.processed, populated only once a page
  has been fully processed and closed - never on admission.
*/

const outChannelBuffer = 32

// Orchestrator drives one or more discovery sessions against a fixed
// set of dependencies (store, proxy/UA pools, rate limiters,
// extraction/validation/CAPTCHA policy). It holds no per-session state
// itself: that lives in sessionState, created fresh by runSession.
type Orchestrator struct {
	cfg          config.Config
	store        *storage.Store
	metadataSink metadata.MetadataSink

	proxies    *proxypool.Pool
	userAgents *useragent.Pool
	hostLimit  pkglimiter.RateLimiter
	rateLimit  *ratelimiter.Limiter
	detector   *captcha.Detector
	extractor  *extractor.LinkExtractor
	validator  *validator.Validator
	checkpoints *checkpoint.Store
	strategies []strategy.Strategy
	metrics    *metrics.Metrics

	proxyInitOnce sync.Once

	chromeMu     sync.Mutex
	chromeCtx    context.Context
	chromeCancel context.CancelFunc
}

// NewOrchestrator wires every dependency package against cfg. store and
// metadataSink are injected so tests can substitute an in-memory store
// and a recording sink.
func NewOrchestrator(cfg config.Config, store *storage.Store, metadataSink metadata.MetadataSink) *Orchestrator {
	if metadataSink == nil {
		metadataSink = metadata.NoopSink{}
	}

	o := &Orchestrator{
		cfg:          cfg,
		store:        store,
		metadataSink: metadataSink,
		userAgents:   useragent.New(cfg.UserAgents().PoolFile),
		rateLimit: ratelimiter.New(
			cfg.RateLimit().RequestsPerMinute,
			cfg.RateLimit().BurstSize,
			time.Duration(cfg.RateLimit().MaxBackoffSeconds)*time.Second,
		),
		detector: captcha.NewDetector(captcha.Policy{
			PauseOnCaptcha: cfg.Captcha().PauseOnCaptcha,
			PauseSeconds:   cfg.Captcha().ManualSolveTimeoutSeconds,
			TakeScreenshot: cfg.Captcha().ScreenshotOnCaptcha,
			ScreenshotDir:  cfg.Captcha().ScreenshotDir,
		}, metadataSink),
		extractor:   extractor.NewLinkExtractor(metadataSink),
		validator:   validator.New(cfg.Timeout()),
		checkpoints: checkpoint.NewStore(cfg.OutputDir(), metadataSink),
		hostLimit:   pkglimiter.NewConcurrentRateLimiter(),
	}
	o.hostLimit.SetBaseDelay(cfg.BaseDelay())
	o.hostLimit.SetJitter(cfg.Jitter())
	o.hostLimit.SetRandomSeed(cfg.RandomSeed())

	if cfg.Proxy().Enabled {
		o.proxies = proxypool.New(proxypool.Config{
			Sources:         cfg.Proxy().Sources,
			CachePath:       cfg.Proxy().CachePath,
			EchoURL:         cfg.Proxy().EchoURL,
			RefreshEvery:    time.Duration(cfg.Proxy().RefreshHours) * time.Hour,
			ValidateTimeout: cfg.Proxy().ValidateTimeout,
			Concurrency:     cfg.Proxy().Concurrency,
			RequireHTTPS:    cfg.Proxy().RequireHTTPS,
		}, metadataSink)
	}

	nowYear := time.Now().Year()
	o.strategies = []strategy.Strategy{
		strategy.NewSitemapStrategy(cfg.Strategies().Sitemap),
		strategy.NewPatternGeneratorStrategy(cfg.Strategies().PatternGenerator, store),
		strategy.NewSearchExplorerStrategy(cfg.Strategies().SearchExplorer, nowYear),
		strategy.NewTaxonomyStrategy(cfg.Strategies().Taxonomy, pageOpener{o: o}),
		strategy.NewFormDiscoveryStrategy(cfg.Strategies().FormDiscovery),
		strategy.NewArchiveProbeStrategy(cfg.Strategies().ArchiveProbe, nowYear),
	}

	return o
}

// SetMetrics attaches process-wide Prometheus counters. Optional: a nil
// or never-called SetMetrics leaves every metrics hook a no-op.
func (o *Orchestrator) SetMetrics(m *metrics.Metrics) {
	o.metrics = m
}

// Close releases process-lifetime resources: the headless allocator (if
// ever started), the proxy pool's scheduled refresh, and the user-agent
// pool's file watcher.
func (o *Orchestrator) Close() error {
	o.chromeMu.Lock()
	if o.chromeCancel != nil {
		o.chromeCancel()
	}
	o.chromeMu.Unlock()
	if o.proxies != nil {
		o.proxies.Stop()
	}
	return o.userAgents.Close()
}

// pageOpener adapts Orchestrator.newPage to strategy.PageOpener, so the
// Taxonomy strategy navigates through the same engine (HTTP or
// headless) as the main crawl loop.
type pageOpener struct{ o *Orchestrator }

func (p pageOpener) Open(ctx context.Context) (page.Page, error) {
	return p.o.newPage(ctx, nil, p.o.userAgents.GetRandom())
}

// newPage builds a Page through the configured engine. A nil proxy
// dials direct. HTTP pages are cheap and built fresh every call;
// headless tabs share one process-lifetime allocator context.
func (o *Orchestrator) newPage(ctx context.Context, proxy *proxypool.Record, userAgent string) (page.Page, error) {
	var p page.Page
	switch o.cfg.Page().Engine {
	case config.EngineHeadless:
		allocCtx, err := o.headlessAllocator()
		if err != nil {
			return nil, err
		}
		p = page.NewChromePage(allocCtx)
	default:
		client := &http.Client{Timeout: o.cfg.Timeout()}
		if proxy != nil {
			transport, err := proxypool.DialTransport(*proxy)
			if err != nil {
				return nil, err
			}
			client.Transport = transport
		}
		p = page.NewHTTPPage(client)
	}
	if userAgent != "" {
		p.SetExtraHTTPHeaders(map[string]string{"User-Agent": userAgent})
	}
	return p, nil
}

func (o *Orchestrator) headlessAllocator() (context.Context, error) {
	o.chromeMu.Lock()
	defer o.chromeMu.Unlock()
	if o.chromeCtx != nil {
		return o.chromeCtx, nil
	}
	opts := chromedp.DefaultExecAllocatorOptions[:]
	if o.cfg.Page().HeadlessBinaryPath != "" {
		opts = append(opts, chromedp.ExecPath(o.cfg.Page().HeadlessBinaryPath))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	o.chromeCtx = allocCtx
	o.chromeCancel = cancel
	return o.chromeCtx, nil
}

// sessionState holds everything that must not outlive one Run/Resume
// call. The Frontier is reconstructed fresh every call: it is never the
// resumable source of truth, only the BFS ordering/admission engine for
// URLs pending within this process's lifetime.
type sessionState struct {
	mu        sync.Mutex
	frontier  *frontier.CrawlFrontier
	processed map[string]struct{}          // durable, checkpoint-persisted visited set
	pending   map[string]pendingPage       // mirrors the Frontier's queue for checkpointing
	stats     metadata.CrawlStats
}

func newSessionState(cfg config.Config, sessionID string) *sessionState {
	fr := frontier.NewCrawlFrontier()
	fr.Init(cfg)
	return &sessionState{
		frontier:  fr,
		processed: make(map[string]struct{}),
		pending:   make(map[string]pendingPage),
		stats:     metadata.CrawlStats{SessionID: sessionID},
	}
}

func frontierKey(u url.URL) string {
	normalized := urlutil.NormalizeDiscoveryURL(u, nil)
	return normalized.String()
}

// admit submits candidate to the Frontier and, if it was actually
// accepted (not a duplicate, not past a configured limit), mirrors it
// into pending so a checkpoint can restore it later. The Frontier gives
// no direct admit/reject signal, so acceptance is inferred from the
// growth of its visited-count.
func (s *sessionState) admit(candidate frontier.CrawlAdmissionCandidate) {
	before := s.frontier.VisitedCount()
	s.frontier.Submit(candidate)
	if s.frontier.VisitedCount() == before {
		return
	}
	target := candidate.TargetURL()
	key := frontierKey(target)
	s.mu.Lock()
	s.pending[key] = pendingPage{url: target.String(), depth: candidate.DiscoveryMetadata().Depth()}
	s.mu.Unlock()
}

func (s *sessionState) dequeue() (frontier.CrawlToken, bool) {
	token, ok := s.frontier.Dequeue()
	if !ok {
		return token, false
	}
	key := frontierKey(token.URL())
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()
	return token, true
}

func (s *sessionState) isProcessed(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[key]
	return ok
}

func (s *sessionState) markProcessed(key string) {
	s.mu.Lock()
	s.processed[key] = struct{}{}
	s.mu.Unlock()
}

func (s *sessionState) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *sessionState) snapshot(sessionID string) checkpoint.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	visited := make([]string, 0, len(s.processed))
	for k := range s.processed {
		visited = append(visited, k)
	}
	queue := make([]checkpoint.QueuedURL, 0, len(s.pending))
	for _, p := range s.pending {
		queue = append(queue, checkpoint.QueuedURL{URL: p.url, Depth: p.depth})
	}
	return checkpoint.Snapshot{SessionID: sessionID, Visited: visited, Queue: queue, Stats: s.stats}
}

// Run starts a brand-new discovery session seeded from seedURLs plus
// whatever the configured strategies discover on their own. It returns
// immediately with a channel of discovered PDFs; the channel closes
// when the session ends, for any reason.
func (o *Orchestrator) Run(ctx context.Context, seedURLs []url.URL) (<-chan DiscoveredPDF, error) {
	sessionID := uuid.NewString()
	session := storage.DiscoverySession{
		ID:        sessionID,
		Mode:      storage.SessionMode(o.cfg.Discovery().Mode),
		MaxDepth:  o.cfg.MaxDepth(),
		StartTime: time.Now(),
		Status:    storage.SessionRunning,
	}
	if err := o.store.CreateSession(session); err != nil {
		return nil, fmt.Errorf("scheduler: create session: %w", err)
	}

	out := make(chan DiscoveredPDF, outChannelBuffer)
	go o.runSession(ctx, sessionID, seedURLs, false, out)
	return out, nil
}

// Resume continues a previously interrupted session from its last
// checkpoint. No new seed URLs are accepted: resumption only drains the
// checkpointed queue.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) (<-chan DiscoveredPDF, error) {
	if _, ok, err := o.store.GetSession(sessionID); err != nil {
		return nil, fmt.Errorf("scheduler: resume lookup: %w", err)
	} else if !ok {
		return nil, fmt.Errorf("scheduler: no session %q to resume", sessionID)
	}

	out := make(chan DiscoveredPDF, outChannelBuffer)
	go o.runSession(ctx, sessionID, nil, true, out)
	return out, nil
}

func (o *Orchestrator) runSession(ctx context.Context, sessionID string, seedURLs []url.URL, resume bool, out chan<- DiscoveredPDF) {
	defer close(out)
	clock := sessionClock{start: time.Now()}
	state := newSessionState(o.cfg, sessionID)

	if resume {
		o.restoreCheckpoint(sessionID, state)
	} else {
		o.seed(ctx, sessionID, seedURLs, state, out)
	}

	status := o.drive(ctx, sessionID, state, out)

	state.stats.DurationMs = clock.elapsedMs(time.Now())
	state.stats.TerminalState = string(status)
	o.metadataSink.RecordFinalCrawlStats(state.stats)
	_ = o.store.UpdateSessionCounters(sessionID, state.stats)
	_ = o.checkpoints.Save(state.snapshot(sessionID))
	_ = o.store.FinalizeSession(sessionID, status)
}

func (o *Orchestrator) restoreCheckpoint(sessionID string, state *sessionState) {
	snapshot, found, err := o.checkpoints.Load(sessionID)
	if err != nil || !found {
		return
	}
	state.stats = snapshot.Stats
	for _, v := range snapshot.Visited {
		state.processed[v] = struct{}{}
	}
	for _, q := range snapshot.Queue {
		parsed, perr := url.Parse(q.URL)
		if perr != nil {
			continue
		}
		state.admit(frontier.NewCrawlAdmissionCandidate(*parsed, frontier.SourceCrawl, frontier.NewDiscoveryMetadata(q.Depth, nil)))
	}
}

// seed runs every enabled strategy, then admits every resulting seed
// plus the caller-supplied seedURLs at depth 0. A seed whose path is
// already a PDF is a terminal artifact: it bypasses page navigation
// entirely and is upserted directly.
func (o *Orchestrator) seed(ctx context.Context, sessionID string, seedURLs []url.URL, state *sessionState, out chan<- DiscoveredPDF) {
	discovered, _ := strategy.RunAll(ctx, o.strategies)

	type candidate struct {
		rawURL string
		method storage.ExtractionMethod
	}
	var candidates []candidate
	for _, u := range seedURLs {
		candidates = append(candidates, candidate{rawURL: u.String(), method: storage.ExtractionSeed})
	}
	for _, s := range discovered {
		candidates = append(candidates, candidate{rawURL: s.URL, method: strategySeedMethod(s.Method)})
	}

	for _, c := range candidates {
		parsed, err := url.Parse(c.rawURL)
		if err != nil {
			continue
		}
		if isPDFURL(*parsed) {
			o.persistSeedPDF(sessionID, *parsed, c.method, state, out)
			continue
		}
		state.admit(frontier.NewCrawlAdmissionCandidate(*parsed, frontier.SourceSeed, frontier.NewDiscoveryMetadata(0, nil)))
	}
}

func (o *Orchestrator) persistSeedPDF(sessionID string, u url.URL, method storage.ExtractionMethod, state *sessionState, out chan<- DiscoveredPDF) {
	normalized := urlutil.NormalizeDiscoveryURL(u, o.cfg.Normalizer().IdentityQueryParams)
	link := storage.PDFLink{
		OriginalURL:      u.String(),
		NormalizedURL:    normalized.String(),
		SessionID:        sessionID,
		DiscoveredAt:     time.Now(),
		Status:           storage.LinkDiscovered,
		ExtractionMethod: method,
		Confidence:       1.0,
	}
	result, err := o.store.UpsertLink(link)
	if err != nil {
		state.stats.Errors++
		return
	}
	if result.Existed {
		state.stats.Duplicates++
	} else {
		state.stats.NewLinks++
	}
	state.stats.LinksFound++
	emit(out, DiscoveredPDF{Link: result.Link, SourceURL: u.String(), Depth: 0})
}

// drive runs the BFS crawl loop: dequeue, rate limit, navigate, detect
// CAPTCHA, extract, validate, persist, enqueue internal links, repeat.
// A URL joins state.processed only after its page is fully handled and
// closed - never on admission.
func (o *Orchestrator) drive(ctx context.Context, sessionID string, state *sessionState, out chan<- DiscoveredPDF) storage.SessionStatus {
	for {
		if ctx.Err() != nil {
			return storage.SessionInterrupted
		}

		token, ok := state.dequeue()
		if !ok {
			return storage.SessionCompleted
		}
		targetURL := token.URL()
		depth := token.Depth()
		key := frontierKey(targetURL)
		if state.isProcessed(key) {
			continue
		}

		host := targetURL.Hostname()
		sleepCtx(ctx, o.hostLimit.ResolveDelay(host))
		if err := o.rateLimit.Wait(ctx); err != nil {
			return storage.SessionInterrupted
		}

		var proxyRec *proxypool.Record
		if o.proxies != nil {
			o.proxyInitOnce.Do(func() { _ = o.proxies.Initialize(ctx) })
			if rec, ok := o.proxies.Next(proxypool.StrategyWeighted); ok {
				proxyRec = &rec
			}
		}
		userAgent := o.userAgents.ForSession(sessionID)

		p, err := o.newPage(ctx, proxyRec, userAgent)
		if err != nil {
			state.stats.Errors++
			o.countFetch("error")
			continue
		}

		fetchStart := time.Now()
		status, navErr := p.Goto(ctx, targetURL.String(), o.cfg.Page().NavigationTimeout)
		o.observeFetchDuration(time.Since(fetchStart))
		if navErr != nil {
			o.recordFetchFailure(host, proxyRec, navErr)
			p.Close()
			state.stats.Errors++
			o.countFetch("error")
			continue
		}
		if status == http.StatusTooManyRequests {
			o.recordFetchFailure(host, proxyRec, fmt.Errorf("rate limited (429)"))
			p.Close()
			state.stats.Blocked++
			o.countFetch("blocked")
			continue
		}
		if status >= 400 {
			p.Close()
			state.stats.Broken++
			o.countFetch("broken")
			continue
		}
		o.recordFetchSuccess(host, proxyRec)
		state.stats.PagesVisited++
		o.countFetch("ok")
		o.metadataSink.RecordFetch(metadata.FetchEvent{FetchURL: targetURL.String(), HTTPStatus: status, CrawlDepth: depth})

		if o.cfg.Captcha().AutoDetect {
			if isCaptcha, reason := o.detector.Check(p); isCaptcha {
				state.stats.CAPTCHAs++
				if o.metrics != nil {
					o.metrics.CaptchasSeen.Inc()
				}
				switch o.detector.Resolve(ctx, p, sessionID, reason) {
				case captcha.OutcomeAbort:
					p.Close()
					return storage.SessionInterrupted
				case captcha.OutcomeSkip:
					p.Close()
					continue
				}
			}
		}

		content, contentErr := p.Content()
		if contentErr != nil {
			p.Close()
			state.stats.Errors++
			continue
		}

		result, extractErr := o.extractor.Extract(targetURL, content)
		if extractErr != nil {
			o.metadataSink.RecordError(metadata.ErrorRecord{
				PackageName: "scheduler", Action: "Extract", Cause: metadata.CauseContentInvalid,
				ErrorString: extractErr.Error(), ObservedAt: time.Now(),
				Attrs: []metadata.Attribute{metadata.NewAttr(metadata.AttrURL, targetURL.String())},
			})
			p.Close()
			state.stats.Errors++
			continue
		}

		o.persistCandidates(ctx, sessionID, targetURL, depth, result, proxyRec, userAgent, state, out)

		if o.cfg.Discovery().FollowInternalLinks && (o.cfg.MaxDepth() == 0 || depth+1 < o.cfg.MaxDepth()) {
			for _, link := range result.InternalLinks {
				parsed, perr := url.Parse(link.URL)
				if perr != nil {
					continue
				}
				if isPDFURL(*parsed) {
					// Already recorded by persistCandidates; a PDF is never crawled as a page.
					continue
				}
				state.admit(frontier.NewCrawlAdmissionCandidate(*parsed, frontier.SourceCrawl, frontier.NewDiscoveryMetadata(depth+1, nil)))
			}
		}

		p.Close()
		state.markProcessed(key)
		o.observeFrontierDepth(state)

		if o.cfg.CheckpointInterval() > 0 && state.stats.PagesVisited%o.cfg.CheckpointInterval() == 0 {
			_ = o.checkpoints.Save(state.snapshot(sessionID))
		}
		if o.cfg.CounterFlushInterval() > 0 && state.stats.PagesVisited%o.cfg.CounterFlushInterval() == 0 {
			_ = o.store.UpdateSessionCounters(sessionID, state.stats)
		}
	}
}

func (o *Orchestrator) persistCandidates(ctx context.Context, sessionID string, sourceURL url.URL, depth int, extracted extractor.Result, proxyRec *proxypool.Record, userAgent string, state *sessionState, out chan<- DiscoveredPDF) {
	state.stats.LinksFound += len(extracted.PDFs)
	for _, pdf := range extracted.PDFs {
		candidateURL, err := url.Parse(pdf.URL)
		if err != nil {
			continue
		}

		normalized := urlutil.NormalizeDiscoveryURL(*candidateURL, o.cfg.Normalizer().IdentityQueryParams)
		link := storage.PDFLink{
			OriginalURL:      pdf.URL,
			NormalizedURL:    normalized.String(),
			SourceURL:        sourceURL.String(),
			SessionID:        sessionID,
			DiscoveredAt:     time.Now(),
			Status:           storage.LinkDiscovered,
			ExtractionMethod: extractionMethodFor(pdf.Method),
			Confidence:       pdf.Confidence,
		}

		if o.cfg.Discovery().ValidateOnDiscovery {
			outcome := o.validator.Validate(ctx, pdf.URL, proxyRec, userAgent)
			now := time.Now()
			link.ValidatedAt = &now
			link.HTTPStatus = outcome.Status
			link.ContentType = outcome.ContentType
			link.ContentLength = outcome.ContentLength
			link.FinalURL = outcome.FinalURL
			link.RedirectCount = outcome.RedirectCount
			if outcome.Accessible {
				link.Status = storage.LinkAccessible
				state.stats.Accessible++
			} else {
				link.Status = storage.LinkBroken
				state.stats.Broken++
			}
			o.metadataSink.RecordAssetFetch(metadata.AssetFetchEvent{
				AssetURL: pdf.URL, SourcePageURL: sourceURL.String(), Accessible: outcome.Accessible,
				HTTPStatus: outcome.Status, ContentType: outcome.ContentType, ContentLength: outcome.ContentLength,
			})
		}

		writeResult, werr := o.store.UpsertLink(link)
		if werr != nil {
			state.stats.Errors++
			continue
		}
		if writeResult.Existed {
			state.stats.Duplicates++
			if o.metrics != nil {
				o.metrics.PDFsDuplicate.Inc()
			}
		} else {
			state.stats.NewLinks++
		}
		if o.metrics != nil {
			o.metrics.PDFsFoundTotal.WithLabelValues(string(link.ExtractionMethod)).Inc()
		}
		emit(out, DiscoveredPDF{Link: writeResult.Link, SourceURL: sourceURL.String(), Depth: depth})
	}
}

func (o *Orchestrator) recordFetchSuccess(host string, proxy *proxypool.Record) {
	o.hostLimit.ResetBackoff(host)
	o.hostLimit.MarkLastFetchAsNow(host)
	o.rateLimit.OnSuccess()
	if proxy != nil && o.proxies != nil {
		o.proxies.MarkResult(proxy.Endpoint, true, 0, nil)
		o.countProxyRotation("success")
	}
	o.observeCurrentRateLimit()
	o.observeActiveProxies()
}

func (o *Orchestrator) recordFetchFailure(host string, proxy *proxypool.Record, err error) {
	o.hostLimit.Backoff(host)
	o.rateLimit.OnFailure()
	o.countBackoff("global")
	if proxy != nil && o.proxies != nil {
		o.proxies.MarkResult(proxy.Endpoint, false, 0, err)
		o.countProxyRotation("failure")
	}
	o.observeCurrentRateLimit()
	o.observeActiveProxies()
	o.metadataSink.RecordError(metadata.ErrorRecord{
		PackageName: "scheduler", Action: "Goto", Cause: metadata.CauseNetworkFailure,
		ErrorString: err.Error(), ObservedAt: time.Now(),
		Attrs: []metadata.Attribute{metadata.NewAttr(metadata.AttrHost, host)},
	})
}

func (o *Orchestrator) countFetch(outcome string) {
	if o.metrics != nil {
		o.metrics.PagesFetchedTotal.WithLabelValues(outcome).Inc()
	}
}

func (o *Orchestrator) countProxyRotation(result string) {
	if o.metrics != nil {
		o.metrics.ProxyRotations.WithLabelValues(result).Inc()
	}
}

func (o *Orchestrator) countBackoff(layer string) {
	if o.metrics != nil {
		o.metrics.RateLimitBackoffs.WithLabelValues(layer).Inc()
	}
}

func (o *Orchestrator) observeFetchDuration(d time.Duration) {
	if o.metrics != nil {
		o.metrics.FetchDuration.Observe(d.Seconds())
	}
}

func (o *Orchestrator) observeFrontierDepth(state *sessionState) {
	if o.metrics != nil {
		o.metrics.FrontierQueueDepth.Set(float64(state.pendingCount()))
	}
}

func (o *Orchestrator) observeCurrentRateLimit() {
	if o.metrics != nil {
		o.metrics.CurrentRateLimit.Set(o.rateLimit.CurrentRate())
	}
}

func (o *Orchestrator) observeActiveProxies() {
	if o.metrics == nil || o.proxies == nil {
		return
	}
	o.metrics.ActiveProxies.Set(float64(o.proxies.Stats().Healthy))
}

func emit(out chan<- DiscoveredPDF, pdf DiscoveredPDF) {
	out <- pdf
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// isPDFURL reports whether u names a PDF document by path suffix.
// Deliberately local: pkg/urlutil keeps the equivalent check
// unexported, since URL identity is its concern and PDF-ness is ours.
func isPDFURL(u url.URL) bool {
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

// extractionMethodFor maps the extractor package's narrower Method enum
// onto storage's superset ExtractionMethod. Their string values
// coincide for all three HTML-extraction passes by construction.
func extractionMethodFor(m extractor.Method) storage.ExtractionMethod {
	return storage.ExtractionMethod(m)
}

// strategySeedMethod maps a strategy.Seed's Method string onto
// storage.ExtractionMethod. Most strategy names match their storage
// constant's string value directly; pattern_generator, search_explorer,
// and form_discovery do not, so they get an explicit translation.
func strategySeedMethod(method string) storage.ExtractionMethod {
	switch method {
	case "sitemap":
		return storage.ExtractionSitemap
	case "pattern_generator":
		return storage.ExtractionPattern
	case "search_explorer":
		return storage.ExtractionSearchAPI
	case "taxonomy":
		return storage.ExtractionTaxonomy
	case "form_discovery":
		return storage.ExtractionFormSubmit
	case "archive_probe":
		return storage.ExtractionArchiveProbe
	default:
		return storage.ExtractionSeed
	}
}
