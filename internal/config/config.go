package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/rohmanhakim/pdf-discovery-engine/internal/strategy"
)

// DiscoveryMode names a session's discovery mode. The orchestrator records
// it on the session row; it does not change which strategies run or
// whether internal links are followed, which is the same in every mode.
type DiscoveryMode string

const (
	ModeShallow DiscoveryMode = "shallow"
	ModeDeep    DiscoveryMode = "deep"
	ModeFull    DiscoveryMode = "full"
)

type DiscoveryConfig struct {
	Mode                DiscoveryMode
	MaxDepth            int
	FollowInternalLinks bool
	ValidateOnDiscovery bool
	Deduplicate         bool
}

type RateLimitConfig struct {
	RequestsPerMinute float64
	BurstSize         int
	BackoffOn429      bool
	MaxBackoffSeconds int
}

type ProxyConfig struct {
	Enabled          bool
	Sources          []string
	CachePath        string
	EchoURL          string
	RefreshHours     int
	MinAnonymity     string
	RequireHTTPS     bool
	RotatePerRequest bool
	RotateOnError    bool
	ValidateTimeout  time.Duration
	Concurrency      int
}

type UserAgentConfig struct {
	PoolFile         string
	RotatePerSession bool
	RotatePerRequest bool
}

type CaptchaConfig struct {
	AutoDetect                bool
	PauseOnCaptcha            bool
	ScreenshotOnCaptcha       bool
	ScreenshotDir             string
	ManualSolveTimeoutSeconds int
}

// PageEngine selects which page.Page adapter a session drives navigation
// through. EngineHTTP is the default, cheap path; EngineHeadless opts
// into chromedp for JS-rendered navigation and behavior simulation.
type PageEngine string

const (
	EngineHTTP     PageEngine = "http"
	EngineHeadless PageEngine = "headless"
)

type PageConfig struct {
	Engine             PageEngine
	HeadlessBinaryPath string
	NavigationTimeout  time.Duration
}

type NormalizerConfig struct {
	IdentityQueryParams []string
}

// StrategyConfig bundles the per-strategy settings consumed by
// internal/strategy's six concrete implementations.
type StrategyConfig struct {
	Sitemap          strategy.SitemapConfig
	PatternGenerator strategy.PatternGeneratorConfig
	SearchExplorer   strategy.SearchExplorerConfig
	Taxonomy         strategy.TaxonomyConfig
	FormDiscovery    strategy.FormDiscoveryConfig
	ArchiveProbe     strategy.ArchiveProbeConfig
}

type Config struct {
	//===============
	//  Crawl scope
	//===============
	// Initial pages to give to the crawler to begin discovering and traversing other pages.
	seedURLs []url.URL
	// Hostname allowlist kept in the config. The crawl does not read it; internal
	// links are followed by registrable domain.
	allowedHosts map[string]struct{}
	// Path prefixes kept in the config. The crawl does not read them, so they do
	// not restrict which pages are fetched.
	allowedPathPrefix []string

	//===============
	// Limits
	//===============
	// Hyperlink hops from a seed (root) URL at which crawling stops: pages at
	// this depth or deeper are not queued. 0 means unlimited.
	maxDepth int
	// Maximum number of total documents are allowed to be fetched
	maxPages int

	//===============
	// Politeness / retry
	//===============
	// Worker count kept in the config. The crawl does not read it: the
	// orchestrator processes pages one at a time in a single loop.
	concurrency int
	// Minimum, fixed waiting time you enforce between two HTTP requests to the same host.
	baseDelay time.Duration
	// Randomized variation added on top of the base delay.
	jitter time.Duration
	// Controls the random number generator
	randomSeed int64
	// maximum attempt during retry
	maxAttempt int
	// initial delay for backoff
	backoffInitialDuration time.Duration
	// multiplier during exponential backoff
	backoffMultiplier float64
	// capped maximum delay for backoff to stop exponential multiplication
	backoffMaxDuration time.Duration

	//===============
	// Fetch
	//===============
	// Maximum time of a single fetch request
	timeout time.Duration
	// User agent string kept in the config. Requests take their user agent from
	// the user agent pool and do not read this field.
	userAgent string

	//===============
	// Output / persistence
	//===============
	// Root directory in which to store the resulting database and checkpoint files
	outputDir string
	// Dry-run flag kept in the config. The orchestrator does not read it; the
	// database and checkpoints are written either way.
	dryRun bool
	// save_interval: number of pages visited between checkpoint flushes
	checkpointInterval int
	// number of emitted PDFs between session counter updates
	counterFlushInterval int

	//===============
	// Discovery-specific sections
	//===============
	discovery  DiscoveryConfig
	rateLimit  RateLimitConfig
	proxy      ProxyConfig
	userAgents UserAgentConfig
	captcha    CaptchaConfig
	page       PageConfig
	normalizer NormalizerConfig
	strategies StrategyConfig
}

type configDTO struct {
	SeedURLs               []url.URL           `json:"seedUrls"`
	AllowedHosts           map[string]struct{} `json:"allowedHosts,omitempty"`
	AllowedPathPrefix      []string            `json:"allowedPathPrefix,omitempty"`
	MaxDepth               int                 `json:"maxDepth,omitempty"`
	MaxPages               int                 `json:"maxPages,omitempty"`
	Concurrency            int                 `json:"concurrency,omitempty"`
	BaseDelay              time.Duration       `json:"baseDelay,omitempty"`
	Jitter                 time.Duration       `json:"jitter,omitempty"`
	RandomSeed             int64               `json:"randomSeed,omitempty"`
	MaxAttempt             int                 `json:"maxAttempt,omitempty"`
	BackoffInitialDuration time.Duration       `json:"backoffInitialDuration,omitempty"`
	BackoffMultiplier      float64             `json:"backoffMultiplier,omitempty"`
	BackoffMaxDuration     time.Duration       `json:"backoffMaxDuration,omitempty"`
	Timeout                time.Duration       `json:"timeout,omitempty"`
	UserAgent              string              `json:"userAgent,omitempty"`
	OutputDir              string              `json:"outputDir,omitempty"`
	DryRun                 bool                `json:"dryRun,omitempty"`
	CheckpointInterval     int                 `json:"checkpointInterval,omitempty"`
	CounterFlushInterval   int                 `json:"counterFlushInterval,omitempty"`

	Discovery  *DiscoveryConfig  `json:"discovery,omitempty"`
	RateLimit  *RateLimitConfig  `json:"rateLimiting,omitempty"`
	Proxy      *ProxyConfig      `json:"proxy,omitempty"`
	UserAgents *UserAgentConfig  `json:"userAgentPool,omitempty"`
	Captcha    *CaptchaConfig    `json:"captcha,omitempty"`
	Page       *PageConfig       `json:"page,omitempty"`
	Normalizer *NormalizerConfig `json:"normalizer,omitempty"`
	Strategies *StrategyConfig   `json:"strategies,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {

	// Start with default config
	cfg, err := WithDefault(dto.SeedURLs).Build()
	if err != nil {
		return Config{}, err
	}

	// AllowedHosts can be empty - if so, default to seed URLs hostnames
	if len(dto.AllowedHosts) > 0 {
		cfg.allowedHosts = dto.AllowedHosts
	}

	// AllowedPathPrefix can be empty - always use DTO values
	cfg.allowedPathPrefix = dto.AllowedPathPrefix

	// For other fields, only override if non-zero value is provided
	if dto.MaxDepth != 0 {
		cfg.maxDepth = dto.MaxDepth
	}
	if dto.MaxPages != 0 {
		cfg.maxPages = dto.MaxPages
	}
	if dto.Concurrency != 0 {
		cfg.concurrency = dto.Concurrency
	}
	if dto.BaseDelay != 0 {
		cfg.baseDelay = dto.BaseDelay
	}
	if dto.Jitter != 0 {
		cfg.jitter = dto.Jitter
	}
	if dto.RandomSeed != 0 {
		cfg.randomSeed = dto.RandomSeed
	}
	if dto.MaxAttempt != 0 {
		cfg.maxAttempt = dto.MaxAttempt
	}
	if dto.BackoffInitialDuration != 0 {
		cfg.backoffInitialDuration = dto.BackoffInitialDuration
	}
	if dto.BackoffMultiplier != 0 {
		cfg.backoffMultiplier = dto.BackoffMultiplier
	}
	if dto.BackoffMaxDuration != 0 {
		cfg.backoffMaxDuration = dto.BackoffMaxDuration
	}
	if dto.Timeout != 0 {
		cfg.timeout = dto.Timeout
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}
	if dto.OutputDir != "" {
		cfg.outputDir = dto.OutputDir
	}
	// DryRun is a boolean, check if explicitly set (we use the DTO value as-is since bool zero value is false)
	cfg.dryRun = dto.DryRun
	if dto.CheckpointInterval != 0 {
		cfg.checkpointInterval = dto.CheckpointInterval
	}
	if dto.CounterFlushInterval != 0 {
		cfg.counterFlushInterval = dto.CounterFlushInterval
	}

	if dto.Discovery != nil {
		cfg.discovery = *dto.Discovery
	}
	if dto.RateLimit != nil {
		cfg.rateLimit = *dto.RateLimit
	}
	if dto.Proxy != nil {
		cfg.proxy = *dto.Proxy
	}
	if dto.UserAgents != nil {
		cfg.userAgents = *dto.UserAgents
	}
	if dto.Captcha != nil {
		cfg.captcha = *dto.Captcha
	}
	if dto.Page != nil {
		cfg.page = *dto.Page
	}
	if dto.Normalizer != nil {
		cfg.normalizer = *dto.Normalizer
	}
	if dto.Strategies != nil {
		cfg.strategies = *dto.Strategies
	}

	return cfg, nil
}

func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	cfgDTO := configDTO{}

	err = json.Unmarshal(configContent, &cfgDTO)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	cfg, err := newConfigFromDTO(cfgDTO)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithDefault creates a new Config with the provided seed URLs and default values for all other fields.
// seedUrls is mandatory and must not be empty - an error will be returned if it is.
func WithDefault(seedUrls []url.URL) *Config {
	defaultConfig := Config{
		seedURLs:     seedUrls,
		allowedHosts: map[string]struct{}{},
		allowedPathPrefix: []string{
			"/",
		},
		maxDepth:               0,
		maxPages:               100,
		concurrency:            10,
		baseDelay:              time.Second,
		jitter:                 time.Millisecond * 500,
		randomSeed:             time.Now().UnixNano(),
		maxAttempt:             10,
		backoffInitialDuration: 100 * time.Millisecond,
		backoffMultiplier:      2.0,
		backoffMaxDuration:     10 * time.Second,
		timeout:                time.Second * 10,
		userAgent:              "pdf-discovery-engine/1.0",
		outputDir:              "output",
		dryRun:                 false,
		checkpointInterval:     100,
		counterFlushInterval:   100,

		discovery: DiscoveryConfig{
			Mode:                ModeFull,
			MaxDepth:            0,
			FollowInternalLinks: true,
			ValidateOnDiscovery: true,
			Deduplicate:         true,
		},
		rateLimit: RateLimitConfig{
			RequestsPerMinute: 20,
			BurstSize:         5,
			BackoffOn429:      true,
			MaxBackoffSeconds: 300,
		},
		proxy: ProxyConfig{
			Enabled:          true,
			RefreshHours:     6,
			RequireHTTPS:     false,
			RotatePerRequest: true,
			RotateOnError:    true,
			ValidateTimeout:  10 * time.Second,
			Concurrency:      100,
		},
		userAgents: UserAgentConfig{
			RotatePerSession: true,
			RotatePerRequest: false,
		},
		captcha: CaptchaConfig{
			AutoDetect:                true,
			PauseOnCaptcha:            true,
			ScreenshotOnCaptcha:       true,
			ManualSolveTimeoutSeconds: 300,
		},
		page: PageConfig{
			Engine:            EngineHTTP,
			NavigationTimeout: 60 * time.Second,
		},
		normalizer: NormalizerConfig{},
	}
	return &defaultConfig
}

func (c *Config) WithSeedUrls(urls []url.URL) *Config {
	c.seedURLs = urls
	return c
}

func (c *Config) WithAllowedHosts(hosts map[string]struct{}) *Config {
	c.allowedHosts = hosts
	return c
}

func (c *Config) WithAllowedPathPrefix(prefixes []string) *Config {
	c.allowedPathPrefix = prefixes
	return c
}

func (c *Config) WithMaxDepth(depth int) *Config {
	c.maxDepth = depth
	return c
}

func (c *Config) WithMaxPages(pages int) *Config {
	c.maxPages = pages
	return c
}

func (c *Config) WithConcurrency(concurrency int) *Config {
	c.concurrency = concurrency
	return c
}

func (c *Config) WithBaseDelay(delay time.Duration) *Config {
	c.baseDelay = delay
	return c
}

func (c *Config) WithJitter(jitter time.Duration) *Config {
	c.jitter = jitter
	return c
}

func (c *Config) WithRandomSeed(seed int64) *Config {
	c.randomSeed = seed
	return c
}

func (c *Config) WithMaxAttempt(attempts int) *Config {
	c.maxAttempt = attempts
	return c
}

func (c *Config) WithBackoffInitialDuration(duration time.Duration) *Config {
	c.backoffInitialDuration = duration
	return c
}

func (c *Config) WithBackoffMultiplier(multiplier float64) *Config {
	c.backoffMultiplier = multiplier
	return c
}

func (c *Config) WithBackoffMaxDuration(duration time.Duration) *Config {
	c.backoffMaxDuration = duration
	return c
}

func (c *Config) WithTimeout(timeout time.Duration) *Config {
	c.timeout = timeout
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithOutputDir(outputDir string) *Config {
	c.outputDir = outputDir
	return c
}

func (c *Config) WithDryRun(dryRun bool) *Config {
	c.dryRun = dryRun
	return c
}

func (c *Config) WithCheckpointInterval(pages int) *Config {
	c.checkpointInterval = pages
	return c
}

func (c *Config) WithCounterFlushInterval(n int) *Config {
	c.counterFlushInterval = n
	return c
}

func (c *Config) WithDiscovery(d DiscoveryConfig) *Config {
	c.discovery = d
	return c
}

func (c *Config) WithRateLimit(r RateLimitConfig) *Config {
	c.rateLimit = r
	return c
}

func (c *Config) WithProxy(p ProxyConfig) *Config {
	c.proxy = p
	return c
}

func (c *Config) WithUserAgentPool(u UserAgentConfig) *Config {
	c.userAgents = u
	return c
}

func (c *Config) WithCaptcha(cc CaptchaConfig) *Config {
	c.captcha = cc
	return c
}

func (c *Config) WithPage(p PageConfig) *Config {
	c.page = p
	return c
}

func (c *Config) WithNormalizer(n NormalizerConfig) *Config {
	c.normalizer = n
	return c
}

func (c *Config) WithStrategies(s StrategyConfig) *Config {
	c.strategies = s
	return c
}

func (c *Config) Build() (Config, error) {
	if len(c.seedURLs) == 0 {
		return Config{}, fmt.Errorf("%w: seedUrls cannot be empty", ErrInvalidConfig)
	}

	// If allowedHosts is empty, default to seed URLs hostnames
	if len(c.allowedHosts) == 0 {
		c.allowedHosts = make(map[string]struct{})
		for _, u := range c.seedURLs {
			if u.Host != "" {
				c.allowedHosts[u.Host] = struct{}{}
			}
		}
	}

	if c.discovery.MaxDepth != 0 {
		c.maxDepth = c.discovery.MaxDepth
	}

	return *c, nil
}

func (c Config) SeedURLs() []url.URL {
	urls := make([]url.URL, len(c.seedURLs))
	copy(urls, c.seedURLs)
	return urls
}

func (c Config) AllowedHosts() map[string]struct{} {
	hosts := make(map[string]struct{})
	for k, v := range c.allowedHosts {
		hosts[k] = v
	}
	return hosts
}

func (c Config) AllowedPathPrefix() []string {
	prefixes := make([]string, len(c.allowedPathPrefix))
	copy(prefixes, c.allowedPathPrefix)
	return prefixes
}

func (c Config) MaxDepth() int {
	return c.maxDepth
}

func (c Config) MaxPages() int {
	return c.maxPages
}

func (c Config) Concurrency() int {
	return c.concurrency
}

func (c Config) BaseDelay() time.Duration {
	return c.baseDelay
}

func (c Config) Jitter() time.Duration {
	return c.jitter
}

func (c Config) RandomSeed() int64 {
	return c.randomSeed
}

func (c Config) Timeout() time.Duration {
	return c.timeout
}

func (c Config) UserAgent() string {
	return c.userAgent
}

func (c Config) OutputDir() string {
	return c.outputDir
}

func (c Config) DryRun() bool {
	return c.dryRun
}

func (c Config) MaxAttempt() int {
	return c.maxAttempt
}

func (c Config) BackoffInitialDuration() time.Duration {
	return c.backoffInitialDuration
}

func (c Config) BackoffMultiplier() float64 {
	return c.backoffMultiplier
}

func (c Config) BackoffMaxDuration() time.Duration {
	return c.backoffMaxDuration
}

func (c Config) CheckpointInterval() int {
	if c.checkpointInterval <= 0 {
		return 100
	}
	return c.checkpointInterval
}

func (c Config) CounterFlushInterval() int {
	if c.counterFlushInterval <= 0 {
		return 100
	}
	return c.counterFlushInterval
}

func (c Config) Discovery() DiscoveryConfig     { return c.discovery }
func (c Config) RateLimit() RateLimitConfig     { return c.rateLimit }
func (c Config) Proxy() ProxyConfig             { return c.proxy }
func (c Config) UserAgents() UserAgentConfig    { return c.userAgents }
func (c Config) Captcha() CaptchaConfig         { return c.captcha }
func (c Config) Page() PageConfig               { return c.page }
func (c Config) Normalizer() NormalizerConfig   { return c.normalizer }
func (c Config) Strategies() StrategyConfig     { return c.strategies }
