package strategy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
)

/*
ArchiveProbe guesses at legacy/archive URL sections judicial sites
tend to keep around (/archivos/{year}, /historico/{year}, and similar)
and HEAD-probes each year from StartYear through the present, treating
any 2xx response and any redirect (3xx, which often indicates an archive
path that got reorganized but still resolves) as a hit.
*/

var defaultArchivePathTemplates = []string{
	"/archivos/{year}",
	"/historico/{year}",
	"/legacy/{year}",
	"/old/{year}",
	"/archive/{year}",
}

type ArchiveSite struct {
	BaseURL string
	Enabled bool
}

type ArchiveProbeConfig struct {
	EnabledFlag     bool
	Sites           []ArchiveSite
	PathTemplates   []string
	StartYear       int
	MaxProbes       int
	TimeoutSeconds  int
	IncludePatterns []string
	ExcludePatterns []string
}

type ArchiveProbeStrategy struct {
	cfg     ArchiveProbeConfig
	client  *http.Client
	include []*regexp.Regexp
	exclude []*regexp.Regexp
	nowYear int
}

func NewArchiveProbeStrategy(cfg ArchiveProbeConfig, nowYear int) *ArchiveProbeStrategy {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	a := &ArchiveProbeStrategy{cfg: cfg, client: client, nowYear: nowYear}
	for _, p := range cfg.IncludePatterns {
		if re, err := regexp.Compile(p); err == nil {
			a.include = append(a.include, re)
		}
	}
	for _, p := range cfg.ExcludePatterns {
		if re, err := regexp.Compile(p); err == nil {
			a.exclude = append(a.exclude, re)
		}
	}
	return a
}

func (a *ArchiveProbeStrategy) Name() string  { return "archive_probe" }
func (a *ArchiveProbeStrategy) Enabled() bool { return a.cfg.EnabledFlag && len(a.cfg.Sites) > 0 }
func (a *ArchiveProbeStrategy) Initialize(ctx context.Context) error { return nil }
func (a *ArchiveProbeStrategy) Cleanup(ctx context.Context) error    { return nil }

func (a *ArchiveProbeStrategy) Discover(ctx context.Context) (Result, error) {
	startYear := a.cfg.StartYear
	if startYear <= 0 {
		startYear = 2000
	}
	maxProbes := a.cfg.MaxProbes
	if maxProbes <= 0 {
		maxProbes = 500
	}
	templates := a.cfg.PathTemplates
	if len(templates) == 0 {
		templates = defaultArchivePathTemplates
	}

	var hits []string
	for _, site := range a.cfg.Sites {
		if !site.Enabled || site.BaseURL == "" {
			continue
		}
		base := strings.TrimRight(site.BaseURL, "/")

		var probeURLs []string
	buildProbes:
		for _, tmpl := range templates {
			for year := startYear; year <= a.nowYear; year++ {
				path := strings.ReplaceAll(tmpl, "{year}", fmt.Sprintf("%d", year))
				joined, ok := resolveRelative(base+"/", strings.TrimLeft(path, "/"))
				if !ok {
					continue
				}
				probeURLs = append(probeURLs, joined)
				if len(probeURLs) >= maxProbes {
					break buildProbes
				}
			}
		}

		for _, probeURL := range probeURLs {
			select {
			case <-ctx.Done():
				return a.finish(hits), ctx.Err()
			default:
			}
			if a.probe(ctx, probeURL) {
				hits = append(hits, probeURL)
			}
		}
	}

	return a.finish(hits), nil
}

func (a *ArchiveProbeStrategy) probe(ctx context.Context, target string) bool {
	parsed, err := url.Parse(target)
	if err != nil {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, parsed.String(), nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

func (a *ArchiveProbeStrategy) finish(hits []string) Result {
	unique := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		unique[h] = struct{}{}
	}
	sorted := make([]string, 0, len(unique))
	for h := range unique {
		sorted = append(sorted, h)
	}
	sort.Strings(sorted)

	var seeds []Seed
	for _, u := range sorted {
		if len(a.exclude) > 0 && anyMatch(a.exclude, u) {
			continue
		}
		if len(a.include) > 0 && !anyMatch(a.include, u) {
			continue
		}
		seeds = append(seeds, Seed{URL: u, Method: "archive_probe"})
	}
	return Result{Seeds: seeds, Metadata: map[string]any{"probes_total": len(seeds)}}
}
