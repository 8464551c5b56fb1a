package strategy

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rohmanhakim/pdf-discovery-engine/internal/page"
)

const taxonomyPageTimeout = 60 * time.Second

/*
Taxonomy traverses navigation structures (nav bars, sidebars,
breadcrumbs) to enumerate collection/section pages that a pure
sitemap-or-pattern approach would miss, using a real Page so
JS-rendered navigation menus resolve the same way a browser sees them.
*/

var defaultNavigationSelectors = []string{
	"nav a", ".menu a", ".sidebar a", ".navigation a", ".nav-menu a",
	"[role=\"navigation\"] a", ".breadcrumb a",
}

type TaxonomySite struct {
	BaseURL string
	Enabled bool
}

type TaxonomyConfig struct {
	EnabledFlag     bool
	Sites           []TaxonomySite
	MaxPagesPerSite int
	Selectors       []string
	IncludePatterns []string
	ExcludePatterns []string
}

type PageOpener interface {
	Open(ctx context.Context) (page.Page, error)
}

type TaxonomyStrategy struct {
	cfg       TaxonomyConfig
	opener    PageOpener
	selectors []string
	include   []*regexp.Regexp
	exclude   []*regexp.Regexp
}

func NewTaxonomyStrategy(cfg TaxonomyConfig, opener PageOpener) *TaxonomyStrategy {
	selectors := cfg.Selectors
	if len(selectors) == 0 {
		selectors = defaultNavigationSelectors
	}
	t := &TaxonomyStrategy{cfg: cfg, opener: opener, selectors: selectors}
	for _, p := range cfg.IncludePatterns {
		if re, err := regexp.Compile(p); err == nil {
			t.include = append(t.include, re)
		}
	}
	for _, p := range cfg.ExcludePatterns {
		if re, err := regexp.Compile(p); err == nil {
			t.exclude = append(t.exclude, re)
		}
	}
	return t
}

func (t *TaxonomyStrategy) Name() string  { return "taxonomy" }
func (t *TaxonomyStrategy) Enabled() bool { return t.cfg.EnabledFlag && t.opener != nil && len(t.cfg.Sites) > 0 }
func (t *TaxonomyStrategy) Initialize(ctx context.Context) error { return nil }
func (t *TaxonomyStrategy) Cleanup(ctx context.Context) error    { return nil }

func (t *TaxonomyStrategy) Discover(ctx context.Context) (Result, error) {
	maxPerSite := t.cfg.MaxPagesPerSite
	if maxPerSite <= 0 {
		maxPerSite = 100
	}

	seen := make(map[string]struct{})
	for _, site := range t.cfg.Sites {
		if !site.Enabled || site.BaseURL == "" {
			continue
		}
		siteSeeds, err := t.crawlSiteNavigation(ctx, strings.TrimRight(site.BaseURL, "/"))
		if err != nil {
			continue
		}
		for _, u := range siteSeeds {
			seen[u] = struct{}{}
			if len(seen) >= maxPerSite*len(t.cfg.Sites) {
				break
			}
		}
	}

	var seeds []Seed
	for u := range seen {
		if len(t.exclude) > 0 && anyMatch(t.exclude, u) {
			continue
		}
		if len(t.include) > 0 && !anyMatch(t.include, u) {
			continue
		}
		seeds = append(seeds, Seed{URL: u, Method: "taxonomy"})
	}

	return Result{Seeds: seeds, Metadata: map[string]any{"total_seeds": len(seeds)}}, nil
}

func (t *TaxonomyStrategy) crawlSiteNavigation(ctx context.Context, baseURL string) ([]string, error) {
	p, err := t.opener.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Close()

	if _, err := p.Goto(ctx, baseURL, taxonomyPageTimeout); err != nil {
		return nil, err
	}

	seeds := make(map[string]struct{})
	for u := range t.extractLinks(p, baseURL) {
		seeds[u] = struct{}{}
	}

	navPages := make([]string, 0, 20)
	for u := range seeds {
		navPages = append(navPages, u)
		if len(navPages) >= 20 {
			break
		}
	}

	for _, navURL := range navPages {
		if _, err := p.Goto(ctx, navURL, taxonomyPageTimeout); err != nil {
			continue
		}
		for u := range t.extractLinks(p, baseURL) {
			seeds[u] = struct{}{}
		}
	}

	out := make([]string, 0, len(seeds))
	for u := range seeds {
		out = append(out, u)
	}
	return out, nil
}

func (t *TaxonomyStrategy) extractLinks(p page.Page, baseURL string) map[string]struct{} {
	links := make(map[string]struct{})
	base, err := url.Parse(baseURL)
	if err != nil {
		return links
	}

	for _, selector := range t.selectors {
		elements, err := p.QuerySelectorAll(selector)
		if err != nil {
			continue
		}
		for _, el := range elements {
			href, ok := el.GetAttribute("href")
			if !ok || href == "" {
				continue
			}
			ref, err := url.Parse(strings.TrimSpace(href))
			if err != nil {
				continue
			}
			full := base.ResolveReference(ref).String()
			links[full] = struct{}{}
		}
	}
	return links
}
