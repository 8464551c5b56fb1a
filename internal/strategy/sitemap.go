package strategy

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"
)

/*
Sitemap recursively parses configured sitemap XML documents, following
<sitemapindex> entries to nested sitemaps up to MaxDepth, filtering by
include/exclude regex, capped at MaxURLs.
*/

type sitemapIndex struct {
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

type urlSet struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type SitemapConfig struct {
	EnabledFlag     bool
	URLs            []string
	MaxDepth        int
	MaxURLs         int
	IncludePatterns []string
	ExcludePatterns []string
	TimeoutSeconds  int
}

type SitemapStrategy struct {
	cfg        SitemapConfig
	client     *http.Client
	include    []*regexp.Regexp
	exclude    []*regexp.Regexp
}

func NewSitemapStrategy(cfg SitemapConfig) *SitemapStrategy {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s := &SitemapStrategy{cfg: cfg, client: &http.Client{Timeout: timeout}}
	for _, p := range cfg.IncludePatterns {
		if re, err := regexp.Compile(p); err == nil {
			s.include = append(s.include, re)
		}
	}
	for _, p := range cfg.ExcludePatterns {
		if re, err := regexp.Compile(p); err == nil {
			s.exclude = append(s.exclude, re)
		}
	}
	return s
}

func (s *SitemapStrategy) Name() string    { return "sitemap" }
func (s *SitemapStrategy) Enabled() bool   { return s.cfg.EnabledFlag && len(s.cfg.URLs) > 0 }
func (s *SitemapStrategy) Initialize(ctx context.Context) error { return nil }
func (s *SitemapStrategy) Cleanup(ctx context.Context) error    { return nil }

func (s *SitemapStrategy) Discover(ctx context.Context) (Result, error) {
	maxDepth := s.cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 3
	}
	maxURLs := s.cfg.MaxURLs
	if maxURLs <= 0 {
		maxURLs = 5000
	}

	seen := make(map[string]struct{})
	var discovered []string
	for _, sitemapURL := range s.cfg.URLs {
		entries, _ := s.parseSitemap(ctx, sitemapURL, 0, maxDepth)
		for _, e := range entries {
			if _, dup := seen[e]; dup {
				continue
			}
			seen[e] = struct{}{}
			discovered = append(discovered, e)
		}
		if len(discovered) >= maxURLs {
			break
		}
	}

	filtered := s.filter(discovered)
	if len(filtered) > maxURLs {
		filtered = filtered[:maxURLs]
	}

	seeds := make([]Seed, 0, len(filtered))
	for _, u := range filtered {
		seeds = append(seeds, Seed{URL: u, Method: "sitemap"})
	}
	return Result{Seeds: seeds, Metadata: map[string]any{"total_urls": len(discovered), "filtered_urls": len(filtered)}}, nil
}

func (s *SitemapStrategy) parseSitemap(ctx context.Context, sitemapURL string, depth, maxDepth int) ([]string, error) {
	if depth > maxDepth {
		return nil, nil
	}
	body, err := s.fetch(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}

	var index sitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		var out []string
		for _, sm := range index.Sitemaps {
			nested, err := s.parseSitemap(ctx, sm.Loc, depth+1, maxDepth)
			if err != nil {
				continue
			}
			out = append(out, nested...)
		}
		return out, nil
	}

	var set urlSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, fmt.Errorf("parsing sitemap %s: %w", sitemapURL, err)
	}
	out := make([]string, 0, len(set.URLs))
	for _, u := range set.URLs {
		out = append(out, u.Loc)
	}
	return out, nil
}

func (s *SitemapStrategy) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d fetching sitemap %s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}

func (s *SitemapStrategy) filter(urls []string) []string {
	var out []string
	for _, u := range urls {
		if len(s.exclude) > 0 && anyMatch(s.exclude, u) {
			continue
		}
		if len(s.include) > 0 && !anyMatch(s.include, u) {
			continue
		}
		out = append(out, u)
	}
	return out
}

func anyMatch(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
