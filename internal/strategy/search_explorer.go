package strategy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

/*
SearchExplorer queries each configured site's search API directly,
partitioned into quarterly date ranges across the last 20 years, to
surface results beyond what UI pagination would ever expose. Response
bodies are scanned for PDF URLs with the same regex the link extractor
uses as its fallback method.
*/

var searchResultPDFPattern = regexp.MustCompile(`https?://[^\s"'<>]+\.pdf`)

type SearchSite struct {
	BaseURL       string
	SearchURL     string
	Jurisdictions []string
	Enabled       bool
}

type SearchExplorerConfig struct {
	EnabledFlag     bool
	Sites           []SearchSite
	MaxResults      int
	MaxPerRequest   int
	TimeoutSeconds  int
	IncludePatterns []string
	ExcludePatterns []string
}

type SearchExplorerStrategy struct {
	cfg     SearchExplorerConfig
	client  *http.Client
	include []*regexp.Regexp
	exclude []*regexp.Regexp
	nowYear int
}

func NewSearchExplorerStrategy(cfg SearchExplorerConfig, nowYear int) *SearchExplorerStrategy {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	s := &SearchExplorerStrategy{cfg: cfg, client: &http.Client{Timeout: timeout}, nowYear: nowYear}
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

func (s *SearchExplorerStrategy) Name() string  { return "search_explorer" }
func (s *SearchExplorerStrategy) Enabled() bool { return s.cfg.EnabledFlag && len(s.cfg.Sites) > 0 }
func (s *SearchExplorerStrategy) Initialize(ctx context.Context) error { return nil }
func (s *SearchExplorerStrategy) Cleanup(ctx context.Context) error    { return nil }

type quarter struct {
	start time.Time
	end   time.Time
}

func quarterlyRanges(startYear, endYear int) []quarter {
	var out []quarter
	for year := startYear; year <= endYear; year++ {
		for _, month := range []time.Month{time.January, time.April, time.July, time.October} {
			start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
			out = append(out, quarter{start: start, end: start.AddDate(0, 0, 89)})
		}
	}
	return out
}

func (s *SearchExplorerStrategy) Discover(ctx context.Context) (Result, error) {
	maxResults := s.cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 50000
	}
	maxPerRequest := s.cfg.MaxPerRequest
	if maxPerRequest <= 0 {
		maxPerRequest = 1000
	}

	quarters := quarterlyRanges(s.nowYear-20, s.nowYear)

	var seeds []Seed
	for _, site := range s.cfg.Sites {
		if !site.Enabled || site.SearchURL == "" || len(site.Jurisdictions) == 0 {
			continue
		}
		for _, jurisdiction := range site.Jurisdictions {
			for _, q := range quarters {
				select {
				case <-ctx.Done():
					return finishSearchResult(seeds, len(quarters)*len(site.Jurisdictions)), ctx.Err()
				default:
				}
				body, err := s.postSearch(ctx, site.SearchURL, jurisdiction, q, maxPerRequest)
				if err != nil {
					continue
				}
				for _, pdfURL := range s.extractPDFs(body, site.BaseURL) {
					seeds = append(seeds, Seed{URL: pdfURL, Method: "search_explorer"})
				}
				if len(seeds) >= maxResults {
					return finishSearchResult(seeds[:maxResults], maxResults), nil
				}
			}
		}
	}
	return finishSearchResult(seeds, len(seeds)), nil
}

func finishSearchResult(seeds []Seed, total int) Result {
	return Result{Seeds: seeds, Metadata: map[string]any{"total_seeds": total}}
}

func (s *SearchExplorerStrategy) postSearch(ctx context.Context, apiURL, jurisdiction string, q quarter, maxPerRequest int) (string, error) {
	form := url.Values{}
	form.Set("jurisdiction", jurisdiction)
	form.Set("startDate", q.start.Format("02/01/2006"))
	form.Set("endDate", q.end.Format("02/01/2006"))
	form.Set("max", fmt.Sprintf("%d", maxPerRequest))
	form.Set("page", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search API returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (s *SearchExplorerStrategy) extractPDFs(html, baseURL string) []string {
	candidates := searchResultPDFPattern.FindAllString(html, -1)

	relHrefPattern := regexp.MustCompile(`href="([^"]+\.pdf)"`)
	for _, m := range relHrefPattern.FindAllStringSubmatch(html, -1) {
		if resolved, ok := resolveRelative(baseURL, m[1]); ok {
			candidates = append(candidates, resolved)
		}
	}

	seen := make(map[string]struct{})
	var unique []string
	for _, c := range candidates {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		unique = append(unique, c)
	}

	var filtered []string
	for _, u := range unique {
		if len(s.exclude) > 0 && anyMatch(s.exclude, u) {
			continue
		}
		if len(s.include) > 0 && !anyMatch(s.include, u) {
			continue
		}
		filtered = append(filtered, u)
	}
	return filtered
}

func resolveRelative(base, ref string) (string, bool) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	return baseURL.ResolveReference(refURL).String(), true
}
