package strategy

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/rohmanhakim/pdf-discovery-engine/internal/storage"
)

/*
PatternGenerator looks at every previously discovered PDF URL, groups
them by "skeleton" (the URL with its last numeric token replaced by a
placeholder), and for skeletons backed by enough samples interpolates
the missing integers in the observed [min,max] range, preserving the
original zero-padding width.
*/

var lastNumberPattern = regexp.MustCompile(`(\d+)(\D*)$`)

type PatternGeneratorConfig struct {
	EnabledFlag bool
	MinSamples  int
	MaxURLs     int
}

type PatternGeneratorStrategy struct {
	cfg   PatternGeneratorConfig
	store *storage.Store
}

func NewPatternGeneratorStrategy(cfg PatternGeneratorConfig, store *storage.Store) *PatternGeneratorStrategy {
	return &PatternGeneratorStrategy{cfg: cfg, store: store}
}

func (p *PatternGeneratorStrategy) Name() string  { return "pattern_generator" }
func (p *PatternGeneratorStrategy) Enabled() bool { return p.cfg.EnabledFlag }
func (p *PatternGeneratorStrategy) Initialize(ctx context.Context) error { return nil }
func (p *PatternGeneratorStrategy) Cleanup(ctx context.Context) error    { return nil }

type skeletonGroup struct {
	prefix   string
	suffix   string
	width    int
	min      int
	max      int
	count    int
	observed map[int]struct{}
}

func (p *PatternGeneratorStrategy) Discover(ctx context.Context) (Result, error) {
	minSamples := p.cfg.MinSamples
	if minSamples <= 0 {
		minSamples = 100
	}
	maxURLs := p.cfg.MaxURLs
	if maxURLs <= 0 {
		maxURLs = 5000
	}

	urls, err := p.store.ListOriginalURLs()
	if err != nil {
		return Result{}, fmt.Errorf("listing known URLs: %w", err)
	}
	if len(urls) < minSamples {
		return Result{Metadata: map[string]any{"skipped_reason": "insufficient_samples", "sample_count": len(urls)}}, nil
	}

	groups := make(map[string]*skeletonGroup)
	for _, u := range urls {
		loc := lastNumberPattern.FindStringSubmatchIndex(u)
		if loc == nil {
			continue
		}
		numStr := u[loc[2]:loc[3]]
		suffix := u[loc[4]:loc[5]]
		prefix := u[:loc[2]]
		n, err := strconv.Atoi(numStr)
		if err != nil {
			continue
		}

		key := fmt.Sprintf("%s\x00%d\x00%s", prefix, len(numStr), suffix)
		g, ok := groups[key]
		if !ok {
			g = &skeletonGroup{prefix: prefix, suffix: suffix, width: len(numStr), min: n, max: n, observed: make(map[int]struct{})}
			groups[key] = g
		}
		if n < g.min {
			g.min = n
		}
		if n > g.max {
			g.max = n
		}
		g.count++
		g.observed[n] = struct{}{}
	}

	var seeds []Seed
	for _, g := range groups {
		if g.count < 2 {
			continue
		}
		for n := g.min; n <= g.max; n++ {
			if _, exists := g.observed[n]; exists {
				continue
			}
			numStr := fmt.Sprintf("%0*d", g.width, n)
			seeds = append(seeds, Seed{URL: g.prefix + numStr + g.suffix, Method: "pattern_generator"})
			if len(seeds) >= maxURLs {
				return Result{Seeds: seeds, Metadata: map[string]any{"skeleton_groups": len(groups)}}, nil
			}
		}
	}

	return Result{Seeds: seeds, Metadata: map[string]any{"skeleton_groups": len(groups)}}, nil
}
