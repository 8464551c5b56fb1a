package strategy

import "context"

/*
Responsibilities
- Define the capability every seed-generation strategy implements
- Nothing more: the orchestrator owns the list of strategies and the
  policy for running them (sequential, union by first-seen, dedup)
*/

// Seed is one discovered seed URL plus its provenance.
type Seed struct {
	URL    string
	Method string // name of the producing strategy; the scheduler maps it onto a storage.ExtractionMethod
}

// Result is what one strategy run contributes.
type Result struct {
	Seeds    []Seed
	Metadata map[string]any
}

// Strategy is the capability set every seed-generation strategy
// implements: {enabled, initialize, discover, cleanup}.
type Strategy interface {
	Name() string
	Enabled() bool
	Initialize(ctx context.Context) error
	Discover(ctx context.Context) (Result, error)
	Cleanup(ctx context.Context) error
}

// RunAll executes every enabled strategy sequentially (not in
// parallel: each strategy already fans out its own requests, and
// running strategies concurrently would multiply the load against the
// same target site beyond what the rate limiter models), unioning their
// seeds by first-seen URL.
func RunAll(ctx context.Context, strategies []Strategy) ([]Seed, map[string]Result) {
	seen := make(map[string]struct{})
	var union []Seed
	perStrategy := make(map[string]Result, len(strategies))

	for _, s := range strategies {
		if !s.Enabled() {
			continue
		}
		if err := s.Initialize(ctx); err != nil {
			continue
		}
		result, err := s.Discover(ctx)
		if err == nil {
			for _, seed := range result.Seeds {
				if _, dup := seen[seed.URL]; dup {
					continue
				}
				seen[seed.URL] = struct{}{}
				union = append(union, seed)
			}
		}
		perStrategy[s.Name()] = result
		_ = s.Cleanup(ctx)
	}
	return union, perStrategy
}
