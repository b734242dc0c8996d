package fetcher

import (
	"context"
	"sort"
	"sync"

	"github.com/helixir/catalog-fetch-service/internal/domain"
)

// FetcherResult holds the outcome of one fetcher in a SearchAll call.
type FetcherResult struct {
	// Fetcher is the name of the fetcher that produced the result.
	Fetcher string

	// Page is nil when Error is set.
	Page *domain.Page[*domain.Entry]

	// Error is a *domain.FetchError or a context error.
	Error error
}

// Registry holds named fetchers and runs searches across them concurrently.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	fetchers map[string]SearchFetcher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		fetchers: make(map[string]SearchFetcher),
	}
}

// Register adds f under f.Name(), replacing any fetcher with the same name.
func (r *Registry) Register(f SearchFetcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchers[f.Name()] = f
}

// Get returns the fetcher registered under name.
func (r *Registry) Get(name string) (SearchFetcher, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.fetchers[name]
	if !ok {
		return nil, domain.NewNotFoundError("fetcher", name)
	}
	return f, nil
}

// All returns a snapshot of the registered fetchers sorted by name.
func (r *Registry) All() []SearchFetcher {
	r.mu.RLock()
	fetchers := make([]SearchFetcher, 0, len(r.fetchers))
	for _, f := range r.fetchers {
		fetchers = append(fetchers, f)
	}
	r.mu.RUnlock()

	sort.Slice(fetchers, func(i, j int) bool {
		return fetchers[i].Name() < fetchers[j].Name()
	})
	return fetchers
}

// Names returns the registered fetcher names in sorted order.
func (r *Registry) Names() []string {
	all := r.All()
	names := make([]string, len(all))
	for i, f := range all {
		names[i] = f.Name()
	}
	return names
}

// SearchAll fetches the same page from every registered fetcher concurrently.
// Results are sorted by fetcher name and include failures; the caller decides
// how to treat them.
func (r *Registry) SearchAll(ctx context.Context, query string, page int) []FetcherResult {
	fetchers := r.All()
	if len(fetchers) == 0 {
		return nil
	}

	resultChan := make(chan FetcherResult, len(fetchers))
	var wg sync.WaitGroup

	for _, f := range fetchers {
		wg.Add(1)
		go func(f SearchFetcher) {
			defer wg.Done()

			p, err := f.FetchPage(ctx, query, page)
			resultChan <- FetcherResult{
				Fetcher: f.Name(),
				Page:    p,
				Error:   err,
			}
		}(f)
	}

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]FetcherResult, 0, len(fetchers))
	for result := range resultChan {
		results = append(results, result)
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Fetcher < results[j].Fetcher
	})
	return results
}
