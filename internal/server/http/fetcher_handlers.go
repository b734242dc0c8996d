package httpserver

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/catalog-fetch-service/internal/domain"
	"github.com/helixir/catalog-fetch-service/internal/events"
	"github.com/helixir/catalog-fetch-service/internal/fetcher"
	"github.com/helixir/catalog-fetch-service/internal/observability"
)

type helpPager interface {
	HelpPage() string
}

func (s *Server) listFetchers(w http.ResponseWriter, _ *http.Request) {
	all := s.deps.Fetchers.All()
	out := make([]fetcherResponse, 0, len(all))
	for _, f := range all {
		resp := fetcherResponse{Name: f.Name()}
		if hp, ok := f.(helpPager); ok {
			resp.HelpPage = hp.HelpPage()
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, map[string]any{"fetchers": out})
}

// searchFetcher runs one paged search against the named fetcher.
func (s *Server) searchFetcher(w http.ResponseWriter, r *http.Request) {
	f, query, page, ok := s.fetcherRequest(w, r)
	if !ok {
		return
	}

	log := observability.WithFetchContext(observability.LoggerFromContext(r.Context(), s.logger), f.Name(), query, page)

	sent, result, err := fetcher.Search(r.Context(), f, query, page)
	if err != nil {
		log.Warn().Err(err).Msg("search failed")
		writeDomainError(w, err)
		return
	}

	err = events.PublishPayload(r.Context(), s.deps.Publisher, domain.EventTypeEntriesFetched, domain.EntriesFetchedPayload{
		Fetcher:    f.Name(),
		Query:      sent,
		PageNumber: result.PageNumber(),
		EntryCount: result.Size(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to publish fetch event")
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Fetcher:    f.Name(),
		Query:      result.Query(),
		PageNumber: result.PageNumber(),
		Size:       result.Size(),
		Entries:    toEntryResponses(result.Content()),
	})
}

// fetcherURL returns the request URL a search would use, without fetching.
func (s *Server) fetcherURL(w http.ResponseWriter, r *http.Request) {
	f, query, page, ok := s.fetcherRequest(w, r)
	if !ok {
		return
	}

	if t, isTransformer := f.(fetcher.QueryTransformer); isTransformer {
		transformed, err := t.TransformQuery(query)
		if err != nil {
			writeDomainError(w, domain.NewMalformedURLError(err))
			return
		}
		query = transformed
	}

	u, err := f.URLForQueryPage(query, page)
	if err != nil {
		var fe *domain.FetchError
		if !errors.As(err, &fe) {
			err = domain.NewMalformedURLError(err)
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, urlResponse{
		Fetcher:    f.Name(),
		Query:      query,
		PageNumber: page,
		URL:        u.String(),
	})
}

// fetcherRequest resolves the fetcher, query and page of a request. It writes
// the error response and returns false when any of them is invalid.
func (s *Server) fetcherRequest(w http.ResponseWriter, r *http.Request) (fetcher.SearchFetcher, string, int, bool) {
	f, err := s.deps.Fetchers.Get(chi.URLParam(r, "name"))
	if err != nil {
		writeDomainError(w, err)
		return nil, "", 0, false
	}

	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return nil, "", 0, false
	}

	page, err := parsePage(r)
	if err != nil {
		writeDomainError(w, err)
		return nil, "", 0, false
	}
	return f, query, page, true
}
