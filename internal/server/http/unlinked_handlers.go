package httpserver

import (
	"net/http"

	"github.com/helixir/catalog-fetch-service/internal/observability"
	"github.com/helixir/catalog-fetch-service/internal/unlinked"
)

// scanUnlinked lists files under a directory that match the patterns and are
// not in the linked set.
func (s *Server) scanUnlinked(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	patterns := req.Patterns
	if len(patterns) == 0 {
		patterns = s.deps.DefaultPatterns
	}
	filter, err := unlinked.NewFilter(patterns...)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	root, err := s.deps.Finder.Scan(r.Context(), req.Directory, filter, unlinked.NewLinkedSet(req.Linked...))
	if err != nil {
		log := observability.LoggerFromContext(r.Context(), s.logger)
		log.Debug().
			Err(err).
			Str("directory", req.Directory).
			Msg("scan failed")
		writeDomainError(w, err)
		return
	}

	files := root.Files()
	if files == nil {
		files = []string{}
	}
	writeJSON(w, http.StatusOK, scanResponse{Root: root, Files: files})
}

// importUnlinked turns the given files into entries.
func (s *Server) importUnlinked(w http.ResponseWriter, r *http.Request) {
	var req filesRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	report, err := s.deps.FileImporter.Import(r.Context(), req.Files)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, importResponse{
		Entries: toEntryResponses(report.Entries),
		Results: report.Results,
	})
}

// exportUnlinked returns the given files as a plain text list.
func (s *Server) exportUnlinked(w http.ResponseWriter, r *http.Request) {
	var req filesRequest
	if err := s.decodeJSON(r, &req); err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="unlinked-files.txt"`)
	w.WriteHeader(http.StatusOK)
	if err := unlinked.Export(w, req.Files); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write export")
	}
}
