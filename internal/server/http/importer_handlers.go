package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/helixir/catalog-fetch-service/internal/domain"
	"github.com/helixir/catalog-fetch-service/internal/importers"
	"github.com/helixir/catalog-fetch-service/internal/observability"
)

// listImporters returns the built-in importers followed by the custom ones.
func (s *Server) listImporters(w http.ResponseWriter, _ *http.Request) {
	all := s.deps.Importers.All()
	out := make([]importerResponse, 0, len(all))
	for _, imp := range all {
		resp := importerResponse{
			Name:       imp.Name(),
			Extensions: imp.Extensions(),
			Custom:     importers.IsCustom(imp),
		}
		if resp.Custom {
			if d, err := s.deps.ImporterList.Get(imp.Name()); err == nil {
				resp.PluginID = d.PluginID
				resp.BasePath = d.BasePath
			}
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, map[string]any{"importers": out})
}

// addImporter loads the described plugin, then adds it to the stored list.
// A descriptor with an existing name replaces the old one.
func (s *Server) addImporter(w http.ResponseWriter, r *http.Request) {
	var d domain.ImporterDescriptor
	if err := s.decodeJSON(r, &d); err != nil {
		writeDomainError(w, err)
		return
	}

	s.importersMu.Lock()
	defer s.importersMu.Unlock()

	log := observability.WithImporterContext(observability.LoggerFromContext(r.Context(), s.logger), d.Name, d.PluginID)
	previous, prevErr := s.deps.ImporterList.Get(d.Name)
	hadPrevious := prevErr == nil

	if err := s.deps.Importers.Register(d); err != nil {
		log.Warn().Err(err).Msg("failed to load custom importer")
		writeDomainError(w, err)
		return
	}
	if _, err := s.deps.ImporterList.Add(d); err != nil {
		s.restoreImporter(previous, hadPrevious, d.Name)
		writeDomainError(w, err)
		return
	}

	if err := importers.Save(r.Context(), s.deps.Preferences, s.deps.ImporterList); err != nil {
		log.Error().Err(err).Msg("failed to save importer list")
		if hadPrevious {
			_, _ = s.deps.ImporterList.Add(previous)
		} else {
			_ = s.deps.ImporterList.Remove(d.Name)
		}
		s.restoreImporter(previous, hadPrevious, d.Name)
		writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if hadPrevious {
		status = http.StatusOK
	}
	log.Info().Bool("replaced", hadPrevious).Msg("custom importer added")
	writeJSON(w, status, importerResponse{
		Name:       d.Name,
		Extensions: s.extensionsOf(d.Name),
		Custom:     true,
		PluginID:   d.PluginID,
		BasePath:   d.BasePath,
	})
}

// removeImporter drops a custom importer from the stored list and the registry.
func (s *Server) removeImporter(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s.importersMu.Lock()
	defer s.importersMu.Unlock()

	d, err := s.deps.ImporterList.Get(name)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if err := s.deps.ImporterList.Remove(name); err != nil {
		writeDomainError(w, err)
		return
	}

	if err := importers.Save(r.Context(), s.deps.Preferences, s.deps.ImporterList); err != nil {
		_, _ = s.deps.ImporterList.Add(d)
		s.logger.Error().Err(err).Str("importer", name).Msg("failed to save importer list")
		writeDomainError(w, err)
		return
	}

	s.deps.Importers.Unregister(name)
	s.logger.Info().Str("importer", name).Msg("custom importer removed")
	w.WriteHeader(http.StatusNoContent)
}

// restoreImporter puts the registry back the way it was before a failed add.
func (s *Server) restoreImporter(previous domain.ImporterDescriptor, hadPrevious bool, name string) {
	if !hadPrevious {
		s.deps.Importers.Unregister(name)
		return
	}
	if err := s.deps.Importers.Register(previous); err != nil {
		s.deps.Importers.Unregister(name)
		s.logger.Error().Err(err).Str("importer", name).Msg("failed to restore previous importer")
	}
}

func (s *Server) extensionsOf(name string) []string {
	imp, err := s.deps.Importers.Get(name)
	if err != nil {
		return nil
	}
	return imp.Extensions()
}
