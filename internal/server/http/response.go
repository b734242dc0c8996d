package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/helixir/catalog-fetch-service/internal/domain"
	"github.com/helixir/catalog-fetch-service/internal/importers"
	"github.com/helixir/catalog-fetch-service/internal/unlinked"
)

// maxRequestBodySize limits JSON request bodies to 1 MB.
const maxRequestBodySize = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

type entryResponse struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	CitationKey string            `json:"citation_key,omitempty"`
	Fields      map[string]string `json:"fields"`
}

type fetcherResponse struct {
	Name     string `json:"name"`
	HelpPage string `json:"help_page,omitempty"`
}

type searchResponse struct {
	Fetcher    string          `json:"fetcher"`
	Query      string          `json:"query"`
	PageNumber int             `json:"page_number"`
	Size       int             `json:"size"`
	Entries    []entryResponse `json:"entries"`
}

type urlResponse struct {
	Fetcher    string `json:"fetcher"`
	Query      string `json:"query"`
	PageNumber int    `json:"page_number"`
	URL        string `json:"url"`
}

type importerResponse struct {
	Name       string   `json:"name"`
	Extensions []string `json:"extensions"`
	Custom     bool     `json:"custom"`
	PluginID   string   `json:"plugin_id,omitempty"`
	BasePath   string   `json:"base_path,omitempty"`
}

type scanRequest struct {
	Directory string   `json:"directory" validate:"required"`
	Patterns  []string `json:"patterns"`
	Linked    []string `json:"linked"`
}

type scanResponse struct {
	Root  *unlinked.FileNode `json:"root"`
	Files []string           `json:"files"`
}

type filesRequest struct {
	Files []string `json:"files" validate:"required,min=1,dive,required"`
}

type importResponse struct {
	Entries []entryResponse         `json:"entries"`
	Results []unlinked.ImportResult `json:"results"`
}

func toEntryResponse(e *domain.Entry) entryResponse {
	return entryResponse{
		ID:          e.ID.String(),
		Type:        e.Type,
		CitationKey: e.CitationKey,
		Fields:      e.Fields(),
	}
}

func toEntryResponses(entries []*domain.Entry) []entryResponse {
	out := make([]entryResponse, len(entries))
	for i, e := range entries {
		out[i] = toEntryResponse(e)
	}
	return out
}

// decodeJSON reads a size-limited JSON body into v and validates it.
func (s *Server) decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize)).Decode(v); err != nil {
		return domain.NewValidationError("body", "invalid request body: "+err.Error())
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return domain.NewValidationError(fe.Field(), fmt.Sprintf("failed on %q", fe.Tag()))
		}
		return domain.NewValidationError("body", err.Error())
	}
	return nil
}

// parsePage reads the zero-based page query parameter. Missing means 0.
func parsePage(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("page")
	if raw == "" {
		return 0, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 0 {
		return 0, domain.NewValidationError("page", "must be a non-negative integer")
	}
	return page, nil
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	var fe *domain.FetchError
	if errors.As(err, &fe) {
		status := http.StatusBadGateway
		switch {
		case fe.Kind == domain.FetchErrorMalformedURL:
			status = http.StatusBadRequest
		case errors.Is(fe, domain.ErrRateLimited):
			status = http.StatusTooManyRequests
		}
		writeJSON(w, status, errorResponse{Error: fe.Error(), Kind: string(fe.Kind)})
		return
	}

	var pe *importers.PluginError
	if errors.As(err, &pe) {
		writeError(w, http.StatusUnprocessableEntity, pe.Error())
		return
	}

	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, ve.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, unlinked.ErrInvalidDirectory):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
