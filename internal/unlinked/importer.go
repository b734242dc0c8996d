package unlinked

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/catalog-fetch-service/internal/domain"
	"github.com/helixir/catalog-fetch-service/internal/events"
	"github.com/helixir/catalog-fetch-service/internal/importers"
	"github.com/helixir/catalog-fetch-service/internal/observability"
)

// Import result statuses.
const (
	StatusImported = "imported"
	StatusWarning  = "warning"
)

// EventSource marks events published by the unlinked files importer.
const EventSource = "unlinked_files"

// Resolver picks the importer for a file.
type Resolver interface {
	ForFile(path string) (importers.Importer, error)
}

// ImportResult describes what happened to one file.
type ImportResult struct {
	Path    string `json:"path"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Entries int    `json:"entries"`
}

// ImportReport is the outcome of importing a set of files.
type ImportReport struct {
	Entries []*domain.Entry
	Results []ImportResult
}

// Importer turns files into entries.
type Importer struct {
	opts      options
	resolver  Resolver
	publisher events.Publisher
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// NewImporter creates an importer. publisher and metrics may be nil. Without
// WithRoots any readable file may be imported.
func NewImporter(resolver Resolver, publisher events.Publisher, metrics *observability.Metrics, logger zerolog.Logger, opts ...Option) *Importer {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Importer{
		opts:      newOptions(opts),
		resolver:  resolver,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger.With().Str("component", "unlinked_importer").Logger(),
	}
}

// Import processes files in order. Files in a recognized format are parsed
// and every parsed entry is linked to its file. Files no importer recognizes
// get an empty misc entry linked to them. Failures become warning results and
// do not stop the run. On cancellation the report so far is returned with
// the context error. If any file lies outside the allowed roots nothing is
// imported and the error matches domain.ErrInvalidInput.
func (im *Importer) Import(ctx context.Context, files []string) (*ImportReport, error) {
	for _, path := range files {
		if _, err := im.opts.roots.Resolve(path); err != nil {
			return nil, err
		}
	}

	report := &ImportReport{Results: make([]ImportResult, 0, len(files))}
	var imported []string

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		entries, result := im.importFile(path)
		report.Results = append(report.Results, result)
		report.Entries = append(report.Entries, entries...)
		if len(entries) > 0 {
			imported = append(imported, path)
		}
		if im.metrics != nil {
			im.metrics.RecordFileImported(result.Status, result.Entries)
		}
	}

	if len(report.Entries) > 0 {
		err := events.PublishPayload(ctx, im.publisher, domain.EventTypeEntriesImported, domain.EntriesImportedPayload{
			Source:     EventSource,
			EntryCount: len(report.Entries),
			Files:      imported,
		})
		if err != nil {
			im.logger.Warn().Err(err).Msg("failed to publish import event")
		}
	}

	im.logger.Info().
		Int("files", len(files)).
		Int("entries", len(report.Entries)).
		Msg("import completed")
	return report, nil
}

func (im *Importer) importFile(path string) ([]*domain.Entry, ImportResult) {
	result := ImportResult{Path: path}

	imp, err := im.resolver.ForFile(path)
	if errors.Is(err, importers.ErrUnrecognizedFormat) {
		e := emptyEntryFor(path)
		result.Status = StatusImported
		result.Message = "created empty entry for file"
		result.Entries = 1
		return []*domain.Entry{e}, result
	}
	if err != nil {
		return nil, warning(result, err)
	}

	entries, err := parseFile(imp, path)
	if err != nil {
		im.logger.Debug().Err(err).Str("path", path).Str("importer", imp.Name()).Msg("parse failed")
		return nil, warning(result, err)
	}
	if len(entries) == 0 {
		return nil, warning(result, fmt.Errorf("no entries found by %s importer", imp.Name()))
	}

	for _, e := range entries {
		if _, ok := e.Field(domain.FieldFile); !ok {
			e.SetField(domain.FieldFile, path)
		}
	}
	result.Status = StatusImported
	result.Message = fmt.Sprintf("imported %d entries using %s", len(entries), imp.Name())
	result.Entries = len(entries)
	return entries, result
}

func parseFile(imp importers.Importer, path string) ([]*domain.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return imp.Parse(f)
}

func emptyEntryFor(path string) *domain.Entry {
	e := domain.NewEntry(domain.EntryTypeMisc)
	base := filepath.Base(path)
	e.SetField(domain.FieldTitle, strings.TrimSuffix(base, filepath.Ext(base)))
	e.SetField(domain.FieldFile, path)
	return e
}

func warning(r ImportResult, err error) ImportResult {
	r.Status = StatusWarning
	r.Message = err.Error()
	return r
}
