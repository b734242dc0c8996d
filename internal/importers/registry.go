package importers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/helixir/catalog-fetch-service/internal/domain"
)

// SniffSize is how much of a file is shown to IsRecognizedFormat.
const SniffSize = 64 << 10

// ErrUnrecognizedFormat is returned by ForFile when no importer accepts a file.
var ErrUnrecognizedFormat = errors.New("unrecognized file format")

// Registry holds the built-in importers and the custom importers loaded from
// the user's list. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	builtins []Importer
	custom   map[string]Importer
	loader   Loader
	logger   zerolog.Logger
}

// NewRegistry creates a registry with the given built-ins. loader may be nil
// when custom importers are not supported.
func NewRegistry(loader Loader, logger zerolog.Logger, builtins ...Importer) *Registry {
	return &Registry{
		builtins: builtins,
		custom:   make(map[string]Importer),
		loader:   loader,
		logger:   logger.With().Str("component", "importer_registry").Logger(),
	}
}

// Register loads the importer described by d and makes it available,
// replacing a custom importer of the same name. Nothing changes on failure.
func (r *Registry) Register(d domain.ImporterDescriptor) error {
	if r.loader == nil {
		return fmt.Errorf("custom importers are disabled: %w", domain.ErrInvalidInput)
	}
	imp, err := r.loader.Load(d)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.custom[d.Name] = imp
	r.mu.Unlock()

	r.logger.Info().
		Str("importer", d.Name).
		Str("plugin_id", d.PluginID).
		Msg("custom importer registered")
	return nil
}

// Unregister removes a custom importer. Unknown names are ignored.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.custom, name)
	r.mu.Unlock()
}

// LoadList registers every descriptor in l. Descriptors that fail to load
// are logged and skipped; their errors are returned joined.
func (r *Registry) LoadList(l *List) error {
	var errs []error
	for _, d := range l.All() {
		if err := r.Register(d); err != nil {
			r.logger.Warn().Err(err).Str("importer", d.Name).Msg("skipping custom importer")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// All returns the built-ins in registration order followed by the custom
// importers ordered by name.
func (r *Registry) All() []Importer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Importer, 0, len(r.builtins)+len(r.custom))
	out = append(out, r.builtins...)

	names := make([]string, 0, len(r.custom))
	for name := range r.custom {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, r.custom[name])
	}
	return out
}

// Get returns the importer with the given name.
func (r *Registry) Get(name string) (Importer, error) {
	for _, imp := range r.All() {
		if imp.Name() == name {
			return imp, nil
		}
	}
	return nil, domain.NewNotFoundError("importer", name)
}

// ForFile picks the importer for the file at path. Importers claiming the
// file's extension are asked first, then the rest. The first one whose
// IsRecognizedFormat accepts the head of the file wins.
func (r *Registry) ForFile(path string) (Importer, error) {
	head, err := readHead(path)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	var preferred, rest []Importer
	for _, imp := range r.All() {
		if hasExtension(imp, ext) {
			preferred = append(preferred, imp)
		} else {
			rest = append(rest, imp)
		}
	}

	for _, imp := range append(preferred, rest...) {
		ok, err := imp.IsRecognizedFormat(bytes.NewReader(head))
		if err != nil {
			r.logger.Debug().Err(err).Str("importer", imp.Name()).Str("path", path).Msg("format check failed")
			continue
		}
		if ok {
			return imp, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", path, ErrUnrecognizedFormat)
}

func hasExtension(imp Importer, ext string) bool {
	if ext == "" {
		return false
	}
	for _, e := range imp.Extensions() {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

func readHead(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	head, err := io.ReadAll(io.LimitReader(f, SniffSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return head, nil
}
