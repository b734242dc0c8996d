package importers

import (
	"errors"
	"fmt"
	"os"
	"plugin"

	"github.com/helixir/catalog-fetch-service/internal/domain"
	"github.com/helixir/catalog-fetch-service/internal/fsguard"
)

// Plugin loading failures. A *PluginError wraps exactly one of these.
var (
	ErrPluginFileNotFound      = errors.New("plugin file not found")
	ErrPluginOpen              = errors.New("cannot open plugin")
	ErrPluginSymbolNotFound    = errors.New("plugin symbol not found")
	ErrPluginInterfaceMismatch = errors.New("plugin symbol is not an importer")
)

// PluginError reports which descriptor failed to load and why.
type PluginError struct {
	Descriptor domain.ImporterDescriptor
	Cause      error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("load importer %q from %s (symbol %s): %v",
		e.Descriptor.Name, e.Descriptor.BasePath, e.Descriptor.PluginID, e.Cause)
}

func (e *PluginError) Unwrap() error {
	return e.Cause
}

// SymbolLookup is the part of *plugin.Plugin the loader needs.
type SymbolLookup interface {
	Lookup(symName string) (plugin.Symbol, error)
}

// OpenFunc opens the plugin file at path.
type OpenFunc func(path string) (SymbolLookup, error)

// Loader instantiates custom importers from their descriptors.
type Loader interface {
	Load(d domain.ImporterDescriptor) (Importer, error)
}

// PluginLoader loads importers from Go plugins.
type PluginLoader struct {
	open  OpenFunc
	roots *fsguard.Roots
}

var _ Loader = (*PluginLoader)(nil)

// LoaderOption configures a PluginLoader.
type LoaderOption func(*PluginLoader)

// WithPluginDirs only opens plugin files inside roots.
func WithPluginDirs(roots *fsguard.Roots) LoaderOption {
	return func(l *PluginLoader) { l.roots = roots }
}

// NewPluginLoader creates a loader backed by the plugin package.
func NewPluginLoader(opts ...LoaderOption) *PluginLoader {
	return NewPluginLoaderWithOpener(openPlugin, opts...)
}

// NewPluginLoaderWithOpener creates a loader using open instead of plugin.Open.
func NewPluginLoaderWithOpener(open OpenFunc, opts ...LoaderOption) *PluginLoader {
	l := &PluginLoader{open: open}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func openPlugin(path string) (SymbolLookup, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Load opens the plugin at d.BasePath and resolves d.PluginID. The symbol
// may be a variable implementing Importer or a func() Importer constructor.
// The returned importer reports d.Name as its name. A BasePath outside the
// plugin directories is rejected with an error matching
// domain.ErrInvalidInput before anything is opened.
func (l *PluginLoader) Load(d domain.ImporterDescriptor) (Importer, error) {
	fail := func(sentinel error, cause error) error {
		if cause != nil {
			return &PluginError{Descriptor: d, Cause: fmt.Errorf("%w: %v", sentinel, cause)}
		}
		return &PluginError{Descriptor: d, Cause: sentinel}
	}

	if err := ValidateDescriptor(d); err != nil {
		return nil, err
	}
	if _, err := l.roots.Resolve(d.BasePath); err != nil {
		return nil, err
	}

	info, err := os.Stat(d.BasePath)
	if err != nil {
		return nil, fail(ErrPluginFileNotFound, err)
	}
	if info.IsDir() {
		return nil, fail(ErrPluginFileNotFound, errors.New("path is a directory"))
	}

	p, err := l.open(d.BasePath)
	if err != nil {
		return nil, fail(ErrPluginOpen, err)
	}

	sym, err := p.Lookup(d.PluginID)
	if err != nil {
		return nil, fail(ErrPluginSymbolNotFound, err)
	}

	imp := asImporter(sym)
	if imp == nil {
		return nil, fail(ErrPluginInterfaceMismatch, fmt.Errorf("got %T", sym))
	}
	return &customImporter{Importer: imp, name: d.Name}, nil
}

func asImporter(sym plugin.Symbol) Importer {
	switch s := sym.(type) {
	case func() Importer:
		return s()
	case *Importer:
		if s == nil {
			return nil
		}
		return *s
	case Importer:
		return s
	default:
		return nil
	}
}

// customImporter renames a plugin importer after its descriptor.
type customImporter struct {
	Importer
	name string
}

func (c *customImporter) Name() string {
	return c.name
}

// IsCustom reports whether imp was loaded from a plugin.
func IsCustom(imp Importer) bool {
	_, ok := imp.(*customImporter)
	return ok
}
