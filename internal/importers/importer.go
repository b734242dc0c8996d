// Package importers manages the user's custom importer list and resolves
// files to the importer that can parse them.
//
// Custom importers are Go plugins. Each one is described by a name, the
// exported symbol providing the importer, and the path of the plugin file.
// The list is persisted in a prefs.Store as numbered records.
package importers

import (
	"io"

	"github.com/helixir/catalog-fetch-service/internal/domain"
)

// Importer parses one bibliographic file format.
type Importer interface {
	// Name identifies the format, e.g. "BibTeX".
	Name() string

	// Extensions lists lowercase file extensions including the dot.
	Extensions() []string

	// IsRecognizedFormat reports whether the content looks like this format.
	// It may consume r.
	IsRecognizedFormat(r io.Reader) (bool, error)

	// Parse reads all entries from r.
	Parse(r io.Reader) ([]*domain.Entry, error)
}
