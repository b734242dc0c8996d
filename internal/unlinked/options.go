package unlinked

import "github.com/helixir/catalog-fetch-service/internal/fsguard"

// DefaultMaxDepth bounds how many directory levels a scan descends.
const DefaultMaxDepth = 32

// Option configures a Finder or an Importer.
type Option func(*options)

type options struct {
	roots    *fsguard.Roots
	maxDepth int
}

func newOptions(opts []Option) options {
	o := options{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithRoots restricts scanned directories and imported files to roots.
func WithRoots(roots *fsguard.Roots) Option {
	return func(o *options) { o.roots = roots }
}

// WithMaxDepth limits scan recursion below the root. Values below 1 keep
// DefaultMaxDepth.
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		if depth > 0 {
			o.maxDepth = depth
		}
	}
}
