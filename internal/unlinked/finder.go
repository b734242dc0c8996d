// Package unlinked finds files under a directory that no entry links to yet,
// and turns them into entries.
package unlinked

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/catalog-fetch-service/internal/fsguard"
	"github.com/helixir/catalog-fetch-service/internal/observability"
)

// ErrInvalidDirectory is returned when the scan root is missing or not a directory.
var ErrInvalidDirectory = errors.New("not a directory")

// FileNode is a directory or file in a scan result. FileCount is the number
// of matching files at or below the node; a file counts itself.
type FileNode struct {
	Path      string      `json:"path"`
	Name      string      `json:"name"`
	IsDir     bool        `json:"is_dir"`
	FileCount int         `json:"file_count"`
	Children  []*FileNode `json:"children,omitempty"`
}

// Files returns the paths of every file below n in tree order.
func (n *FileNode) Files() []string {
	if n == nil {
		return nil
	}
	if !n.IsDir {
		return []string{n.Path}
	}
	var out []string
	for _, c := range n.Children {
		out = append(out, c.Files()...)
	}
	return out
}

// LinkedSet holds the cleaned absolute paths of files already linked to entries.
type LinkedSet map[string]struct{}

// NewLinkedSet builds a set from paths. Relative paths are resolved against
// the working directory.
func NewLinkedSet(paths ...string) LinkedSet {
	s := make(LinkedSet, len(paths))
	for _, p := range paths {
		s[normalize(p)] = struct{}{}
	}
	return s
}

// Contains reports whether path is linked.
func (s LinkedSet) Contains(path string) bool {
	_, ok := s[normalize(path)]
	return ok
}

func normalize(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Finder scans directories for unlinked files.
type Finder struct {
	opts    options
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewFinder creates a finder. metrics may be nil. Without WithRoots any
// directory may be scanned.
func NewFinder(metrics *observability.Metrics, logger zerolog.Logger, opts ...Option) *Finder {
	return &Finder{
		opts:    newOptions(opts),
		metrics: metrics,
		logger:  logger.With().Str("component", "unlinked_finder").Logger(),
	}
}

// Scan walks root and returns the tree of matching files not in linked.
// Hidden files and directories are skipped, directories without matches are
// pruned, and children are ordered directories first, then by name.
// Unreadable subdirectories, directories deeper than the depth limit and
// links to files outside the allowed roots are skipped. A root outside the
// allowed roots fails with an error matching domain.ErrInvalidInput.
func (f *Finder) Scan(ctx context.Context, root string, filter *Filter, linked LinkedSet) (*FileNode, error) {
	if filter == nil {
		filter, _ = NewFilter()
	}
	root, err := f.opts.roots.Resolve(root)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", root, ErrInvalidDirectory, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", root, ErrInvalidDirectory)
	}

	s := &scan{filter: filter, linked: linked, roots: f.opts.roots, maxDepth: f.opts.maxDepth, logger: f.logger}
	node, err := s.dir(ctx, root, 0)
	if err != nil {
		return nil, err
	}

	if f.metrics != nil {
		f.metrics.RecordScan(node.FileCount)
	}
	f.logger.Info().
		Str("root", root).
		Strs("patterns", filter.Patterns()).
		Int("files", node.FileCount).
		Msg("scan completed")
	return node, nil
}

type scan struct {
	filter   *Filter
	linked   LinkedSet
	roots    *fsguard.Roots
	maxDepth int
	logger   zerolog.Logger
}

func (s *scan) dir(ctx context.Context, path string, depth int) (*FileNode, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	node := &FileNode{Path: path, Name: filepath.Base(path), IsDir: true}

	entries, err := os.ReadDir(path)
	if err != nil {
		if depth == 0 {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		s.logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable directory")
		return node, nil
	}

	for _, e := range entries {
		if isHidden(e.Name()) {
			continue
		}
		child := filepath.Join(path, e.Name())

		switch {
		case e.IsDir():
			if depth >= s.maxDepth {
				s.logger.Warn().Str("path", child).Int("max_depth", s.maxDepth).Msg("skipping directory below depth limit")
				continue
			}
			sub, err := s.dir(ctx, child, depth+1)
			if err != nil {
				return nil, err
			}
			if sub.FileCount > 0 {
				node.Children = append(node.Children, sub)
				node.FileCount += sub.FileCount
			}
		case e.Type().IsRegular() || (isRegularLink(child, e) && s.roots.Allows(child)):
			if !s.filter.Match(e.Name()) || s.linked.Contains(child) {
				continue
			}
			node.Children = append(node.Children, &FileNode{Path: child, Name: e.Name(), FileCount: 1})
			node.FileCount++
		}
	}

	sort.SliceStable(node.Children, func(i, j int) bool {
		a, b := node.Children[i], node.Children[j]
		if a.IsDir != b.IsDir {
			return a.IsDir
		}
		return a.Name < b.Name
	})
	return node, nil
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// isRegularLink reports whether e is a symlink to a regular file. Links to
// directories are not followed.
func isRegularLink(path string, e fs.DirEntry) bool {
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
