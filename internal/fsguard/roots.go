// Package fsguard confines caller-supplied paths to configured directories.
package fsguard

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/helixir/catalog-fetch-service/internal/domain"
)

// ErrOutsideRoots matches domain.ErrInvalidInput.
var ErrOutsideRoots = fmt.Errorf("%w: path is outside the allowed directories", domain.ErrInvalidInput)

// Roots is a set of allowed directories. A nil *Roots allows every path; an
// empty one allows none.
type Roots struct {
	dirs []string
}

// New resolves dirs to absolute, symlink-free paths. Blank entries are
// ignored. Directories that do not exist yet are kept as cleaned absolute
// paths.
func New(dirs ...string) (*Roots, error) {
	r := &Roots{}
	for _, d := range dirs {
		if strings.TrimSpace(d) == "" {
			continue
		}
		abs, err := filepath.Abs(d)
		if err != nil {
			return nil, fmt.Errorf("resolve root %q: %w", d, err)
		}
		r.dirs = append(r.dirs, resolve(abs))
	}
	return r, nil
}

// Dirs returns the resolved directories.
func (r *Roots) Dirs() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.dirs...)
}

// Resolve returns the absolute form of path when path, with symlinks
// followed, lies inside one of the roots. Otherwise the error wraps
// ErrOutsideRoots.
func (r *Roots) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", domain.NewValidationError("path", "path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if r == nil {
		return abs, nil
	}

	real := resolve(abs)
	for _, dir := range r.dirs {
		if within(dir, real) {
			return abs, nil
		}
	}
	return "", fmt.Errorf("%s: %w", path, ErrOutsideRoots)
}

// Allows reports whether Resolve would accept path.
func (r *Roots) Allows(path string) bool {
	_, err := r.Resolve(path)
	return err == nil
}

// resolve follows symlinks when path exists.
func resolve(path string) string {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real
	}
	return filepath.Clean(path)
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
