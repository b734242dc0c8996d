package importers

import (
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/helixir/catalog-fetch-service/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateDescriptor checks that every descriptor field is set.
func ValidateDescriptor(d domain.ImporterDescriptor) error {
	if err := validate.Struct(d); err != nil {
		return domain.NewValidationError("importer", err.Error())
	}
	return nil
}

// List is a set of custom importer descriptors keyed and ordered by name.
// It is safe for concurrent use.
type List struct {
	mu    sync.RWMutex
	items map[string]domain.ImporterDescriptor
}

// NewList creates a list holding the given descriptors. Later duplicates win.
func NewList(descriptors ...domain.ImporterDescriptor) *List {
	l := &List{items: make(map[string]domain.ImporterDescriptor, len(descriptors))}
	for _, d := range descriptors {
		l.items[d.Name] = d
	}
	return l
}

// Add inserts d, replacing any descriptor with the same name.
// It reports whether an existing descriptor was replaced.
func (l *List) Add(d domain.ImporterDescriptor) (bool, error) {
	if err := ValidateDescriptor(d); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, replaced := l.items[d.Name]
	l.items[d.Name] = d
	return replaced, nil
}

// Remove deletes the descriptor with the given name.
func (l *List) Remove(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.items[name]; !ok {
		return domain.NewNotFoundError("importer", name)
	}
	delete(l.items, name)
	return nil
}

// Get returns the descriptor with the given name.
func (l *List) Get(name string) (domain.ImporterDescriptor, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	d, ok := l.items[name]
	if !ok {
		return domain.ImporterDescriptor{}, domain.NewNotFoundError("importer", name)
	}
	return d, nil
}

// All returns the descriptors ordered by name.
func (l *List) All() []domain.ImporterDescriptor {
	l.mu.RLock()
	out := make([]domain.ImporterDescriptor, 0, len(l.items))
	for _, d := range l.items {
		out = append(out, d)
	}
	l.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of descriptors.
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}
