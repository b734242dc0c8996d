package domain

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Standard entry types.
const (
	EntryTypeArticle    = "article"
	EntryTypeBook       = "book"
	EntryTypeInBook     = "inbook"
	EntryTypePhDThesis  = "phdthesis"
	EntryTypePeriodical = "periodical"
	EntryTypeMisc       = "misc"
)

// Common field names.
const (
	FieldAuthor    = "author"
	FieldEditor    = "editor"
	FieldTitle     = "title"
	FieldSubtitle  = "subtitle"
	FieldYear      = "year"
	FieldJournal   = "journal"
	FieldPublisher = "publisher"
	FieldAddress   = "address"
	FieldFile      = "file"
)

// Entry is a bibliographic record. Field names are stored lowercase.
// An Entry is not safe for concurrent mutation.
type Entry struct {
	ID          uuid.UUID
	Type        string
	CitationKey string
	fields      map[string]string
}

// NewEntry creates an empty entry of the given type.
func NewEntry(entryType string) *Entry {
	if entryType == "" {
		entryType = EntryTypeMisc
	}
	return &Entry{
		ID:     uuid.New(),
		Type:   strings.ToLower(entryType),
		fields: make(map[string]string),
	}
}

// Field returns the value of a field and whether it is set.
func (e *Entry) Field(name string) (string, bool) {
	v, ok := e.fields[strings.ToLower(name)]
	return v, ok
}

// SetField sets a field. Setting an empty value clears the field.
func (e *Entry) SetField(name, value string) {
	if e.fields == nil {
		e.fields = make(map[string]string)
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return
	}
	if value == "" {
		delete(e.fields, key)
		return
	}
	e.fields[key] = value
}

// ClearField removes a field.
func (e *Entry) ClearField(name string) {
	delete(e.fields, strings.ToLower(name))
}

// FieldNames returns the set field names in sorted order.
func (e *Entry) FieldNames() []string {
	names := make([]string, 0, len(e.fields))
	for name := range e.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Fields returns a copy of all fields.
func (e *Entry) Fields() map[string]string {
	out := make(map[string]string, len(e.fields))
	for k, v := range e.fields {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy of the entry with the same ID.
func (e *Entry) Clone() *Entry {
	return &Entry{
		ID:          e.ID,
		Type:        e.Type,
		CitationKey: e.CitationKey,
		fields:      e.Fields(),
	}
}

// Title returns the title field or an empty string.
func (e *Entry) Title() string {
	v, _ := e.Field(FieldTitle)
	return v
}
