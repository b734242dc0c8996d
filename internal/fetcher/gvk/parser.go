package gvk

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/helixir/catalog-fetch-service/internal/domain"
	"github.com/helixir/catalog-fetch-service/internal/fetcher"
)

// Field names specific to GVK records.
const (
	FieldPPN       = "ppn_GVK"
	FieldEdition   = "edition"
	FieldPageTotal = "pagetotal"
	FieldSeries    = "series"
	FieldVolume    = "volume"
	FieldNumber    = "number"
	FieldPages     = "pages"
	FieldNote      = "note"
	FieldISBN      = "isbn"
	FieldISSN      = "issn"
	FieldDOI       = "doi"
	FieldURL       = "url"
	FieldLanguage  = "language"
	FieldKeywords  = "keywords"
)

const formatPicaXML = "picaxml"

// Parser decodes SRU responses carrying PICA-XML records.
type Parser struct{}

var _ fetcher.Parser = Parser{}

// Parse decodes r into entries in record order. Records without a title are
// skipped. A response carrying only SRU diagnostics is an error.
func (Parser) Parse(r io.Reader) ([]*domain.Entry, error) {
	var resp SearchRetrieveResponse
	if err := xml.NewDecoder(r).Decode(&resp); err != nil {
		return nil, domain.NewParseError(formatPicaXML, "decoding response", err)
	}

	if len(resp.Records) == 0 && len(resp.Diagnostics) > 0 {
		d := resp.Diagnostics[0]
		msg := strings.TrimSpace(d.Message)
		if details := strings.TrimSpace(d.Details); details != "" {
			msg = fmt.Sprintf("%s (%s)", msg, details)
		}
		return nil, domain.NewParseError(formatPicaXML, "SRU diagnostic: "+msg, nil)
	}

	entries := make([]*domain.Entry, 0, len(resp.Records))
	for i := range resp.Records {
		if entry := recordToEntry(resp.Records[i].Data); entry != nil {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// recordToEntry maps PICA+ tags to entry fields. It returns nil when the
// record has no title.
func recordToEntry(rec PicaRecord) *domain.Entry {
	title, ok := rec.field("021A")
	if !ok || strings.TrimSpace(title.Sub("a")) == "" {
		return nil
	}

	entry := domain.NewEntry(entryType(rec))
	entry.SetField(domain.FieldTitle, title.Sub("a"))
	entry.SetField(domain.FieldSubtitle, title.Sub("d"))

	set := func(field, tag, code string) {
		if f, ok := rec.field(tag); ok {
			entry.SetField(field, f.Sub(code))
		}
	}

	set(FieldPPN, "003@", "0")
	set(domain.FieldYear, "011@", "a")
	set(FieldEdition, "032@", "a")
	set(FieldPageTotal, "034D", "a")
	set(FieldISBN, "004A", "0")
	set(FieldISSN, "005A", "0")
	set(FieldDOI, "004V", "0")
	set(FieldURL, "009P", "a")
	set(FieldLanguage, "010@", "a")

	if f, ok := rec.field("033A"); ok {
		entry.SetField(domain.FieldAddress, f.Sub("p"))
		entry.SetField(domain.FieldPublisher, f.Sub("n"))
	}

	entry.SetField(domain.FieldAuthor, joinPersons(rec.fields("028A", "028B")))
	entry.SetField(domain.FieldEditor, joinPersons(rec.fields("028C", "028G")))

	if f, ok := firstOf(rec, "036D", "036E"); ok {
		entry.SetField(FieldSeries, f.Sub("a"))
		entry.SetField(FieldVolume, f.Sub("l"))
	}

	if f, ok := rec.field("037C"); ok {
		note := f.Sub("a")
		entry.SetField(FieldNote, note)
		if isThesis(note) {
			entry.Type = domain.EntryTypePhDThesis
		}
	}

	if f, ok := firstOf(rec, "027D", "039B"); ok {
		journal := firstNonEmpty(f.Sub("a"), f.Sub("8"), f.Sub("t"))
		if journal != "" {
			entry.SetField(domain.FieldJournal, journal)
			entry.Type = domain.EntryTypeArticle
		}
	}

	if f, ok := rec.field("031A"); ok {
		entry.SetField(FieldVolume, firstNonEmpty(f.Sub("d"), fieldOr(entry, FieldVolume)))
		entry.SetField(FieldNumber, f.Sub("e"))
		entry.SetField(FieldPages, f.Sub("h"))
	}

	var keywords []string
	for _, f := range rec.fields("044A", "044K") {
		if kw := strings.TrimSpace(firstNonEmpty(f.Sub("a"), f.Sub("8"))); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	entry.SetField(FieldKeywords, strings.Join(keywords, ", "))

	return entry
}

// entryType reads the bibliographic genre from 002@ $0. The first character
// is the physical form (A print, O online); the second is the level.
func entryType(rec PicaRecord) string {
	f, ok := rec.field("002@")
	if !ok {
		return domain.EntryTypeBook
	}
	code := f.Sub("0")
	if len(code) < 2 {
		return domain.EntryTypeBook
	}
	switch code[1] {
	case 's':
		return domain.EntryTypeArticle
	case 'b':
		return domain.EntryTypePeriodical
	default:
		return domain.EntryTypeBook
	}
}

// joinPersons renders persons as "Surname, Given" joined by " and ".
func joinPersons(fields []DataField) string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		surname := strings.TrimSpace(f.Sub("a"))
		given := strings.TrimSpace(f.Sub("d"))
		var name string
		switch {
		case surname != "" && given != "":
			name = surname + ", " + given
		case surname != "":
			name = surname
		default:
			name = strings.TrimSpace(f.Sub("8"))
		}
		if name != "" {
			names = append(names, name)
		}
	}
	return strings.Join(names, " and ")
}

func isThesis(note string) bool {
	n := strings.ToLower(note)
	return strings.Contains(n, "diss") || strings.Contains(n, "thesis") || strings.Contains(n, "hochschulschrift")
}

func firstOf(rec PicaRecord, tags ...string) (DataField, bool) {
	for _, tag := range tags {
		if f, ok := rec.field(tag); ok {
			return f, true
		}
	}
	return DataField{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func fieldOr(e *domain.Entry, name string) string {
	v, _ := e.Field(name)
	return v
}
