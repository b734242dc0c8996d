package gvk

import "encoding/xml"

// SearchRetrieveResponse is the SRU 1.1 response envelope. Element names are
// matched without namespaces, so both the zs: and srw: prefixes decode.
type SearchRetrieveResponse struct {
	XMLName         xml.Name     `xml:"searchRetrieveResponse"`
	NumberOfRecords int          `xml:"numberOfRecords"`
	Records         []Record     `xml:"records>record"`
	Diagnostics     []Diagnostic `xml:"diagnostics>diagnostic"`
}

// Record is one SRU record wrapping a PICA-XML record.
type Record struct {
	Schema string     `xml:"recordSchema"`
	Data   PicaRecord `xml:"recordData>record"`
}

// PicaRecord is a PICA+ record: an ordered list of tagged data fields.
type PicaRecord struct {
	Fields []DataField `xml:"datafield"`
}

// DataField is a PICA+ field such as 021A (title) with its subfields.
type DataField struct {
	Tag        string     `xml:"tag,attr"`
	Occurrence string     `xml:"occurrence,attr"`
	Subfields  []Subfield `xml:"subfield"`
}

// Subfield is a single-character coded value inside a DataField.
type Subfield struct {
	Code  string `xml:"code,attr"`
	Value string `xml:",chardata"`
}

// Diagnostic is an SRU error or warning returned instead of records.
type Diagnostic struct {
	URI     string `xml:"uri"`
	Details string `xml:"details"`
	Message string `xml:"message"`
}

// Sub returns the first value of subfield code, or "".
func (f DataField) Sub(code string) string {
	for _, s := range f.Subfields {
		if s.Code == code {
			return s.Value
		}
	}
	return ""
}

// field returns the first field with tag.
func (r PicaRecord) field(tag string) (DataField, bool) {
	for _, f := range r.Fields {
		if f.Tag == tag {
			return f, true
		}
	}
	return DataField{}, false
}

// fields returns every field whose tag is one of tags, in record order.
func (r PicaRecord) fields(tags ...string) []DataField {
	var out []DataField
	for _, f := range r.Fields {
		for _, t := range tags {
			if f.Tag == t {
				out = append(out, f)
				break
			}
		}
	}
	return out
}
