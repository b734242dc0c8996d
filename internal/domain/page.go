package domain

// Page is one slice of search results, identified by the query that produced
// it and a zero-based page number. It has no total count and no link to other pages.
type Page[T any] struct {
	query      string
	pageNumber int
	content    []T
}

// NewPage creates a page. The content slice is copied.
func NewPage[T any](query string, pageNumber int, content []T) *Page[T] {
	c := make([]T, len(content))
	copy(c, content)
	return &Page[T]{
		query:      query,
		pageNumber: pageNumber,
		content:    c,
	}
}

// Query returns the query that produced the page.
func (p *Page[T]) Query() string {
	return p.query
}

// PageNumber returns the zero-based page number.
func (p *Page[T]) PageNumber() int {
	return p.pageNumber
}

// Content returns a copy of the page content in source order.
func (p *Page[T]) Content() []T {
	c := make([]T, len(p.content))
	copy(c, p.content)
	return c
}

// Size returns the number of items on the page.
func (p *Page[T]) Size() int {
	return len(p.content)
}
