package pagination

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext extracts pagination parameters from the echo context.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("_count"))
	if limit <= 0 {
		limit, _ = strconv.Atoi(c.QueryParam("limit"))
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("_offset"))
	if offset <= 0 {
		offset, _ = strconv.Atoi(c.QueryParam("offset"))
	}
	if offset < 0 {
		offset = 0
	}
	if offset > math.MaxInt-MaxLimit {
		offset = math.MaxInt - MaxLimit
	}

	return Params{Limit: limit, Offset: offset}
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

// NextOffset returns the offset for the next page.
func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset returns the offset for the previous page.
// Returns 0 if the result would be negative.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}

// FHIRLinks generates self/next/previous links for a search result.
// basePath should be the request path (e.g., "/Patient/"). Filters in query
// are carried over; paging parameters are replaced.
func (p Params) FHIRLinks(basePath string, query url.Values, total int) []FHIRLink {
	link := func(offset int) string {
		q := url.Values{}
		for k, v := range query {
			switch k {
			case "_offset", "_count", "offset", "limit":
				continue
			}
			q[k] = v
		}
		q.Set("_offset", strconv.Itoa(offset))
		q.Set("_count", strconv.Itoa(p.Limit))
		return basePath + "?" + q.Encode()
	}

	links := []FHIRLink{{Relation: "self", URL: link(p.Offset)}}
	if p.HasNext(total) {
		links = append(links, FHIRLink{Relation: "next", URL: link(p.NextOffset())})
	}
	if p.HasPrevious() {
		links = append(links, FHIRLink{Relation: "previous", URL: link(p.PreviousOffset())})
	}
	return links
}

// FHIRLink represents a single pagination link.
type FHIRLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

// LinkHeader formats links as an HTTP Link header value.
func LinkHeader(links []FHIRLink) string {
	parts := make([]string, len(links))
	for i, l := range links {
		parts[i] = fmt.Sprintf(`<%s>; rel="%s"`, l.URL, l.Relation)
	}
	return strings.Join(parts, ", ")
}

// Page is a page-number window over a result set, as used by the HTML list.
// Numbers are 1-based.
type Page struct {
	Number int
	Size   int
	Total  int
}

// PageFromContext reads the "page" query parameter. A missing or malformed
// value selects the first page; Clamp handles values past the last page.
// Numbers are capped so that Offset cannot overflow.
func PageFromContext(c echo.Context, size int) Page {
	n, err := strconv.Atoi(c.QueryParam("page"))
	if err != nil || n < 1 {
		n = 1
	}
	if size > 0 && n > math.MaxInt/size {
		n = math.MaxInt / size
	}
	return Page{Number: n, Size: size}
}

// Clamp records the total and moves Number onto the last page when it is past it.
func (p Page) Clamp(total int) Page {
	p.Total = total
	if last := p.NumPages(); p.Number > last {
		p.Number = last
	}
	if p.Number < 1 {
		p.Number = 1
	}
	return p
}

// NumPages is the number of pages; an empty result still has one page.
func (p Page) NumPages() int {
	if p.Size <= 0 || p.Total <= 0 {
		return 1
	}
	return (p.Total + p.Size - 1) / p.Size
}

// Offset is the row offset of the first item on the page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

func (p Page) HasNext() bool     { return p.Number < p.NumPages() }
func (p Page) HasPrevious() bool { return p.Number > 1 }
func (p Page) Next() int         { return p.Number + 1 }
func (p Page) Previous() int     { return p.Number - 1 }
