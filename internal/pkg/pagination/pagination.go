// Package pagination normalizes page/page_size query parameters.
package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Params is a 1-based page request.
type Params struct {
	Page     int
	PageSize int
}

// Normalize clamps page to >= 1 and page size to [1, MaxPageSize].
func (p Params) Normalize() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
	return p
}

func (p Params) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.PageSize
}

func (p Params) Limit() int {
	return p.Normalize().PageSize
}

// Page is one slice of a filtered listing.
type Page[T any] struct {
	Items    []T `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Slice cuts items (already filtered and sorted) down to the requested page.
func Slice[T any](items []T, p Params) Page[T] {
	p = p.Normalize()
	total := len(items)

	start := p.Offset()
	if start > total {
		start = total
	}
	end := start + p.PageSize
	if end > total {
		end = total
	}

	out := make([]T, end-start)
	copy(out, items[start:end])
	return Page[T]{Items: out, Total: total, Page: p.Page, PageSize: p.PageSize}
}

// FromRequest reads page and page_size from the query string.
func FromRequest(r *http.Request) Params {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	return Params{Page: page, PageSize: size}.Normalize()
}
