// Package paging normalises page/limit query parameters and shapes list responses.
package paging

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"itdesk.org/internal/apperr"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
	// MaxPage keeps (page-1)*limit well inside int range for any limit.
	MaxPage = 1_000_000
)

// Params is a 1-based page request.
type Params struct {
	Page  int
	Limit int
}

// Meta describes the page returned.
type Meta struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// Result is the list envelope returned by every paginated endpoint.
type Result[T any] struct {
	Data       []T  `json:"data"`
	Pagination Meta `json:"pagination"`
}

// Normalize fills defaults and clamps page and limit.
func (p Params) Normalize(def, max int) Params {
	if def <= 0 {
		def = DefaultLimit
	}
	if max <= 0 {
		max = MaxLimit
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.Limit < 1 {
		p.Limit = def
	}
	if p.Limit > max {
		p.Limit = max
	}
	return p
}

// Offset returns the row offset for the page.
func (p Params) Offset() int {
	if p.Page < 1 || p.Limit < 1 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.Limit {
		return math.MaxInt - math.MaxInt%p.Limit
	}
	return (p.Page - 1) * p.Limit
}

// NewResult builds a Result, never returning a nil Data slice.
func NewResult[T any](items []T, p Params, total int) Result[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if p.Limit > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Result[T]{
		Data:       items,
		Pagination: Meta{Page: p.Page, Limit: p.Limit, Total: total, Pages: pages},
	}
}

// Parse reads page and limit from raw query values.
func Parse(page, limit string) (Params, error) {
	var p Params
	var err error
	if p.Page, err = parseField("page", page); err != nil {
		return Params{}, err
	}
	if p.Page > MaxPage {
		return Params{}, apperr.FieldError("page", fmt.Sprintf("page must not exceed %d", MaxPage))
	}
	if p.Limit, err = parseField("limit", limit); err != nil {
		return Params{}, err
	}
	return p, nil
}

func parseField(name, raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, apperr.FieldError(name, fmt.Sprintf("%s must be a positive integer", name))
	}
	return v, nil
}
