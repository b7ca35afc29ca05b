// Package view filters and orders mirrored lists for display. Everything here is
// pure: the same input always yields the same output.
package view

import (
	"slices"
	"strings"
)

type Sort string

const (
	Popularity Sort = "popularity"
	Date       Sort = "date"
	// Recent orders by date key, newest first.
	Recent Sort = "recent"
)

// ParseSort maps a query value to a Sort, using fallback for unknown values.
func ParseSort(s string, fallback Sort) Sort {
	switch Sort(strings.ToLower(strings.TrimSpace(s))) {
	case Popularity:
		return Popularity
	case Date:
		return Date
	case Recent:
		return Recent
	}
	return fallback
}

// State distinguishes an empty board from a search that matched nothing.
type State string

const (
	StateEmpty     State = "empty"
	StateNoResults State = "no_results"
	StateOK        State = "ok"
)

// Options describes one view over a list of T.
type Options[T any] struct {
	Search string
	// Text returns the fields the search term is matched against.
	Text func(T) []string
	// Keep are additional predicates; an item must pass all of them.
	Keep []func(T) bool
	Sort Sort
	// Count is the popularity measure. Negative counts are treated as 0.
	Count func(T) int
	// DateKey must sort lexically in chronological order.
	DateKey func(T) string
}

type Result[T any] struct {
	Items []T   `json:"items"`
	Total int   `json:"total"`
	State State `json:"state"`
}

// Apply filters then sorts items. Ties keep their input order.
func Apply[T any](items []T, o Options[T]) Result[T] {
	out := make([]T, 0, len(items))
	for _, item := range items {
		if o.Text != nil && !Matches(o.Search, o.Text(item)...) {
			continue
		}
		if !keep(item, o.Keep) {
			continue
		}
		out = append(out, item)
	}

	switch o.Sort {
	case Popularity:
		if o.Count != nil {
			slices.SortStableFunc(out, func(a, b T) int {
				return count(o.Count, b) - count(o.Count, a)
			})
		}
	case Date, Recent:
		if o.DateKey != nil {
			desc := o.Sort == Recent
			slices.SortStableFunc(out, func(a, b T) int {
				c := strings.Compare(o.DateKey(a), o.DateKey(b))
				if desc {
					return -c
				}
				return c
			})
		}
	}

	state := StateOK
	switch {
	case len(items) == 0:
		state = StateEmpty
	case len(out) == 0:
		state = StateNoResults
	}
	return Result[T]{Items: out, Total: len(items), State: state}
}

// Matches reports whether term is empty or a case-insensitive substring of any field.
func Matches(term string, fields ...string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

func keep[T any](item T, preds []func(T) bool) bool {
	for _, p := range preds {
		if !p(item) {
			return false
		}
	}
	return true
}

func count[T any](fn func(T) int, item T) int {
	if n := fn(item); n > 0 {
		return n
	}
	return 0
}
