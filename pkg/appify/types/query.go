package types

import (
	"net/url"
	"strconv"
)

// Paging defaults applied when a limit is zero.
const (
	DefaultListLimit    = 50
	DefaultResultsLimit = 1000
)

func pageValues(limit, offset, defaultLimit int) url.Values {
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return url.Values{
		"limit":  {strconv.Itoa(limit)},
		"offset": {strconv.Itoa(offset)},
	}
}

// ListActorsFilter selects a page of the actor store.
type ListActorsFilter struct {
	Limit    int
	Offset   int
	Category string
	Search   string
}

// Values encodes the filter as query parameters with defaults applied.
func (f ListActorsFilter) Values() url.Values {
	q := pageValues(f.Limit, f.Offset, DefaultListLimit)
	if f.Category != "" {
		q.Set("category", f.Category)
	}
	if f.Search != "" {
		q.Set("search", f.Search)
	}
	return q
}

// ListRunsFilter selects a page of the caller's run history.
type ListRunsFilter struct {
	Limit  int
	Offset int
	Status string
}

// Values encodes the filter as query parameters with defaults applied.
func (f ListRunsFilter) Values() url.Values {
	q := pageValues(f.Limit, f.Offset, DefaultListLimit)
	if f.Status != "" {
		q.Set("status", f.Status)
	}
	return q
}

// ResultsQuery selects a page of a run's default dataset.
type ResultsQuery struct {
	Format string
	Limit  int
	Offset int
}

// Normalized fills in the default format and limit.
func (r ResultsQuery) Normalized() ResultsQuery {
	if r.Format == "" {
		r.Format = DefaultResultFormat
	}
	if r.Limit <= 0 {
		r.Limit = DefaultResultsLimit
	}
	if r.Offset < 0 {
		r.Offset = 0
	}
	return r
}

// Values encodes the normalized query.
func (r ResultsQuery) Values() url.Values {
	r = r.Normalized()
	q := pageValues(r.Limit, r.Offset, DefaultResultsLimit)
	q.Set("format", r.Format)
	return q
}
