// Package query reads persisted trace records back for offline tooling.
// Iteration is lazy: files are opened one at a time and records stream
// through the supplied filters. A malformed line never aborts a scan; it
// surfaces as a synthesized ERROR record carrying the raw text.
package query

import (
	"sort"
	"time"

	"github.com/arenalab/tracekit/internal/config"
	"github.com/arenalab/tracekit/internal/logging"
)

// Filter narrows a scan. Zero values mean "no restriction"; MinLevel's
// zero value is DEBUG, which admits everything.
type Filter struct {
	Category  string
	Component string
	Start     time.Time
	End       time.Time
	MinLevel  config.Level
	TraceID   string
	Limit     int
}

func (f Filter) match(rec *logging.Record) bool {
	if !f.Start.IsZero() && rec.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && rec.Timestamp.After(f.End) {
		return false
	}
	if rec.Level < f.MinLevel {
		return false
	}
	if f.TraceID != "" {
		if rec.Context == nil || rec.Context.TraceID != f.TraceID {
			return false
		}
	}
	return true
}

// Reader reads records from a trace root directory.
type Reader struct {
	dir string
}

// NewReader creates a reader over the given trace root.
func NewReader(dir string) *Reader {
	return &Reader{dir: dir}
}

// Dir returns the trace root this reader scans.
func (r *Reader) Dir() string { return r.dir }

// Read returns a fresh iterator over the files implied by the filter's
// category/component, oldest rotated backlog first, active file last.
func (r *Reader) Read(f Filter) *Iterator {
	return newIterator(r.resolveFiles(f.Category, f.Component), f)
}

// Records drains an iterator into a slice.
func (r *Reader) Records(f Filter) ([]*logging.Record, error) {
	it := r.Read(f)
	defer it.Close()

	var out []*logging.Record
	for it.Next() {
		out = append(out, it.Record())
	}
	return out, it.Err()
}

// TraceChain returns every record sharing the trace id, across all
// categories, in chronological order.
func (r *Reader) TraceChain(traceID string) ([]*logging.Record, error) {
	records, err := r.Records(Filter{TraceID: traceID})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.Before(records[j].Timestamp)
	})
	return records, nil
}

// RecentErrors returns ERROR-and-above records from the trailing window,
// newest-independent order, capped at limit when limit > 0.
func (r *Reader) RecentErrors(window time.Duration, limit int) ([]*logging.Record, error) {
	return r.Records(Filter{
		Start:    time.Now().UTC().Add(-window),
		MinLevel: config.ErrorLevel,
		Limit:    limit,
	})
}

// ComponentRecords returns up to limit records for one pair.
func (r *Reader) ComponentRecords(category, component string, limit int) ([]*logging.Record, error) {
	return r.Records(Filter{Category: category, Component: component, Limit: limit})
}
