// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package kql

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/adxhistorian/internal/tag"
)

var (
	ErrNoTags       = errors.New("kql: no tags to query")
	ErrEmptyWindow  = errors.New("kql: window end is not after start")
	ErrBucketNeeded = errors.New("kql: blocked read requires a positive bucket size")
	ErrBadFunction  = errors.New("kql: aggregate function is not an identifier")
)

// Window is a half-open time range [Start, End). BucketMillis of zero asks
// for raw samples; a positive value asks for start-aligned buckets.
type Window struct {
	Start        time.Time
	End          time.Time
	BucketMillis int64
}

// Bucket returns the bucket width as a duration.
func (w Window) Bucket() time.Duration {
	return time.Duration(w.BucketMillis) * time.Millisecond
}

// Raw reports whether the window asks for unaggregated samples.
func (w Window) Raw() bool {
	return w.BucketMillis <= 0
}

func (w Window) validate() error {
	if !w.End.After(w.Start) {
		return ErrEmptyWindow
	}
	return nil
}

const readColumns = "systemName, tagProvider, tagPath, value, value_double, value_integer, timestamp, quality"

const readOrder = "| sort by systemName asc, tagProvider asc, tagPath asc, timestamp asc"

// numericColumn is the expression aggregated in blocked reads.
const numericColumn = "numeric"

// Density renders a query reporting, per tag, the first and last timestamp
// stored inside the window.
func (b *Builder) Density(tags []tag.Key, w Window) (Query, error) {
	p := newParamSet()
	body, err := b.filtered(p, tags, w)
	if err != nil {
		return Query{}, err
	}
	body = append(body,
		"| summarize startTimestamp = min(timestamp), endTimestamp = max(timestamp) by systemName, tagProvider, tagPath",
		"| sort by systemName asc, tagProvider asc, tagPath asc",
	)
	return p.query(body), nil
}

// Raw renders a query returning every stored sample of the tags inside the
// window, ordered by tag then timestamp.
func (b *Builder) Raw(tags []tag.Key, w Window) (Query, error) {
	p := newParamSet()
	body, err := b.filtered(p, tags, w)
	if err != nil {
		return Query{}, err
	}
	body = append(body,
		"| project "+readColumns,
		readOrder,
	)
	return p.query(body), nil
}

// Blocked renders a query with one row per tag and non-empty bucket. Each
// distinct function in fns is applied to the numeric value; see
// ValueColumn for the resulting column names. Quality is the worst (lowest)
// code seen in the bucket.
func (b *Builder) Blocked(tags []tag.Key, w Window, fns ...string) (Query, error) {
	if w.BucketMillis <= 0 {
		return Query{}, ErrBucketNeeded
	}
	fns = distinct(fns)
	if len(fns) == 0 {
		return Query{}, fmt.Errorf("%w: none given", ErrBadFunction)
	}
	for _, fn := range fns {
		if !isIdent(fn) {
			return Query{}, fmt.Errorf("%w: %q", ErrBadFunction, fn)
		}
	}
	p := newParamSet()
	body, err := b.filtered(p, tags, w)
	if err != nil {
		return Query{}, err
	}
	aggs := make([]string, 0, len(fns)+1)
	for _, fn := range fns {
		aggs = append(aggs, ValueColumn(fns, fn)+" = "+aggregateExpr(fn, numericColumn))
	}
	aggs = append(aggs, "quality = min(quality)")
	body = append(body,
		"| extend "+numericColumn+" = coalesce(value_double, todouble(value_integer))",
		fmt.Sprintf("| summarize %s by systemName, tagProvider, tagPath, timestamp = bin_at(timestamp, %s, %s)",
			strings.Join(aggs, ", "), Timespan(w.Bucket()), DateLiteral(w.Start)),
		readOrder,
	)
	return p.query(body), nil
}

// ValueColumn names the column holding fn's result in a blocked read over
// fns. A single function yields "value"; several yield "value_<fn>".
func ValueColumn(fns []string, fn string) string {
	if len(distinct(fns)) <= 1 {
		return "value"
	}
	return "value_" + fn
}

// Read picks Raw or Blocked from the window's bucket size.
func (b *Builder) Read(tags []tag.Key, w Window, fns ...string) (Query, error) {
	if w.Raw() {
		return b.Raw(tags, w)
	}
	return b.Blocked(tags, w, fns...)
}

func distinct(fns []string) []string {
	seen := mapset.NewThreadUnsafeSet[string]()
	out := make([]string, 0, len(fns))
	for _, fn := range fns {
		if seen.Add(fn) {
			out = append(out, fn)
		}
	}
	return out
}

// filtered returns the table, window and tag predicates shared by every
// read shape.
func (b *Builder) filtered(p *paramSet, tags []tag.Key, w Window) ([]string, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}
	pred := tagPredicate(p, tags)
	if pred == "" {
		return nil, ErrNoTags
	}
	return []string{
		QuoteIdent(b.table),
		"| where timestamp >= " + DateLiteral(w.Start) + " and timestamp < " + DateLiteral(w.End),
		"| where " + pred,
	}, nil
}

// tagPredicate renders a disjunction with one conjunction per distinct tag.
// Tags with a blank path never reach the store.
func tagPredicate(p *paramSet, tags []tag.Key) string {
	seen := mapset.NewThreadUnsafeSet[tag.Key]()
	var terms []string
	for _, k := range tags {
		if k.Blank() || !seen.Add(k.Fold()) {
			continue
		}
		terms = append(terms, fmt.Sprintf("(systemName =~ %s and tagProvider =~ %s and tagPath =~ %s)",
			p.str(k.System), p.str(k.Provider), p.str(k.Path)))
	}
	return strings.Join(terms, " or ")
}

// aggregateExpr applies fn to col. count takes no argument in KQL, so it is
// expressed as a countif over non-null values.
func aggregateExpr(fn, col string) string {
	switch fn {
	case "count":
		return "countif(isnotnull(" + col + "))"
	default:
		return fn + "(" + col + ")"
	}
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || (i > 0 && '0' <= c && c <= '9') {
			continue
		}
		return false
	}
	return true
}
