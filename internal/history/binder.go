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

package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/cardinalhq/adxhistorian/internal/kusto"
	"github.com/cardinalhq/adxhistorian/internal/tag"
	"github.com/cardinalhq/adxhistorian/kql"
)

// NoData is the watermark reported when a read observed no rows.
const NoData int64 = -1

// BrowseResult is one node of a browse listing.
type BrowseResult struct {
	Path        QualifiedPath `json:"path"`
	HasChildren bool          `json:"hasChildren"`
	SubNodes    int64         `json:"subNodes"`
}

// bindBrowse drains a listing cursor into nodes under the history provider
// histprov.
func bindBrowse(res *kusto.Result, histprov string) ([]BrowseResult, error) {
	var out []BrowseResult
	for res.Next() {
		p := QualifiedPath{}
		if histprov != "" {
			p = p.With(ComponentHistoryProvider, histprov)
		}
		if system := res.String("systemName"); system != "" {
			p = p.With(ComponentDriver, system+":"+res.String("tagProvider"))
		}
		if path := res.String("tagPath"); path != "" {
			p = p.With(ComponentTag, path)
		}
		hasChildren, _ := res.Bool("hasChildren")
		n, _ := res.Int("countSubNodes")
		out = append(out, BrowseResult{Path: p, HasChildren: hasChildren, SubNodes: n})
	}
	return out, res.Err()
}

// readBinder appends read rows to the columns they belong to and tracks the
// newest timestamp seen.
type readBinder struct {
	raw       bool
	fns       []string
	columns   map[tag.Key][]*ProcessedColumn
	watermark int64
	bound     int64
	dropped   int64
}

func newReadBinder(cols []*ProcessedColumn, raw bool, fns []string) *readBinder {
	b := &readBinder{
		raw:       raw,
		fns:       fns,
		columns:   make(map[tag.Key][]*ProcessedColumn, len(cols)),
		watermark: NoData,
	}
	for _, c := range cols {
		k := c.Key().Fold()
		b.columns[k] = append(b.columns[k], c)
	}
	return b
}

// bind drains res. Rows arrive ordered by the query; the binder never
// reorders them.
func (b *readBinder) bind(ctx context.Context, res *kusto.Result) error {
	for res.Next() {
		b.bindRow(res)
	}
	rowsBound.Add(ctx, b.bound)
	if b.dropped > 0 {
		rowsDropped.Add(ctx, b.dropped)
	}
	return res.Err()
}

func (b *readBinder) bindRow(res *kusto.Result) {
	k := tag.NewKey(res.String("systemName"), res.String("tagProvider"), res.String("tagPath"))
	cols, ok := b.columns[k.Fold()]
	if !ok {
		b.dropped++
		slog.Debug("Dropping row for unrequested tag", slog.String("tag", k.String()))
		return
	}
	ts, ok := res.Time("timestamp")
	if !ok {
		b.dropped++
		slog.Debug("Dropping row without timestamp", slog.String("tag", k.String()))
		return
	}
	q := tag.QualityGood
	if v, ok := res.Int("quality"); ok {
		q = tag.Quality(v)
	}

	for _, c := range cols {
		var v any
		if b.raw {
			v = rawValue(res)
		} else {
			v = blockValue(res, kql.ValueColumn(b.fns, c.Function()))
		}
		c.Append(Point{Value: v, Quality: q, Timestamp: ts})
	}
	if ms := ts.UnixMilli(); ms > b.watermark {
		b.watermark = ms
	}
	b.bound++
}

// rawValue prefers the typed projections over the dynamic column.
func rawValue(res *kusto.Result) any {
	if f, ok := res.Float("value_double"); ok {
		return f
	}
	if i, ok := res.Int("value_integer"); ok {
		return i
	}
	return normalize(res.Dynamic("value"))
}

func blockValue(res *kusto.Result, col string) any {
	if f, ok := res.Float(col); ok {
		return f
	}
	return nil
}

// normalize replaces json.Number with int64 or float64.
func normalize(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case map[string]any:
		for k, e := range n {
			n[k] = normalize(e)
		}
		return n
	case []any:
		for i, e := range n {
			n[i] = normalize(e)
		}
		return n
	default:
		return v
	}
}

// Timeline is the span of stored data for one tag.
type Timeline struct {
	Path  QualifiedPath `json:"path"`
	Start time.Time     `json:"start"`
	End   time.Time     `json:"end"`
}

func bindDensity(res *kusto.Result, histprov string) ([]Timeline, error) {
	var out []Timeline
	for res.Next() {
		k := tag.NewKey(res.String("systemName"), res.String("tagProvider"), res.String("tagPath"))
		start, ok := res.Time("startTimestamp")
		if !ok {
			continue
		}
		end, ok := res.Time("endTimestamp")
		if !ok {
			end = start
		}
		out = append(out, Timeline{Path: PathFor(histprov, k), Start: start, End: end})
	}
	return out, res.Err()
}
