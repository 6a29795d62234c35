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
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/adxhistorian/internal/tag"
)

var (
	t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 = t0.Add(10 * time.Minute)
)

func newTestBuilder() *Builder {
	return NewBuilder("Events", 5*24*time.Hour)
}

func TestBrowseLevel(t *testing.T) {
	tests := []struct {
		name string
		req  BrowseRequest
		want BrowseLevel
	}{
		{"nothing set", BrowseRequest{}, BrowseRoot},
		{"driver only", BrowseRequest{System: "gw", Provider: "default"}, BrowseProvider},
		{"slash only prefix", BrowseRequest{System: "gw", Provider: "default", Prefix: "/"}, BrowseProvider},
		{"prefix", BrowseRequest{System: "gw", Provider: "default", Prefix: "Ramp"}, BrowsePath},
		{"nested prefix", BrowseRequest{System: "gw", Provider: "default", Prefix: "Ramp/Ramp1/"}, BrowsePath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.req.Level())
		})
	}
}

func TestBrowseRoot(t *testing.T) {
	q := newTestBuilder().Browse(BrowseRequest{})

	assert.Empty(t, q.Params)
	assert.True(t, strings.HasPrefix(q.Text, "['Events']\n"), q.Text)
	assert.Contains(t, q.Text, "| where timestamp > ago(432000000ms)")
	assert.Contains(t, q.Text, "summarize countSubNodes = dcount(tagPath) by systemName, tagProvider")
	assert.Contains(t, q.Text, "| extend hasChildren = countSubNodes > 0")
	assert.Contains(t, q.Text, "| project systemName, tagProvider, tagPath, hasChildren, countSubNodes")
}

func TestBrowseProviderBindsDriver(t *testing.T) {
	q := newTestBuilder().Browse(BrowseRequest{System: "gw", Provider: "default"})

	assert.True(t, strings.HasPrefix(q.Text, "declare query_parameters(p0:string, p1:string);\n"), q.Text)
	assert.Contains(t, q.Text, "| where systemName =~ p0 and tagProvider =~ p1")
	assert.Contains(t, q.Text, "by systemName, tagProvider, tagPath = current")
	assert.Equal(t, map[string]string{"p0": `"gw"`, "p1": `"default"`}, q.Params)
}

func TestBrowsePathNormalizesPrefix(t *testing.T) {
	withSlash := newTestBuilder().Browse(BrowseRequest{System: "gw", Provider: "default", Prefix: "Ramp/"})
	without := newTestBuilder().Browse(BrowseRequest{System: "gw", Provider: "default", Prefix: "Ramp"})

	assert.Equal(t, withSlash, without)
	assert.Equal(t, `"Ramp/"`, without.Params["p2"])
	assert.Contains(t, without.Text, "| where tagPath startswith p2")
	assert.Contains(t, without.Text, "| extend residue = substring(tagPath, strlen(p2))")
	assert.Contains(t, without.Text, "dcountif(child, isnotempty(child))")
}

func TestBrowsePathBindsInReadingOrder(t *testing.T) {
	q := newTestBuilder().Browse(BrowseRequest{System: "gw", Provider: "default", Prefix: "Ramp"})

	assert.True(t, strings.HasPrefix(q.Text, "declare query_parameters(p0:string, p1:string, p2:string);\n"), q.Text)
	assert.Contains(t, q.Text, "| where systemName =~ p0 and tagProvider =~ p1\n| where tagPath startswith p2")
	assert.Equal(t, map[string]string{"p0": `"gw"`, "p1": `"default"`, "p2": `"Ramp/"`}, q.Params)
}

func TestBrowseIsIdempotent(t *testing.T) {
	reqs := []BrowseRequest{
		{},
		{System: "gw", Provider: "default"},
		{System: "gw", Provider: "default", Prefix: "Ramp/Ramp1"},
	}
	for _, req := range reqs {
		a := newTestBuilder().Browse(req)
		b := newTestBuilder().Browse(req)
		assert.Equal(t, a.Text, b.Text)
		assert.Equal(t, a.Params, b.Params)
	}
}

func TestBrowseNeverSplicesInput(t *testing.T) {
	hostile := `x" | take 1; .drop table Events //`
	q := newTestBuilder().Browse(BrowseRequest{System: hostile, Provider: "p'", Prefix: "a\"b"})

	assert.NotContains(t, q.Text, hostile)
	assert.NotContains(t, q.Text, ".drop")
	assert.Equal(t, `"x\" | take 1; .drop table Events //"`, q.Params["p0"])
	assert.Equal(t, `"p'"`, q.Params["p1"])
	assert.Equal(t, `"a\"b/"`, q.Params["p2"])
}

func TestBrowseWithoutLookback(t *testing.T) {
	q := NewBuilder("Events", 0).Browse(BrowseRequest{})
	assert.NotContains(t, q.Text, "ago(")
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, "['Events']", QuoteIdent("Events"))
	assert.Equal(t, `['my \'table\'']`, QuoteIdent("my 'table'"))
	assert.Equal(t, `['a\\b']`, QuoteIdent(`a\b`))
}

func TestQuoteString(t *testing.T) {
	assert.Equal(t, `"plain"`, QuoteString("plain"))
	assert.Equal(t, `"line\nbreak\ttab"`, QuoteString("line\nbreak\ttab"))
	assert.Equal(t, `"q\"uote and 'single'"`, QuoteString(`q"uote and 'single'`))
}

func TestDateLiteral(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 30, 45, 123456700, time.FixedZone("x", 3600))
	assert.Equal(t, "datetime(2024-03-01 11:30:45.1234567)", DateLiteral(ts))
}

func TestDensity(t *testing.T) {
	tags := []tag.Key{
		tag.NewKey("gw", "default", "Ramp/Ramp1"),
		tag.NewKey("gw", "default", "Ramp/Ramp2"),
	}
	q, err := newTestBuilder().Density(tags, Window{Start: t0, End: t1})
	require.NoError(t, err)

	assert.Contains(t, q.Text, "| where timestamp >= datetime(2024-03-01 12:00:00.0000000) and timestamp < datetime(2024-03-01 12:10:00.0000000)")
	assert.Contains(t, q.Text, "(systemName =~ p0 and tagProvider =~ p1 and tagPath =~ p2) or (systemName =~ p0 and tagProvider =~ p1 and tagPath =~ p3)")
	assert.Contains(t, q.Text, "summarize startTimestamp = min(timestamp), endTimestamp = max(timestamp) by systemName, tagProvider, tagPath")
	assert.Len(t, q.Params, 4)
}

func TestRawReadHasNoSummarize(t *testing.T) {
	tags := []tag.Key{tag.NewKey("gw", "default", "Ramp/Ramp1")}
	q, err := newTestBuilder().Raw(tags, Window{Start: t0, End: t1})
	require.NoError(t, err)

	assert.NotContains(t, q.Text, "summarize")
	assert.Contains(t, q.Text, "| project systemName, tagProvider, tagPath, value, value_double, value_integer, timestamp, quality")
	assert.True(t, strings.HasSuffix(q.Text, "| sort by systemName asc, tagProvider asc, tagPath asc, timestamp asc"))
}

func TestBlockedReadBucket(t *testing.T) {
	tags := []tag.Key{tag.NewKey("gw", "default", "Ramp/Ramp1")}
	for _, ms := range []int64{1, 1000, 60000, 86_400_000} {
		q, err := newTestBuilder().Blocked(tags, Window{Start: t0, End: t1, BucketMillis: ms}, "max")
		require.NoError(t, err)

		assert.Contains(t, q.Text, "| summarize value = max(numeric), quality = min(quality)")
		assert.Contains(t, q.Text, fmt.Sprintf("timestamp = bin_at(timestamp, %dms, datetime(2024-03-01 12:00:00.0000000))", ms))
	}
}

func TestBlockedCountIsCountif(t *testing.T) {
	tags := []tag.Key{tag.NewKey("gw", "default", "Ramp/Ramp1")}
	q, err := newTestBuilder().Blocked(tags, Window{Start: t0, End: t1, BucketMillis: 1000}, "count")
	require.NoError(t, err)
	assert.Contains(t, q.Text, "value = countif(isnotnull(numeric))")
}

func TestReadPicksShape(t *testing.T) {
	tags := []tag.Key{tag.NewKey("gw", "default", "Ramp/Ramp1")}
	b := newTestBuilder()

	raw, err := b.Read(tags, Window{Start: t0, End: t1}, "avg")
	require.NoError(t, err)
	assert.NotContains(t, raw.Text, "summarize")

	blocked, err := b.Read(tags, Window{Start: t0, End: t1, BucketMillis: 60000}, "avg")
	require.NoError(t, err)
	assert.Contains(t, blocked.Text, "summarize value = avg(numeric)")
}

func TestReadErrors(t *testing.T) {
	b := newTestBuilder()
	good := []tag.Key{tag.NewKey("gw", "default", "Ramp/Ramp1")}

	_, err := b.Raw(nil, Window{Start: t0, End: t1})
	assert.ErrorIs(t, err, ErrNoTags)

	_, err = b.Raw([]tag.Key{tag.NewKey("gw", "default", "  ")}, Window{Start: t0, End: t1})
	assert.ErrorIs(t, err, ErrNoTags)

	_, err = b.Raw(good, Window{Start: t1, End: t0})
	assert.ErrorIs(t, err, ErrEmptyWindow)

	_, err = b.Blocked(good, Window{Start: t0, End: t1}, "avg")
	assert.ErrorIs(t, err, ErrBucketNeeded)

	_, err = b.Blocked(good, Window{Start: t0, End: t1, BucketMillis: 10}, "avg(x) | take 1")
	assert.ErrorIs(t, err, ErrBadFunction)
}

func TestTagPredicateDeduplicates(t *testing.T) {
	tags := []tag.Key{
		tag.NewKey("gw", "default", "Ramp/Ramp1"),
		tag.NewKey("GW", "Default", "ramp/ramp1"),
		tag.NewKey("gw", "default", ""),
	}
	q, err := newTestBuilder().Raw(tags, Window{Start: t0, End: t1})
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(q.Text, "tagPath =~"))
}

func TestBlockedSeveralFunctions(t *testing.T) {
	tags := []tag.Key{tag.NewKey("gw", "default", "Ramp/Ramp1")}
	fns := []string{"avg", "max", "avg"}
	q, err := newTestBuilder().Blocked(tags, Window{Start: t0, End: t1, BucketMillis: 1000}, fns...)
	require.NoError(t, err)

	assert.Contains(t, q.Text, "| summarize value_avg = avg(numeric), value_max = max(numeric), quality = min(quality) by")
	assert.Equal(t, "value_max", ValueColumn(fns, "max"))
	assert.Equal(t, "value", ValueColumn([]string{"sum", "sum"}, "sum"))

	_, err = newTestBuilder().Blocked(tags, Window{Start: t0, End: t1, BucketMillis: 1000})
	assert.ErrorIs(t, err, ErrBadFunction)
}
