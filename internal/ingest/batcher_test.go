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

package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/adxhistorian/internal/kusto"
	"github.com/cardinalhq/adxhistorian/internal/tag"
)

var ts = time.Date(2024, 3, 1, 12, 0, 0, 123456700, time.UTC)

func sample(path string, v any) tag.Sample {
	return tag.Sample{
		Key:       tag.NewKey("gw", "default", path),
		Value:     v,
		Timestamp: ts,
		Quality:   tag.QualityGood,
	}
}

func decodeRows(t *testing.T, p kusto.Payload) [][]string {
	t.Helper()
	zr, err := gzip.NewReader(bytes.NewReader(p.Data))
	require.NoError(t, err)
	raw, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, len(raw), p.RawSize)
	rows, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestEncodeRowLayout(t *testing.T) {
	p, err := Encode([]tag.Sample{
		sample("Ramp/Ramp1", 1.25),
		sample("Ramp/Count", 42),
		sample("Ramp/Flag", true),
		sample("Ramp/Text", `say "hi", ok`),
		sample("Ramp/Big", int64(math.MaxInt32)+1),
		sample("Ramp/Null", nil),
	})
	require.NoError(t, err)
	assert.Equal(t, kusto.FormatCSV, p.Format)

	rows := decodeRows(t, p)
	require.Len(t, rows, 6)
	for _, r := range rows {
		assert.Len(t, r, len(Columns))
		assert.Equal(t, "gw", r[0])
		assert.Equal(t, "default", r[1])
		assert.Equal(t, "2024-03-01 12:00:00.1234567", r[6])
		assert.Equal(t, "192", r[7])
	}

	assert.Equal(t, []string{"1.25", "1.25", ""}, rows[0][3:6])
	assert.Equal(t, []string{"42", "", "42"}, rows[1][3:6])
	assert.Equal(t, []string{"true", "", "1"}, rows[2][3:6])
	assert.Equal(t, []string{`"say \"hi\", ok"`, "", ""}, rows[3][3:6])
	assert.Equal(t, []string{"2147483648", "2147483648", ""}, rows[4][3:6])
	assert.Equal(t, []string{"", "", ""}, rows[5][3:6])
}

func TestFloatRoundTrip(t *testing.T) {
	values := []float64{0.1, 1.0 / 3.0, -2.5e-300, math.MaxFloat64, math.SmallestNonzeroFloat64, 123456789.123456789}
	samples := make([]tag.Sample, len(values))
	for i, v := range values {
		samples[i] = sample("F", v)
	}
	p, err := Encode(samples)
	require.NoError(t, err)

	rows := decodeRows(t, p)
	for i, v := range values {
		got, err := strconv.ParseFloat(rows[i][4], 64)
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Empty(t, rows[i][5])
	}
}

func TestEncodeNonFinite(t *testing.T) {
	p, err := Encode([]tag.Sample{
		sample("A", math.NaN()),
		sample("B", math.Inf(-1)),
		sample("C", float32(math.Inf(1))),
	})
	require.NoError(t, err)
	rows := decodeRows(t, p)
	assert.Equal(t, []string{`"NaN"`, "", ""}, rows[0][3:6])
	assert.Equal(t, []string{`"-Infinity"`, "", ""}, rows[1][3:6])
	assert.Equal(t, []string{`"Infinity"`, "", ""}, rows[2][3:6])

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		value, dbl, integer, err := encodeValue(v)
		require.NoError(t, err)
		assert.NotEmpty(t, value)
		assert.Empty(t, dbl)
		assert.Empty(t, integer)
	}
}

type fakeIngestor struct {
	payloads []kusto.Payload
	errs     []error
}

func (f *fakeIngestor) Ingest(_ context.Context, _, _ string, p kusto.Payload) error {
	f.payloads = append(f.payloads, p)
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

type fakeCommander struct {
	commands []string
	errs     map[string]error
}

func (f *fakeCommander) Mgmt(_ context.Context, _, command string) (*kusto.Result, error) {
	f.commands = append(f.commands, command)
	for prefix, err := range f.errs {
		if strings.HasPrefix(command, prefix) {
			return nil, err
		}
	}
	return kusto.NewResult(io.NopCloser(strings.NewReader(`{"Tables":[]}`)))
}

var notFound = &kusto.Error{StatusCode: http.StatusNotFound, Code: "BadRequest_EntityNotFound", Message: "table not found"}

func TestStoreEmptyBatchSubmitsNothing(t *testing.T) {
	ing := &fakeIngestor{}
	cmd := &fakeCommander{}
	b := NewBatcher("db", "Events", ing, cmd)

	require.NoError(t, b.Store(t.Context(), nil))
	require.NoError(t, b.Store(t.Context(), []tag.Sample{}))
	assert.Empty(t, ing.payloads)
	assert.Empty(t, cmd.commands)
}

func TestStoreSubmitsOnePayload(t *testing.T) {
	ing := &fakeIngestor{}
	b := NewBatcher("db", "Events", ing, &fakeCommander{})

	require.NoError(t, b.Store(t.Context(), []tag.Sample{sample("A", 1), sample("B", 2), sample("C", 3)}))
	require.Len(t, ing.payloads, 1)
	assert.Len(t, decodeRows(t, ing.payloads[0]), 3)
}

func TestStoreCreatesTableAndRetriesOnce(t *testing.T) {
	ing := &fakeIngestor{errs: []error{notFound}}
	cmd := &fakeCommander{}
	b := NewBatcher("db", "Events", ing, cmd)

	require.NoError(t, b.Store(t.Context(), []tag.Sample{sample("A", 1)}))
	assert.Len(t, ing.payloads, 2)
	require.Len(t, cmd.commands, 1)
	assert.Equal(t, ".create table ['Events'] ("+TableSchema+")", cmd.commands[0])
}

func TestStoreRetryFailureSurfaces(t *testing.T) {
	ing := &fakeIngestor{errs: []error{notFound, notFound}}
	b := NewBatcher("db", "Events", ing, &fakeCommander{})

	err := b.Store(t.Context(), []tag.Sample{sample("A", 1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTableCreate)
	assert.Len(t, ing.payloads, 2)
}

func TestStoreCreateFailure(t *testing.T) {
	ing := &fakeIngestor{errs: []error{notFound}}
	cmd := &fakeCommander{errs: map[string]error{".create": errors.New("forbidden")}}
	b := NewBatcher("db", "Events", ing, cmd)

	err := b.Store(t.Context(), []tag.Sample{sample("A", 1)})
	assert.ErrorIs(t, err, ErrTableCreate)
	assert.Len(t, ing.payloads, 1)
}

func TestStoreOtherErrorsAreNotRetried(t *testing.T) {
	boom := errors.New("throttled")
	ing := &fakeIngestor{errs: []error{boom}}
	cmd := &fakeCommander{}
	b := NewBatcher("db", "Events", ing, cmd)

	err := b.Store(t.Context(), []tag.Sample{sample("A", 1)})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrTableCreate)
	assert.Len(t, ing.payloads, 1)
	assert.Empty(t, cmd.commands)
}

func TestEnsureTable(t *testing.T) {
	cmd := &fakeCommander{}
	require.NoError(t, NewBatcher("db", "Events", &fakeIngestor{}, cmd).EnsureTable(t.Context()))
	assert.Equal(t, []string{".show table ['Events']"}, cmd.commands)

	cmd = &fakeCommander{errs: map[string]error{".show": notFound}}
	require.NoError(t, NewBatcher("db", "Events", &fakeIngestor{}, cmd).EnsureTable(t.Context()))
	require.Len(t, cmd.commands, 2)
	assert.True(t, strings.HasPrefix(cmd.commands[1], ".create table ['Events']"))
}
