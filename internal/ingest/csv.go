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
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/cardinalhq/adxhistorian/internal/kusto"
	"github.com/cardinalhq/adxhistorian/internal/tag"
	"github.com/cardinalhq/adxhistorian/kql"
)

// Columns is the fixed CSV layout, matching the events table schema.
var Columns = []string{
	"systemName",
	"tagProvider",
	"tagPath",
	"value",
	"value_double",
	"value_integer",
	"timestamp",
	"quality",
}

// TableSchema is the column list used when the events table is created.
const TableSchema = "systemName:string, tagProvider:string, tagPath:string, value:dynamic, value_double:real, value_integer:int, timestamp:datetime, quality:int"

// Encode renders samples as gzip-compressed CSV without a header row.
func Encode(samples []tag.Sample) (kusto.Payload, error) {
	var raw countingWriter
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	raw.w = zw

	if err := WriteCSV(&raw, samples); err != nil {
		return kusto.Payload{}, err
	}
	if err := zw.Close(); err != nil {
		return kusto.Payload{}, fmt.Errorf("compressing batch: %w", err)
	}
	return kusto.Payload{
		Data:    buf.Bytes(),
		RawSize: raw.n,
		Format:  kusto.FormatCSV,
	}, nil
}

// WriteCSV writes one row per sample to w.
func WriteCSV(w io.Writer, samples []tag.Sample) error {
	cw := csv.NewWriter(w)
	row := make([]string, len(Columns))
	for i, s := range samples {
		if err := fillRow(row, s); err != nil {
			return fmt.Errorf("encoding sample %d (%s): %w", i, s.Key, err)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing sample %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func fillRow(row []string, s tag.Sample) error {
	row[0] = s.Key.System
	row[1] = s.Key.Provider
	row[2] = s.Key.Path

	value, dbl, integer, err := encodeValue(s.Value)
	if err != nil {
		return err
	}
	row[3] = value
	row[4] = dbl
	row[5] = integer

	row[6] = ""
	if !s.Timestamp.IsZero() {
		row[6] = FormatTimestamp(s.Timestamp)
	}
	row[7] = strconv.Itoa(int(s.Quality))
	return nil
}

// FormatTimestamp renders t in UTC with seven fractional digits.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(kql.DateLayout)
}

// encodeValue returns the JSON form of v and at most one of the typed
// projections. Integers that do not fit the 32-bit integer column are
// projected as reals instead.
func encodeValue(v any) (value, dbl, integer string, err error) {
	switch n := v.(type) {
	case nil:
		return "", "", "", nil
	case float64:
		return floatValue(n, 64)
	case float32:
		return floatValue(float64(n), 32)
	case bool:
		if n {
			return "true", "", "1", nil
		}
		return "false", "", "0", nil
	case int:
		return intValue(int64(n))
	case int8:
		return intValue(int64(n))
	case int16:
		return intValue(int64(n))
	case int32:
		return intValue(int64(n))
	case int64:
		return intValue(n)
	case uint8:
		return intValue(int64(n))
	case uint16:
		return intValue(int64(n))
	case uint32:
		return intValue(int64(n))
	case uint:
		return uintValue(uint64(n))
	case uint64:
		return uintValue(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return intValue(i)
		}
		f, err := n.Float64()
		if err != nil {
			return "", "", "", fmt.Errorf("invalid number %q", n.String())
		}
		return floatValue(f, 64)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", "", "", fmt.Errorf("marshaling value: %w", err)
	}
	return string(b), "", "", nil
}

// floatValue keeps non-finite values out of value_double and stores them as
// JSON strings in the dynamic column.
func floatValue(f float64, bits int) (value, dbl, integer string, err error) {
	switch {
	case math.IsNaN(f):
		return `"NaN"`, "", "", nil
	case math.IsInf(f, 1):
		return `"Infinity"`, "", "", nil
	case math.IsInf(f, -1):
		return `"-Infinity"`, "", "", nil
	}
	s := strconv.FormatFloat(f, 'g', -1, bits)
	return s, s, "", nil
}

func intValue(n int64) (value, dbl, integer string, err error) {
	s := strconv.FormatInt(n, 10)
	if n < math.MinInt32 || n > math.MaxInt32 {
		return s, s, "", nil
	}
	return s, "", s, nil
}

func uintValue(n uint64) (value, dbl, integer string, err error) {
	if n <= math.MaxInt32 {
		return intValue(int64(n))
	}
	s := strconv.FormatUint(n, 10)
	return s, s, "", nil
}

type countingWriter struct {
	w io.Writer
	n int
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += n
	return n, err
}
