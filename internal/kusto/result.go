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

package kusto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
)

// Column describes one column of a result table.
type Column struct {
	Name string `json:"ColumnName"`
	Type string `json:"ColumnType"`
}

// Result is a forward-only cursor over the primary table of a v1 response.
// Rows are decoded one at a time straight from the response body; a Result
// must be closed once the caller is done with it.
type Result struct {
	body    io.ReadCloser
	dec     *json.Decoder
	name    string
	columns []Column
	index   map[string]int
	row     []json.RawMessage
	rows    int
	err     error
	done    bool
}

// NewResult reads a v1 response body and positions the cursor before the
// first row of its first table. The Result takes ownership of body.
func NewResult(body io.ReadCloser) (*Result, error) {
	r := &Result{
		body:  body,
		dec:   json.NewDecoder(body),
		index: map[string]int{},
	}
	r.dec.UseNumber()
	if err := r.open(); err != nil {
		_ = body.Close()
		return nil, err
	}
	return r, nil
}

func (r *Result) open() error {
	if err := expectDelim(r.dec, '{'); err != nil {
		return err
	}
	for r.dec.More() {
		key, err := r.key()
		if err != nil {
			return err
		}
		if key != "Tables" {
			if err := skipValue(r.dec); err != nil {
				return err
			}
			continue
		}
		if err := expectDelim(r.dec, '['); err != nil {
			return err
		}
		if !r.dec.More() {
			r.done = true
			return nil
		}
		return r.openTable()
	}
	return errors.New("kusto: response has no Tables")
}

func (r *Result) openTable() error {
	if err := expectDelim(r.dec, '{'); err != nil {
		return err
	}
	for r.dec.More() {
		key, err := r.key()
		if err != nil {
			return err
		}
		switch key {
		case "TableName":
			if err := r.dec.Decode(&r.name); err != nil {
				return fmt.Errorf("kusto: decoding table name: %w", err)
			}
		case "Columns":
			if err := r.dec.Decode(&r.columns); err != nil {
				return fmt.Errorf("kusto: decoding columns: %w", err)
			}
			for i, c := range r.columns {
				r.index[strings.ToLower(c.Name)] = i
			}
		case "Rows":
			if r.columns == nil {
				return errors.New("kusto: rows arrived before columns")
			}
			return expectDelim(r.dec, '[')
		default:
			if err := skipValue(r.dec); err != nil {
				return err
			}
		}
	}
	r.done = true
	return nil
}

func (r *Result) key() (string, error) {
	tok, err := r.dec.Token()
	if err != nil {
		return "", fmt.Errorf("kusto: reading response: %w", err)
	}
	key, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("kusto: unexpected token %v", tok)
	}
	return key, nil
}

// Next advances to the next row. It returns false at the end of the table
// or on error; check Err afterwards.
func (r *Result) Next() bool {
	if r.done || r.err != nil {
		return false
	}
	if !r.dec.More() {
		r.done = true
		return false
	}
	var raw json.RawMessage
	if err := r.dec.Decode(&raw); err != nil {
		r.err = fmt.Errorf("kusto: decoding row %d: %w", r.rows, err)
		return false
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		r.err = rowException(raw)
		return false
	}
	r.row = r.row[:0]
	if err := json.Unmarshal(raw, &r.row); err != nil {
		r.err = fmt.Errorf("kusto: decoding row %d: %w", r.rows, err)
		return false
	}
	r.rows++
	return true
}

// rowException converts an in-band failure, which the service appends as an
// object in place of a row, into an error.
func rowException(raw json.RawMessage) error {
	var ex struct {
		Exceptions []string `json:"Exceptions"`
	}
	if err := json.Unmarshal(raw, &ex); err == nil && len(ex.Exceptions) > 0 {
		return &Error{Code: "PartialQueryFailure", Message: strings.Join(ex.Exceptions, "; ")}
	}
	return &Error{Code: "PartialQueryFailure", Message: string(raw)}
}

// Err returns the first error met while reading rows.
func (r *Result) Err() error {
	return r.err
}

// Close releases the response body. It is safe to call more than once.
func (r *Result) Close() error {
	if r.body == nil {
		return nil
	}
	err := r.body.Close()
	r.body = nil
	r.done = true
	return err
}

// TableName returns the name of the table being read.
func (r *Result) TableName() string {
	return r.name
}

// Columns returns the result schema.
func (r *Result) Columns() []Column {
	return r.columns
}

// Rows returns the number of rows read so far.
func (r *Result) Rows() int {
	return r.rows
}

// Has reports whether the result carries the named column.
func (r *Result) Has(col string) bool {
	_, ok := r.index[strings.ToLower(col)]
	return ok
}

func (r *Result) cell(col string) (json.RawMessage, bool) {
	i, ok := r.index[strings.ToLower(col)]
	if !ok || i >= len(r.row) {
		return nil, false
	}
	c := r.row[i]
	if len(c) == 0 || string(c) == "null" {
		return nil, false
	}
	return c, true
}

// String returns the named cell as text. Non-string cells are returned in
// their JSON form; missing and null cells are "".
func (r *Result) String(col string) string {
	c, ok := r.cell(col)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(c, &s); err == nil {
		return s
	}
	return string(c)
}

// Float returns the named cell as a float64.
func (r *Result) Float(col string) (float64, bool) {
	c, ok := r.cell(col)
	if !ok {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(c, &n); err == nil {
		f, err := n.Float64()
		return f, err == nil
	}
	var s string
	if err := json.Unmarshal(c, &s); err != nil {
		return 0, false
	}
	switch s {
	case "NaN":
		return math.NaN(), true
	case "Infinity", "+Infinity":
		return math.Inf(1), true
	case "-Infinity":
		return math.Inf(-1), true
	}
	f, err := strconv.ParseFloat(s, 64)
	return f, err == nil
}

// Int returns the named cell as an int64. Whole-valued reals convert.
func (r *Result) Int(col string) (int64, bool) {
	c, ok := r.cell(col)
	if !ok {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(c, &n); err != nil {
		var b bool
		if err := json.Unmarshal(c, &b); err == nil {
			if b {
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// Bool returns the named cell as a bool.
func (r *Result) Bool(col string) (bool, bool) {
	c, ok := r.cell(col)
	if !ok {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(c, &b); err == nil {
		return b, true
	}
	if i, ok := r.Int(col); ok {
		return i != 0, true
	}
	return false, false
}

// Time returns the named datetime cell in UTC.
func (r *Result) Time(col string) (time.Time, bool) {
	s := r.String(col)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// Dynamic returns the named dynamic cell decoded into Go values. The v1
// protocol ships dynamic values as serialized JSON text, so a string cell
// that holds JSON is decoded once more.
func (r *Result) Dynamic(col string) any {
	c, ok := r.cell(col)
	if !ok {
		return nil
	}
	var v any
	if err := unmarshalNumber(c, &v); err != nil {
		return nil
	}
	s, isString := v.(string)
	if !isString {
		return v
	}
	var inner any
	if err := unmarshalNumber([]byte(s), &inner); err == nil {
		return inner
	}
	return s
}

func unmarshalNumber(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data")
	}
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("kusto: reading response: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("kusto: expected %q, got %v", want, tok)
	}
	return nil
}

func skipValue(dec *json.Decoder) error {
	var discard json.RawMessage
	if err := dec.Decode(&discard); err != nil {
		return fmt.Errorf("kusto: reading response: %w", err)
	}
	return nil
}
