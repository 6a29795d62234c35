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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cardinalhq/oteltools/pkg/dateutils"
	"github.com/prometheus/common/model"

	"github.com/cardinalhq/adxhistorian/internal/aggregate"
)

// QueryController carries the host's settings for one historical read.
type QueryController interface {
	// BlockSize is the bucket width in milliseconds; zero or less asks for
	// raw samples.
	BlockSize() int64
	StartDate() time.Time
	EndDate() time.Time
	// AggregationMode is used for columns that do not name an aggregate.
	AggregationMode() aggregate.Kind
	QueryID() string
}

// QueryParams is a QueryController backed by plain values.
type QueryParams struct {
	BlockSizeMillis int64          `json:"blockSize"`
	Start           time.Time      `json:"startDate"`
	End             time.Time      `json:"endDate"`
	Aggregate       aggregate.Kind `json:"aggregationMode,omitempty"`
	ID              string         `json:"queryId,omitempty"`
}

var _ QueryController = QueryParams{}

func (p QueryParams) BlockSize() int64                { return p.BlockSizeMillis }
func (p QueryParams) StartDate() time.Time            { return p.Start }
func (p QueryParams) EndDate() time.Time              { return p.End }
func (p QueryParams) AggregationMode() aggregate.Kind { return p.Aggregate }
func (p QueryParams) QueryID() string                 { return p.ID }

// ParseRange turns a start and end into a window. Each side is either an
// RFC 3339 timestamp or a relative expression such as "e-1h" and "now";
// when either side is relative both are resolved together.
func ParseRange(s, e string) (start, end time.Time, err error) {
	st, serr := time.Parse(time.RFC3339Nano, s)
	en, eerr := time.Parse(time.RFC3339Nano, e)
	if serr == nil && eerr == nil {
		start, end = st.UTC(), en.UTC()
	} else {
		sms, ems, err := dateutils.ToStartEnd(s, e)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid time range: %w", err)
		}
		start, end = time.UnixMilli(sms).UTC(), time.UnixMilli(ems).UTC()
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, errors.New("invalid time range: end is not after start")
	}
	return start, end, nil
}

// ParseBlockSize reads a bucket width such as "1m" or "500ms". Empty and
// "0" mean raw samples.
func ParseBlockSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "0" || strings.EqualFold(s, "raw") {
		return 0, nil
	}
	d, err := model.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid block size %q: %w", s, err)
	}
	return time.Duration(d).Milliseconds(), nil
}
