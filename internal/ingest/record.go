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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cardinalhq/adxhistorian/internal/tag"
)

// Record is the document form of a sample accepted over HTTP and from
// files. Quality defaults to GOOD and Timestamp to the time of conversion.
type Record struct {
	System    string       `json:"system" yaml:"system"`
	Provider  string       `json:"provider" yaml:"provider"`
	Path      string       `json:"path" yaml:"path"`
	Value     any          `json:"value" yaml:"value"`
	Timestamp time.Time    `json:"timestamp" yaml:"timestamp"`
	Quality   *tag.Quality `json:"quality,omitempty" yaml:"quality,omitempty"`
}

// Sample converts r, rejecting records that do not name a tag.
func (r Record) Sample(now time.Time) (tag.Sample, error) {
	if strings.TrimSpace(r.System) == "" || strings.TrimSpace(r.Path) == "" {
		return tag.Sample{}, errors.New("record needs a system and a path")
	}
	s := tag.Sample{
		Key:       tag.NewKey(r.System, r.Provider, r.Path),
		Value:     r.Value,
		Timestamp: r.Timestamp,
		Quality:   tag.QualityGood,
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = now
	}
	if r.Quality != nil {
		s.Quality = *r.Quality
	}
	return s, nil
}

// Records converts a batch, naming the index of the first bad record.
func Records(rs []Record, now time.Time) (ScanClassSet, error) {
	set := ScanClassSet{Samples: make([]tag.Sample, 0, len(rs))}
	for i, r := range rs {
		s, err := r.Sample(now)
		if err != nil {
			return ScanClassSet{}, fmt.Errorf("record %d: %w", i, err)
		}
		set.Samples = append(set.Samples, s)
	}
	return set, nil
}
