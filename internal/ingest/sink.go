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
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cardinalhq/adxhistorian/internal/tag"
)

// ErrNotAccepting is returned by StoreData outside Startup/Shutdown.
var ErrNotAccepting = errors.New("ingest: sink is not accepting data")

// Flavor names a kind of history the host produces.
type Flavor string

const (
	FlavorSQLTag Flavor = "sqltag"
	FlavorAlarm  Flavor = "alarm"
	FlavorAudit  Flavor = "audit"
)

// Data is one unit of history handed to the sink by the host.
type Data interface {
	appendSamples(dst []tag.Sample) []tag.Sample
}

// Value is a single tag sample.
type Value struct {
	tag.Sample
}

func (v Value) appendSamples(dst []tag.Sample) []tag.Sample {
	return append(dst, v.Sample)
}

// ScanClassSet is the group of samples collected by one scan class tick.
type ScanClassSet struct {
	Name    string
	Samples []tag.Sample
}

func (s ScanClassSet) appendSamples(dst []tag.Sample) []tag.Sample {
	return append(dst, s.Samples...)
}

// Transaction bundles several pieces of history that are stored together.
type Transaction struct {
	Data []Data
}

func (t Transaction) appendSamples(dst []tag.Sample) []tag.Sample {
	for _, d := range t.Data {
		if d != nil {
			dst = d.appendSamples(dst)
		}
	}
	return dst
}

// Flatten returns every sample contained in d, in order.
func Flatten(d Data) []tag.Sample {
	if d == nil {
		return nil
	}
	return d.appendSamples(nil)
}

// Info is the sink status reported to the host.
type Info struct {
	Pipeline  string `json:"pipeline"`
	Available bool   `json:"available"`
	Stored    int64  `json:"stored"`
	Failed    int64  `json:"failed"`
	LastError string `json:"lastError,omitempty"`
}

// Sink receives history from the host and stores it through a Batcher.
type Sink struct {
	pipeline  string
	batcher   *Batcher
	accepting atomic.Bool
	stored    atomic.Int64
	failed    atomic.Int64

	mu      sync.Mutex
	lastErr string
}

// NewSink returns a sink registered under pipeline.
func NewSink(pipeline string, batcher *Batcher) *Sink {
	return &Sink{pipeline: pipeline, batcher: batcher}
}

// PipelineName returns the name the sink is registered under.
func (s *Sink) PipelineName() string {
	return s.pipeline
}

// Startup makes sure the events table exists and starts accepting data. A
// failed table check is only logged since the first store creates the
// table on demand.
func (s *Sink) Startup(ctx context.Context) {
	if err := s.batcher.EnsureTable(ctx); err != nil {
		slog.Error("Failed to ensure events table",
			slog.String("pipeline", s.pipeline),
			slog.String("table", s.batcher.Table()),
			slog.Any("error", err))
	}
	s.accepting.Store(true)
	slog.Info("History sink started", slog.String("pipeline", s.pipeline))
}

// Shutdown stops accepting data.
func (s *Sink) Shutdown() {
	s.accepting.Store(false)
	slog.Info("History sink stopped", slog.String("pipeline", s.pipeline))
}

// IsAccepting reports whether StoreData will take data.
func (s *Sink) IsAccepting() bool {
	return s.accepting.Load()
}

// AcceptsData reports whether the sink stores the given flavor. Only tag
// history is supported.
func (s *Sink) AcceptsData(f Flavor) bool {
	return f == FlavorSQLTag
}

// Info returns the current status.
func (s *Sink) Info() Info {
	s.mu.Lock()
	lastErr := s.lastErr
	s.mu.Unlock()
	return Info{
		Pipeline:  s.pipeline,
		Available: s.IsAccepting(),
		Stored:    s.stored.Load(),
		Failed:    s.failed.Load(),
		LastError: lastErr,
	}
}

// StoreData flattens d and stores it as one batch.
func (s *Sink) StoreData(ctx context.Context, d Data) error {
	if !s.IsAccepting() {
		return ErrNotAccepting
	}
	samples := Flatten(d)
	slog.Debug("Received history", slog.String("pipeline", s.pipeline), slog.Int("samples", len(samples)))

	if err := s.batcher.Store(ctx, samples); err != nil {
		s.failed.Add(int64(len(samples)))
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()
		return err
	}
	s.stored.Add(int64(len(samples)))
	return nil
}
