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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/adxhistorian/internal/aggregate"
	"github.com/cardinalhq/adxhistorian/internal/tag"
	"github.com/cardinalhq/adxhistorian/kql"
)

// ErrInvalidState is returned when a lifecycle method is called out of
// order.
var ErrInvalidState = errors.New("history: invalid query state")

// State is the lifecycle position of an Executor.
type State int

const (
	StateCreated State = iota
	StateInitialized
	StateReading
	StateDone
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "CREATED"
	case StateInitialized:
		return "INITIALIZED"
	case StateReading:
		return "READING"
	case StateDone:
		return "DONE"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Executor drives one historical read:
//
//	Initialize -> StartReading -> ProcessData -> EndReading
//
// It is not safe for concurrent use; each read gets its own Executor and
// its own session.
type Executor struct {
	db         string
	builder    *kql.Builder
	connector  Connector
	controller QueryController

	nodes   []Column
	valid   []*ProcessedColumn
	raw     bool
	fns     []string
	session Querier

	state     State
	watermark int64
	processed bool
	released  bool
}

// NewExecutor prepares the output columns for defs. Definitions without a
// tag path become error columns and are never queried.
func NewExecutor(db string, builder *kql.Builder, connector Connector, defs []ColumnDefinition, controller QueryController) *Executor {
	e := &Executor{
		db:         db,
		builder:    builder,
		connector:  connector,
		controller: controller,
		raw:        controller.BlockSize() <= 0,
		watermark:  NoData,
	}
	for _, d := range defs {
		k, ok := d.Path.Key()
		if !ok || k.Blank() {
			slog.Debug("Column has no valid tag path",
				slog.String("queryId", controller.QueryID()),
				slog.String("path", d.Path.String()))
			e.nodes = append(e.nodes, newErrorColumn(d.Name, tag.QualityConfigError))
			continue
		}
		kind := d.Aggregate
		if kind == "" {
			kind = controller.AggregationMode()
		}
		fn := aggregate.Resolve(kind)
		c := newProcessedColumn(d.Name, k, e.raw, fn)
		e.nodes = append(e.nodes, c)
		e.valid = append(e.valid, c)
		e.fns = append(e.fns, fn)
	}
	return e
}

// ColumnNodes returns one column per definition, in definition order.
func (e *Executor) ColumnNodes() []Column {
	return e.nodes
}

// State returns the current lifecycle state.
func (e *Executor) State() State {
	return e.state
}

// Initialize opens the session. No request is sent.
func (e *Executor) Initialize(ctx context.Context) error {
	if e.state != StateCreated {
		return fmt.Errorf("%w: initialize in %s", ErrInvalidState, e.state)
	}
	if len(e.valid) > 0 {
		session, err := e.connector.Connect(ctx)
		if err != nil {
			return fmt.Errorf("history: opening session: %w", err)
		}
		e.session = session
	}
	e.state = StateInitialized
	return nil
}

// EffectiveWindowSizeMS is zero: any window size is accepted.
func (e *Executor) EffectiveWindowSizeMS() int {
	return 0
}

// StartReading runs the single read request and binds every row. Nothing
// is sent when no column is valid.
func (e *Executor) StartReading(ctx context.Context) error {
	if e.state != StateInitialized {
		return fmt.Errorf("%w: startReading in %s", ErrInvalidState, e.state)
	}
	if len(e.valid) == 0 {
		e.state = StateReading
		return nil
	}

	keys := make([]tag.Key, len(e.valid))
	for i, c := range e.valid {
		keys[i] = c.Key()
	}
	w := kql.Window{
		Start:        e.controller.StartDate(),
		End:          e.controller.EndDate(),
		BucketMillis: max(e.controller.BlockSize(), 0),
	}
	q, err := e.builder.Read(keys, w, e.fns...)
	if err != nil {
		return fmt.Errorf("history: building read: %w", err)
	}

	slog.Debug("Reading history",
		slog.String("queryId", e.controller.QueryID()),
		slog.Int("columns", len(e.valid)),
		slog.Bool("raw", e.raw),
		slog.Time("start", w.Start),
		slog.Time("end", w.End),
		slog.Int64("blockSize", w.BucketMillis))

	start := time.Now()
	res, err := e.session.Query(ctx, e.db, q)
	if err != nil {
		recordRead(ctx, e.raw, start, err)
		return fmt.Errorf("history: reading: %w", err)
	}
	b := newReadBinder(e.valid, e.raw, e.fns)
	err = b.bind(ctx, res)
	if cerr := res.Close(); err == nil && cerr != nil {
		err = cerr
	}
	recordRead(ctx, e.raw, start, err)
	if err != nil {
		return fmt.Errorf("history: binding rows: %w", err)
	}
	e.watermark = b.watermark
	e.state = StateReading
	return nil
}

// HasMore is true until ProcessData has run.
func (e *Executor) HasMore() bool {
	return !e.processed
}

// ProcessData finalizes the read and returns the watermark in epoch
// milliseconds, or NoData. Repeated calls return the same value.
func (e *Executor) ProcessData() (int64, error) {
	switch e.state {
	case StateReading:
		e.state = StateDone
		e.processed = true
		return e.watermark, nil
	case StateDone:
		return e.watermark, nil
	default:
		return NoData, fmt.Errorf("%w: processData in %s", ErrInvalidState, e.state)
	}
}

// EndReading releases the session. It may be called in any state, more
// than once.
func (e *Executor) EndReading() error {
	if e.released {
		return nil
	}
	e.released = true
	var errs *multierror.Error
	if c, ok := e.session.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("closing session: %w", err))
		}
	}
	e.session = nil
	return errs.ErrorOrNil()
}

// NextTime is the latest possible time: the executor never asks to be
// polled again.
func (e *Executor) NextTime() int64 {
	return math.MaxInt64
}

func recordRead(ctx context.Context, raw bool, start time.Time, err error) {
	attrs := metric.WithAttributes(
		attribute.Bool("raw", raw),
		attribute.Bool("error", err != nil),
	)
	readCount.Add(ctx, 1, attrs)
	readDuration.Record(ctx, time.Since(start).Seconds(), attrs)
}
