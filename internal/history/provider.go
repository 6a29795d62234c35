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
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/cardinalhq/adxhistorian/internal/aggregate"
	"github.com/cardinalhq/adxhistorian/internal/ingest"
	"github.com/cardinalhq/adxhistorian/internal/tag"
	"github.com/cardinalhq/adxhistorian/kql"
)

// Status is the provider state reported to the host.
type Status string

const (
	StatusUninitialized Status = "UNINITIALIZED"
	StatusRunning       Status = "RUNNING"
	StatusStopped       Status = "STOPPED"
)

// SinkRegistry is the host's list of data sinks.
type SinkRegistry interface {
	RegisterSink(s *ingest.Sink) error
	UnregisterSink(s *ingest.Sink) error
}

// BrowseFilter narrows a browse listing. NameFilter is a glob matched,
// ignoring case, against the last element of each result path.
type BrowseFilter struct {
	NameFilter string `json:"nameFilter,omitempty"`
	MaxResults int    `json:"maxResults,omitempty"`
}

// BrowseResults is the answer to a browse call.
type BrowseResults struct {
	Results        []BrowseResult `json:"results"`
	TotalAvailable int            `json:"totalAvailable"`
	Quality        tag.Quality    `json:"quality"`
}

// TimelineSet is the answer to a density call.
type TimelineSet struct {
	Timelines []Timeline `json:"timelines"`
}

// ProviderConfig holds what a Provider needs.
type ProviderConfig struct {
	Name      string
	Database  string
	Builder   *kql.Builder
	Connector Connector
	Batcher   *ingest.Batcher
	Registry  SinkRegistry
}

// Provider is the host-facing history provider: it owns the sink used for
// storage and creates executors for reads.
type Provider struct {
	cfg ProviderConfig

	mu      sync.Mutex
	sink    *ingest.Sink
	session Querier
	status  Status
}

// NewProvider returns a provider that has not been started.
func NewProvider(cfg ProviderConfig) *Provider {
	return &Provider{cfg: cfg, status: StatusUninitialized}
}

// Name returns the provider name, which is also the sink pipeline name.
func (p *Provider) Name() string {
	return p.cfg.Name
}

// Startup creates the sink under the provider's name, registers it and
// opens the session used for browse and density calls. Failures are logged
// and the provider still reports RUNNING; reads surface their own errors.
func (p *Provider) Startup(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cfg.Batcher != nil {
		p.sink = ingest.NewSink(p.cfg.Name, p.cfg.Batcher)
		p.sink.Startup(ctx)
		if p.cfg.Registry != nil {
			if err := p.cfg.Registry.RegisterSink(p.sink); err != nil {
				slog.Error("Error registering history sink", slog.String("provider", p.cfg.Name), slog.Any("error", err))
			}
		}
	}

	session, err := p.cfg.Connector.Connect(ctx)
	if err != nil {
		slog.Error("Error connecting history provider", slog.String("provider", p.cfg.Name), slog.Any("error", err))
	} else {
		p.session = session
	}
	p.status = StatusRunning
	slog.Info("History provider started", slog.String("provider", p.cfg.Name))
}

// Shutdown unregisters the sink and releases the session.
func (p *Provider) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs *multierror.Error
	if p.sink != nil {
		if p.cfg.Registry != nil {
			if err := p.cfg.Registry.UnregisterSink(p.sink); err != nil {
				errs = multierror.Append(errs, fmt.Errorf("unregistering sink: %w", err))
			}
		}
		p.sink.Shutdown()
	}
	if c, ok := p.session.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("closing session: %w", err))
		}
	}
	p.session = nil
	p.status = StatusStopped
	return errs.ErrorOrNil()
}

// Status reports the provider state.
func (p *Provider) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Sink returns the sink created at startup, or nil.
func (p *Provider) Sink() *ingest.Sink {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sink
}

// AvailableAggregates returns the full aggregate catalog.
func (p *Provider) AvailableAggregates() []aggregate.Kind {
	return aggregate.Kinds()
}

// CreateQuery returns an executor for defs with its own session.
func (p *Provider) CreateQuery(defs []ColumnDefinition, controller QueryController) *Executor {
	slog.Debug("Creating query",
		slog.String("provider", p.cfg.Name),
		slog.String("queryId", controller.QueryID()),
		slog.Int("columns", len(defs)))
	return NewExecutor(p.cfg.Database, p.cfg.Builder, p.cfg.Connector, defs, controller)
}

func (p *Provider) querier() Querier {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session
}

// Browse lists the children of at. Store failures produce an empty listing
// that still carries GOOD quality.
func (p *Provider) Browse(ctx context.Context, at QualifiedPath, filter *BrowseFilter) BrowseResults {
	out := BrowseResults{Results: []BrowseResult{}, Quality: tag.QualityGood}

	histprov, ok := at.Get(ComponentHistoryProvider)
	if !ok {
		histprov = p.cfg.Name
	}
	req := kql.BrowseRequest{}
	if drv, ok := at.Get(ComponentDriver); ok && drv != "" {
		req.System, req.Provider = tag.ParseDriver(drv)
		req.Prefix, _ = at.Get(ComponentTag)
	}
	q := p.cfg.Builder.Browse(req)

	s := p.querier()
	if s == nil {
		slog.Error("Browse without a session, returning empty results", slog.String("path", at.String()))
		return out
	}
	res, err := s.Query(ctx, p.cfg.Database, q)
	if err != nil {
		slog.Error("Browse query failed, returning empty results",
			slog.String("path", at.String()),
			slog.String("level", req.Level().String()),
			slog.Any("error", err))
		return out
	}
	results, err := bindBrowse(res, histprov)
	_ = res.Close()
	if err != nil {
		slog.Error("Reading browse results failed, returning empty results",
			slog.String("path", at.String()),
			slog.Any("error", err))
		return out
	}

	results = applyFilter(results, filter)
	out.TotalAvailable = len(results)
	if filter != nil && filter.MaxResults > 0 && len(results) > filter.MaxResults {
		results = results[:filter.MaxResults]
	}
	out.Results = results
	return out
}

func applyFilter(results []BrowseResult, filter *BrowseFilter) []BrowseResult {
	if filter == nil || filter.NameFilter == "" {
		return results
	}
	pattern := strings.ToLower(filter.NameFilter)
	kept := results[:0]
	for _, r := range results {
		matched, err := path.Match(pattern, strings.ToLower(r.Path.LastPathElement()))
		if err != nil {
			slog.Warn("Ignoring malformed browse name filter", slog.String("filter", filter.NameFilter), slog.Any("error", err))
			return results
		}
		if matched {
			kept = append(kept, r)
		}
	}
	return kept
}

// QueryDensity reports the span of stored data for each tag in the window.
// Store failures produce an empty set.
func (p *Provider) QueryDensity(ctx context.Context, paths []QualifiedPath, start, end time.Time, queryID string) TimelineSet {
	out := TimelineSet{Timelines: []Timeline{}}

	keys := make([]tag.Key, 0, len(paths))
	for _, qp := range paths {
		if k, ok := qp.Key(); ok && !k.Blank() {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return out
	}
	q, err := p.cfg.Builder.Density(keys, kql.Window{Start: start, End: end})
	if err != nil {
		slog.Warn("Cannot build density query", slog.String("queryId", queryID), slog.Any("error", err))
		return out
	}

	s := p.querier()
	if s == nil {
		slog.Error("Density without a session, returning empty results", slog.String("queryId", queryID))
		return out
	}
	res, err := s.Query(ctx, p.cfg.Database, q)
	if err != nil {
		slog.Error("Density query failed, returning empty results", slog.String("queryId", queryID), slog.Any("error", err))
		return out
	}
	timelines, err := bindDensity(res, p.cfg.Name)
	_ = res.Close()
	if err != nil {
		slog.Error("Reading density results failed, returning empty results", slog.String("queryId", queryID), slog.Any("error", err))
		return out
	}
	out.Timelines = timelines
	return out
}
