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

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/adxhistorian/internal/aggregate"
	"github.com/cardinalhq/adxhistorian/internal/history"
)

var tracer = otel.Tracer("github.com/cardinalhq/adxhistorian/internal/gateway")

// Service exposes a history provider over HTTP.
type Service struct {
	provider         *history.Provider
	defaultAggregate aggregate.Kind
	now              func() time.Time
}

// New returns a service for provider. Reads that name no aggregate use
// Average.
func New(provider *history.Provider) *Service {
	return &Service{
		provider:         provider,
		defaultAggregate: aggregate.Average,
		now:              time.Now,
	}
}

// Handler returns the API routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/browse", s.traced("browse", s.handleBrowse))
	mux.HandleFunc("/api/v1/read", s.traced("read", s.handleRead))
	mux.HandleFunc("/api/v1/density", s.traced("density", s.handleDensity))
	mux.HandleFunc("/api/v1/store", s.traced("store", s.handleStore))
	mux.HandleFunc("/api/v1/aggregates", s.traced("aggregates", s.handleAggregates))
	return mux
}

// Run serves the API on port until doneCtx is done.
func (s *Service) Run(doneCtx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting history gateway", slog.Int("port", port), slog.String("provider", s.provider.Name()))

	errc := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("history gateway: %w", err)
	case <-doneCtx.Done():
	}

	slog.Info("Shutting down history gateway")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

func (s *Service) traced(op string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "gateway."+op,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("http.method", r.Method)))
		defer span.End()

		start := time.Now()
		h(w, r.WithContext(ctx))
		slog.Debug("Handled request",
			slog.String("op", op),
			slog.String("method", r.Method),
			slog.Duration("elapsed", time.Since(start)))
	}
}
