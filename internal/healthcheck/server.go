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

package healthcheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Status int32

const (
	StatusStarting Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Probe reports why a dependency is not ready, or nil.
type Probe func(ctx context.Context) error

type Response struct {
	Healthy bool              `json:"healthy"`
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks,omitempty"`
}

const (
	DefaultPort  = 8090
	probeTimeout = 2 * time.Second
)

type Server struct {
	port   int
	status atomic.Int32

	mu     sync.RWMutex
	probes map[string]Probe

	server *http.Server
}

func NewServer(port int) *Server {
	if port == 0 {
		port = DefaultPort
	}
	return &Server{port: port, probes: map[string]Probe{}}
}

func (s *Server) SetStatus(status Status) {
	s.status.Store(int32(status))
	slog.Debug("Health check status updated", slog.String("status", status.String()))
}

func (s *Server) GetStatus() Status {
	return Status(s.status.Load())
}

// AddReadinessProbe registers a named check run on every /readyz request.
// Registering a name twice replaces the earlier probe.
func (s *Server) AddReadinessProbe(name string, p Probe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes[name] = p
}

// Ready runs every probe and returns per-probe results keyed by name.
// The server is ready when its status is healthy and no probe failed.
func (s *Server) Ready(ctx context.Context) (bool, map[string]string) {
	s.mu.RLock()
	names := make([]string, 0, len(s.probes))
	for name := range s.probes {
		names = append(names, name)
	}
	probes := make(map[string]Probe, len(s.probes))
	for k, v := range s.probes {
		probes[k] = v
	}
	s.mu.RUnlock()
	sort.Strings(names)

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	ready := s.GetStatus() == StatusHealthy
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := probes[name](ctx); err != nil {
			ready = false
			checks[name] = err.Error()
			continue
		}
		checks[name] = "ok"
	}
	return ready, checks
}

// Handler serves /healthz, /readyz and /livez.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status := s.GetStatus()
		writeResponse(w, Response{Healthy: status == StatusHealthy, Status: status.String()})
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		status := s.GetStatus()
		writeResponse(w, Response{Healthy: status != StatusUnhealthy, Status: status.String()})
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ready, checks := s.Ready(r.Context())
		writeResponse(w, Response{Healthy: ready, Status: s.GetStatus().String(), Checks: checks})
	})
	return mux
}

// Start serves the probes until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("Starting health check server", slog.Int("port", s.port))

	errc := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("health check server: %w", err)
	case <-ctx.Done():
	}
	return s.Stop()
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	slog.Info("Stopping health check server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func writeResponse(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	if resp.Healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode health check response", slog.Any("error", err))
	}
}
