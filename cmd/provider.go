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

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/cardinalhq/adxhistorian/config"
	"github.com/cardinalhq/adxhistorian/internal/azureclient"
	"github.com/cardinalhq/adxhistorian/internal/history"
	"github.com/cardinalhq/adxhistorian/internal/ingest"
	"github.com/cardinalhq/adxhistorian/internal/kusto"
	"github.com/cardinalhq/adxhistorian/kql"
)

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newProvider wires the cluster clients, the ingestion path selected by
// ingest.streaming, and the query builder into a history provider.
func newProvider(ctx context.Context, cfg *config.Config) (*history.Provider, error) {
	var opts []azureclient.ManagerOption
	if cfg.Cluster.ApplicationID != "" {
		opts = append(opts, azureclient.WithClientSecret(cfg.Cluster.TenantID, cfg.Cluster.ApplicationID, cfg.Cluster.ApplicationSecret))
	}
	mgr, err := azureclient.NewManager(ctx, opts...)
	if err != nil {
		return nil, err
	}

	engineURL := kusto.EngineURL(cfg.Cluster.Endpoint)
	engine, err := kusto.New(engineURL, mgr.Credential())
	if err != nil {
		return nil, fmt.Errorf("creating engine client: %w", err)
	}

	var ingestor kusto.Ingestor = engine
	if !cfg.Ingest.Streaming {
		dmURL := kusto.IngestURL(cfg.Cluster.Endpoint)
		dm, err := kusto.New(dmURL, mgr.Credential())
		if err != nil {
			return nil, fmt.Errorf("creating data management client: %w", err)
		}
		ingestor = kusto.NewQueuedIngestor(dm, mgr, cfg.Ingest.ResourceTTLDuration)
		slog.Debug("Using queued ingestion", slog.String("endpoint", dmURL))
	}

	slog.Info("Connecting history provider",
		slog.String("provider", cfg.Provider.Name),
		slog.String("endpoint", engineURL),
		slog.String("database", cfg.Database.Name),
		slog.String("table", cfg.Database.EventsTable),
		slog.Bool("streaming", cfg.Ingest.Streaming))

	return history.NewProvider(history.ProviderConfig{
		Name:      cfg.Provider.Name,
		Database:  cfg.Database.Name,
		Builder:   kql.NewBuilder(cfg.Database.EventsTable, cfg.Browse.LookbackDuration),
		Connector: history.KustoConnector{Endpoint: engineURL, Credential: mgr.Credential()},
		Batcher:   ingest.NewBatcher(cfg.Database.Name, cfg.Database.EventsTable, ingestor, engine),
	}), nil
}

// withProvider sets up telemetry, starts a provider for the duration of fn
// and shuts everything down afterwards.
func withProvider(servicename string, fn func(ctx context.Context, cfg *config.Config, p *history.Provider) error) error {
	ctx, doneFx, err := setupTelemetry(servicename)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	defer func() {
		if err := doneFx(); err != nil {
			slog.Error("Error shutting down telemetry", slog.Any("error", err))
		}
	}()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	p, err := newProvider(ctx, cfg)
	if err != nil {
		return err
	}
	p.Startup(ctx)
	defer func() {
		if err := p.Shutdown(); err != nil {
			slog.Error("Error shutting down history provider", slog.Any("error", err))
		}
	}()
	return fn(ctx, cfg, p)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
