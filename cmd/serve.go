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
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/adxhistorian/config"
	"github.com/cardinalhq/adxhistorian/internal/gateway"
	"github.com/cardinalhq/adxhistorian/internal/healthcheck"
	"github.com/cardinalhq/adxhistorian/internal/history"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve browse, read, density and store over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return withProvider("adxhistorian-gateway", serve)
		},
	})
}

func serve(ctx context.Context, cfg *config.Config, p *history.Provider) error {
	health := healthcheck.NewServer(cfg.Health.Port)
	health.AddReadinessProbe("provider", func(context.Context) error {
		if s := p.Status(); s != history.StatusRunning {
			return fmt.Errorf("provider is %s", s)
		}
		return nil
	})
	health.AddReadinessProbe("sink", func(context.Context) error {
		sink := p.Sink()
		if sink == nil || !sink.IsAccepting() {
			return errors.New("sink is not accepting data")
		}
		return nil
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return health.Start(gctx)
	})
	g.Go(func() error {
		return gateway.New(p).Run(gctx, cfg.HTTP.Port)
	})

	health.SetStatus(healthcheck.StatusHealthy)
	slog.Info("History gateway ready",
		slog.Int("port", cfg.HTTP.Port),
		slog.Int("healthPort", cfg.Health.Port))

	err := g.Wait()
	health.SetStatus(healthcheck.StatusUnhealthy)
	return err
}
