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

	"github.com/spf13/cobra"

	"github.com/cardinalhq/adxhistorian/config"
	"github.com/cardinalhq/adxhistorian/internal/history"
	"github.com/cardinalhq/adxhistorian/internal/idgen"
)

func init() {
	var start, end string
	cmd := &cobra.Command{
		Use:   "density path...",
		Short: "Show the first and last stored sample of each tag in a window",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withProvider("adxhistorian-density", func(ctx context.Context, cfg *config.Config, p *history.Provider) error {
				s, e, err := history.ParseRange(start, end)
				if err != nil {
					return err
				}
				paths := make([]history.QualifiedPath, len(args))
				for i, arg := range args {
					if paths[i], err = parsePathArg(cfg.Provider.Name, arg); err != nil {
						return err
					}
				}
				return printJSON(c.OutOrStdout(), p.QueryDensity(ctx, paths, s, e, idgen.NextQueryID()))
			})
		},
	}
	cmd.Flags().StringVarP(&start, "start", "s", "e-1h", "Window start (RFC 3339 or relative, e.g. e-1h)")
	cmd.Flags().StringVarP(&end, "end", "e", "now", "Window end (RFC 3339 or now)")
	rootCmd.AddCommand(cmd)
}
