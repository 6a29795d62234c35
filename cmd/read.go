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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/adxhistorian/config"
	"github.com/cardinalhq/adxhistorian/internal/aggregate"
	"github.com/cardinalhq/adxhistorian/internal/history"
	"github.com/cardinalhq/adxhistorian/internal/idgen"
	"github.com/cardinalhq/adxhistorian/internal/tag"
)

type readFlags struct {
	start     string
	end       string
	blockSize string
	aggregate string
	queryID   string
}

type columnOutput struct {
	Name     string           `json:"name"`
	DataType history.DataType `json:"dataType"`
	Quality  tag.Quality      `json:"quality"`
	Points   []history.Point  `json:"points"`
}

func init() {
	var f readFlags
	cmd := &cobra.Command{
		Use:   "read path...",
		Short: "Read the history of one or more tags",
		Long: `Read raw samples, or with --block-size one aggregated value per bucket, for
each tag path. Columns use --aggregate unless a path is suffixed with
"@Kind", e.g. "[gw;default]Ramp/Ramp1@Maximum".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withProvider("adxhistorian-read", func(ctx context.Context, cfg *config.Config, p *history.Provider) error {
				params, err := f.params()
				if err != nil {
					return err
				}
				defs, err := columnDefs(cfg.Provider.Name, args)
				if err != nil {
					return err
				}
				out, err := history.Run(ctx, p.CreateQuery(defs, params))
				if err != nil {
					return fmt.Errorf("query %s: %w", params.ID, err)
				}
				cols := make([]columnOutput, len(out.Columns))
				for i, col := range out.Columns {
					cols[i] = columnOutput{Name: col.Name(), DataType: col.DataType(), Quality: col.Quality(), Points: col.Points()}
				}
				return printJSON(c.OutOrStdout(), map[string]any{
					"queryId":   params.ID,
					"watermark": out.Watermark,
					"columns":   cols,
				})
			})
		},
	}
	cmd.Flags().StringVarP(&f.start, "start", "s", "e-1h", "Window start (RFC 3339 or relative, e.g. e-1h)")
	cmd.Flags().StringVarP(&f.end, "end", "e", "now", "Window end (RFC 3339 or now)")
	cmd.Flags().StringVar(&f.blockSize, "block-size", "", "Bucket width such as 1m; empty for raw samples")
	cmd.Flags().StringVar(&f.aggregate, "aggregate", string(aggregate.Average), "Aggregation mode for columns without one")
	cmd.Flags().StringVar(&f.queryID, "query-id", "", "Query id used in logs (generated when empty)")
	rootCmd.AddCommand(cmd)
}

func (f readFlags) params() (history.QueryParams, error) {
	start, end, err := history.ParseRange(f.start, f.end)
	if err != nil {
		return history.QueryParams{}, err
	}
	block, err := history.ParseBlockSize(f.blockSize)
	if err != nil {
		return history.QueryParams{}, err
	}
	kind, _ := aggregate.Lookup(f.aggregate)
	id := f.queryID
	if id == "" {
		id = idgen.NextQueryID()
	}
	return history.QueryParams{BlockSizeMillis: block, Start: start, End: end, Aggregate: kind, ID: id}, nil
}

func columnDefs(provider string, args []string) ([]history.ColumnDefinition, error) {
	defs := make([]history.ColumnDefinition, len(args))
	for i, arg := range args {
		target, kind := splitAggregate(arg)
		p, err := parsePathArg(provider, target)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		defs[i] = history.ColumnDefinition{Name: p.LastPathElement(), Path: p, Aggregate: kind}
	}
	return defs, nil
}

// splitAggregate separates an "@Kind" suffix naming a known aggregate.
func splitAggregate(arg string) (string, aggregate.Kind) {
	for i := len(arg) - 1; i >= 0; i-- {
		if arg[i] != '@' {
			continue
		}
		if k, ok := aggregate.Lookup(arg[i+1:]); ok {
			return arg[:i], k
		}
		break
	}
	return arg, ""
}
