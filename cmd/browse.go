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
	"strings"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/adxhistorian/config"
	"github.com/cardinalhq/adxhistorian/internal/history"
	"github.com/cardinalhq/adxhistorian/internal/tag"
)

func init() {
	var (
		filter     string
		maxResults int
	)
	cmd := &cobra.Command{
		Use:   "browse [path]",
		Short: "List one level of the tag tree",
		Long: `List the children of a position in the tag tree. With no path the systems and
tag providers are listed. The path is either a qualified path such as
"histprov:ADX:/drv:gw:default:/tag:Ramp" or a tag key such as "[gw;default]Ramp".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withProvider("adxhistorian-browse", func(ctx context.Context, cfg *config.Config, p *history.Provider) error {
				at := history.QualifiedPath{}
				if len(args) == 1 {
					var err error
					if at, err = parsePathArg(cfg.Provider.Name, args[0]); err != nil {
						return err
					}
				}
				var f *history.BrowseFilter
				if filter != "" || maxResults > 0 {
					f = &history.BrowseFilter{NameFilter: filter, MaxResults: maxResults}
				}
				return printJSON(c.OutOrStdout(), p.Browse(ctx, at, f))
			})
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "Glob matched against the last path element, ignoring case")
	cmd.Flags().IntVar(&maxResults, "max", 0, "Maximum number of results (0 for all)")
	rootCmd.AddCommand(cmd)
}

// parsePathArg accepts a qualified path or a "[system;provider]path" tag
// key, which is placed under the named history provider.
func parsePathArg(provider, s string) (history.QualifiedPath, error) {
	if strings.HasPrefix(s, "[") {
		k, err := tag.ParseKey(s)
		if err != nil {
			return history.QualifiedPath{}, err
		}
		return history.PathFor(provider, k), nil
	}
	return history.ParsePath(s)
}
