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
	"github.com/spf13/cobra"

	"github.com/cardinalhq/adxhistorian/internal/aggregate"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "aggregates",
		Short: "List the aggregation modes and the function each one runs",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			type row struct {
				Name     aggregate.Kind `json:"name"`
				Function string         `json:"function"`
				Mapped   bool           `json:"mapped"`
			}
			kinds := aggregate.Kinds()
			rows := make([]row, len(kinds))
			for i, k := range kinds {
				rows[i] = row{Name: k, Function: aggregate.Resolve(k), Mapped: aggregate.Mapped(k)}
			}
			return printJSON(c.OutOrStdout(), rows)
		},
	})
}
