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
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/adxhistorian/config"
	"github.com/cardinalhq/adxhistorian/internal/history"
	"github.com/cardinalhq/adxhistorian/internal/ingest"
)

func init() {
	var file string
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Store tag samples from a YAML or JSON document",
		Long: `Store the samples listed in a YAML or JSON document as one batch. The document
is either a list of samples or a map with a "samples" list; each sample has
system, provider, path, value and optionally timestamp and quality.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			records, err := readRecordsFile(file)
			if err != nil {
				return err
			}
			return withProvider("adxhistorian-ingest", func(ctx context.Context, _ *config.Config, p *history.Provider) error {
				sink := p.Sink()
				if sink == nil {
					return ingest.ErrNotAccepting
				}
				set, err := ingest.Records(records, time.Now())
				if err != nil {
					return err
				}
				set.Name = file
				if err := sink.StoreData(ctx, set); err != nil {
					return err
				}
				return printJSON(c.OutOrStdout(), sink.Info())
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "Document to read, or - for stdin")
	rootCmd.AddCommand(cmd)
}

func readRecordsFile(name string) ([]ingest.Record, error) {
	var r io.Reader = os.Stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return decodeRecords(b)
}

// decodeRecords accepts a bare list or a {samples: [...]} document. JSON is
// valid YAML, so both go through the YAML decoder.
func decodeRecords(b []byte) ([]ingest.Record, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parsing samples: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, errors.New("no samples in document")
	}
	root := doc.Content[0]

	var records []ingest.Record
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&records); err != nil {
			return nil, fmt.Errorf("decoding samples: %w", err)
		}
	case yaml.MappingNode:
		var wrapped struct {
			Samples []ingest.Record `yaml:"samples"`
		}
		if err := root.Decode(&wrapped); err != nil {
			return nil, fmt.Errorf("decoding samples: %w", err)
		}
		records = wrapped.Samples
	default:
		return nil, errors.New("samples document must be a list or a map")
	}
	if len(records) == 0 {
		return nil, errors.New("no samples in document")
	}
	return records, nil
}
