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

	"github.com/hashicorp/go-multierror"
)

// Outcome is what a completed read hands back.
type Outcome struct {
	Watermark int64    `json:"watermark"`
	Columns   []Column `json:"-"`
}

// Run drives e through its whole lifecycle the way the host does for a
// single poll. The session is always released, and a release error is
// reported alongside any read error.
func Run(ctx context.Context, e *Executor) (out Outcome, err error) {
	out.Watermark = NoData
	defer func() {
		if rerr := e.EndReading(); rerr != nil {
			err = multierror.Append(err, rerr).ErrorOrNil()
		}
		out.Columns = e.ColumnNodes()
	}()

	if err = e.Initialize(ctx); err != nil {
		return out, err
	}
	if err = e.StartReading(ctx); err != nil {
		return out, err
	}
	for e.HasMore() {
		if out.Watermark, err = e.ProcessData(); err != nil {
			return out, err
		}
	}
	return out, nil
}
