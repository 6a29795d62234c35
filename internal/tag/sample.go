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

package tag

import (
	"fmt"
	"time"
)

// Sample is one historical value of a tag as delivered by the host.
// Value may be any scalar or a structured document; nil is allowed.
type Sample struct {
	Key       Key
	Value     any
	Timestamp time.Time
	Quality   Quality
}

func (s Sample) String() string {
	return fmt.Sprintf("Sample[path=%s, value=%v, timestamp=%s, quality=%d]",
		s.Key, s.Value, s.Timestamp.UTC().Format(time.RFC3339Nano), s.Quality)
}
