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

package idgen

import (
	"encoding/base32"
	"errors"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/oklog/ulid/v2"
	"github.com/sony/sonyflake"
)

var DefaultFlakeGenerator *SonyFlakeGenerator

func init() {
	var err error
	DefaultFlakeGenerator, err = newFlakeGenerator()
	if err != nil {
		panic(err)
	}
}

type SonyFlakeGenerator struct {
	sf *sonyflake.Sonyflake
}

// newFlakeGenerator derives the machine id from the private IPv4 address
// and falls back to a hash of the hostname when the host has none.
func newFlakeGenerator() (*SonyFlakeGenerator, error) {
	g, err := newFlakeGeneratorWith(nil)
	if err == nil {
		return g, nil
	}
	return newFlakeGeneratorWith(hostMachineID)
}

func newFlakeGeneratorWith(machineID func() (uint16, error)) (*SonyFlakeGenerator, error) {
	sf, err := sonyflake.New(sonyflake.Settings{
		StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		MachineID: machineID,
	})
	if err != nil {
		return nil, err
	}
	if sf == nil {
		return nil, errors.New("failed to create Sonyflake instance")
	}
	return &SonyFlakeGenerator{sf: sf}, nil
}

func hostMachineID() (uint16, error) {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "adxhistorian"
	}
	return uint16(xxhash.Sum64String(host)), nil
}

// NextID returns a positive int64 that increases roughly in time order.
func (g *SonyFlakeGenerator) NextID() int64 {
	v, err := g.sf.NextID()
	if err != nil {
		return rand.Int64()
	}
	return int64(v)
}

var lowerBase32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// NextQueryID returns a short lowercase identifier for a history query that
// did not arrive with one of its own.
func (g *SonyFlakeGenerator) NextQueryID() string {
	id := strconv.FormatInt(g.NextID(), 10)
	return "q-" + strings.ToLower(lowerBase32.EncodeToString([]byte(id)))
}

// NextQueryID uses the default generator.
func NextQueryID() string {
	return DefaultFlakeGenerator.NextQueryID()
}

// BlobName returns a unique, time-sortable name for an uploaded ingest
// payload, e.g. "plant__Events__01J...__adxhistorian.csv.gz".
func BlobName(db, table, format string) string {
	return db + "__" + table + "__" + ulid.Make().String() + "__adxhistorian." + format + ".gz"
}
