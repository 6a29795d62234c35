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
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Key identifies a tag by the gateway that owns it, the tag provider inside
// that gateway, and the slash-delimited path within the provider.
// Comparison and hashing ignore letter case in all three fields.
type Key struct {
	System   string
	Provider string
	Path     string
}

// NewKey returns a Key for the given triple.
func NewKey(system, provider, path string) Key {
	return Key{System: system, Provider: provider, Path: path}
}

// ParseDriver splits a driver component of the form "system:provider".
// A driver without a colon is treated as a bare system name.
func ParseDriver(driver string) (system, provider string) {
	system, provider, _ = strings.Cut(driver, ":")
	return system, provider
}

// Driver returns the "system:provider" driver component for the key.
func (k Key) Driver() string {
	return k.System + ":" + k.Provider
}

// String returns the canonical form "[system;provider]path".
func (k Key) String() string {
	return "[" + k.System + ";" + k.Provider + "]" + k.Path
}

// ParseKey parses the canonical form produced by String.
func ParseKey(s string) (Key, error) {
	rest, ok := strings.CutPrefix(s, "[")
	if !ok {
		return Key{}, fmt.Errorf("tag key %q does not start with '['", s)
	}
	driver, path, ok := strings.Cut(rest, "]")
	if !ok {
		return Key{}, fmt.Errorf("tag key %q has no closing ']'", s)
	}
	system, provider, _ := strings.Cut(driver, ";")
	return NewKey(system, provider, path), nil
}

// Equal reports whether two keys name the same tag, ignoring case.
func (k Key) Equal(o Key) bool {
	return strings.EqualFold(k.System, o.System) &&
		strings.EqualFold(k.Provider, o.Provider) &&
		strings.EqualFold(k.Path, o.Path)
}

// Fold returns the lower-cased key. Folded keys compare with == and are
// suitable as map keys.
func (k Key) Fold() Key {
	return Key{
		System:   strings.ToLower(k.System),
		Provider: strings.ToLower(k.Provider),
		Path:     strings.ToLower(k.Path),
	}
}

// Hash returns a case-insensitive 64-bit hash of the key.
func (k Key) Hash() uint64 {
	f := k.Fold()
	d := xxhash.New()
	// NUL keeps ("ab","c") and ("a","bc") apart.
	_, _ = d.WriteString(f.System)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(f.Provider)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(f.Path)
	return d.Sum64()
}

// Blank reports whether the path component is empty or whitespace.
func (k Key) Blank() bool {
	return strings.TrimSpace(k.Path) == ""
}

// GoString makes %#v output readable in test failures.
func (k Key) GoString() string {
	return fmt.Sprintf("tag.Key(%s)", k.String())
}
