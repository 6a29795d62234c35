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
	"fmt"
	"strings"

	"github.com/cardinalhq/adxhistorian/internal/tag"
)

// Well-known path component types.
const (
	ComponentHistoryProvider = "histprov"
	ComponentDriver          = "drv"
	ComponentTag             = "tag"
)

const componentSeparator = ":/"

// Component is one typed element of a QualifiedPath.
type Component struct {
	Type  string
	Value string
}

// QualifiedPath addresses a node in the host's history tree as an ordered
// list of typed components, e.g.
//
//	histprov:ADX:/drv:gw:default:/tag:Ramp/Ramp1
//
// The zero value is the empty path.
type QualifiedPath struct {
	components []Component
}

// NewPath builds a path from (type, value) pairs.
func NewPath(components ...Component) QualifiedPath {
	var p QualifiedPath
	for _, c := range components {
		p = p.With(c.Type, c.Value)
	}
	return p
}

// PathFor returns the path of a tag under the named history provider.
func PathFor(provider string, k tag.Key) QualifiedPath {
	p := QualifiedPath{}
	if provider != "" {
		p = p.With(ComponentHistoryProvider, provider)
	}
	if k.System != "" {
		p = p.With(ComponentDriver, k.Driver())
	}
	if k.Path != "" {
		p = p.With(ComponentTag, k.Path)
	}
	return p
}

// ParsePath parses the string form produced by String.
func ParsePath(s string) (QualifiedPath, error) {
	var p QualifiedPath
	if strings.TrimSpace(s) == "" {
		return p, nil
	}
	for _, part := range strings.Split(s, componentSeparator) {
		typ, value, ok := strings.Cut(part, ":")
		if !ok || typ == "" {
			return QualifiedPath{}, fmt.Errorf("history: malformed path component %q in %q", part, s)
		}
		p = p.With(typ, value)
	}
	return p, nil
}

// With returns a copy of p with the component set, replacing an existing
// component of the same type in place.
func (p QualifiedPath) With(typ, value string) QualifiedPath {
	out := make([]Component, 0, len(p.components)+1)
	replaced := false
	for _, c := range p.components {
		if c.Type == typ {
			c.Value = value
			replaced = true
		}
		out = append(out, c)
	}
	if !replaced {
		out = append(out, Component{Type: typ, Value: value})
	}
	return QualifiedPath{components: out}
}

// Get returns the value of the component of type typ.
func (p QualifiedPath) Get(typ string) (string, bool) {
	for _, c := range p.components {
		if c.Type == typ {
			return c.Value, true
		}
	}
	return "", false
}

// Components returns the components in order.
func (p QualifiedPath) Components() []Component {
	return append([]Component(nil), p.components...)
}

// IsEmpty reports whether the path has no components.
func (p QualifiedPath) IsEmpty() bool {
	return len(p.components) == 0
}

// LastPathElement returns the final segment of the deepest component,
// which is what the host displays for a node.
func (p QualifiedPath) LastPathElement() string {
	if len(p.components) == 0 {
		return ""
	}
	last := p.components[len(p.components)-1]
	if last.Type != ComponentTag {
		return last.Value
	}
	v := strings.TrimRight(last.Value, "/")
	if i := strings.LastIndex(v, "/"); i >= 0 {
		return v[i+1:]
	}
	return v
}

// Key returns the tag key the path addresses. ok is false when the path has
// no driver component.
func (p QualifiedPath) Key() (k tag.Key, ok bool) {
	drv, ok := p.Get(ComponentDriver)
	if !ok || drv == "" {
		return tag.Key{}, false
	}
	system, provider := tag.ParseDriver(drv)
	path, _ := p.Get(ComponentTag)
	return tag.NewKey(system, provider, path), true
}

func (p QualifiedPath) String() string {
	parts := make([]string, len(p.components))
	for i, c := range p.components {
		parts[i] = c.Type + ":" + c.Value
	}
	return strings.Join(parts, componentSeparator)
}

// MarshalText implements encoding.TextMarshaler.
func (p QualifiedPath) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *QualifiedPath) UnmarshalText(b []byte) error {
	parsed, err := ParsePath(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
