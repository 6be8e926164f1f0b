// Package assignment models the per-meeting position map and its compact
// string encoding.
//
// A meeting stores its assignments as a single string field. The current
// encoding maps each position to a short key and each value to
// "<name>|<status>" where status is 1 (confirmed), 0 (rejected) or _
// (pending). Decode also accepts the older structured form
// {"Plataforma":{"name":"Dan","confirmed":null}}.
package assignment

import (
	"sort"
	"strings"
)

// Position is one of the fixed roles a meeting needs filled.
type Position string

const (
	Plataforma          Position = "Plataforma"
	Microfono1          Position = "Microfono 1"
	Microfono2          Position = "Microfono 2"
	AcomodadorEntrada   Position = "Acomodador Entrada"
	AcomodadorAuditorio Position = "Acomodador Auditorio"
	AudioVideo          Position = "Audio y Video"
)

var positions = []Position{
	Plataforma,
	Microfono1,
	Microfono2,
	AcomodadorEntrada,
	AcomodadorAuditorio,
	AudioVideo,
}

// Positions returns the six known positions in display order.
func Positions() []Position {
	out := make([]Position, len(positions))
	copy(out, positions)
	return out
}

// ParsePosition resolves a full label or its short key to a known position.
func ParsePosition(value string) (Position, bool) {
	value = strings.TrimSpace(value)
	for _, pos := range positions {
		if string(pos) == value {
			return pos, true
		}
	}
	if pos, ok := positionsByShortKey[value]; ok {
		return pos, true
	}
	return "", false
}

// Assignment binds a roster name to a position. Confirmed is nil while the
// assignee has not answered.
type Assignment struct {
	Name      string `json:"name"`
	Confirmed *bool  `json:"confirmed"`
}

// Pending reports whether the assignee has not confirmed or rejected yet.
func (a Assignment) Pending() bool {
	return a.Confirmed == nil
}

// Equal compares two assignments by value.
func (a Assignment) Equal(other Assignment) bool {
	if a.Name != other.Name {
		return false
	}
	if a.Confirmed == nil || other.Confirmed == nil {
		return a.Confirmed == nil && other.Confirmed == nil
	}
	return *a.Confirmed == *other.Confirmed
}

// Map holds the assignments of one meeting.
type Map map[Position]Assignment

// Assign sets name on pos and resets confirmation. An empty name clears the
// position.
func (m Map) Assign(pos Position, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		delete(m, pos)
		return
	}
	m[pos] = Assignment{Name: name}
}

// Confirm records the assignee's answer. It reports false and leaves the map
// untouched when pos has no assignment.
func (m Map) Confirm(pos Position, value bool) bool {
	a, ok := m[pos]
	if !ok {
		return false
	}
	a.Confirmed = boolPtr(value)
	m[pos] = a
	return true
}

// Names returns the distinct assignee names in sorted order.
func (m Map) Names() []string {
	seen := make(map[string]struct{}, len(m))
	names := make([]string, 0, len(m))
	for _, a := range m {
		if a.Name == "" {
			continue
		}
		if _, ok := seen[a.Name]; ok {
			continue
		}
		seen[a.Name] = struct{}{}
		names = append(names, a.Name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether name is assigned to any position.
func (m Map) Has(name string) bool {
	if name == "" {
		return false
	}
	for _, a := range m {
		if a.Name == name {
			return true
		}
	}
	return false
}

// Clone returns a deep copy.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for pos, a := range m {
		if a.Confirmed != nil {
			a.Confirmed = boolPtr(*a.Confirmed)
		}
		out[pos] = a
	}
	return out
}

// Equal compares two maps structurally.
func (m Map) Equal(other Map) bool {
	if len(m) != len(other) {
		return false
	}
	for pos, a := range m {
		b, ok := other[pos]
		if !ok || !a.Equal(b) {
			return false
		}
	}
	return true
}
