// Package variation models the "Attr:Val|Attr:Val" strings carried by orders.
//
// Inventory rows are keyed by the raw string, byte for byte. Set is the
// structured view of the same string for callers that need to inspect or
// compare attributes; its String form round-trips a well-formed label.
package variation

import (
	"fmt"
	"sort"
	"strings"
)

const (
	// None is the label of the reserved "no variation" row of an item
	None = ""

	pairSep  = "|"
	fieldSep = ":"
)

// Attr is a single attribute of a variation, e.g. Size:L
type Attr struct {
	Name  string
	Value string
}

// Set is an ordered list of attributes
type Set []Attr

// Label returns the inventory key for a nullable order variation.
// NULL and empty strings map to None; everything else is returned unchanged.
func Label(raw *string) string {
	if raw == nil {
		return None
	}
	return *raw
}

// IsNone reports whether the label denotes the "no variation" row
func IsNone(label string) bool {
	return label == None
}

// Parse splits a label into its attributes, keeping their order
func Parse(label string) (Set, error) {
	if IsNone(label) {
		return nil, nil
	}
	parts := strings.Split(label, pairSep)
	set := make(Set, 0, len(parts))
	for i, part := range parts {
		name, value, ok := strings.Cut(part, fieldSep)
		if !ok {
			return nil, fmt.Errorf("variation %q: segment %d has no %q", label, i, fieldSep)
		}
		if name == "" {
			return nil, fmt.Errorf("variation %q: segment %d has an empty attribute name", label, i)
		}
		set = append(set, Attr{Name: name, Value: value})
	}
	return set, nil
}

// String serializes the set in its own order
func (s Set) String() string {
	if len(s) == 0 {
		return None
	}
	var b strings.Builder
	for i, a := range s {
		if i > 0 {
			b.WriteString(pairSep)
		}
		b.WriteString(a.Name)
		b.WriteString(fieldSep)
		b.WriteString(a.Value)
	}
	return b.String()
}

// Get returns the value of the first attribute with the given name
func (s Set) Get(name string) (string, bool) {
	for _, a := range s {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Canonical returns a copy sorted by attribute name (stable for duplicates)
func (s Set) Canonical() Set {
	out := make(Set, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Equivalent compares two sets ignoring attribute order.
// Merging inventory never uses this; it is for diagnostics only.
func (s Set) Equivalent(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	a, b := s.Canonical(), other.Canonical()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
