package types

import (
	"slices"
	"sort"
)

// Well-known attribute kinds produced by the transcript preprocessors.
const (
	KindSubject = "subject"
	KindSpeaker = "speaker"
	KindMention = "mention"
)

// Attribute is a typed fact attached to a document
type Attribute struct {
	Kind  string
	Value string
}

// AttributePair is one (kind, value) constraint of an AttributeFilter
type AttributePair struct {
	Kind  string
	Value string
}

// AttributeFilter maps an attribute kind to the values a document must carry.
//
// A document matches when, for every kind in the filter, it has an attribute
// of that kind for each listed value. Kinds absent from the filter place no
// constraint, and an empty filter matches every document.
type AttributeFilter map[string][]string

// NewAttributeFilter builds a filter from attributes, grouping values by kind
func NewAttributeFilter(attrs ...Attribute) AttributeFilter {
	f := make(AttributeFilter, len(attrs))
	for _, a := range attrs {
		f[a.Kind] = append(f[a.Kind], a.Value)
	}
	return f
}

// With returns a copy of the filter with values added under kind
func (f AttributeFilter) With(kind string, values ...string) AttributeFilter {
	out := make(AttributeFilter, len(f)+1)
	for k, v := range f {
		out[k] = slices.Clone(v)
	}
	out[kind] = append(out[kind], values...)
	return out
}

// IsEmpty reports whether the filter places no constraint at all
func (f AttributeFilter) IsEmpty() bool {
	return len(f.Pairs()) == 0
}

// Kinds returns the constrained kinds in sorted order
func (f AttributeFilter) Kinds() []string {
	kinds := make([]string, 0, len(f))
	for k, v := range f {
		if len(v) > 0 {
			kinds = append(kinds, k)
		}
	}
	sort.Strings(kinds)
	return kinds
}

// Pairs flattens the filter into distinct (kind, value) pairs, sorted by kind
// then value so that generated SQL is deterministic.
func (f AttributeFilter) Pairs() []AttributePair {
	var pairs []AttributePair
	for _, kind := range f.Kinds() {
		values := slices.Clone(f[kind])
		sort.Strings(values)
		values = slices.Compact(values)
		for _, v := range values {
			pairs = append(pairs, AttributePair{Kind: kind, Value: v})
		}
	}
	return pairs
}

// Matches evaluates the filter against an in-memory attribute set
func (f AttributeFilter) Matches(attrs []Attribute) bool {
	have := make(map[AttributePair]struct{}, len(attrs))
	for _, a := range attrs {
		have[AttributePair{Kind: a.Kind, Value: a.Value}] = struct{}{}
	}
	for _, p := range f.Pairs() {
		if _, ok := have[p]; !ok {
			return false
		}
	}
	return true
}
