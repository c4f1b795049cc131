// Package filter selects test cases by namespace, class, method and trait.
//
// Values inside one include category are OR'd, non-empty include categories
// are AND'd together, and a case matching any exclude value is rejected.
package filter

import (
	"sort"
	"strings"

	"github.com/samber/lo"
)

// Set holds include and exclude values for every filter category
type Set struct {
	IncludeNamespaces []string `json:"includeNamespaces,omitempty" yaml:"includeNamespaces,omitempty"`
	ExcludeNamespaces []string `json:"excludeNamespaces,omitempty" yaml:"excludeNamespaces,omitempty"`
	IncludeClasses    []string `json:"includeClasses,omitempty" yaml:"includeClasses,omitempty"`
	ExcludeClasses    []string `json:"excludeClasses,omitempty" yaml:"excludeClasses,omitempty"`
	IncludeMethods    []string `json:"includeMethods,omitempty" yaml:"includeMethods,omitempty"`
	ExcludeMethods    []string `json:"excludeMethods,omitempty" yaml:"excludeMethods,omitempty"`

	IncludeTraits map[string][]string `json:"includeTraits,omitempty" yaml:"includeTraits,omitempty"`
	ExcludeTraits map[string][]string `json:"excludeTraits,omitempty" yaml:"excludeTraits,omitempty"`
}

// Target is what a filter is evaluated against
type Target struct {
	Namespace string
	Class     string // fully qualified
	Method    string // short method name
	Traits    map[string][]string
}

// TraitPair is a single name=value trait entry
type TraitPair struct {
	Name  string
	Value string
}

// Empty reports whether no filter value has been set
func (s *Set) Empty() bool {
	return len(s.IncludeNamespaces) == 0 && len(s.ExcludeNamespaces) == 0 &&
		len(s.IncludeClasses) == 0 && len(s.ExcludeClasses) == 0 &&
		len(s.IncludeMethods) == 0 && len(s.ExcludeMethods) == 0 &&
		len(s.IncludeTraits) == 0 && len(s.ExcludeTraits) == 0
}

// AddIncludeTrait adds value to the included values for name
func (s *Set) AddIncludeTrait(name, value string) {
	s.IncludeTraits = addTrait(s.IncludeTraits, name, value)
}

// AddExcludeTrait adds value to the excluded values for name
func (s *Set) AddExcludeTrait(name, value string) {
	s.ExcludeTraits = addTrait(s.ExcludeTraits, name, value)
}

func addTrait(m map[string][]string, name, value string) map[string][]string {
	if m == nil {
		m = make(map[string][]string)
	}
	if !lo.Contains(m[name], value) {
		m[name] = append(m[name], value)
	}
	return m
}

// Append adds values to dst, skipping ones already present
func Append(dst []string, values ...string) []string {
	for _, v := range values {
		if !lo.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}

// SortedIncludeTraits returns included traits ordered by name then value
func (s *Set) SortedIncludeTraits() []TraitPair {
	return sortedPairs(s.IncludeTraits)
}

// SortedExcludeTraits returns excluded traits ordered by name then value
func (s *Set) SortedExcludeTraits() []TraitPair {
	return sortedPairs(s.ExcludeTraits)
}

func sortedPairs(m map[string][]string) []TraitPair {
	var pairs []TraitPair
	for name, values := range m {
		for _, v := range values {
			pairs = append(pairs, TraitPair{Name: name, Value: v})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Name != pairs[j].Name {
			return pairs[i].Name < pairs[j].Name
		}
		return pairs[i].Value < pairs[j].Value
	})
	return pairs
}

// Clone returns a deep copy of the set
func (s Set) Clone() Set {
	out := Set{
		IncludeNamespaces: cloneSlice(s.IncludeNamespaces),
		ExcludeNamespaces: cloneSlice(s.ExcludeNamespaces),
		IncludeClasses:    cloneSlice(s.IncludeClasses),
		ExcludeClasses:    cloneSlice(s.ExcludeClasses),
		IncludeMethods:    cloneSlice(s.IncludeMethods),
		ExcludeMethods:    cloneSlice(s.ExcludeMethods),
		IncludeTraits:     cloneTraits(s.IncludeTraits),
		ExcludeTraits:     cloneTraits(s.ExcludeTraits),
	}
	return out
}

func cloneSlice(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneTraits(in map[string][]string) map[string][]string {
	if in == nil {
		return nil
	}
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = cloneSlice(v)
	}
	return out
}

// Match reports whether t passes the filter set
func (s *Set) Match(t Target) bool {
	if s.excluded(t) {
		return false
	}

	if len(s.IncludeNamespaces) > 0 &&
		!lo.SomeBy(s.IncludeNamespaces, func(ns string) bool { return matchNamespace(ns, t.Namespace) }) {
		return false
	}
	if len(s.IncludeClasses) > 0 &&
		!lo.SomeBy(s.IncludeClasses, func(c string) bool { return strings.EqualFold(c, t.Class) }) {
		return false
	}
	if len(s.IncludeMethods) > 0 &&
		!lo.SomeBy(s.IncludeMethods, func(p string) bool { return matchMethod(p, t) }) {
		return false
	}
	if len(s.IncludeTraits) > 0 && !hasAnyTrait(s.IncludeTraits, t.Traits) {
		return false
	}

	return true
}

func (s *Set) excluded(t Target) bool {
	if lo.SomeBy(s.ExcludeNamespaces, func(ns string) bool { return matchNamespace(ns, t.Namespace) }) {
		return true
	}
	if lo.SomeBy(s.ExcludeClasses, func(c string) bool { return strings.EqualFold(c, t.Class) }) {
		return true
	}
	if lo.SomeBy(s.ExcludeMethods, func(p string) bool { return matchMethod(p, t) }) {
		return true
	}
	return len(s.ExcludeTraits) > 0 && hasAnyTrait(s.ExcludeTraits, t.Traits)
}

// matchNamespace accepts the namespace itself and any sub-namespace
func matchNamespace(filter, namespace string) bool {
	if strings.EqualFold(filter, namespace) {
		return true
	}
	return len(namespace) > len(filter) &&
		strings.EqualFold(namespace[:len(filter)], filter) &&
		namespace[len(filter)] == '.'
}

// matchMethod compares against both the fully qualified and the short method name
func matchMethod(pattern string, t Target) bool {
	fq := t.Method
	if t.Class != "" {
		fq = t.Class + "." + t.Method
	}
	return wildcard(pattern, fq) || wildcard(pattern, t.Method)
}

// wildcard supports a leading and/or trailing '*'
func wildcard(pattern, value string) bool {
	p := strings.ToLower(pattern)
	v := strings.ToLower(value)

	leading := strings.HasPrefix(p, "*")
	trailing := len(p) > 1 && strings.HasSuffix(p, "*")
	core := strings.TrimSuffix(strings.TrimPrefix(p, "*"), "*")

	switch {
	case p == "*":
		return true
	case leading && trailing:
		return strings.Contains(v, core)
	case leading:
		return strings.HasSuffix(v, core)
	case trailing:
		return strings.HasPrefix(v, core)
	default:
		return v == p
	}
}

func hasAnyTrait(filter, traits map[string][]string) bool {
	for name, values := range traits {
		for fname, fvalues := range filter {
			if !strings.EqualFold(fname, name) {
				continue
			}
			for _, v := range values {
				if lo.SomeBy(fvalues, func(fv string) bool { return strings.EqualFold(fv, v) }) {
					return true
				}
			}
		}
	}
	return false
}
