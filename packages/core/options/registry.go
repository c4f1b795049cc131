package options

import (
	"fmt"
	"strings"
)

// Arity is how many argument tokens an option takes
type Arity int

const (
	ArityZero Arity = iota
	ArityZeroOrOne
	ArityExactlyOne
	ArityOneOrMore
)

func (a Arity) String() string {
	switch a {
	case ArityZero:
		return "0"
	case ArityZeroOrOne:
		return "0..1"
	case ArityExactlyOne:
		return "1"
	default:
		return "1+"
	}
}

// ApplyFunc parses args and writes the result into the context configuration
type ApplyFunc func(ctx *Context, args []string) error

// Descriptor declares a single option
type Descriptor struct {
	Name        string
	Aliases     []string
	Description string
	Arity       Arity
	// Requires names an option that must also be present
	Requires string
	Apply    ApplyFunc
}

// Registry is an ordered, case-insensitive table of option descriptors
type Registry struct {
	descriptors []*Descriptor
	index       map[string]*Descriptor
}

// NewRegistry builds a registry, rejecting duplicate names or aliases
func NewRegistry(descriptors ...*Descriptor) (*Registry, error) {
	r := &Registry{index: make(map[string]*Descriptor)}
	for _, d := range descriptors {
		if d.Name == "" || d.Apply == nil {
			return nil, fmt.Errorf("option descriptor %q is incomplete", d.Name)
		}
		for _, n := range append([]string{d.Name}, d.Aliases...) {
			key := strings.ToLower(n)
			if _, exists := r.index[key]; exists {
				return nil, fmt.Errorf("duplicate option name %q", n)
			}
			r.index[key] = d
		}
		r.descriptors = append(r.descriptors, d)
	}
	for _, d := range r.descriptors {
		if d.Requires != "" {
			if _, ok := r.index[strings.ToLower(d.Requires)]; !ok {
				return nil, fmt.Errorf("option %q requires unknown option %q", d.Name, d.Requires)
			}
		}
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on error
func MustRegistry(descriptors ...*Descriptor) *Registry {
	r, err := NewRegistry(descriptors...)
	if err != nil {
		panic(err)
	}
	return r
}

// Descriptors returns the registered options in declaration order
func (r *Registry) Descriptors() []*Descriptor {
	return append([]*Descriptor(nil), r.descriptors...)
}

// Lookup finds a descriptor by name or alias, ignoring case and leading dashes
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	d, ok := r.index[strings.ToLower(strings.TrimLeft(name, "-"))]
	return d, ok
}

// isOptionToken reports whether a token is in option position.
// Negative numbers are treated as values.
func isOptionToken(token string) bool {
	if len(token) < 2 || token[0] != '-' {
		return false
	}
	c := token[1]
	return !(c >= '0' && c <= '9') && c != '.' && c != ','
}
