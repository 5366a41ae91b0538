// Package sites expands site expressions such as "2*i+1" into lattice
// indexes.
package sites

import (
	"iter"
	"regexp"
	"slices"
	"strconv"

	"github.com/pkg/errors"

	"github.com/iglpdc/dmrg-helpers/pkg/types"
)

// ErrInvalidFilterSyntax is returned for expressions outside the A*i+B grammar.
var ErrInvalidFilterSyntax = errors.New("invalid site filter syntax")

var (
	constantPattern = regexp.MustCompile(`^([0-9]+)$`)
	// [A*]i[(+|-)B]
	indexPattern = regexp.MustCompile(`^(?:([0-9]+)\*)?([a-z])(?:([+-])([0-9]+))?$`)
)

// Filter is a parsed site expression: a constant, or A*i+B in a mute index i.
type Filter struct {
	expr     string
	constant bool
	a        int
	b        int
	index    string
}

// ParseFilter parses expr. Accepted forms are a non-negative integer literal
// ("3") or an optional coefficient with '*', a single lowercase mute index,
// and an optional signed offset ("i", "2*i", "i-1", "2*i+1").
func ParseFilter(expr string) (*Filter, error) {
	if m := constantPattern.FindStringSubmatch(expr); m != nil {
		b, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidFilterSyntax, "%q: %v", expr, err)
		}
		return &Filter{expr: expr, constant: true, b: b}, nil
	}

	m := indexPattern.FindStringSubmatch(expr)
	if m == nil {
		return nil, errors.Wrapf(ErrInvalidFilterSyntax, "%q", expr)
	}

	f := &Filter{expr: expr, a: 1, index: m[2]}
	if m[1] != "" {
		a, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidFilterSyntax, "%q: %v", expr, err)
		}
		f.a = a
	}
	if m[4] != "" {
		b, err := strconv.Atoi(m[4])
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidFilterSyntax, "%q: %v", expr, err)
		}
		if m[3] == "-" {
			b = -b
		}
		f.b = b
	}
	// 0*i+B never moves
	f.constant = f.a == 0

	return f, nil
}

// String returns the expression the filter was parsed from.
func (f *Filter) String() string { return f.expr }

// IsConstant reports whether the filter ignores the mute index.
func (f *Filter) IsConstant() bool { return f.constant }

// Evaluate returns the site for mute index i.
func (f *Filter) Evaluate(i int) int {
	if f.constant {
		return f.b
	}
	return f.a*i + f.b
}

// GenerateIndexes evaluates every expression at i = 0, 1, 2, ... and yields
// the resulting tuples while they are strictly increasing and their largest
// site is below chainLength. The sequence stops at the first tuple that is
// not. When every expression is constant the single tuple at i = 0 is
// yielded without checks.
//
// The sequence restarts from i = 0 each time it is ranged over.
func GenerateIndexes(exprs []string, chainLength int) (iter.Seq[types.SiteTuple], error) {
	if len(exprs) == 0 {
		return nil, errors.Wrap(ErrInvalidFilterSyntax, "no site expressions")
	}

	filters := make([]*Filter, len(exprs))
	allConstant := true
	for i, e := range exprs {
		f, err := ParseFilter(e)
		if err != nil {
			return nil, err
		}
		filters[i] = f
		allConstant = allConstant && f.IsConstant()
	}

	build := func(i int) types.SiteTuple {
		t := make(types.SiteTuple, len(filters))
		for k, f := range filters {
			t[k] = f.Evaluate(i)
		}
		return t
	}

	if allConstant {
		return func(yield func(types.SiteTuple) bool) {
			yield(build(0))
		}, nil
	}

	return func(yield func(types.SiteTuple) bool) {
		for i := 0; ; i++ {
			t := build(i)
			if !Valid(t, chainLength) {
				return
			}
			if !yield(t) {
				return
			}
		}
	}, nil
}

// Indexes collects GenerateIndexes into a slice.
func Indexes(exprs []string, chainLength int) ([]types.SiteTuple, error) {
	seq, err := GenerateIndexes(exprs, chainLength)
	if err != nil {
		return nil, err
	}
	return slices.Collect(seq), nil
}

// Valid reports whether sites are strictly increasing and fit in a chain of
// chainLength sites.
func Valid(sites types.SiteTuple, chainLength int) bool {
	if len(sites) == 0 {
		return false
	}
	for k := 1; k < len(sites); k++ {
		if sites[k-1] >= sites[k] {
			return false
		}
	}
	return sites[len(sites)-1] < chainLength
}
