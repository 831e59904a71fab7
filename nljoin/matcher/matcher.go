// Package matcher provides row-level predicates for nested-loop joins.
//
// A RowMatcher is evaluated concurrently by every worker of a kernel launch,
// so implementations must be pure: no state beyond read-only table data.
package matcher

import (
	"github.com/wbrown/janus-nljoin/nljoin/table"
)

// RowMatcher decides whether row l of left matches row r of right.
type RowMatcher interface {
	Matches(left, right table.View, l, r int) bool
}

// Validator is implemented by matchers that can check their column
// references against a pair of tables before any launch.
type Validator interface {
	Validate(left, right table.View) error
}

// Func adapts a plain function to RowMatcher.
type Func func(left, right table.View, l, r int) bool

func (f Func) Matches(left, right table.View, l, r int) bool {
	return f(left, right, l, r)
}

// flipped evaluates the wrapped matcher with operand roles reversed.
type flipped struct {
	inner RowMatcher
}

func (f flipped) Matches(left, right table.View, l, r int) bool {
	return f.inner.Matches(right, left, r, l)
}

func (f flipped) Validate(left, right table.View) error {
	return Validate(f.inner, right, left)
}

// Flip returns a matcher m' with m'.Matches(b, a, j, i) == m.Matches(a, b, i, j).
// Flipping twice returns the original matcher.
func Flip(m RowMatcher) RowMatcher {
	if f, ok := m.(flipped); ok {
		return f.inner
	}
	return flipped{inner: m}
}

// Validate runs m's own validation if it has one.
func Validate(m RowMatcher, left, right table.View) error {
	if v, ok := m.(Validator); ok {
		return v.Validate(left, right)
	}
	return nil
}

// conjunction matches when every part matches.
type conjunction []RowMatcher

func (c conjunction) Matches(left, right table.View, l, r int) bool {
	for _, m := range c {
		if !m.Matches(left, right, l, r) {
			return false
		}
	}
	return true
}

func (c conjunction) Validate(left, right table.View) error {
	for _, m := range c {
		if err := Validate(m, left, right); err != nil {
			return err
		}
	}
	return nil
}

// All combines matchers with AND. A single matcher is returned unchanged.
func All(ms ...RowMatcher) RowMatcher {
	if len(ms) == 1 {
		return ms[0]
	}
	return conjunction(ms)
}
