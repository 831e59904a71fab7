package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-nljoin/nljoin"
	"github.com/wbrown/janus-nljoin/nljoin/table"
)

func nullableInts(t *testing.T, name string, values ...nljoin.Value) *table.Column {
	t.Helper()
	c, err := table.NewColumn(name, nljoin.TypeInt, values)
	require.NoError(t, err)
	return c
}

func TestEquality(t *testing.T) {
	left := table.MustNew(
		nullableInts(t, "k", int64(1), int64(2), nil),
		table.NewStringColumn("s", []string{"a", "b", "c"}),
	)
	right := table.MustNew(
		nullableInts(t, "k", int64(2), nil),
		table.NewFloat64Column("f", []float64{2, 3}),
	)

	t.Run("On", func(t *testing.T) {
		eq, err := On(left, right, []string{"k"}, []string{"k"})
		require.NoError(t, err)
		assert.Equal(t, []int{0}, eq.LeftKeys)
		assert.True(t, eq.Matches(left, right, 1, 0))
		assert.False(t, eq.Matches(left, right, 0, 0))
	})

	t.Run("NullsUnequal", func(t *testing.T) {
		eq := Equality{LeftKeys: []int{0}, RightKeys: []int{0}}
		assert.False(t, eq.Matches(left, right, 2, 1))
		assert.False(t, eq.Matches(left, right, 1, 1))
	})

	t.Run("NullsEqual", func(t *testing.T) {
		eq := Equality{LeftKeys: []int{0}, RightKeys: []int{0}, Nulls: NullsEqual}
		assert.True(t, eq.Matches(left, right, 2, 1))
		assert.False(t, eq.Matches(left, right, 1, 1), "NULL never equals a value")
	})

	t.Run("NumericCrossType", func(t *testing.T) {
		eq, err := On(left, right, []string{"k"}, []string{"f"})
		require.NoError(t, err)
		assert.True(t, eq.Matches(left, right, 1, 0))
	})

	t.Run("Errors", func(t *testing.T) {
		_, err := On(left, right, []string{"k"}, nil)
		assert.Error(t, err)
		_, err = On(left, right, []string{"missing"}, []string{"k"})
		assert.Error(t, err)
		_, err = On(left, right, []string{"s"}, []string{"k"})
		assert.Error(t, err, "string keys do not compare with int keys")
		assert.Error(t, Equality{}.Validate(left, right))
		assert.Error(t, Equality{LeftKeys: []int{5}, RightKeys: []int{0}}.Validate(left, right))
	})
}

func TestConditional(t *testing.T) {
	left := table.MustNew(nullableInts(t, "start", int64(1), int64(5), nil))
	right := table.MustNew(table.NewInt64Column("ts", []int64{3}))

	c := Where(Condition{Left: 0, Op: nljoin.OpLTE, Right: 0})
	require.NoError(t, c.Validate(left, right))
	assert.True(t, c.Matches(left, right, 0, 0))
	assert.False(t, c.Matches(left, right, 1, 0))
	assert.False(t, c.Matches(left, right, 2, 0), "NULL operand fails")
	assert.Equal(t, "[(<= left.0 right.0)]", c.String())

	t.Run("Validate", func(t *testing.T) {
		assert.Error(t, Where().Validate(left, right))
		assert.Error(t, Where(Condition{Left: 0, Op: "~", Right: 0}).Validate(left, right))
		assert.Error(t, Where(Condition{Left: 0, Op: nljoin.OpEQ, Right: 3}).Validate(left, right))
	})

	t.Run("ParseCondition", func(t *testing.T) {
		cond, err := ParseCondition(left, right, "start <= ts")
		require.NoError(t, err)
		assert.Equal(t, Condition{Left: 0, Op: nljoin.OpLTE, Right: 0}, cond)

		cond, err = ParseCondition(left, right, "start!=ts")
		require.NoError(t, err)
		assert.Equal(t, nljoin.OpNE, cond.Op)

		_, err = ParseCondition(left, right, "start ts")
		assert.Error(t, err)
		_, err = ParseCondition(left, right, "stop<ts")
		assert.Error(t, err)
	})
}

func TestFlip(t *testing.T) {
	a := table.MustNew(table.NewInt64Column("x", []int64{1, 2, 3}))
	b := table.MustNew(table.NewInt64Column("y", []int64{2, 3}))

	matchers := map[string]RowMatcher{
		"equality": Equality{LeftKeys: []int{0}, RightKeys: []int{0}},
		"less":     Where(Condition{Left: 0, Op: nljoin.OpLT, Right: 0}),
		"func": Func(func(left, right table.View, l, r int) bool {
			return l == 0 && r == 1
		}),
	}
	for name, m := range matchers {
		t.Run(name, func(t *testing.T) {
			f := Flip(m)
			for i := 0; i < a.NumRows(); i++ {
				for j := 0; j < b.NumRows(); j++ {
					assert.Equal(t, m.Matches(a, b, i, j), f.Matches(b, a, j, i), "(%d, %d)", i, j)
				}
			}
			assert.NoError(t, Validate(f, b, a))
		})
	}

	t.Run("DoubleFlip", func(t *testing.T) {
		m := Equality{LeftKeys: []int{0}, RightKeys: []int{0}}
		assert.Equal(t, RowMatcher(m), Flip(Flip(m)))
	})

	t.Run("ValidateSwapsOperands", func(t *testing.T) {
		wide := table.MustNew(table.NewInt64Column("a", []int64{1}), table.NewInt64Column("b", []int64{1}))
		m := Equality{LeftKeys: []int{1}, RightKeys: []int{0}}
		assert.NoError(t, Validate(m, wide, b))
		assert.NoError(t, Validate(Flip(m), b, wide))
		assert.Error(t, Validate(Flip(m), wide, b))
	})
}

func TestAll(t *testing.T) {
	left := table.MustNew(table.NewInt64Column("k", []int64{1, 1}), table.NewInt64Column("v", []int64{1, 9}))
	right := table.MustNew(table.NewInt64Column("k", []int64{1}), table.NewInt64Column("max", []int64{5}))

	m := All(
		Equality{LeftKeys: []int{0}, RightKeys: []int{0}},
		Where(Condition{Left: 1, Op: nljoin.OpLT, Right: 1}),
	)
	require.NoError(t, Validate(m, left, right))
	assert.True(t, m.Matches(left, right, 0, 0))
	assert.False(t, m.Matches(left, right, 1, 0))

	assert.Error(t, Validate(All(Equality{}, Where()), left, right))

	single := Equality{LeftKeys: []int{0}, RightKeys: []int{0}}
	assert.Equal(t, RowMatcher(single), All(single))
}
