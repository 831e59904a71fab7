package nljoin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJoinKind(t *testing.T) {
	for in, want := range map[string]JoinKind{
		"inner":      InnerJoin,
		"":           InnerJoin,
		"LEFT":       LeftJoin,
		" left ":     LeftJoin,
		"full outer": FullJoin,
	} {
		got, err := ParseJoinKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseJoinKind("semi")
	assert.Error(t, err)
}

func TestJoinKindSupported(t *testing.T) {
	assert.True(t, InnerJoin.Supported())
	assert.True(t, LeftJoin.Supported())
	assert.False(t, FullJoin.Supported())
	assert.False(t, JoinKind(9).Supported())
	assert.Equal(t, "JoinKind(9)", JoinKind(9).String())
}

func TestIndexPairs(t *testing.T) {
	p := IndexPairs{Left: []int32{0, 1}, Right: []int32{5, NoMatch}}
	assert.Equal(t, 2, p.Len())

	s := p.Swap()
	assert.Equal(t, p.Right, s.Left)
	assert.Equal(t, p.Left, s.Right)

	empty := EmptyPairs()
	assert.NotNil(t, empty.Left)
	assert.NotNil(t, empty.Right)
	assert.Zero(t, empty.Len())
}

func TestErrors(t *testing.T) {
	t.Run("UnsupportedJoinKind", func(t *testing.T) {
		err := UnsupportedJoinKind(FullJoin)
		assert.ErrorIs(t, err, ErrUnsupportedJoinKind)
		assert.Contains(t, err.Error(), "full")
		assert.False(t, IsDeviceFault(err))
	})

	t.Run("DeviceFault", func(t *testing.T) {
		assert.NoError(t, DeviceFault(nil, "launch"))

		base := assert.AnError
		err := DeviceFault(base, "launch")
		assert.True(t, IsDeviceFault(err))
		assert.ErrorIs(t, err, base)
		assert.Contains(t, err.Error(), "launch")

		again := DeviceFault(err, "join")
		assert.True(t, IsDeviceFault(again))
		assert.Contains(t, again.Error(), "join: launch")
	})
}
