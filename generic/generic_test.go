package generic

import (
	"errors"
	"sort"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestOption(t *testing.T) {
	assert := assert_.New(t)

	some := Some(42)
	assert.True(some.IsSome())
	assert.False(some.IsNone())
	assert.Equal(42, some.Unwrap())
	assert.Equal(42, some.UnwrapOr(7))

	none := None[int]()
	assert.False(none.IsSome())
	assert.True(none.IsNone())
	assert.Equal(7, none.UnwrapOr(7))
	assert.Panics(func() { none.Unwrap() })
}

func TestResult(t *testing.T) {
	assert := assert_.New(t)

	ok := Ok("value")
	assert.True(ok.IsOk())
	assert.Equal("value", ok.Unwrap())
	v, err := ok.Parts()
	assert.Equal("value", v)
	assert.NoError(err)

	fail := Err[string](errors.New("boom"))
	assert.True(fail.IsErr())
	assert.Panics(func() { fail.Unwrap() })
	_, err = fail.Parts()
	assert.Error(err)
}

func TestSet(t *testing.T) {
	assert := assert_.New(t)

	s := NewSet[int]()
	assert.Equal(0, s.Count())
	assert.False(s.Contains(1))
	assert.True(s.Add(1))
	assert.False(s.Add(1))
	assert.True(s.Contains(1))
	assert.True(s.Remove(1))
	assert.False(s.Remove(1))
	assert.Equal(0, s.Count())

	s2 := NewSet(1, 2, 3)
	items := s2.ToSlice()
	sort.Ints(items)
	assert.Equal([]int{1, 2, 3}, items)
	s2.Clear()
	assert.Equal(0, s2.Count())
}
