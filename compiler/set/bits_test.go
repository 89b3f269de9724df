package set

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitsBasic(t *testing.T) {
	s := Make[int]()

	s.Set(3)
	s.Set(64)
	s.Set(200)

	assert.True(t, s.IsSet(3))
	assert.True(t, s.IsSet(64))
	assert.True(t, s.IsSet(200))
	assert.False(t, s.IsSet(4))
	assert.Equal(t, 3, s.Size())

	s.Clear(64)
	assert.False(t, s.IsSet(64))
	assert.Equal(t, 2, s.Size())

	assert.Equal(t, 3, s.First())
}

func TestBitsOps(t *testing.T) {
	a := Make[int]()
	b := Make[int]()

	a.Set(1)
	a.Set(100)
	b.Set(100)
	b.Set(2)

	u := a.Copy()
	u.Or(b)
	assert.Equal(t, 3, u.Size())

	i := a.Copy()
	i.And(b)
	assert.Equal(t, 1, i.Size())
	assert.True(t, i.IsSet(100))

	d := a.Copy()
	d.AndNot(b)
	assert.Equal(t, 1, d.Size())
	assert.True(t, d.IsSet(1))
}

func TestBitsEqual(t *testing.T) {
	a := Make[int]()
	b := Make[int]()

	assert.True(t, a.Equal(b))

	a.Set(70)
	assert.False(t, a.Equal(b))

	b.Set(70)
	assert.True(t, a.Equal(b))

	// trailing zero words do not matter
	a.Set(300)
	a.Clear(300)
	assert.True(t, a.Equal(b))
}

func TestBitsRange(t *testing.T) {
	s := Make[int]()

	for _, k := range []int{5, 63, 64, 129} {
		s.Set(k)
	}

	var got []int

	s.Range(func(k int) bool {
		got = append(got, k)
		return true
	})

	assert.Equal(t, []int{5, 63, 64, 129}, got)
}
