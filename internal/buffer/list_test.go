package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListAppendGrows(t *testing.T) {
	l := NewList[int](0)
	assert.Equal(t, 64, l.Cap())
	for i := 0; i < 65; i++ {
		l.Append(i)
	}
	assert.Equal(t, 65, l.Len())
	assert.Equal(t, 128, l.Cap())
	assert.Equal(t, 64, l.At(64))
}

func TestListSetAndIndexOf(t *testing.T) {
	l := NewList[string](2)
	l.Append("a")
	l.Append("b")
	l.Append("c")
	l.Set(1, "x")

	eq := func(a, b string) bool { return a == b }
	assert.Equal(t, 1, l.IndexOf("x", eq))
	assert.Equal(t, -1, l.IndexOf("b", eq))
	assert.Equal(t, []string{"a", "x", "c"}, l.Values())
}

func TestListClear(t *testing.T) {
	l := NewList[int](4)
	for i := 0; i < 100; i++ {
		l.Append(i)
	}
	c := l.Cap()
	l.Clear()
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, c, l.Cap())
	assert.Panics(t, func() { l.At(0) })
}
