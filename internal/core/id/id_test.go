package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIsTimeOrdered(t *testing.T) {
	prev := New()
	for i := 0; i < 100; i++ {
		next := New()
		assert.Equal(t, -1, Compare(prev, next))
		prev = next
	}
}

func TestCompare(t *testing.T) {
	a := MustParse("00000000-0000-7000-8000-000000000001")
	b := MustParse("00000000-0000-7000-8000-000000000002")

	assert.Equal(t, -1, Compare(a, b))
	assert.Equal(t, 1, Compare(b, a))
	assert.Equal(t, 0, Compare(a, a))
	assert.True(t, IsNil(Nil()))
}
