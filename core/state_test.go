package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateValuePresent(t *testing.T) {
	sv := Present(42)
	assert.False(t, sv.IsErased())
	v, ok := sv.Get()
	assert.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestStateValueErased(t *testing.T) {
	sv := Erased[int]()
	assert.True(t, sv.IsErased())
	v, ok := sv.Get()
	assert.False(t, ok)
	assert.Equal(t, 0, v)
}

func TestStateWithChangesPreservesValue(t *testing.T) {
	s := State[string]{Gens: Generation{0, 0}, Value: Present("hello")}
	s2 := s.WithChanges(Generation{1, 0})
	assert.Equal(t, Generation{1, 0}, s2.Gens)
	v, ok := s2.Value.Get()
	assert.True(t, ok)
	assert.Equal(t, "hello", v)
	// original untouched
	assert.Equal(t, Generation{0, 0}, s.Gens)
}
