package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestGenerationCompareBasics(t *testing.T) {
	assert.True(t, Generation{1, 0, 0}.GreaterThan(Generation{0, 0, 0}))
	assert.True(t, Generation{0, 1, 0}.GreaterThan(Generation{0, 0, 5}))
	assert.True(t, Generation{2, 0}.Equal(Generation{2, 0}))
	assert.False(t, Generation{2, 0}.GreaterThan(Generation{2, 0}))
}

func TestGenerationWithSlot(t *testing.T) {
	g := Generation{0, 0, 0}
	got := g.WithSlot(1, 5)
	assert.Equal(t, Generation{0, 5, 0}, got)
	// original untouched
	assert.Equal(t, Generation{0, 0, 0}, g)
}

func TestGenerationShorterTreatedAsZero(t *testing.T) {
	assert.True(t, Generation{1}.Equal(Generation{1, 0, 0}))
	assert.True(t, Generation{1, 1}.GreaterThan(Generation{1}))
}

// For any two generation vectors, exactly one of <, ==, > holds, and the
// ordering is consistent with lexicographic comparison of the longer of
// the two vectors (shorter one zero-padded).
func TestPropertyGenerationTotalOrder(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 5).Draw(rt, "n")
		a := make(Generation, n)
		b := make(Generation, n)
		for i := range a {
			a[i] = rapid.IntRange(0, 3).Draw(rt, "a")
			b[i] = rapid.IntRange(0, 3).Draw(rt, "b")
		}

		lt := a.Less(b)
		gt := a.GreaterThan(b)
		eq := a.Equal(b)

		count := 0
		for _, v := range []bool{lt, gt, eq} {
			if v {
				count++
			}
		}
		if count != 1 {
			rt.Fatalf("expected exactly one of lt/gt/eq, got lt=%v gt=%v eq=%v for %v vs %v", lt, gt, eq, a, b)
		}

		// antisymmetry
		if gt {
			if !b.Less(a) {
				rt.Fatalf("a > b but not b < a")
			}
		}
	})
}

// WithSlot never changes any other slot, and always reflects the new value
// at the requested index.
func TestPropertyWithSlotOnlyTouchesOneIndex(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(rt, "n")
		g := make(Generation, n)
		for i := range g {
			g[i] = rapid.IntRange(0, 9).Draw(rt, "v")
		}
		idx := rapid.IntRange(0, n-1).Draw(rt, "idx")
		newVal := rapid.IntRange(0, 9).Draw(rt, "newVal")

		got := g.WithSlot(idx, newVal)
		if got[idx] != newVal {
			rt.Fatalf("slot %d = %d, want %d", idx, got[idx], newVal)
		}
		for i := range g {
			if i == idx {
				continue
			}
			if got[i] != g[i] {
				rt.Fatalf("slot %d changed from %d to %d unexpectedly", i, g[i], got[i])
			}
		}
	})
}
