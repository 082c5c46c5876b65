// Package steps collects ready-made core.Processor implementations for the
// cases that come up often enough not to rewrite by hand: a no-op pass,
// wrapping a plain function, filtering by predicate, and per-item
// processing with buffered, non-fatal errors.
package steps

import "github.com/advice-animal/feedforward/core"

// Base gives an embedding Processor its core.IndexAware implementation and
// a matcher, so concrete steps only need to write Process. Zero value
// matches every key.
type Base[K comparable] struct {
	index   int
	matcher func(K) bool
}

// NewBase constructs a Base matching every key unless matcher is non-nil.
func NewBase[K comparable](matcher func(K) bool) Base[K] {
	return Base[K]{matcher: matcher}
}

// SetIndex implements core.IndexAware.
func (b *Base[K]) SetIndex(i int) { b.index = i }

// Index returns the index this step was assigned by its Run.
func (b *Base[K]) Index() int { return b.index }

// Match implements core.Processor's Match, delegating to the configured
// matcher, or matching everything if none was given.
func (b *Base[K]) Match(key K) bool {
	if b.matcher == nil {
		return true
	}
	return b.matcher(key)
}

// Stamp returns gens with this step's own slot set to newGen, the common
// first line of a Process implementation's per-notification output.
func (b *Base[K]) Stamp(gens core.Generation, newGen int) core.Generation {
	return gens.WithSlot(b.index, newGen)
}
