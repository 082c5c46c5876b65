package steps

import (
	"context"
	"iter"

	"github.com/advice-animal/feedforward/core"
)

// Null forwards every admitted notification unchanged beyond stamping its
// own generation slot. Useful as a sink placeholder or as a matcher-only
// filter stage (pair with a restrictive matcher via NewBase).
type Null[K comparable, V any] struct {
	Base[K]
}

// NewNull constructs a Null step, optionally restricted by matcher.
func NewNull[K comparable, V any](matcher func(K) bool) *Null[K, V] {
	return &Null[K, V]{Base: NewBase[K](matcher)}
}

// Process implements core.Processor.
func (n *Null[K, V]) Process(ctx context.Context, newGen int, batch []core.Notification[K, V]) (iter.Seq[core.Notification[K, V]], error) {
	return func(yield func(core.Notification[K, V]) bool) {
		for _, notif := range batch {
			out := core.Notification[K, V]{Key: notif.Key, State: notif.State.WithChanges(n.Stamp(notif.State.Gens, newGen))}
			if !yield(out) {
				return
			}
		}
	}, nil
}
