package steps

import (
	"context"
	"iter"

	"github.com/advice-animal/feedforward/core"
)

// FilterFunc decides whether value should survive this step. A false
// result erases the key rather than dropping the notification silently,
// so downstream steps see the withdrawal.
type FilterFunc[K comparable, V any] func(key K, value V) bool

// Filter keeps values its predicate accepts and erases the rest.
type Filter[K comparable, V any] struct {
	Base[K]
	keep FilterFunc[K, V]
}

// NewFilter constructs a Filter step.
func NewFilter[K comparable, V any](keep FilterFunc[K, V], matcher func(K) bool) *Filter[K, V] {
	return &Filter[K, V]{Base: NewBase[K](matcher), keep: keep}
}

// Process implements core.Processor.
func (f *Filter[K, V]) Process(ctx context.Context, newGen int, batch []core.Notification[K, V]) (iter.Seq[core.Notification[K, V]], error) {
	return func(yield func(core.Notification[K, V]) bool) {
		for _, notif := range batch {
			gens := f.Stamp(notif.State.Gens, newGen)
			v, ok := notif.State.Value.Get()
			if !ok {
				if !yield(core.Notification[K, V]{Key: notif.Key, State: core.State[V]{Gens: gens, Value: notif.State.Value}}) {
					return
				}
				continue
			}
			var out core.Notification[K, V]
			if f.keep(notif.Key, v) {
				out = core.Notification[K, V]{Key: notif.Key, State: core.State[V]{Gens: gens, Value: core.Present(v)}}
			} else {
				out = core.Notification[K, V]{Key: notif.Key, State: core.State[V]{Gens: gens, Value: core.Erased[V]()}}
			}
			if !yield(out) {
				return
			}
		}
	}, nil
}
