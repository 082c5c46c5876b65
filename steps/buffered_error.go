package steps

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/advice-animal/feedforward/core"
)

// ItemFunc processes a single key's value. Unlike MapFunc, an error from
// ItemFunc does not cancel the step: BufferedErrorStep records it and
// passes the input through unchanged, the opt-in alternative to the
// default "any error cancels the step" policy for processors that would
// rather finish the batch and report failures out of band.
type ItemFunc[K comparable, V any] func(ctx context.Context, key K, value V) (V, error)

// ItemError pairs a buffered failure with the key that caused it.
type ItemError[K comparable] struct {
	Key K
	Err error
}

func (e ItemError[K]) Error() string {
	return fmt.Sprintf("key %v: %s", e.Key, e.Err)
}

// BufferedErrorStep applies an ItemFunc to every admitted value, collecting
// rather than raising per-item failures. Call Errors after a run completes
// to inspect what failed, or Finalize to turn any buffered errors into a
// single aggregate error.
type BufferedErrorStep[K comparable, V any] struct {
	Base[K]
	fn ItemFunc[K, V]

	mu   sync.Mutex
	errs []ItemError[K]
}

// NewBufferedErrorStep constructs a BufferedErrorStep applying fn to every
// admitted, non-erased value.
func NewBufferedErrorStep[K comparable, V any](fn ItemFunc[K, V], matcher func(K) bool) *BufferedErrorStep[K, V] {
	return &BufferedErrorStep[K, V]{Base: NewBase[K](matcher), fn: fn}
}

// Process implements core.Processor. A failing item keeps its original
// value and is recorded in Errors(); it never cancels the batch.
func (b *BufferedErrorStep[K, V]) Process(ctx context.Context, newGen int, batch []core.Notification[K, V]) (iter.Seq[core.Notification[K, V]], error) {
	results := make([]core.Notification[K, V], 0, len(batch))
	for _, notif := range batch {
		gens := b.Stamp(notif.State.Gens, newGen)
		v, ok := notif.State.Value.Get()
		if !ok {
			results = append(results, core.Notification[K, V]{Key: notif.Key, State: core.State[V]{Gens: gens, Value: notif.State.Value}})
			continue
		}
		out, err := b.fn(ctx, notif.Key, v)
		if err != nil {
			b.mu.Lock()
			b.errs = append(b.errs, ItemError[K]{Key: notif.Key, Err: err})
			b.mu.Unlock()
			results = append(results, core.Notification[K, V]{Key: notif.Key, State: core.State[V]{Gens: gens, Value: core.Present(v)}})
			continue
		}
		results = append(results, core.Notification[K, V]{Key: notif.Key, State: core.State[V]{Gens: gens, Value: core.Present(out)}})
	}
	return func(yield func(core.Notification[K, V]) bool) {
		for _, r := range results {
			if !yield(r) {
				return
			}
		}
	}, nil
}

// Errors returns every buffered failure recorded so far, in the order
// they occurred.
func (b *BufferedErrorStep[K, V]) Errors() []ItemError[K] {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]ItemError[K], len(b.errs))
	copy(out, b.errs)
	return out
}

// Finalize returns nil if no errors were buffered, or a single error
// aggregating all of them, for callers that want to treat "any item
// failed" as fatal only after the whole run has finished.
func (b *BufferedErrorStep[K, V]) Finalize() error {
	errs := b.Errors()
	if len(errs) == 0 {
		return nil
	}
	msg := fmt.Sprintf("%d item(s) failed", len(errs))
	for _, e := range errs {
		msg += "; " + e.Error()
	}
	return fmt.Errorf("%s", msg)
}
