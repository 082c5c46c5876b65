package steps

import (
	"context"
	"iter"

	"github.com/advice-animal/feedforward/core"
)

// MapFunc transforms a present value for key into its replacement. It is
// never called for erased values; those pass through untouched.
type MapFunc[K comparable, V any] func(key K, value V) (V, error)

// Func wraps a MapFunc as a core.Processor, the step-building equivalent
// of map() over whatever keys its matcher admits.
type Func[K comparable, V any] struct {
	Base[K]
	fn MapFunc[K, V]
}

// NewFunc constructs a Func step applying fn to every admitted,
// non-erased value.
func NewFunc[K comparable, V any](fn MapFunc[K, V], matcher func(K) bool) *Func[K, V] {
	return &Func[K, V]{Base: NewBase[K](matcher), fn: fn}
}

// Process implements core.Processor.
func (f *Func[K, V]) Process(ctx context.Context, newGen int, batch []core.Notification[K, V]) (iter.Seq[core.Notification[K, V]], error) {
	results := make([]core.Notification[K, V], 0, len(batch))
	for _, notif := range batch {
		gens := f.Stamp(notif.State.Gens, newGen)
		v, ok := notif.State.Value.Get()
		if !ok {
			results = append(results, core.Notification[K, V]{Key: notif.Key, State: core.State[V]{Gens: gens, Value: notif.State.Value}})
			continue
		}
		out, err := f.fn(notif.Key, v)
		if err != nil {
			return nil, err
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
