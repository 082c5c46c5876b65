package core

import (
	"context"
	"iter"
)

// Processor is user-defined per-step logic. A feedforward.Step wraps a
// Processor with the queueing, batching, acceptance, and cancellation
// machinery; Processor implementations stay free of locks and threading
// concerns entirely.
type Processor[K comparable, V any] interface {
	// Match reports whether this step is interested in key. A false
	// result at notify time drops the notification silently. Match is
	// re-checked again at batch-admission time, so a predicate that
	// changes over the step's lifetime is tolerated rather than assumed
	// stable.
	Match(key K) bool

	// Process is handed every notification admitted into this batch, with
	// newGen the generation this step has claimed for its own slot.
	// Returned notifications must carry newGen in this step's own
	// generation slot and zero in every slot to its right. The scheduler
	// does not check this; it records whatever the sequence yields.
	//
	// The returned sequence may be produced lazily and is only ever
	// iterated with the step's state lock released. A non-nil error
	// aborts the batch and cancels the step with that error's message,
	// exactly as an uncaught exception would in the original.
	Process(ctx context.Context, newGen int, batch []Notification[K, V]) (iter.Seq[Notification[K, V]], error)
}

// Preparer is an optional capability a Processor may implement to run
// setup once, lazily, on the first call into the step. A Preparer that
// returns an error cancels the step with reason "While preparing: <error>"
// before any batch is processed.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// IndexAware is an optional capability letting a Processor learn the index
// the Run assigned it at registration time -- needed to stamp a step's own
// generation slot via Generation.WithSlot. Built-in processors in the
// steps package embed steps.Base, which implements this for you.
type IndexAware interface {
	SetIndex(index int)
}
