package feedforward

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creastat/infra/telemetry"

	"github.com/advice-animal/feedforward/core"
	"github.com/advice-animal/feedforward/status"
)

// PeriodicWait is how long an idle worker sleeps before rescanning for
// work. StatusWait is how often the status tick fires. Both match the
// constants the original scheduler used, since they were tuned for the
// same "don't busy-spin, don't starve status updates" tradeoff.
const (
	PeriodicWait = 10 * time.Millisecond
	StatusWait   = 500 * time.Millisecond
)

// RunOption configures a Run at construction time.
type RunOption[K comparable, V any] func(*Run[K, V])

// WithParallelism overrides the number of worker goroutines a Run starts.
// The default is DefaultParallelism().
func WithParallelism[K comparable, V any](n int) RunOption[K, V] {
	return func(r *Run[K, V]) { r.parallelism = n }
}

// WithStatusSink attaches an external collaborator that receives a status
// snapshot on every supervisor tick and once more when the run completes.
func WithStatusSink[K comparable, V any](sink status.Sink) RunOption[K, V] {
	return func(r *Run[K, V]) { r.statusSink = sink }
}

// WithLogger attaches a logger to the Run. Optional. The Run itself writes
// nothing to it and does not recover worker panics; step-level failures
// are logged through each Step's WithStepLogger.
func WithLogger[K comparable, V any](logger telemetry.Logger) RunOption[K, V] {
	return func(r *Run[K, V]) { r.logger = logger }
}

// Run drives a fixed, ordered sequence of Steps to completion over a
// worker pool. Steps are added in processing order with AddStep; once
// Start or RunToCompletion is called the sequence is frozen.
type Run[K comparable, V any] struct {
	steps       []*Step[K, V]
	names       []string
	parallelism int
	statusSink  status.Sink
	logger      telemetry.Logger

	finalizedIdx atomic.Int64 // index of the furthest step whose outputs are known final

	wg        sync.WaitGroup
	cancel    context.CancelFunc
	started   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// NewRun constructs an empty Run. Add steps with AddStep before starting.
func NewRun[K comparable, V any](opts ...RunOption[K, V]) *Run[K, V] {
	r := &Run[K, V]{
		parallelism: DefaultParallelism(),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.finalizedIdx.Store(-1)
	return r
}

// AddStep appends step to the end of the pipeline and assigns it the next
// index. Must be called before Start/RunToCompletion; it panics if the
// Run has already started.
func (r *Run[K, V]) AddStep(name string, step *Step[K, V]) {
	if r.started.Load() {
		panic("feedforward: AddStep called after the run started")
	}
	step.setIndex(len(r.steps))
	r.steps = append(r.steps, step)
	r.names = append(r.names, name)
}

// Steps returns the registered steps in processing order.
func (r *Run[K, V]) Steps() []*Step[K, V] { return r.steps }

// Feed injects a notification at the front of the pipeline, at the
// all-zero initial generation, as if produced by an upstream source. Safe
// to call before or after Start.
func (r *Run[K, V]) Feed(key K, value V) {
	notif := core.Notification[K, V]{
		Key:   key,
		State: core.State[V]{Gens: core.NewGeneration(len(r.steps)), Value: core.Present(value)},
	}
	r.feedforward(-1, notif)
}

// feedforward delivers notif to every step downstream of fromIdx that
// matches its key.
func (r *Run[K, V]) feedforward(fromIdx int, notif core.Notification[K, V]) {
	for i := fromIdx + 1; i < len(r.steps); i++ {
		r.steps[i].Notify(notif)
	}
}

// Start launches the worker pool and the status supervisor. It returns
// immediately; use RunToCompletion to block until every step's outputs are
// final.
func (r *Run[K, V]) Start(ctx context.Context) {
	if !r.started.CompareAndSwap(false, true) {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	for i := 0; i < r.parallelism; i++ {
		r.wg.Add(1)
		go r.workerLoop(ctx)
	}

	r.wg.Add(1)
	go r.supervise(ctx)
}

// RunToCompletion seeds the pipeline from inputs, starts the pool if
// needed, and blocks until every step has final outputs and the workers
// and status supervisor have exited, or until ctx is done. It returns the
// last step's final state per key (see Step.FinalState) -- the most
// recent value any key was known to have by the time the run finished,
// whether or not the last step's Process itself produced anything for
// that key (a step may match and admit a key purely to observe it, the
// way a terminal sink does).
//
// The returned error covers an empty pipeline and the context: one that
// was already done before the run could start, or one that ends before
// the run completes (then the error is ctx.Err() and no results are
// returned). A step that fails mid-run never surfaces here -- it manifests as
// that step's Cancelled/CancelReason, inspected post-hoc, per the
// propagation policy in SPEC_FULL.md's error handling section.
func (r *Run[K, V]) RunToCompletion(ctx context.Context, inputs map[K]V) (map[K]core.State[V], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(r.steps) == 0 {
		return nil, fmt.Errorf("feedforward: run has no steps")
	}

	r.Start(ctx)
	for k, v := range inputs {
		r.Feed(k, v)
	}
	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	r.wg.Wait()

	return r.steps[len(r.steps)-1].FinalState(), nil
}

func (r *Run[K, V]) allFinal() bool {
	for _, s := range r.steps {
		if !s.OutputsFinal() {
			return false
		}
	}
	return true
}

func (r *Run[K, V]) workerLoop(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		progressed := false
		for i, s := range r.steps {
			if s.RunNextBatch(ctx) {
				progressed = true
			}
			if out := s.drainOutputNotifications(); len(out) > 0 {
				progressed = true
				for _, n := range out {
					r.feedforward(i, n)
				}
			}
		}

		if r.allFinal() {
			r.closeDone()
			return
		}

		if !progressed {
			select {
			case <-ctx.Done():
				return
			case <-time.After(PeriodicWait):
			}
		}
	}
}

func (r *Run[K, V]) closeDone() {
	r.closeOnce.Do(func() { close(r.done) })
}

// advanceFrontier marks inputsFinal on any step whose every upstream
// dependency (every step to its left) has final outputs and an empty
// queue. inputsFinal is always set before outputsFinal so a step sees the
// finality signal before being asked to drain its last batch; a step may
// need one more supervisor tick after seeing inputsFinal to actually empty
// its queue before finalizeIfDrained flips its outputsFinal (lazy steps
// gate RunNextBatch on exactly this).
func (r *Run[K, V]) advanceFrontier() {
	for i := int(r.finalizedIdx.Load()) + 1; i < len(r.steps); i++ {
		step := r.steps[i]
		if i > 0 && !r.steps[i-1].OutputsFinal() {
			break
		}

		// Inputs are final the moment the upstream step is final (index 0
		// has no upstream and is final from the start, set in supervise).
		step.inputsFinal.Store(true)

		if step.OutputsFinal() {
			r.finalizedIdx.Store(int64(i))
			continue
		}
		// Give a lazy step's first post-inputsFinal RunNextBatch a chance
		// to run before declaring it drained; finalizeIfDrained is safe to
		// call speculatively every tick since it only finalizes when the
		// queue is truly empty and nothing is outstanding.
		if step.finalizeIfDrained() {
			r.finalizedIdx.Store(int64(i))
			continue
		}
		break
	}
}

func (r *Run[K, V]) snapshot() status.Snapshot {
	out := make([]status.StepSnapshot, len(r.steps))
	for i, s := range r.steps {
		snap := status.StepSnapshot{Index: i, Name: r.names[i], State: s.Status().statusState(), Emoji: s.Emoji()}
		if s.Cancelled() {
			reason := s.CancelReason()
			snap.CancelReason = &reason
		}
		out[i] = snap
	}
	return status.Snapshot{Steps: out}
}

func (r *Run[K, V]) supervise(ctx context.Context) {
	defer r.wg.Done()
	r.steps[0].inputsFinal.Store(true)
	ticker := time.NewTicker(StatusWait)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			if r.statusSink != nil {
				r.statusSink.Publish(r.snapshot())
			}
			return
		case <-ticker.C:
			r.advanceFrontier()
			if r.statusSink != nil {
				r.statusSink.Publish(r.snapshot())
			}
		}
	}
}

// Stop cancels the worker pool and supervisor without waiting for steps to
// reach final output. Intended for shutdown, not for cancelling a single
// step mid-run -- use Step.Cancel for that.
func (r *Run[K, V]) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}
