package feedforward

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/creastat/infra/telemetry"

	"github.com/advice-animal/feedforward/core"
)

// Status classifies a step's current activity for external display.
type Status int

const (
	StatusIdle Status = iota
	StatusQueued
	StatusRunning
	StatusComplete
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusComplete:
		return "complete"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Emoji is the one-glyph classification the original status renderer used;
// kept because it is a stable, load-bearing part of the status contract
// (see status.Snapshot) rather than decoration.
func (s Status) Emoji() string {
	switch s {
	case StatusCancelled:
		return "\U0001F534" // red circle
	case StatusRunning:
		return "\U0001F3C3" // runner
	case StatusQueued:
		return "\U0001FAA3" // bucket
	case StatusComplete:
		return "\U0001F49A" // green heart
	default:
		return "\U0001FA76" // gray heart
	}
}

// StepOption configures a Step at construction time.
type StepOption[K comparable, V any] func(*Step[K, V])

// WithConcurrencyLimit caps the number of simultaneous Process invocations
// this step will admit. A limit of 0 forbids any batch from ever running.
// The default, when this option is omitted, is unlimited.
func WithConcurrencyLimit[K comparable, V any](limit int) StepOption[K, V] {
	return func(s *Step[K, V]) {
		l := limit
		s.concurrencyLimit = &l
	}
}

// WithEager controls whether the step processes notifications as they
// arrive (the default, true) or defers all processing until its inputs are
// declared final (false).
func WithEager[K comparable, V any](eager bool) StepOption[K, V] {
	return func(s *Step[K, V]) { s.eager = eager }
}

// WithBatchSize caps the number of notifications drained into a single
// Process call. A non-positive size (the default is 10) means "no cap,
// drain the entire queue".
func WithBatchSize[K comparable, V any](size int) StepOption[K, V] {
	return func(s *Step[K, V]) { s.batchSize = size }
}

// WithStepLogger attaches a logger a step will use to report preparation
// and processing failures. Optional; a step with no logger simply stays
// silent about them beyond its cancelled/cancel-reason state.
func WithStepLogger[K comparable, V any](logger telemetry.Logger) StepOption[K, V] {
	return func(s *Step[K, V]) { s.logger = logger }
}

// Step is the scheduling primitive described in the design: it wraps a
// core.Processor with a queue, a per-key acceptance rule, a generation
// counter, and the cancellation/unwind machinery, and exposes the single
// entry point (RunNextBatch) a Run's workers drive.
type Step[K comparable, V any] struct {
	index     int
	processor core.Processor[K, V]
	logger    telemetry.Logger

	concurrencyLimit *int
	eager            bool
	batchSize        int

	stateLock           sync.Mutex
	unprocessed         []core.Notification[K, V]
	accepted            map[K]core.State[V]
	output              map[K]core.State[V]
	outputNotifications []core.Notification[K, V]
	genCounter           int

	outstanding  atomic.Int64
	prepared     atomic.Bool
	inputsFinal  atomic.Bool
	outputsFinal atomic.Bool
	cancelled    atomic.Bool

	prepareOnce  sync.Once
	prepareErr   error
	cancelReason string
}

// NewStep wraps processor with the default scheduling policy (unlimited
// concurrency, eager, batch size 10) and applies opts on top of it.
func NewStep[K comparable, V any](processor core.Processor[K, V], opts ...StepOption[K, V]) *Step[K, V] {
	s := &Step[K, V]{
		processor: processor,
		eager:     true,
		batchSize: 10,
		accepted:  make(map[K]core.State[V]),
		output:    make(map[K]core.State[V]),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Index returns the position this step was registered at. Valid only after
// it has been added to a Run.
func (s *Step[K, V]) Index() int { return s.index }

func (s *Step[K, V]) setIndex(i int) {
	s.index = i
	if aware, ok := s.processor.(core.IndexAware); ok {
		aware.SetIndex(i)
	}
}

// Match delegates to the wrapped Processor.
func (s *Step[K, V]) Match(key K) bool { return s.processor.Match(key) }

// Notify offers n to this step. It returns false if the step is already
// cancelled, outputs_final, or uninterested in n.Key; otherwise the
// notification is queued and true is returned. Safe to call from any
// thread; only the queue append is made under the state lock.
func (s *Step[K, V]) Notify(n core.Notification[K, V]) bool {
	if s.cancelled.Load() || s.outputsFinal.Load() {
		return false
	}
	if !s.processor.Match(n.Key) {
		return false
	}

	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	if s.cancelled.Load() || s.outputsFinal.Load() {
		return false
	}
	s.unprocessed = append(s.unprocessed, n)
	return true
}

func (s *Step[K, V]) ensurePrepared(ctx context.Context) bool {
	s.prepareOnce.Do(func() {
		defer s.prepared.Store(true)
		preparer, ok := s.processor.(core.Preparer)
		if !ok {
			return
		}
		if err := preparer.Prepare(ctx); err != nil {
			s.prepareErr = err
			reason := fmt.Sprintf("While preparing: %s", err)
			if s.logger != nil {
				s.logger.Error("step failed to prepare", telemetry.Err(err))
			}
			s.cancel(reason)
		}
	})
	return s.prepareErr == nil
}

// RunNextBatch is the scheduling primitive a Run's workers call
// repeatedly. It returns true if it made progress (admitted and processed
// a batch, or cancelled, including cancelling because prepare failed),
// false otherwise; a successful prepare with nothing to admit returns false.
func (s *Step[K, V]) RunNextBatch(ctx context.Context) bool {
	if s.cancelled.Load() || s.outputsFinal.Load() {
		return false
	}
	if !s.prepared.Load() {
		if !s.ensurePrepared(ctx) {
			// ensurePrepared runs at most once (sync.Once); a failure here
			// cancels the step, which is progress even with no batch run.
			return true
		}
	}
	if !s.eager && !s.inputsFinal.Load() {
		return false
	}

	batch, gen, ok := s.admitBatch()
	if !ok {
		return false
	}

	s.outstanding.Add(1)
	defer s.outstanding.Add(-1)

	seq, err := s.processor.Process(ctx, gen, batch)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("step failed while processing", telemetry.Err(err))
		}
		s.cancel(err.Error())
		return true
	}
	if seq != nil {
		for result := range seq {
			s.acceptResult(result)
		}
	}
	return true
}

// admitBatch drains up to batchSize queued notifications, keeping only
// those this step still matches and whose generation strictly supersedes
// whatever was previously accepted for that key. Returns false if nothing
// was admitted (including when the concurrency limit forbids running at
// all).
func (s *Step[K, V]) admitBatch() ([]core.Notification[K, V], int, bool) {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()

	if s.concurrencyLimit != nil && s.outstanding.Load() >= int64(*s.concurrencyLimit) {
		return nil, 0, false
	}

	n := len(s.unprocessed)
	if s.batchSize > 0 && n > s.batchSize {
		n = s.batchSize
	}
	drained := s.unprocessed[:n]
	s.unprocessed = s.unprocessed[n:]

	// Per-key dedup: a later notification for the same key within this
	// drain replaces the earlier admission only if its generation is
	// strictly greater, and insertion order of first-seen keys is
	// preserved so results stay deterministic for a given queue order.
	order := make([]K, 0, len(drained))
	admitted := make(map[K]core.Notification[K, V], len(drained))
	for _, notif := range drained {
		if !s.processor.Match(notif.Key) {
			continue
		}
		if cur, ok := s.accepted[notif.Key]; ok && !notif.State.Gens.GreaterThan(cur.Gens) {
			continue
		}
		prev, seen := admitted[notif.Key]
		if seen && !notif.State.Gens.GreaterThan(prev.State.Gens) {
			continue
		}
		if !seen {
			order = append(order, notif.Key)
		}
		admitted[notif.Key] = notif
	}

	if len(admitted) == 0 {
		return nil, 0, false
	}

	for _, k := range order {
		s.accepted[k] = admitted[k].State
	}

	s.genCounter++
	gen := s.genCounter

	batch := make([]core.Notification[K, V], 0, len(order))
	for _, k := range order {
		batch = append(batch, admitted[k])
	}
	return batch, gen, true
}

func (s *Step[K, V]) acceptResult(r core.Notification[K, V]) {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	cur, ok := s.output[r.Key]
	if !ok || r.State.Gens.GreaterThan(cur.Gens) {
		s.output[r.Key] = r.State
		s.outputNotifications = append(s.outputNotifications, r)
	}
}

// Cancel unwinds this step: every key it had accepted is republished at a
// fresh generation with its input value preserved (so the unwind always
// wins over whatever this step may already have emitted), and every key
// this step invented (present in output but never accepted) is republished
// as erased. Idempotent: a second call is a no-op.
func (s *Step[K, V]) Cancel(reason string) {
	s.cancel(reason)
}

func (s *Step[K, V]) cancel(reason string) {
	if s.cancelled.Load() || s.outputsFinal.Load() {
		return
	}
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	if s.cancelled.Load() || s.outputsFinal.Load() {
		return
	}

	s.genCounter++
	gen := s.genCounter

	for k, st := range s.accepted {
		stamped := core.State[V]{Gens: st.Gens.WithSlot(s.index, gen), Value: st.Value}
		s.output[k] = stamped
		s.outputNotifications = append(s.outputNotifications, core.Notification[K, V]{Key: k, State: stamped})
	}
	for k, st := range s.output {
		if _, ok := s.accepted[k]; ok {
			continue
		}
		erased := core.State[V]{Gens: st.Gens.WithSlot(s.index, gen), Value: core.Erased[V]()}
		s.output[k] = erased
		s.outputNotifications = append(s.outputNotifications, core.Notification[K, V]{Key: k, State: erased})
	}

	s.cancelReason = reason
	s.cancelled.Store(true)
	s.outputsFinal.Store(true)
}

// Cancelled reports whether this step has cancelled.
func (s *Step[K, V]) Cancelled() bool { return s.cancelled.Load() }

// CancelReason returns the reason passed to Cancel, or "" if not cancelled.
func (s *Step[K, V]) CancelReason() string {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	return s.cancelReason
}

// OutputsFinal reports whether this step's output is frozen, either
// because it completed cleanly or because it cancelled.
func (s *Step[K, V]) OutputsFinal() bool { return s.outputsFinal.Load() }

func (s *Step[K, V]) unprocessedEmpty() bool {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	return len(s.unprocessed) == 0
}

func (s *Step[K, V]) outstandingCount() int64 { return s.outstanding.Load() }

// finalizeIfDrained marks this step's outputs final if, under the state
// lock, its queue is empty and nothing is currently processing. The
// caller is responsible for only invoking this once inputsFinal holds, so
// that "empty right now" actually means "empty forever". Returns whether
// the step's outputs are final afterwards, which includes a step that was
// already final or cancelled before the call.
func (s *Step[K, V]) finalizeIfDrained() bool {
	if s.cancelled.Load() || s.outputsFinal.Load() {
		return s.outputsFinal.Load()
	}
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	if s.cancelled.Load() || s.outputsFinal.Load() {
		return s.outputsFinal.Load()
	}
	if len(s.unprocessed) == 0 && s.outstanding.Load() == 0 {
		s.outputsFinal.Store(true)
		return true
	}
	return false
}

// drainOutputNotifications returns and clears the notifications this step
// has produced since the last drain, for the caller to feed forward.
func (s *Step[K, V]) drainOutputNotifications() []core.Notification[K, V] {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	if len(s.outputNotifications) == 0 {
		return nil
	}
	out := s.outputNotifications
	s.outputNotifications = nil
	return out
}

// OutputState returns a snapshot copy of this step's newest output per key.
func (s *Step[K, V]) OutputState() map[K]core.State[V] {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	out := make(map[K]core.State[V], len(s.output))
	for k, v := range s.output {
		out[k] = v
	}
	return out
}

// AcceptedState returns a snapshot copy of this step's newest admitted
// input per key. Unlike OutputState, this reflects every key the step has
// ever matched and admitted, whether or not its Process produced anything
// for that key.
func (s *Step[K, V]) AcceptedState() map[K]core.State[V] {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	out := make(map[K]core.State[V], len(s.accepted))
	for k, v := range s.accepted {
		out[k] = v
	}
	return out
}

// FinalState returns, per key, whichever of this step's output or accepted
// state is freshest: output when Process actually produced something for
// that key, accepted otherwise. A step's own output always supersedes its
// accepted input in generation order (Process stamps this step's slot,
// which accepted never touches), so output simply wins whenever present.
// This is what lets Run.RunToCompletion report a correct result even when
// the last step is a pure observer whose Process yields nothing for a key
// it nonetheless matched and admitted -- the original's SinkStep in
// _examples/original_source/tests/test_fizzbuzz.py is exactly this case.
func (s *Step[K, V]) FinalState() map[K]core.State[V] {
	s.stateLock.Lock()
	defer s.stateLock.Unlock()
	out := make(map[K]core.State[V], len(s.accepted))
	for k, v := range s.accepted {
		out[k] = v
	}
	for k, v := range s.output {
		out[k] = v
	}
	return out
}

// Status classifies this step's current activity. cancelled wins over
// everything; running (outstanding > 0) wins over queued; complete
// requires outputs_final and not cancelled; idle is the default.
func (s *Step[K, V]) Status() Status {
	switch {
	case s.cancelled.Load():
		return StatusCancelled
	case s.outstanding.Load() > 0:
		return StatusRunning
	case !s.unprocessedEmpty():
		return StatusQueued
	case s.outputsFinal.Load():
		return StatusComplete
	default:
		return StatusIdle
	}
}

// Emoji is shorthand for Status().Emoji().
func (s *Step[K, V]) Emoji() string { return s.Status().Emoji() }
