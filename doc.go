// Package feedforward implements a linear, multi-stage pipeline scheduler.
//
// A Run drives a fixed, ordered sequence of Steps over a keyed dataset.
// Each input is a key/value pair; each Step chooses which keys it cares
// about, may replace a key's value, and forwards whatever it produces to
// every step downstream. Unlike a branching DAG, everything lives on one
// line:
//
//	Source -> Step 0 -> Step 1 -> ... -> Step n-1 (sink)
//
// This shape is deliberate. The original system this package is modeled on
// grew out of a realization that most "pipeline" problems people reach for
// a graph executor to solve are actually linear: a handful of stages, each
// interested in a subset of keys, each free to run at its own pace. A
// graph adds branch/merge/barrier semantics that this domain never needed,
// at the cost of a much larger surface area to get right. Keeping the
// topology linear buys two things: a step's generation slot is simply its
// index (no topological numbering scheme to invent), and "is step i done"
// is a question about a single integer frontier rather than a DAG
// traversal.
//
// Steps run in parallel with each other and, subject to a per-step
// concurrency limit, with themselves. A later value for a key -- a newer
// generation -- supersedes earlier in-flight or completed work for that
// key without re-ordering downstream effects, and a step that fails can
// cancel itself and unwind its own contribution while leaving every other
// step's work intact: cancellation is local, not a whole-Run abort. Late
// steps may opportunistically pick up work while earlier steps are still
// draining, so a Run is not a synchronous barrier between stages -- if one
// step is slow, spare workers move on to whatever downstream work is
// already available rather than idling.
//
// The core package holds the data model (Generation, State, Notification)
// and the Processor contract user code implements; this package holds the
// scheduler (Step, Run) that drives Processors to completion. The steps
// package collects a handful of ready-made Processors for common cases,
// and status exposes a Run's progress to an external display.
package feedforward
