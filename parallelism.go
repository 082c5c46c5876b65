package feedforward

import (
	"runtime"

	"go.uber.org/automaxprocs/maxprocs"
)

var maxprocsApplied bool

// DefaultParallelism returns the worker-pool size a Run uses when no
// WithParallelism option is given: GOMAXPROCS after applying cgroup/CPU
// affinity limits (so a container with a fractional CPU quota doesn't
// oversubscribe), falling back to the number of visible CPUs if that
// adjustment can't be made.
func DefaultParallelism() int {
	if !maxprocsApplied {
		// maxprocs.Set mutates GOMAXPROCS as a side effect; undo.Func is
		// discarded deliberately -- a Run never wants to hand GOMAXPROCS
		// back to whatever it was before, since the corrected value is
		// strictly more accurate for the container it's running in.
		if _, err := maxprocs.Set(); err == nil {
			maxprocsApplied = true
		}
	}
	if n := runtime.GOMAXPROCS(0); n > 0 {
		return n
	}
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}
