// Command feedforward-demo runs a small two-step pipeline end to end over
// the keys "1" to "15": a step that doubles each value followed by a step
// that passes it through unchanged, printing each key's final value once
// the run completes.
package main

import (
	"context"
	"fmt"
	"iter"
	"os"
	"sort"
	"strconv"

	"github.com/advice-animal/feedforward"
	"github.com/advice-animal/feedforward/core"
	"github.com/advice-animal/feedforward/steps"
)

type labelProcessor struct {
	steps.Base[string]
}

func (l *labelProcessor) Process(ctx context.Context, newGen int, batch []core.Notification[string, int]) (iter.Seq[core.Notification[string, int]], error) {
	return func(yield func(core.Notification[string, int]) bool) {
		for _, n := range batch {
			v, _ := n.State.Value.Get()
			if !yield(core.Notification[string, int]{Key: n.Key, State: core.State[int]{Gens: l.Stamp(n.State.Gens, newGen), Value: core.Present(v)}}) {
				return
			}
		}
	}, nil
}

func main() {
	run := feedforward.NewRun[string, int]()

	double := steps.NewFunc[string, int](func(key string, v int) (int, error) { return v * 2, nil }, nil)
	run.AddStep("double", feedforward.NewStep[string, int](double))

	echo := &labelProcessor{}
	run.AddStep("echo", feedforward.NewStep[string, int](echo))

	inputs := make(map[string]int, 15)
	for i := 1; i <= 15; i++ {
		inputs[strconv.Itoa(i)] = i
	}

	ctx := context.Background()
	state, err := run.RunToCompletion(ctx, inputs)
	if err != nil {
		fmt.Fprintln(os.Stderr, "run failed:", err)
		os.Exit(1)
	}

	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, ok := state[k].Value.Get()
		if !ok {
			continue
		}
		fmt.Fprintf(os.Stdout, "%s -> %d\n", k, v)
	}
}
