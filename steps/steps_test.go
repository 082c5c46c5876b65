package steps

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advice-animal/feedforward/core"
)

func notif(key string, gens core.Generation, v int) core.Notification[string, int] {
	return core.Notification[string, int]{Key: key, State: core.State[int]{Gens: gens, Value: core.Present(v)}}
}

func drain[K comparable, V any](seq func(func(core.Notification[K, V]) bool)) []core.Notification[K, V] {
	var out []core.Notification[K, V]
	seq(func(n core.Notification[K, V]) bool {
		out = append(out, n)
		return true
	})
	return out
}

func TestNullPassesThroughAndStamps(t *testing.T) {
	n := NewNull[string, int](nil)
	n.SetIndex(2)

	seq, err := n.Process(context.Background(), 5, []core.Notification[string, int]{notif("a", core.Generation{0, 0, 0}, 7)})
	require.NoError(t, err)
	out := drain(seq)
	require.Len(t, out, 1)
	assert.Equal(t, core.Generation{0, 0, 5}, out[0].State.Gens)
	v, _ := out[0].State.Value.Get()
	assert.Equal(t, 7, v)
}

func TestFuncAppliesTransform(t *testing.T) {
	f := NewFunc[string, int](func(key string, v int) (int, error) { return v * 3, nil }, nil)
	f.SetIndex(0)

	seq, err := f.Process(context.Background(), 1, []core.Notification[string, int]{notif("a", core.Generation{0}, 4)})
	require.NoError(t, err)
	out := drain(seq)
	v, _ := out[0].State.Value.Get()
	assert.Equal(t, 12, v)
}

func TestFuncErrorAbortsBatch(t *testing.T) {
	wantErr := errors.New("bad input")
	f := NewFunc[string, int](func(key string, v int) (int, error) { return 0, wantErr }, nil)
	f.SetIndex(0)

	_, err := f.Process(context.Background(), 1, []core.Notification[string, int]{notif("a", core.Generation{0}, 4)})
	assert.ErrorIs(t, err, wantErr)
}

func TestFuncPassesThroughErasedWithoutCallingFn(t *testing.T) {
	called := false
	f := NewFunc[string, int](func(key string, v int) (int, error) {
		called = true
		return v, nil
	}, nil)
	f.SetIndex(0)

	erased := core.Notification[string, int]{Key: "a", State: core.State[int]{Gens: core.Generation{0}, Value: core.Erased[int]()}}
	seq, err := f.Process(context.Background(), 1, []core.Notification[string, int]{erased})
	require.NoError(t, err)
	out := drain(seq)
	assert.False(t, called)
	assert.True(t, out[0].State.Value.IsErased())
}

func TestFilterKeepsAndErases(t *testing.T) {
	filter := NewFilter[string, int](func(key string, v int) bool { return v%2 == 0 }, nil)
	filter.SetIndex(0)

	seq, err := filter.Process(context.Background(), 1, []core.Notification[string, int]{
		notif("even", core.Generation{0}, 4),
		notif("odd", core.Generation{0}, 5),
	})
	require.NoError(t, err)
	out := drain(seq)
	require.Len(t, out, 2)

	byKey := map[string]core.Notification[string, int]{}
	for _, n := range out {
		byKey[n.Key] = n
	}
	v, ok := byKey["even"].State.Value.Get()
	assert.True(t, ok)
	assert.Equal(t, 4, v)
	assert.True(t, byKey["odd"].State.Value.IsErased())
}

func TestBufferedErrorStepRecordsWithoutAborting(t *testing.T) {
	step := NewBufferedErrorStep[string, int](func(ctx context.Context, key string, v int) (int, error) {
		if key == "bad" {
			return 0, errors.New("explode")
		}
		return v + 1, nil
	}, nil)
	step.SetIndex(0)

	seq, err := step.Process(context.Background(), 1, []core.Notification[string, int]{
		notif("good", core.Generation{0}, 1),
		notif("bad", core.Generation{0}, 2),
	})
	require.NoError(t, err)
	out := drain(seq)
	require.Len(t, out, 2)

	errs := step.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, "bad", errs[0].Key)

	assert.Error(t, step.Finalize())
}

func TestBufferedErrorStepFinalizeNilWhenClean(t *testing.T) {
	step := NewBufferedErrorStep[string, int](func(ctx context.Context, key string, v int) (int, error) { return v, nil }, nil)
	step.SetIndex(0)
	_, err := step.Process(context.Background(), 1, []core.Notification[string, int]{notif("a", core.Generation{0}, 1)})
	require.NoError(t, err)
	assert.NoError(t, step.Finalize())
}
