package async

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValIsImmediatelyReady(t *testing.T) {
	f := Val(42)
	p := f.Poll(NewPollContext(nil))
	require.Equal(t, StepValue, p.Step)
	assert.Equal(t, 42, p.Value)
}

func TestStreamFromYieldsInOrderThenDone(t *testing.T) {
	s := StreamFrom([]int{1, 2, 3})
	ctx := NewPollContext(nil)

	for _, want := range []int{1, 2, 3} {
		p := s.PollNext(ctx)
		require.Equal(t, StepValue, p.Step)
		assert.Equal(t, want, p.Value)
	}
	p := s.PollNext(ctx)
	assert.Equal(t, StepDone, p.Step)
}

func TestEmptyStreamIsImmediatelyDone(t *testing.T) {
	s := Empty[string]()
	p := s.PollNext(NewPollContext(nil))
	assert.Equal(t, StepDone, p.Step)
}

func TestStreamOfYieldsOneItem(t *testing.T) {
	s := StreamOf("hello")
	ctx := NewPollContext(nil)
	p := s.PollNext(ctx)
	require.Equal(t, StepValue, p.Step)
	assert.Equal(t, "hello", p.Value)
	p = s.PollNext(ctx)
	assert.Equal(t, StepDone, p.Step)
}

// pendingOnceFuture is Pending on its first poll (registering h as
// interested), then Ready on every subsequent poll.
type pendingOnceFuture struct {
	h      Handle
	polled bool
	value  int
}

func (f *pendingOnceFuture) Poll(ctx *PollContext) FuturePoll[int] {
	if !f.polled {
		f.polled = true
		ctx.RegisterInterested(f.h)
		return Pending[int]()
	}
	return Ready(f.value)
}

func TestStreamFromFutureWaitsForReadiness(t *testing.T) {
	inner := &pendingOnceFuture{h: 7, value: 99}
	s := StreamFromFuture[int](inner)
	ctx := NewPollContext(nil)

	p := s.PollNext(ctx)
	require.Equal(t, StepPending, p.Step)
	assert.True(t, ctx.Interested().Has(7))

	ready := NewHandleSet()
	ready.Add(7)
	p = s.PollNext(NewPollContext(ready))
	require.Equal(t, StepValue, p.Step)
	assert.Equal(t, 99, p.Value)

	p = s.PollNext(NewPollContext(nil))
	assert.Equal(t, StepDone, p.Step)
}

func TestOnDestroyRunsFnOnlyOnDrop(t *testing.T) {
	calls := 0
	s := OnDestroy[Void](func() { calls++ })

	p := s.PollNext(NewPollContext(nil))
	assert.Equal(t, StepDone, p.Step)
	assert.Equal(t, 0, calls, "polling to done must not by itself run the cleanup")

	dropValue(s)
	assert.Equal(t, 1, calls)

	dropValue(s)
	assert.Equal(t, 1, calls, "drop must be idempotent")
}
