package runner

import (
	"context"
	"testing"
	"time"

	eventloop "github.com/joeycumines/go-eventloop"
	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-bigtrace/async"
)

func startLoop(t *testing.T) (*eventloop.Loop, func()) {
	t.Helper()
	loop, err := eventloop.New()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	return loop, func() {
		cancel()
		<-done
		_ = loop.Shutdown(context.Background())
	}
}

func TestLoopRunnerPostTaskExecutes(t *testing.T) {
	loop, stop := startLoop(t)
	defer stop()

	r := New(loop)
	done := make(chan struct{})
	require.NoError(t, r.PostTask(func() { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
}

func TestLoopRunnerPostDelayedTaskExecutesAfterDelay(t *testing.T) {
	loop, stop := startLoop(t)
	defer stop()

	r := New(loop)
	start := time.Now()
	done := make(chan time.Time, 1)
	require.NoError(t, r.PostDelayedTask(func() { done <- time.Now() }, 50*time.Millisecond))

	select {
	case fired := <-done:
		require.GreaterOrEqual(t, fired.Sub(start), 40*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("delayed task never ran")
	}
}

func TestLoopRunnerSatisfiesTaskRunner(t *testing.T) {
	var _ async.TaskRunner = (*LoopRunner)(nil)
}
