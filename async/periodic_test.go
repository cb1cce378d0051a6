package async

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodicTaskStartFirstImmediately(t *testing.T) {
	r := newFakeRunner()
	runs := 0
	p := NewPeriodicTask(r)
	p.Start(PeriodicTaskArgs{
		Task:                      func() { runs++ },
		Period:                    time.Second,
		StartFirstTaskImmediately: true,
	})
	r.RunUntilIdle()
	assert.Equal(t, 1, runs)
	assert.True(t, r.HasPendingTimers())
}

func TestPeriodicTaskWaitsOnePeriodByDefault(t *testing.T) {
	r := newFakeRunner()
	runs := 0
	p := NewPeriodicTask(r)
	p.Start(PeriodicTaskArgs{Task: func() { runs++ }, Period: time.Second})
	r.RunUntilIdle()
	assert.Equal(t, 0, runs)

	r.AdvanceAllTimers()
	assert.Equal(t, 1, runs)
}

func TestPeriodicTaskStopPreventsFurtherTicks(t *testing.T) {
	r := newFakeRunner()
	runs := 0
	p := NewPeriodicTask(r)
	p.Start(PeriodicTaskArgs{Task: func() { runs++ }, Period: time.Second, StartFirstTaskImmediately: true})
	r.RunUntilIdle()
	assert.Equal(t, 1, runs)

	p.Stop()
	r.AdvanceAllTimers()
	assert.Equal(t, 1, runs, "stopped task must not tick again")
}
