package phx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// virtualExecutor captures scheduled work so tests can drive time by hand.
type virtualExecutor struct {
	delays  []time.Duration
	pending []func()
}

func (e *virtualExecutor) afterFunc(d time.Duration, f func()) *time.Timer {
	e.delays = append(e.delays, d)
	e.pending = append(e.pending, f)
	// A stopped real timer keeps Stop() calls harmless.
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	return timer
}

func (e *virtualExecutor) fire() {
	if len(e.pending) == 0 {
		return
	}
	f := e.pending[len(e.pending)-1]
	e.pending = e.pending[:len(e.pending)-1]
	f()
}

func TestCallbackTimerBackoffProgression(t *testing.T) {
	exec := &virtualExecutor{}
	fired := 0
	timer := newCallbackTimer(func() { fired++ }, func(tries int) time.Duration {
		return time.Duration(tries) * 100 * time.Millisecond
	})
	timer.afterFunc = exec.afterFunc

	timer.ScheduleTimeout()
	timer.ScheduleTimeout()
	timer.ScheduleTimeout()

	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond,
	}, exec.delays)
	assert.Equal(t, 3, timer.Tries())

	exec.fire()
	assert.Equal(t, 1, fired)
}

func TestCallbackTimerReset(t *testing.T) {
	exec := &virtualExecutor{}
	timer := newCallbackTimer(func() {}, defaultRejoinAfter)
	timer.afterFunc = exec.afterFunc

	timer.ScheduleTimeout()
	timer.ScheduleTimeout()
	assert.Equal(t, 2, timer.Tries())

	timer.Reset()
	assert.Equal(t, 0, timer.Tries())

	// Backoff restarts from the first step after a reset.
	timer.ScheduleTimeout()
	assert.Equal(t, 1*time.Second, exec.delays[len(exec.delays)-1])
}

func TestCallbackTimerFiresWithRealClock(t *testing.T) {
	done := make(chan struct{})
	timer := newCallbackTimer(func() { close(done) }, func(int) time.Duration {
		return time.Millisecond
	})
	timer.ScheduleTimeout()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestDefaultReconnectAfter(t *testing.T) {
	assert.Equal(t, 10*time.Millisecond, defaultReconnectAfter(1))
	assert.Equal(t, 50*time.Millisecond, defaultReconnectAfter(2))
	assert.Equal(t, 2*time.Second, defaultReconnectAfter(9))
	assert.Equal(t, 5*time.Second, defaultReconnectAfter(10))
	assert.Equal(t, 5*time.Second, defaultReconnectAfter(100))
}

func TestDefaultRejoinAfter(t *testing.T) {
	assert.Equal(t, 1*time.Second, defaultRejoinAfter(1))
	assert.Equal(t, 2*time.Second, defaultRejoinAfter(2))
	assert.Equal(t, 5*time.Second, defaultRejoinAfter(3))
	assert.Equal(t, 10*time.Second, defaultRejoinAfter(4))
	assert.Equal(t, 10*time.Second, defaultRejoinAfter(50))
}

func TestBackoffIsNonDecreasing(t *testing.T) {
	for _, fn := range []BackoffFunc{defaultReconnectAfter, defaultRejoinAfter} {
		prev := time.Duration(0)
		for tries := 1; tries <= 20; tries++ {
			d := fn(tries)
			assert.GreaterOrEqual(t, d, prev, "tries=%d", tries)
			prev = d
		}
	}
}
