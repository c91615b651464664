package dozer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/robodozer/internal/log"
	"github.com/gwillem/robodozer/pkg/robot"
)

type countingConfirm struct {
	polls   atomic.Int64
	assertN int64
}

func (c *countingConfirm) IsAsserted() bool {
	return c.polls.Add(1) > c.assertN
}

func TestExitWatcher_PollsUntilAsserted(t *testing.T) {
	confirm := &countingConfirm{assertN: 3}
	var sleeps []time.Duration
	exited := 0

	w := NewExitWatcher(confirm,
		WithSleep(func(d time.Duration) { sleeps = append(sleeps, d) }),
		WithExitFunc(func() { exited++ }),
		WithLogger(log.Discard()),
	)
	w.Watch()

	assert.Equal(t, 1, exited)
	assert.Equal(t, int64(4), confirm.polls.Load())
	assert.Equal(t, []time.Duration{2 * time.Millisecond, 2 * time.Millisecond, 2 * time.Millisecond}, sleeps)
}

func TestExitWatcher_AssertedImmediately(t *testing.T) {
	confirm := &countingConfirm{}
	slept := false
	exited := false

	w := NewExitWatcher(confirm,
		WithSleep(func(time.Duration) { slept = true }),
		WithExitFunc(func() { exited = true }),
		WithLogger(log.Discard()),
	)
	w.Watch()

	assert.True(t, exited)
	assert.False(t, slept)
}

func TestExitWatcher_ExitsWhileDriving(t *testing.T) {
	f := newFakeVehicle()
	f.rec.muted.Store(true)
	f.touch.setFallback(robot.Released)
	f.escape.fallback.Store(false)

	c := f.controller()
	done := make(chan error, 1)
	go func() { done <- c.run(context.Background()) }()

	var asserted atomic.Bool
	exited := make(chan struct{})
	w := NewExitWatcher(robot.ExitConfirm(confirmFunc(asserted.Load)),
		WithPollInterval(time.Millisecond),
		WithExitFunc(func() { close(exited) }),
		WithLogger(log.Discard()),
	)
	w.Start()

	require.Eventually(t, func() bool { return c.State().Iteration > 10 }, time.Second, time.Millisecond)
	assert.Equal(t, Driving, c.State().Mode)

	asserted.Store(true)
	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("exit watcher did not fire")
	}

	// Let the control loop wind down so the goroutine ends with the test.
	f.escape.fallback.Store(true)
	f.touch.setFallback(robot.Pressed)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("control loop did not stop")
	}
}

type confirmFunc func() bool

func (f confirmFunc) IsAsserted() bool { return f() }
