package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWaitFor_Timeout(t *testing.T) {
	read := func() (float64, error) { return 5, nil }

	start := time.Now()
	ok := WaitFor(read, 10.0, 50*time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, ok)
	// grace + timeout + one interval, with some scheduling slack
	assert.Less(t, elapsed, DefaultGrace+50*time.Millisecond+DefaultInterval+40*time.Millisecond)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestWaitFor_ReachesTarget(t *testing.T) {
	var v atomic.Int64
	read := func() (int64, error) { return v.Load(), nil }

	go func() {
		time.Sleep(30 * time.Millisecond)
		v.Store(1)
	}()

	start := time.Now()
	ok := WaitFor(read, int64(1), time.Second)
	assert.True(t, ok)
	assert.Less(t, time.Since(start), 30*time.Millisecond+DefaultGrace+DefaultInterval+40*time.Millisecond)
}

func TestWaitFor_FloatTolerance(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		target  float64
		want    bool
	}{
		{name: "exact", current: 1.0, target: 1.0, want: true},
		{name: "within epsilon", current: 1.05, target: 1.0, want: true},
		{name: "below within epsilon", current: 0.91, target: 1.0, want: true},
		{name: "at epsilon", current: 1.1, target: 1.0, want: false},
		{name: "far", current: 3.0, target: 1.0, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			read := func() (float64, error) { return tt.current, nil }
			assert.Equal(t, tt.want, WaitFor(read, tt.target, 20*time.Millisecond))
		})
	}
}

func TestWaitFor_NonFloatExact(t *testing.T) {
	read := func() (string, error) { return "Acquire", nil }
	assert.True(t, WaitFor(read, "Acquire", 20*time.Millisecond))
	assert.False(t, WaitFor(read, "Idle", 20*time.Millisecond))
}

func TestWaitFor_ReadErrorsKeepPolling(t *testing.T) {
	var calls atomic.Int32
	read := func() (int, error) {
		if calls.Add(1) < 3 {
			return 0, errors.New("channel disconnected")
		}
		return 1, nil
	}
	assert.True(t, WaitFor(read, 1, time.Second))
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestWait_NegativeTimeoutWaitsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	read := func() (int, error) { return 0, nil }
	start := time.Now()
	ok := Wait(ctx, DefaultPoller, read, 1, -1)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}
