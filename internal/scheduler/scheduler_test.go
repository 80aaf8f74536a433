package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTickerStartStop(t *testing.T) {
	var ticks atomic.Int32
	tk := NewTicker("test", time.Second, func(context.Context) { ticks.Add(1) }, zap.NewNop())

	assert.False(t, tk.Running())
	require.True(t, tk.Start())
	assert.False(t, tk.Start(), "second start is a no-op")
	assert.True(t, tk.Running())

	assert.Eventually(t, func() bool { return ticks.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	require.True(t, tk.Stop())
	assert.False(t, tk.Stop())
	assert.False(t, tk.Running())

	after := ticks.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, after, ticks.Load(), "no tick after Stop")
}

func TestTickerStopWaitsForRunningTick(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	tk := NewTicker("slow", time.Second, func(ctx context.Context) {
		select {
		case started <- struct{}{}:
		default:
		}
		time.Sleep(200 * time.Millisecond)
		finished.Store(true)
	}, nil)

	require.True(t, tk.Start())
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("tick never ran")
	}
	tk.Stop()
	assert.True(t, finished.Load())
}

func TestTickerRestart(t *testing.T) {
	var ticks atomic.Int32
	tk := NewTicker("restart", time.Second, func(context.Context) { ticks.Add(1) }, nil)
	require.True(t, tk.Start())
	require.True(t, tk.Stop())
	require.True(t, tk.Start())
	defer tk.Stop()
	assert.Eventually(t, func() bool { return ticks.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
}
