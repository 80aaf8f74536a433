// Package scheduler runs cancellable fixed-interval background ticks.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Ticker invokes fn every interval between Start and Stop. A tick that is
// still running when the next one is due is skipped, never overlapped.
type Ticker struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
	logger   cron.Logger

	mu     sync.Mutex
	c      *cron.Cron
	cancel context.CancelFunc
}

// NewTicker creates a stopped ticker. Intervals are rounded down to whole
// seconds with a one second minimum.
func NewTicker(name string, interval time.Duration, fn func(ctx context.Context), logger *zap.Logger) *Ticker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ticker{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   cronLogger{logger.Sugar().With("ticker", name)},
	}
}

// Start schedules the ticks. It reports false when already started.
func (t *Ticker) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c != nil {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New(cron.WithChain(cron.Recover(t.logger), cron.SkipIfStillRunning(t.logger)))
	c.Schedule(cron.Every(t.interval), cron.FuncJob(func() { t.fn(ctx) }))
	c.Start()
	t.c, t.cancel = c, cancel
	t.logger.Info("ticker started", "interval", t.interval.String())
	return true
}

// Stop cancels future ticks and waits for a running one to return. No tick
// starts after Stop returns. It reports false when already stopped.
func (t *Ticker) Stop() bool {
	t.mu.Lock()
	c, cancel := t.c, t.cancel
	t.c, t.cancel = nil, nil
	t.mu.Unlock()
	if c == nil {
		return false
	}
	done := c.Stop()
	cancel()
	<-done.Done()
	t.logger.Info("ticker stopped")
	return true
}

// Running reports whether the ticker is started.
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.c != nil
}

// Interval returns the configured period.
func (t *Ticker) Interval() time.Duration { return t.interval }

func (t *Ticker) String() string {
	return fmt.Sprintf("%s every %s", t.name, t.interval)
}

type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
