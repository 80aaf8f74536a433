package alerts

import (
	"context"
	"time"

	"go.uber.org/zap"

	"classwatch/internal/scheduler"
)

// Generator feeds a Source into the ledger on a fixed interval.
type Generator struct {
	ledger *Ledger
	source Source
	ticker *scheduler.Ticker
	logger *zap.Logger
	now    func() time.Time
}

// NewGenerator creates a stopped generator.
func NewGenerator(ledger *Ledger, source Source, interval time.Duration, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Generator{ledger: ledger, source: source, logger: logger, now: time.Now}
	g.ticker = scheduler.NewTicker("alert-generator", interval, g.Tick, logger)
	return g
}

// Tick asks the source once and records what it produced.
func (g *Generator) Tick(ctx context.Context) {
	a, ok := g.source.Next(g.now())
	if !ok {
		return
	}
	if _, err := g.ledger.Create(ctx, a); err != nil {
		g.logger.Error("generated alert not stored", zap.Error(err))
	}
}

// Start begins ticking; false when already running.
func (g *Generator) Start() bool { return g.ticker.Start() }

// Stop halts ticking; no tick runs after it returns.
func (g *Generator) Stop() bool { return g.ticker.Stop() }

// Running reports whether ticks are scheduled.
func (g *Generator) Running() bool { return g.ticker.Running() }

// Interval is the tick period.
func (g *Generator) Interval() time.Duration { return g.ticker.Interval() }
