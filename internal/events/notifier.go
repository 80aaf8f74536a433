package events

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"classwatch/internal/alerts"
	"classwatch/internal/queue"
	"classwatch/internal/voice"
)

// Announcer plays a voice alert.
type Announcer interface {
	Announce(ctx context.Context, c voice.Category) voice.Mode
}

// AnnounceObserver is told about every announcement played.
type AnnounceObserver interface {
	Announced(c voice.Category, mode voice.Mode)
}

// Notifier turns queued events into voice alerts. Unauthorized detections
// are always announced; new alerts only when high severity.
type Notifier struct {
	announcer Announcer
	observer  AnnounceObserver
	logger    *zap.Logger
}

func NewNotifier(a Announcer, observer AnnounceObserver, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{announcer: a, observer: observer, logger: logger}
}

// Run consumes q until ctx ends.
func (n *Notifier) Run(ctx context.Context, q queue.Queue) error {
	ch, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	n.logger.Info("notifier started")
	for msg := range ch {
		n.Handle(ctx, msg)
	}
	n.logger.Info("notifier stopped")
	return ctx.Err()
}

// Handle processes one message and reports the category announced, if any.
func (n *Notifier) Handle(ctx context.Context, msg queue.Message) (voice.Category, bool) {
	var c voice.Category
	switch msg.Type {
	case TypeDetectionUnauthorized:
		c = voice.CategoryUnauthorized
	case string(alerts.EventCreated):
		var a alerts.Alert
		if err := json.Unmarshal(msg.Body, &a); err != nil {
			n.logger.Warn("malformed alert event", zap.Error(err))
			return "", false
		}
		if a.Severity != alerts.SeverityHigh {
			return "", false
		}
		var ok bool
		if c, ok = voice.ForAlert(a.Type); !ok {
			return "", false
		}
	default:
		return "", false
	}
	mode := n.announcer.Announce(ctx, c)
	if n.observer != nil {
		n.observer.Announced(c, mode)
	}
	return c, true
}
