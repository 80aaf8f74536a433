// Package events fans dashboard events out to WebSocket clients and to the
// queue consumed by the voice notifier.
package events

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"classwatch/internal/alerts"
	"classwatch/internal/detection"
	"classwatch/internal/queue"
)

// Event types beyond the alert ledger kinds.
const (
	TypeDetection             = "detection.recorded"
	TypeDetectionUnauthorized = "detection.unauthorized"
	TypeMonitor               = "monitor.changed"
)

// Broadcaster delivers a serialized event to live dashboards.
type Broadcaster interface {
	Broadcast(msg []byte)
}

// DetectionBody is the payload of detection events.
type DetectionBody struct {
	Detection detection.Detection `json:"detection"`
	Status    detection.Status    `json:"status"`
}

// Bus implements alerts.Listener and detection.Listener. Every event goes to
// the broadcaster; alert.created and detection.unauthorized are also queued
// for the notifier.
type Bus struct {
	hub     Broadcaster
	queue   queue.Queue
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewBus creates a bus. Either sink may be nil.
func NewBus(hub Broadcaster, q queue.Queue, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{hub: hub, queue: q, logger: logger, timeout: time.Second, now: time.Now}
}

func (b *Bus) AlertChanged(ctx context.Context, kind alerts.EventKind, a alerts.Alert) {
	b.emit(ctx, string(kind), a, kind == alerts.EventCreated)
}

func (b *Bus) Detected(ctx context.Context, d detection.Detection, st detection.Status) {
	body := DetectionBody{Detection: d, Status: st}
	b.emit(ctx, TypeDetection, body, false)
	if !d.Authorized {
		b.emit(ctx, TypeDetectionUnauthorized, body, true)
	}
}

// MonitorChanged announces a monitor start or stop.
func (b *Bus) MonitorChanged(ctx context.Context, active bool) {
	b.emit(ctx, TypeMonitor, map[string]bool{"active": active}, false)
}

func (b *Bus) emit(ctx context.Context, typ string, body any, enqueue bool) {
	raw, err := json.Marshal(body)
	if err != nil {
		b.logger.Error("encode event", zap.String("type", typ), zap.Error(err))
		return
	}
	msg := queue.Message{Type: typ, At: b.now().UTC(), Body: raw}

	if b.hub != nil && typ != TypeDetectionUnauthorized {
		if wire, err := json.Marshal(msg); err == nil {
			b.hub.Broadcast(wire)
		}
	}
	if enqueue && b.queue != nil {
		if err := b.publish(ctx, msg); err != nil {
			b.logger.Warn("event not queued", zap.String("type", typ), zap.Error(err))
		}
	}
}

// tryPublisher is a queue that can refuse a message instead of waiting.
type tryPublisher interface {
	TryPublish(msg queue.Message) error
}

// publish never waits on an in-process queue, so a slow notifier cannot stall
// the ledger or the monitor tick. Remote queues get a bounded wait.
func (b *Bus) publish(ctx context.Context, msg queue.Message) error {
	if tp, ok := b.queue.(tryPublisher); ok {
		return tp.TryPublish(msg)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()
	return b.queue.Publish(ctx, msg)
}
