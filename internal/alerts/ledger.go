package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventKind names a ledger mutation.
type EventKind string

const (
	EventCreated  EventKind = "alert.created"
	EventResolved EventKind = "alert.resolved"
	EventDeleted  EventKind = "alert.deleted"
)

// Listener observes ledger mutations after they are stored.
type Listener interface {
	AlertChanged(ctx context.Context, kind EventKind, a Alert)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ctx context.Context, kind EventKind, a Alert)

func (f ListenerFunc) AlertChanged(ctx context.Context, kind EventKind, a Alert) { f(ctx, kind, a) }

// Ledger coordinates the alert store and notifies listeners.
type Ledger struct {
	store     Store
	listeners []Listener
	logger    *zap.Logger
	now       func() time.Time
}

// NewLedger creates a ledger over store.
func NewLedger(store Store, logger *zap.Logger, listeners ...Listener) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: store, listeners: listeners, logger: logger, now: time.Now}
}

// Subscribe adds a listener. Call before the ledger is shared.
func (l *Ledger) Subscribe(li Listener) {
	l.listeners = append(l.listeners, li)
}

// Seed inserts the demo alerts when the store is empty so that the newest
// (id 1) ends up at the head.
func (l *Ledger) Seed(ctx context.Context) error {
	n, err := l.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count alerts: %w", err)
	}
	if n > 0 {
		return nil
	}
	now := l.now().UTC().Truncate(time.Millisecond)
	seeds := []Alert{
		{ID: "3", Type: TypeDistraction, Message: "Student using mobile phone during class", Timestamp: now.Add(-45 * time.Minute), Severity: SeverityLow, Location: "Room 205", Resolved: true},
		{ID: "2", Type: TypeProhibitedItem, Message: "Person wearing face mask detected", Timestamp: now.Add(-25 * time.Minute), Severity: SeverityMedium, Location: "Room 301"},
		{ID: "1", Type: TypeUnauthorized, Message: "Unknown person detected in classroom", Timestamp: now.Add(-10 * time.Minute), Severity: SeverityHigh, Location: "Room 301"},
	}
	for _, a := range seeds {
		if err := l.store.Insert(ctx, a); err != nil {
			return fmt.Errorf("seed alert %s: %w", a.ID, err)
		}
	}
	return nil
}

// Create fills the id and timestamp when empty and inserts a at the head.
// Enum membership is not checked here; callers accepting outside input use
// Alert.Validate first.
func (l *Ledger) Create(ctx context.Context, a Alert) (Alert, error) {
	if a.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return Alert{}, fmt.Errorf("alert id: %w", err)
		}
		a.ID = id.String()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = l.now()
	}
	a.Timestamp = a.Timestamp.UTC().Truncate(time.Millisecond)
	a.Resolved = false

	if err := l.store.Insert(ctx, a); err != nil {
		return Alert{}, fmt.Errorf("insert alert: %w", err)
	}
	l.logger.Info("alert created",
		zap.String("id", a.ID),
		zap.String("type", string(a.Type)),
		zap.String("severity", string(a.Severity)),
		zap.String("location", a.Location),
	)
	l.notify(ctx, EventCreated, a)
	return a, nil
}

// Resolve marks id resolved. An unknown id is not an error: found is false.
// Resolving twice is a no-op and notifies only once.
func (l *Ledger) Resolve(ctx context.Context, id string) (bool, error) {
	a, found, changed, err := l.store.Resolve(ctx, id)
	if err != nil {
		return false, fmt.Errorf("resolve alert %s: %w", id, err)
	}
	if !found {
		l.logger.Debug("resolve ignored, alert not found", zap.String("id", id))
		return false, nil
	}
	if changed {
		l.notify(ctx, EventResolved, a)
	}
	return true, nil
}

// Delete removes id. An unknown id is not an error: found is false.
func (l *Ledger) Delete(ctx context.Context, id string) (bool, error) {
	a, found, err := l.store.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete alert %s: %w", id, err)
	}
	if !found {
		l.logger.Debug("delete ignored, alert not found", zap.String("id", id))
		return false, nil
	}
	l.notify(ctx, EventDeleted, a)
	return true, nil
}

// List returns the alerts matching f, newest first.
func (l *Ledger) List(ctx context.Context, f Filter) ([]Alert, error) {
	all, err := l.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return f.Apply(all), nil
}

// Stats summarizes the whole ledger.
func (l *Ledger) Stats(ctx context.Context) (Stats, error) {
	all, err := l.store.List(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("list alerts: %w", err)
	}
	return Summarize(all), nil
}

func (l *Ledger) notify(ctx context.Context, kind EventKind, a Alert) {
	for _, li := range l.listeners {
		li.AlertChanged(ctx, kind, a)
	}
}
