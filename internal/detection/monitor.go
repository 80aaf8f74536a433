package detection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"classwatch/internal/apperr"
	"classwatch/internal/camera"
	"classwatch/internal/scheduler"
)

// Monitor frame size.
const (
	FrameWidth  = 640
	FrameHeight = 480
)

// Listener observes every detection pushed to the feed.
type Listener interface {
	Detected(ctx context.Context, d Detection, status Status)
}

type ListenerFunc func(ctx context.Context, d Detection, status Status)

func (f ListenerFunc) Detected(ctx context.Context, d Detection, status Status) { f(ctx, d, status) }

// Snapshot is the monitor view served to the dashboard.
type Snapshot struct {
	Active  bool        `json:"active"`
	Status  Status      `json:"status"`
	History []Detection `json:"history"`
}

// Still is a captured frame.
type Still struct {
	Filename string
	PNG      []byte
	At       time.Time
}

// Monitor is the {Idle, Active} live monitoring state machine. While Active
// it holds an open camera and polls the source on every tick. Stop always
// closes the camera and resets the feed.
type Monitor struct {
	opener    camera.Opener
	source    Source
	feed      *Feed
	logger    *zap.Logger
	ticker    *scheduler.Ticker
	listeners []Listener
	now       func() time.Time

	op     sync.Mutex // serializes Start and Stop
	mu     sync.Mutex
	device camera.Device
}

func NewMonitor(opener camera.Opener, source Source, feed *Feed, interval time.Duration, logger *zap.Logger, listeners ...Listener) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		opener:    opener,
		source:    source,
		feed:      feed,
		logger:    logger,
		listeners: listeners,
		now:       time.Now,
	}
	m.ticker = scheduler.NewTicker("monitor", interval, m.Tick, logger)
	return m
}

// Subscribe adds a listener. Call before Start.
func (m *Monitor) Subscribe(l Listener) { m.listeners = append(m.listeners, l) }

func (m *Monitor) Feed() *Feed { return m.feed }

// Active reports whether the monitor holds the camera.
func (m *Monitor) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.device != nil
}

// Start opens the camera and begins polling. Starting twice is a no-op.
// A camera failure leaves the monitor Idle with apperr.ErrDeviceAccessFailed.
func (m *Monitor) Start(ctx context.Context) error {
	m.op.Lock()
	defer m.op.Unlock()
	if m.Active() {
		return nil
	}
	d, err := camera.Open(ctx, m.opener, FrameWidth, FrameHeight)
	if err != nil {
		m.logger.Warn("monitor camera unavailable", zap.Error(err))
		return err
	}
	m.mu.Lock()
	m.device = d
	m.mu.Unlock()
	m.ticker.Start()
	m.logger.Info("monitoring started", zap.Duration("interval", m.ticker.Interval()))
	return nil
}

// Stop cancels polling, closes the camera and clears the feed. No tick runs
// after Stop returns. Stopping while Idle is a no-op.
func (m *Monitor) Stop() {
	m.op.Lock()
	defer m.op.Unlock()
	m.mu.Lock()
	d := m.device
	m.device = nil
	m.mu.Unlock()
	if d == nil {
		return
	}
	m.ticker.Stop()
	if err := d.Close(); err != nil {
		m.logger.Warn("close monitor camera", zap.Error(err))
	}
	m.feed.Reset()
	m.logger.Info("monitoring stopped")
}

// Tick grabs one frame and records what the source saw in it.
func (m *Monitor) Tick(ctx context.Context) {
	m.mu.Lock()
	d := m.device
	m.mu.Unlock()
	if d == nil {
		return
	}
	frame, err := d.Frame()
	if err != nil {
		m.logger.Warn("monitor frame", zap.Error(err))
		return
	}
	det, ok, err := m.source.Detect(ctx, frame)
	if err != nil {
		m.logger.Warn("detect", zap.Error(err))
		return
	}
	if !ok {
		return
	}
	m.record(ctx, det)
}

// Ingest records a detection reported by a remote device. It does not
// require the local monitor to be Active.
func (m *Monitor) Ingest(ctx context.Context, det Detection) (Detection, error) {
	if err := det.Validate(); err != nil {
		return Detection{}, err
	}
	return m.record(ctx, det), nil
}

func (m *Monitor) record(ctx context.Context, det Detection) Detection {
	det.ID = uuid.NewString()
	if det.Timestamp.IsZero() {
		det.Timestamp = m.now()
	}
	det.Timestamp = det.Timestamp.UTC().Truncate(time.Millisecond)
	st := m.feed.Push(det)
	if !det.Authorized {
		m.logger.Warn("unauthorized person detected",
			zap.String("name", det.Name),
			zap.Float64("confidence", det.Confidence),
			zap.String("device", det.Device),
		)
	}
	for _, l := range m.listeners {
		l.Detected(ctx, det, st)
	}
	return det
}

// Snapshot returns the current view.
func (m *Monitor) Snapshot() Snapshot {
	st, hist := m.feed.Snapshot()
	return Snapshot{Active: m.Active(), Status: st, History: hist}
}

// Capture takes a PNG still named capture-<epoch-ms>.png. It fails with
// apperr.ErrInvalidState unless monitoring is Active.
func (m *Monitor) Capture() (Still, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device == nil {
		return Still{}, fmt.Errorf("capture: monitoring is not active: %w", apperr.ErrInvalidState)
	}
	frame, err := m.device.Frame()
	if err != nil {
		return Still{}, fmt.Errorf("capture frame: %v: %w", err, apperr.ErrDeviceAccessFailed)
	}
	raw, err := camera.EncodePNG(frame)
	if err != nil {
		return Still{}, err
	}
	at := m.now()
	return Still{Filename: CaptureFilename(at), PNG: raw, At: at}, nil
}

// CaptureFilename names a still taken at t.
func CaptureFilename(t time.Time) string {
	return fmt.Sprintf("capture-%d.png", t.UnixMilli())
}
