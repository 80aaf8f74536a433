// Package detection runs the live monitor: it polls a camera, asks a Source
// who is in frame, and keeps a short newest-first feed of the results.
package detection

import (
	"fmt"
	"sync"
	"time"

	"classwatch/internal/apperr"
)

// Detection is one recognition result.
type Detection struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Confidence float64   `json:"confidence"`
	Authorized bool      `json:"authorized"`
	Timestamp  time.Time `json:"timestamp"`
	Device     string    `json:"device,omitempty"`
}

// Validate checks values supplied by remote devices.
func (d Detection) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("detection name: %w", apperr.ErrValidationFailed)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("detection confidence %v outside [0,1]: %w", d.Confidence, apperr.ErrInvalidArgument)
	}
	return nil
}

// Status is the room status derived from the latest detection.
type Status string

const (
	StatusSecure       Status = "secure"
	StatusUnauthorized Status = "unauthorized"
)

// DefaultHistoryCap is the feed length of the dashboard.
const DefaultHistoryCap = 10

// Feed is a bounded history, newest first.
type Feed struct {
	mu      sync.RWMutex
	cap     int
	history []Detection
	status  Status
}

func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultHistoryCap
	}
	return &Feed{cap: capacity, status: StatusSecure}
}

// Push prepends d, drops the oldest entry beyond capacity and sets the
// status from d alone.
func (f *Feed) Push(d Detection) Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.history) + 1
	if n > f.cap {
		n = f.cap
	}
	next := make([]Detection, n)
	next[0] = d
	copy(next[1:], f.history)
	f.history = next
	if d.Authorized {
		f.status = StatusSecure
	} else {
		f.status = StatusUnauthorized
	}
	return f.status
}

// Reset clears the history and returns the status to secure.
func (f *Feed) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = nil
	f.status = StatusSecure
}

// Snapshot returns the status and a copy of the history.
func (f *Feed) Snapshot() (Status, []Detection) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Detection, len(f.history))
	copy(out, f.history)
	return f.status, out
}

func (f *Feed) Cap() int { return f.cap }
