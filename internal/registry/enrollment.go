package registry

import (
	"context"
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"

	"classwatch/internal/apperr"
	"classwatch/internal/camera"
)

// Capture frame size for registry photos.
const (
	CaptureWidth  = 320
	CaptureHeight = 240
)

type EnrollmentState string

const (
	EnrollIdle      EnrollmentState = "idle"
	EnrollCapturing EnrollmentState = "capturing"
)

// Enrollment drives photo capture for new registrations. The camera is held
// only while Capturing and is closed on every transition back to Idle.
type Enrollment struct {
	reg    *Registry
	opener camera.Opener
	logger *zap.Logger

	mu     sync.Mutex
	device camera.Device
}

func NewEnrollment(reg *Registry, opener camera.Opener, logger *zap.Logger) *Enrollment {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enrollment{reg: reg, opener: opener, logger: logger}
}

func (e *Enrollment) State() EnrollmentState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.device != nil {
		return EnrollCapturing
	}
	return EnrollIdle
}

// Start opens the capture camera. Starting while Capturing is a no-op.
// Failure leaves the flow Idle with apperr.ErrDeviceAccessFailed.
func (e *Enrollment) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.device != nil {
		return nil
	}
	d, err := camera.Open(ctx, e.opener, CaptureWidth, CaptureHeight)
	if err != nil {
		e.logger.Warn("enrollment camera unavailable", zap.Error(err))
		return err
	}
	e.device = d
	e.logger.Info("enrollment capture started")
	return nil
}

// Cancel releases the camera without registering anyone.
func (e *Enrollment) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.release()
}

// Register validates f, takes a still (or uses upload when it is non-empty),
// stores the person and returns to Idle. Validation failure keeps the flow
// Capturing so the form can be corrected.
func (e *Enrollment) Register(f Form, upload string) (Person, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.device == nil && upload == "" {
		return Person{}, fmt.Errorf("register: capture not started: %w", apperr.ErrInvalidState)
	}
	if err := f.Validate(); err != nil {
		return Person{}, fmt.Errorf("register person: %w", err)
	}

	var img image.Image
	var err error
	if upload != "" {
		img, err = camera.DecodeDataURL(upload)
		if err != nil {
			return Person{}, err
		}
		img = camera.Fit(img, CaptureWidth, CaptureHeight)
	} else {
		img, err = e.device.Frame()
		if err != nil {
			e.release()
			return Person{}, fmt.Errorf("capture frame: %v: %w", err, apperr.ErrDeviceAccessFailed)
		}
	}
	photo, err := camera.EncodeJPEGDataURL(img, camera.JPEGQuality)
	if err != nil {
		return Person{}, err
	}

	p, err := e.reg.Add(f, photo)
	if err != nil {
		return Person{}, err
	}
	e.release()
	e.logger.Info("person registered", zap.String("id", p.ID), zap.String("role", string(p.Role)))
	return p, nil
}

func (e *Enrollment) release() {
	if e.device == nil {
		return
	}
	if err := e.device.Close(); err != nil {
		e.logger.Warn("close enrollment camera", zap.Error(err))
	}
	e.device = nil
}
