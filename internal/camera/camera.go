// Package camera models capture devices as scoped handles. A handle is
// acquired with Open and must be closed on every exit path by its owner.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"classwatch/internal/apperr"
)

// ErrClosed is returned by Frame after Close.
var ErrClosed = errors.New("camera: device closed")

// Device is an open capture handle.
type Device interface {
	Frame() (image.Image, error)
	Close() error
}

// Opener acquires a device producing frames of the requested size.
type Opener interface {
	Open(ctx context.Context, width, height int) (Device, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, width, height int) (Device, error)

func (f OpenerFunc) Open(ctx context.Context, width, height int) (Device, error) {
	return f(ctx, width, height)
}

// Open acquires a device from o. Any failure is reported as
// apperr.ErrDeviceAccessFailed.
func Open(ctx context.Context, o Opener, width, height int) (Device, error) {
	if o == nil {
		return nil, fmt.Errorf("no camera configured: %w", apperr.ErrDeviceAccessFailed)
	}
	d, err := o.Open(ctx, width, height)
	if err != nil {
		return nil, fmt.Errorf("open camera %dx%d: %v: %w", width, height, err, apperr.ErrDeviceAccessFailed)
	}
	return d, nil
}

// Synthetic opens devices that render a moving test pattern. Set Err to make
// Open fail, as a denied permission would.
type Synthetic struct {
	Err error

	mu   sync.Mutex
	open int
}

func (s *Synthetic) Open(ctx context.Context, width, height int) (Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Err != nil {
		return nil, s.Err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	s.mu.Lock()
	s.open++
	s.mu.Unlock()
	return &syntheticDevice{owner: s, w: width, h: height, start: time.Now()}, nil
}

// OpenCount is the number of devices currently open.
func (s *Synthetic) OpenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

type syntheticDevice struct {
	owner *Synthetic
	w, h  int
	start time.Time

	mu     sync.Mutex
	closed bool
	n      int
}

func (d *syntheticDevice) Frame() (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	d.n++
	img := image.NewNRGBA(image.Rect(0, 0, d.w, d.h))
	shift := d.n * 8
	for y := 0; y < d.h; y++ {
		for x := 0; x < d.w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8((x + shift) * 255 / d.w),
				G: uint8(y * 255 / d.h),
				B: uint8(128 + (x^y)&0x3f),
				A: 0xff,
			})
		}
	}
	return img, nil
}

func (d *syntheticDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.owner.mu.Lock()
	d.owner.open--
	d.owner.mu.Unlock()
	return nil
}
