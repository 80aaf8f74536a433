package registry

import (
	"context"
	"errors"
	"image"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classwatch/internal/apperr"
	"classwatch/internal/camera"
)

func TestAddDefaultsAndOrder(t *testing.T) {
	r := New()
	a, err := r.Add(Form{Name: " Ann ", Department: "CS"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Ann", a.Name)
	assert.Equal(t, RoleStudent, a.Role)
	assert.False(t, a.RegisteredAt.IsZero())

	b, err := r.Add(Form{Name: "Dr. Who", Department: "Physics", Role: "Instructor", StudentID: "S-1"}, "")
	require.NoError(t, err)
	assert.Equal(t, RoleInstructor, b.Role)
	assert.Equal(t, "S-1", b.StudentID)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)
}

func TestAddRejectsInvalid(t *testing.T) {
	r := New()
	_, _ = r.Add(Form{Name: "Ann", Department: "CS"}, "")
	for _, f := range []Form{
		{Name: "", Department: "CS"},
		{Name: "   ", Department: "CS"},
		{Name: "Ben", Department: ""},
		{Name: "Ben", Department: "CS", Role: "janitor"},
	} {
		_, err := r.Add(f, "")
		assert.True(t, errors.Is(err, apperr.ErrValidationFailed), "%+v", f)
	}
	assert.Equal(t, 1, r.Len())
}

func TestAddAcceptsStudentWithoutID(t *testing.T) {
	_, err := New().Add(Form{Name: "Ann", Department: "CS", Role: RoleStudent}, "")
	assert.NoError(t, err)
}

func TestRemove(t *testing.T) {
	r := New()
	p, _ := r.Add(Form{Name: "Ann", Department: "CS"}, "")
	assert.False(t, r.Remove("missing"))
	assert.Equal(t, 1, r.Len())
	assert.True(t, r.Remove(p.ID))
	assert.Empty(t, r.List())
}

func TestEnrollmentRegisterReleasesCamera(t *testing.T) {
	cam := &camera.Synthetic{}
	r := New()
	e := NewEnrollment(r, cam, nil)

	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Start(context.Background()))
	assert.Equal(t, EnrollCapturing, e.State())
	assert.Equal(t, 1, cam.OpenCount())

	p, err := e.Register(Form{Name: "Ann", Department: "CS"}, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p.ImageData, "data:image/jpeg;base64,"))
	assert.Equal(t, EnrollIdle, e.State())
	assert.Equal(t, 0, cam.OpenCount())

	img, err := camera.DecodeDataURL(p.ImageData)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, CaptureWidth, CaptureHeight), img.Bounds())
}

func TestEnrollmentInvalidFormKeepsCapturing(t *testing.T) {
	cam := &camera.Synthetic{}
	r := New()
	e := NewEnrollment(r, cam, nil)
	require.NoError(t, e.Start(context.Background()))

	_, err := e.Register(Form{Name: "Ann"}, "")
	assert.True(t, errors.Is(err, apperr.ErrValidationFailed))
	assert.Equal(t, EnrollCapturing, e.State())
	assert.Equal(t, 0, r.Len())

	e.Cancel()
	assert.Equal(t, EnrollIdle, e.State())
	assert.Equal(t, 0, cam.OpenCount())
}

func TestEnrollmentDeviceFailure(t *testing.T) {
	e := NewEnrollment(New(), &camera.Synthetic{Err: errors.New("denied")}, nil)
	err := e.Start(context.Background())
	assert.True(t, errors.Is(err, apperr.ErrDeviceAccessFailed))
	assert.Equal(t, EnrollIdle, e.State())

	_, err = e.Register(Form{Name: "Ann", Department: "CS"}, "")
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestEnrollmentUpload(t *testing.T) {
	d, _ := (&camera.Synthetic{}).Open(context.Background(), 640, 480)
	frame, _ := d.Frame()
	upload, err := camera.EncodeJPEGDataURL(frame, 90)
	require.NoError(t, err)

	r := New()
	e := NewEnrollment(r, nil, nil)
	p, err := e.Register(Form{Name: "Ann", Department: "CS"}, upload)
	require.NoError(t, err)
	img, err := camera.DecodeDataURL(p.ImageData)
	require.NoError(t, err)
	assert.Equal(t, CaptureWidth, img.Bounds().Dx())

	_, err = e.Register(Form{Name: "Ann", Department: "CS"}, "data:image/png;base64,xx")
	assert.True(t, errors.Is(err, apperr.ErrValidationFailed))
	assert.Equal(t, 1, r.Len())
}
