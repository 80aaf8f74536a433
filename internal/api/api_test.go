package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classwatch/internal/alerts"
	"classwatch/internal/auth"
	"classwatch/internal/camera"
	"classwatch/internal/cloudinary"
	"classwatch/internal/detection"
	"classwatch/internal/registry"
	"classwatch/internal/session"
	"classwatch/internal/voice"
)

func init() { gin.SetMode(gin.TestMode) }

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type observer struct{ changes []bool }

func (o *observer) MonitorChanged(_ context.Context, active bool) { o.changes = append(o.changes, active) }

type chime struct{ n int }

func (c *chime) Success(context.Context) voice.Mode {
	c.n++
	return voice.ModeTone
}

type fakeUploader struct{ names []string }

func (u *fakeUploader) UploadBytes(_ context.Context, _ []byte, filename string) (*cloudinary.UploadResult, error) {
	u.names = append(u.names, filename)
	return &cloudinary.UploadResult{PublicID: "classwatch/x", SecureURL: "https://img.example/x.png"}, nil
}

func (u *fakeUploader) UploadDataURL(_ context.Context, _ string, _ string) (*cloudinary.UploadResult, error) {
	u.names = append(u.names, "data-url")
	return &cloudinary.UploadResult{PublicID: "classwatch/y", SecureURL: "https://img.example/y.jpg"}, nil
}

type fixture struct {
	router   http.Handler
	deps     Deps
	cam      *camera.Synthetic
	observer *observer
}

func newFixture(t *testing.T, mutate ...func(*Deps)) *fixture {
	t.Helper()
	ledger := alerts.NewLedger(alerts.NewMemoryStore(), nil)
	require.NoError(t, ledger.Seed(context.Background()))

	cam := &camera.Synthetic{}
	reg := registry.New()
	obs := &observer{}
	never := detection.NewMockSource(0, nil)
	d := Deps{
		Book:       session.NewBook(time.UTC),
		Ledger:     ledger,
		Registry:   reg,
		Enrollment: registry.NewEnrollment(reg, cam, nil),
		Monitor:    detection.NewMonitor(cam, never, detection.NewFeed(detection.DefaultHistoryCap), time.Hour, nil),
		Signer:     auth.NewSigner("classwatch", "test-signing-key-0123456789", time.Minute, time.Hour),
		Observer:   obs,
	}
	d.Book.Seed()
	for _, m := range mutate {
		m(&d)
	}
	t.Cleanup(d.Monitor.Stop)
	return &fixture{router: NewRouter(d), deps: d, cam: cam, observer: obs}
}

func (f *fixture) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r *bytes.Reader
	switch b := body.(type) {
	case nil:
		r = bytes.NewReader(nil)
	case string:
		r = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func TestAlertsEndpoints(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/alerts?filter=unresolved", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []alerts.Alert
	env := decode(t, w, &list)
	assert.Equal(t, 0, env.Code)
	require.Len(t, list, 2)
	assert.Equal(t, "1", list[0].ID)

	w = f.do(t, http.MethodGet, "/api/v1/alerts?filter=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/alerts", gin.H{"type": "violation", "severity": "medium", "message": "Door propped", "location": "Room 102"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created alerts.Alert
	decode(t, w, &created)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.Resolved)

	w = f.do(t, http.MethodPost, "/api/v1/alerts", gin.H{"type": "fire", "severity": "medium"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40002, decode(t, w, nil).Code)

	w = f.do(t, http.MethodPost, "/api/v1/alerts", `{"type":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 40001, decode(t, w, nil).Code)

	var found struct{ Found bool }
	w = f.do(t, http.MethodPost, "/api/v1/alerts/"+created.ID+"/resolve", nil)
	decode(t, w, &found)
	assert.True(t, found.Found)

	var after []alerts.Alert
	decode(t, f.do(t, http.MethodGet, "/api/v1/alerts?filter=resolved", nil), &after)
	require.NotEmpty(t, after)
	assert.Equal(t, created.ID, after[0].ID)
	want := created
	want.Resolved = true
	assert.Equal(t, want.Type, after[0].Type)
	assert.Equal(t, want.Severity, after[0].Severity)
	assert.Equal(t, want.Message, after[0].Message)
	assert.Equal(t, want.Location, after[0].Location)
	assert.True(t, want.Timestamp.Equal(after[0].Timestamp))
	assert.True(t, after[0].Resolved)

	w = f.do(t, http.MethodPost, "/api/v1/alerts/missing/resolve", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &found)
	assert.False(t, found.Found)

	w = f.do(t, http.MethodDelete, "/api/v1/alerts/missing", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &found)
	assert.False(t, found.Found)

	var st alerts.Stats
	decode(t, f.do(t, http.MethodGet, "/api/v1/alerts/stats", nil), &st)
	assert.Equal(t, 4, st.Total)
}

func TestAlertsExport(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/v1/alerts/export.csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Regexp(t, `attachment; filename="alerts_\d{4}-\d{2}-\d{2}\.csv"`, w.Header().Get("Content-Disposition"))

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[1], "1,unauthorized,"))

	w = f.do(t, http.MethodGet, "/api/v1/alerts/export.xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "PK", w.Body.String()[:2])
}

func TestGeneratorToggle(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Generator = alerts.NewGenerator(d.Ledger, alerts.NewRandomSource(0, nil), time.Hour, nil)
	})
	t.Cleanup(func() { f.deps.Generator.Stop() })

	var view struct{ Running bool }
	decode(t, f.do(t, http.MethodPost, "/api/v1/alerts/generator", nil), &view)
	assert.True(t, view.Running)
	decode(t, f.do(t, http.MethodDelete, "/api/v1/alerts/generator", nil), &view)
	assert.False(t, view.Running)
}

func TestSchedulesEndpoints(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/v1/schedules", gin.H{
		"subject": "Physics", "instructor": "Dr. Curie", "room": "Room 301",
		"day_of_week": "monday", "start_time": "10:00", "end_time": "11:00",
		"authorized_students": "Ann, Ben",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var added struct {
		Schedule  session.Schedule   `json:"schedule"`
		Conflicts []session.Conflict `json:"conflicts"`
	}
	decode(t, w, &added)
	assert.Equal(t, []string{"Ann", "Ben"}, added.Schedule.AuthorizedStudents)
	require.Len(t, added.Conflicts, 1)
	assert.Equal(t, "1", added.Conflicts[0].ScheduleID)

	w = f.do(t, http.MethodPost, "/api/v1/schedules", gin.H{"subject": "Physics"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var list []session.Schedule
	decode(t, f.do(t, http.MethodGet, "/api/v1/schedules", nil), &list)
	assert.Len(t, list, 3)

	var found struct{ Found bool }
	decode(t, f.do(t, http.MethodDelete, "/api/v1/schedules/"+added.Schedule.ID, nil), &found)
	assert.True(t, found.Found)
	decode(t, f.do(t, http.MethodDelete, "/api/v1/schedules/"+added.Schedule.ID, nil), &found)
	assert.False(t, found.Found)

	w = f.do(t, http.MethodGet, "/api/v1/session/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSchedulesICSImport(t *testing.T) {
	src := newFixture(t)
	w := src.do(t, http.MethodGet, "/api/v1/schedules/export.ics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "BEGIN:VCALENDAR")

	dst := newFixture(t, func(d *Deps) { d.Book = session.NewBook(time.UTC) })
	req := httptest.NewRequest(http.MethodPost, "/api/v1/schedules/import", bytes.NewReader(w.Body.Bytes()))
	req.Header.Set("Content-Type", "text/calendar")
	rec := httptest.NewRecorder()
	dst.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Len(t, dst.deps.Book.List(), 2)

	w = dst.do(t, http.MethodPost, "/api/v1/schedules/import", "garbage")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// The second event has no SUMMARY, so nothing from this file is kept.
	partial := "BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//test//EN\r\n" +
		"BEGIN:VEVENT\r\nUID:ok\r\nSUMMARY:Biology\r\nLOCATION:Lab 1\r\nX-CLASSWATCH-INSTRUCTOR:Dr. Grey\r\n" +
		"DTSTART:20240102T080000Z\r\nDTEND:20240102T090000Z\r\nEND:VEVENT\r\n" +
		"BEGIN:VEVENT\r\nUID:bad\r\nLOCATION:Lab 2\r\nX-CLASSWATCH-INSTRUCTOR:Dr. Grey\r\n" +
		"DTSTART:20240103T080000Z\r\nDTEND:20240103T090000Z\r\nEND:VEVENT\r\n" +
		"END:VCALENDAR\r\n"
	w = dst.do(t, http.MethodPost, "/api/v1/schedules/import", partial)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, dst.deps.Book.List(), 2)
}

func TestPeopleEndpoints(t *testing.T) {
	ch := &chime{}
	f := newFixture(t, func(d *Deps) { d.Chime = ch })

	w := f.do(t, http.MethodPost, "/api/v1/people", gin.H{"name": "Ann"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/people", gin.H{"name": "Ann", "department": "CS", "image_data": "data:image/png;base64,!!"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/people", gin.H{"name": "Ann", "department": "CS", "role": "Instructor"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var p registry.Person
	decode(t, w, &p)
	assert.Equal(t, registry.RoleInstructor, p.Role)
	assert.Equal(t, 1, ch.n, "chime only after a successful registration")

	var list []registry.Person
	decode(t, f.do(t, http.MethodGet, "/api/v1/people", nil), &list)
	assert.Len(t, list, 1)

	var found struct{ Found bool }
	decode(t, f.do(t, http.MethodDelete, "/api/v1/people/"+p.ID, nil), &found)
	assert.True(t, found.Found)
}

func TestCaptureFlow(t *testing.T) {
	ch := &chime{}
	f := newFixture(t, func(d *Deps) { d.Chime = ch })

	w := f.do(t, http.MethodPost, "/api/v1/people/capture/register", gin.H{"name": "Ben", "department": "Math"})
	assert.Equal(t, http.StatusConflict, w.Code, "no camera and no upload")

	var state struct{ State string }
	decode(t, f.do(t, http.MethodPost, "/api/v1/people/capture/start", nil), &state)
	assert.Equal(t, "capturing", state.State)
	assert.Equal(t, 1, f.cam.OpenCount())

	w = f.do(t, http.MethodPost, "/api/v1/people/capture/register", gin.H{"name": "Ben", "department": "Math"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var p registry.Person
	decode(t, w, &p)
	assert.True(t, strings.HasPrefix(p.ImageData, "data:image/jpeg;base64,"))
	assert.Equal(t, 0, f.cam.OpenCount())
	assert.Equal(t, 1, ch.n)

	decode(t, f.do(t, http.MethodGet, "/api/v1/people/capture", nil), &state)
	assert.Equal(t, "idle", state.State)
}

func TestCaptureDeviceFailure(t *testing.T) {
	f := newFixture(t)
	f.cam.Err = errors.New("permission denied")
	w := f.do(t, http.MethodPost, "/api/v1/people/capture/start", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, 50300, decode(t, w, nil).Code)
}

func TestMonitorEndpoints(t *testing.T) {
	up := &fakeUploader{}
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/v1/monitor/capture", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	var snap detection.Snapshot
	decode(t, f.do(t, http.MethodPost, "/api/v1/monitor/start", nil), &snap)
	assert.True(t, snap.Active)
	f.do(t, http.MethodPost, "/api/v1/monitor/start", nil)
	assert.Equal(t, []bool{true}, f.observer.changes)

	w = f.do(t, http.MethodGet, "/api/v1/monitor/capture", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "capture-")

	w = f.do(t, http.MethodGet, "/api/v1/monitor/capture?upload=1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	withUpload := newFixture(t, func(d *Deps) { d.Uploader = up })
	withUpload.do(t, http.MethodPost, "/api/v1/monitor/start", nil)
	w = withUpload.do(t, http.MethodGet, "/api/v1/monitor/capture?upload=1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct{ URL, Filename string }
	decode(t, w, &res)
	assert.Equal(t, "https://img.example/x.png", res.URL)
	assert.Equal(t, []string{res.Filename}, up.names)

	w = withUpload.do(t, http.MethodPost, "/api/v1/alerts", gin.H{"type": "distraction", "severity": "low", "image": "data:image/jpeg;base64,AAAA"})
	require.Equal(t, http.StatusCreated, w.Code)
	var a alerts.Alert
	decode(t, w, &a)
	assert.Equal(t, "https://img.example/y.jpg", a.Image)

	decode(t, f.do(t, http.MethodPost, "/api/v1/monitor/stop", nil), &snap)
	assert.False(t, snap.Active)
	assert.Empty(t, snap.History)
	assert.Equal(t, []bool{true, false}, f.observer.changes)
}

func TestDeviceFlow(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.RegistrationKey = "enroll-me" })

	w := f.do(t, http.MethodPost, "/api/v1/devices/register", gin.H{"device_id": "door-1", "room": "Room 301"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/devices/register", gin.H{"device_id": "door-1", "room": "Room 301"}, "X-Registration-Key", "enroll-me")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var pair auth.TokenPair
	decode(t, w, &pair)
	require.NotEmpty(t, pair.AccessToken)

	w = f.do(t, http.MethodPost, "/api/v1/device/alerts", gin.H{"type": "unauthorized", "severity": "high"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	bearer := "Bearer " + pair.AccessToken
	w = f.do(t, http.MethodPost, "/api/v1/device/alerts", gin.H{"type": "unauthorized", "severity": "high"}, "Authorization", bearer)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var a alerts.Alert
	decode(t, w, &a)
	assert.Equal(t, "Room 301", a.Location)
	assert.Equal(t, alerts.MessageFor(alerts.TypeUnauthorized), a.Message)

	w = f.do(t, http.MethodPost, "/api/v1/device/detections", gin.H{"name": "Stranger", "confidence": 0.7, "authorized": false}, "Authorization", bearer)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var d detection.Detection
	decode(t, w, &d)
	assert.Equal(t, "door-1", d.Device)
	assert.Equal(t, detection.StatusUnauthorized, f.deps.Monitor.Snapshot().Status)

	w = f.do(t, http.MethodPost, "/api/v1/device/detections", gin.H{"name": "Stranger", "confidence": 1.5}, "Authorization", bearer)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/v1/devices/refresh", gin.H{"refresh_token": pair.RefreshToken})
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodPost, "/api/v1/devices/refresh", gin.H{"refresh_token": pair.AccessToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestNotFoundAndHealth(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Health = map[string]HealthCheck{
			"postgres": func(context.Context) bool { return true },
			"redis":    func(context.Context) bool { return false },
		}
	})
	w := f.do(t, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 40400, decode(t, w, nil).Code)

	w = f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"degraded"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
