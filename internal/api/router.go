// Package api is the HTTP surface of the dashboard: JSON endpoints under
// /api/v1, the WebSocket event stream, and the device API.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classwatch/internal/alerts"
	"classwatch/internal/apperr"
	"classwatch/internal/auth"
	"classwatch/internal/cloudinary"
	"classwatch/internal/detection"
	"classwatch/internal/faceclient"
	"classwatch/internal/httpmiddleware"
	"classwatch/internal/registry"
	"classwatch/internal/response"
	"classwatch/internal/session"
	"classwatch/internal/voice"
)

// maxBodyBytes leaves room for base64 photos.
const maxBodyBytes = 8 << 20

// Uploader stores images remotely.
type Uploader interface {
	UploadBytes(ctx context.Context, data []byte, filename string) (*cloudinary.UploadResult, error)
	UploadDataURL(ctx context.Context, data, publicID string) (*cloudinary.UploadResult, error)
}

// FaceEnroller adds a registered photo to the recognition gallery.
type FaceEnroller interface {
	Enroll(ctx context.Context, userID, image, name string) (*faceclient.EnrollResult, error)
}

// MonitorObserver is told when monitoring starts or stops.
type MonitorObserver interface {
	MonitorChanged(ctx context.Context, active bool)
}

// Chime confirms a completed action audibly.
type Chime interface {
	Success(ctx context.Context) voice.Mode
}

// HealthCheck reports one dependency.
type HealthCheck func(ctx context.Context) bool

// Deps are the components the handlers drive. Optional ones may be nil.
type Deps struct {
	Logger     *zap.Logger
	Book       *session.Book
	Ledger     *alerts.Ledger
	Generator  *alerts.Generator
	Registry   *registry.Registry
	Enrollment *registry.Enrollment
	Monitor    *detection.Monitor
	Signer     *auth.Signer

	Events    http.Handler
	Metrics   http.Handler
	Uploader  Uploader
	Faces     FaceEnroller
	Observer  MonitorObserver
	Chime     Chime
	Health    map[string]HealthCheck

	AllowOrigins    []string
	RateLimitPerMin int
	RegistrationKey string
}

// Handler holds the dependencies shared by every route.
type Handler struct {
	Deps
	now func() time.Time
}

// NewRouter wires middleware and routes.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	h := &Handler{Deps: d, now: time.Now}

	r := gin.New()
	r.Use(
		httpmiddleware.RequestID(),
		httpmiddleware.Logger(d.Logger),
		httpmiddleware.Recovery(d.Logger),
		corsMiddleware(d.AllowOrigins),
		httpmiddleware.SecurityHeaders(),
	)
	r.NoRoute(func(c *gin.Context) {
		response.Error(c, http.StatusNotFound, response.CodeNotFound, "route not found")
	})

	r.GET("/healthz", h.Healthz)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics))
	}

	v1 := r.Group("/api/v1", httpmiddleware.BodyLimit(maxBodyBytes))
	if d.RateLimitPerMin > 0 {
		v1.Use(httpmiddleware.NewTokenBucket(0, d.RateLimitPerMin).Middleware())
	}

	v1.GET("/session/status", h.SessionStatus)
	v1.GET("/schedules", h.ListSchedules)
	v1.POST("/schedules", h.AddSchedule)
	v1.DELETE("/schedules/:id", h.RemoveSchedule)
	v1.GET("/schedules/export.ics", h.ExportSchedulesICS)
	v1.GET("/schedules/export.xlsx", h.ExportSchedulesXLSX)
	v1.POST("/schedules/import", h.ImportSchedules)

	v1.GET("/alerts", h.ListAlerts)
	v1.POST("/alerts", h.CreateAlert)
	v1.GET("/alerts/stats", h.AlertStats)
	v1.GET("/alerts/export.csv", h.ExportAlertsCSV)
	v1.GET("/alerts/export.xlsx", h.ExportAlertsXLSX)
	v1.POST("/alerts/:id/resolve", h.ResolveAlert)
	v1.DELETE("/alerts/:id", h.DeleteAlert)
	v1.GET("/alerts/generator", h.GeneratorStatus)
	v1.POST("/alerts/generator", h.StartGenerator)
	v1.DELETE("/alerts/generator", h.StopGenerator)

	v1.GET("/people", h.ListPeople)
	v1.POST("/people", h.AddPerson)
	v1.DELETE("/people/:id", h.RemovePerson)
	v1.GET("/people/capture", h.CaptureState)
	v1.POST("/people/capture/start", h.StartCapture)
	v1.POST("/people/capture/cancel", h.CancelCapture)
	v1.POST("/people/capture/register", h.RegisterCapture)

	v1.GET("/monitor", h.MonitorSnapshot)
	v1.POST("/monitor/start", h.StartMonitor)
	v1.POST("/monitor/stop", h.StopMonitor)
	v1.GET("/monitor/capture", h.CaptureStill)

	if d.Events != nil {
		v1.GET("/ws", gin.WrapH(d.Events))
	}

	if d.Signer != nil {
		v1.POST("/devices/register", h.RegisterDevice)
		v1.POST("/devices/refresh", h.RefreshDevice)
		dev := v1.Group("/device", auth.DeviceAuth(d.Signer))
		dev.POST("/detections", h.DeviceDetection)
		dev.POST("/alerts", h.DeviceAlert)
	}
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID", "X-Registration-Key"},
		ExposeHeaders: []string{"Content-Disposition", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	all := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			all = true
		}
	}
	if all {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// bindJSON decodes the body into v, answering 400 on malformed input.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		if httpmiddleware.IsBodyTooLarge(err) {
			response.Error(c, http.StatusRequestEntityTooLarge, response.CodeBodyTooLarge, "request body too large")
			return false
		}
		if !errors.Is(err, apperr.ErrValidationFailed) {
			err = fmt.Errorf("invalid request body: %v: %w", err, apperr.ErrValidationFailed)
		}
		response.FromError(c, err)
		return false
	}
	return true
}

func attachment(c *gin.Context, filename, contentType string, body []byte) {
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, contentType, body)
}

// Healthz reports every configured dependency.
func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	checks := gin.H{}
	for name, check := range h.Health {
		ok := check(c.Request.Context())
		checks[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
		}
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}
