package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classwatch/internal/alerts"
	"classwatch/internal/auth"
	"classwatch/internal/detection"
	"classwatch/internal/response"
)

type deviceRegisterRequest struct {
	DeviceID string `json:"device_id" binding:"required"`
	Room     string `json:"room"`
}

// RegisterDevice issues a token pair. When a registration key is configured
// the caller must send it in X-Registration-Key.
func (h *Handler) RegisterDevice(c *gin.Context) {
	if h.RegistrationKey != "" {
		got := c.GetHeader("X-Registration-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.RegistrationKey)) != 1 {
			response.Unauthorized(c, "invalid registration key")
			return
		}
	}
	var req deviceRegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	pair, err := h.Signer.Issue(strings.TrimSpace(req.DeviceID), strings.TrimSpace(req.Room))
	if err != nil {
		response.FromError(c, err)
		return
	}
	h.Logger.Info("device registered", zap.String("device", req.DeviceID), zap.String("room", req.Room))
	response.Created(c, pair)
}

func (h *Handler) RefreshDevice(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	pair, err := h.Signer.Refresh(req.RefreshToken)
	if err != nil {
		response.Unauthorized(c, "invalid refresh token")
		return
	}
	response.OK(c, pair)
}

type deviceDetectionRequest struct {
	Name       string    `json:"name"`
	Confidence float64   `json:"confidence"`
	Authorized *bool     `json:"authorized"`
	Timestamp  time.Time `json:"timestamp"`
}

// DeviceDetection pushes a remote detection into the live feed. Without an
// explicit authorized flag the active session roster decides.
func (h *Handler) DeviceDetection(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	var req deviceDetectionRequest
	if !bindJSON(c, &req) {
		return
	}
	d := detection.Detection{
		Name:       strings.TrimSpace(req.Name),
		Confidence: req.Confidence,
		Timestamp:  req.Timestamp,
		Device:     claims.Subject,
	}
	if req.Authorized != nil {
		d.Authorized = *req.Authorized
	} else {
		st := h.Book.Status()
		d.Authorized = !st.InSession || st.Authorizes(d.Name)
	}
	recorded, err := h.Monitor.Ingest(c.Request.Context(), d)
	if err != nil {
		response.FromError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, response.Response{Code: response.CodeOK, Message: "accepted", Data: recorded})
}

// DeviceAlert records an alert raised by a device. The location defaults to
// the room the device was registered in.
func (h *Handler) DeviceAlert(c *gin.Context) {
	claims, _ := auth.FromContext(c)
	var req alertRequest
	if !bindJSON(c, &req) {
		return
	}
	a := req.alert()
	if a.Location == "" {
		a.Location = claims.Room
	}
	if a.Message == "" {
		a.Message = alerts.MessageFor(a.Type)
	}
	h.createAlert(c, a)
}
