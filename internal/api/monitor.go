package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classwatch/internal/response"
)

func (h *Handler) MonitorSnapshot(c *gin.Context) {
	response.OK(c, h.Monitor.Snapshot())
}

func (h *Handler) StartMonitor(c *gin.Context) {
	wasActive := h.Monitor.Active()
	if err := h.Monitor.Start(c.Request.Context()); err != nil {
		response.FromError(c, err)
		return
	}
	if !wasActive && h.Observer != nil {
		h.Observer.MonitorChanged(c.Request.Context(), true)
	}
	response.OK(c, h.Monitor.Snapshot())
}

func (h *Handler) StopMonitor(c *gin.Context) {
	wasActive := h.Monitor.Active()
	h.Monitor.Stop()
	if wasActive && h.Observer != nil {
		h.Observer.MonitorChanged(c.Request.Context(), false)
	}
	response.OK(c, h.Monitor.Snapshot())
}

// CaptureStill downloads a PNG of the current frame, or uploads it when
// upload=1.
func (h *Handler) CaptureStill(c *gin.Context) {
	still, err := h.Monitor.Capture()
	if err != nil {
		response.FromError(c, err)
		return
	}
	if c.Query("upload") != "1" {
		attachment(c, still.Filename, "image/png", still.PNG)
		return
	}
	if h.Uploader == nil {
		response.Error(c, http.StatusServiceUnavailable, response.CodeDeviceAccess, "image storage not configured")
		return
	}
	res, err := h.Uploader.UploadBytes(c.Request.Context(), still.PNG, still.Filename)
	if err != nil {
		h.Logger.Error("capture upload failed", zap.String("file", still.Filename), zap.Error(err))
		response.Error(c, http.StatusBadGateway, response.CodeInternal, "image upload failed")
		return
	}
	response.OK(c, gin.H{"filename": still.Filename, "url": res.SecureURL, "public_id": res.PublicID})
}
