package api

import (
	"bytes"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classwatch/internal/alerts"
	"classwatch/internal/response"
)

type alertRequest struct {
	Type     alerts.Type     `json:"type"`
	Severity alerts.Severity `json:"severity"`
	Message  string          `json:"message"`
	Location string          `json:"location"`
	Image    string          `json:"image"`
}

func (r alertRequest) alert() alerts.Alert {
	return alerts.Alert{Type: r.Type, Severity: r.Severity, Message: r.Message, Location: r.Location, Image: r.Image}
}

func (h *Handler) ListAlerts(c *gin.Context) {
	f, err := alerts.ParseFilter(c.Query("filter"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	list, err := h.Ledger.List(c.Request.Context(), f)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, list)
}

func (h *Handler) CreateAlert(c *gin.Context) {
	var req alertRequest
	if !bindJSON(c, &req) {
		return
	}
	h.createAlert(c, req.alert())
}

func (h *Handler) createAlert(c *gin.Context, a alerts.Alert) {
	if err := a.Validate(); err != nil {
		response.FromError(c, err)
		return
	}
	if h.Uploader != nil && strings.HasPrefix(a.Image, "data:image/") {
		// The inline snapshot is kept when the upload fails.
		if res, err := h.Uploader.UploadDataURL(c.Request.Context(), a.Image, ""); err != nil {
			h.Logger.Warn("alert snapshot upload failed", zap.Error(err))
		} else {
			a.Image = res.SecureURL
		}
	}
	created, err := h.Ledger.Create(c.Request.Context(), a)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, created)
}

func (h *Handler) ResolveAlert(c *gin.Context) {
	found, err := h.Ledger.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"found": found})
}

func (h *Handler) DeleteAlert(c *gin.Context) {
	found, err := h.Ledger.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"found": found})
}

func (h *Handler) AlertStats(c *gin.Context) {
	st, err := h.Ledger.Stats(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, st)
}

func (h *Handler) ExportAlertsCSV(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.Ledger.ExportCSV(c.Request.Context(), &buf); err != nil {
		response.FromError(c, err)
		return
	}
	attachment(c, alerts.CSVFilename(h.now()), "text/csv; charset=utf-8", buf.Bytes())
}

func (h *Handler) ExportAlertsXLSX(c *gin.Context) {
	buf, err := h.Ledger.ExportXLSX(c.Request.Context())
	if err != nil {
		response.FromError(c, err)
		return
	}
	attachment(c, alerts.XLSXFilename(h.now()), "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

func (h *Handler) generatorView() gin.H {
	if h.Generator == nil {
		return gin.H{"running": false}
	}
	return gin.H{"running": h.Generator.Running(), "interval": h.Generator.Interval().String()}
}

func (h *Handler) GeneratorStatus(c *gin.Context) {
	response.OK(c, h.generatorView())
}

func (h *Handler) StartGenerator(c *gin.Context) {
	if h.Generator != nil {
		h.Generator.Start()
	}
	response.OK(c, h.generatorView())
}

func (h *Handler) StopGenerator(c *gin.Context) {
	if h.Generator != nil {
		h.Generator.Stop()
	}
	response.OK(c, h.generatorView())
}
