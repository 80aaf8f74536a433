package api

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"classwatch/internal/apperr"
	"classwatch/internal/response"
	"classwatch/internal/session"
)

func (h *Handler) SessionStatus(c *gin.Context) {
	response.OK(c, h.Book.Status())
}

func (h *Handler) ListSchedules(c *gin.Context) {
	response.OK(c, h.Book.List())
}

func (h *Handler) AddSchedule(c *gin.Context) {
	var in session.Input
	if !bindJSON(c, &in) {
		return
	}
	s, conflicts, err := h.Book.Add(in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	if conflicts == nil {
		conflicts = []session.Conflict{}
	}
	response.Created(c, gin.H{"schedule": s, "conflicts": conflicts})
}

func (h *Handler) RemoveSchedule(c *gin.Context) {
	response.OK(c, gin.H{"found": h.Book.Remove(c.Param("id"))})
}

func (h *Handler) ExportSchedulesICS(c *gin.Context) {
	var buf bytes.Buffer
	if err := session.ExportICS(&buf, h.Book.List(), h.now(), h.Book.Location()); err != nil {
		response.FromError(c, err)
		return
	}
	attachment(c, "schedules.ics", "text/calendar; charset=utf-8", buf.Bytes())
}

func (h *Handler) ExportSchedulesXLSX(c *gin.Context) {
	buf, err := session.ExportXLSX(h.Book.List())
	if err != nil {
		response.FromError(c, err)
		return
	}
	attachment(c, "schedules.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

// ImportSchedules accepts a raw text/calendar body or a multipart "file".
func (h *Handler) ImportSchedules(c *gin.Context) {
	var r io.Reader = c.Request.Body
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, err := c.FormFile("file")
		if err != nil {
			response.FromError(c, fmt.Errorf("file field required: %w", apperr.ErrValidationFailed))
			return
		}
		f, err := file.Open()
		if err != nil {
			response.FromError(c, err)
			return
		}
		defer f.Close()
		r = f
	}
	added, err := h.Book.ImportICS(r)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Created(c, gin.H{"added": added})
}
