package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classwatch/internal/camera"
	"classwatch/internal/registry"
	"classwatch/internal/response"
)

type personRequest struct {
	registry.Form
	ImageData string `json:"image_data"`
}

func (h *Handler) ListPeople(c *gin.Context) {
	response.OK(c, h.Registry.List())
}

// AddPerson registers directly with an already captured photo.
func (h *Handler) AddPerson(c *gin.Context) {
	var req personRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.ImageData != "" {
		if _, err := camera.DecodeDataURL(req.ImageData); err != nil {
			response.FromError(c, err)
			return
		}
	}
	p, err := h.Registry.Add(req.Form, req.ImageData)
	if err != nil {
		response.FromError(c, err)
		return
	}
	h.registered(c.Request.Context(), p)
	response.Created(c, p)
}

func (h *Handler) RemovePerson(c *gin.Context) {
	response.OK(c, gin.H{"found": h.Registry.Remove(c.Param("id"))})
}

func (h *Handler) CaptureState(c *gin.Context) {
	response.OK(c, gin.H{"state": h.Enrollment.State()})
}

func (h *Handler) StartCapture(c *gin.Context) {
	if err := h.Enrollment.Start(c.Request.Context()); err != nil {
		response.FromError(c, err)
		return
	}
	response.OK(c, gin.H{"state": h.Enrollment.State()})
}

func (h *Handler) CancelCapture(c *gin.Context) {
	h.Enrollment.Cancel()
	response.OK(c, gin.H{"state": h.Enrollment.State()})
}

// RegisterCapture takes the still from the open capture camera, or uses
// image_data when the browser captured it.
func (h *Handler) RegisterCapture(c *gin.Context) {
	var req personRequest
	if !bindJSON(c, &req) {
		return
	}
	p, err := h.Enrollment.Register(req.Form, req.ImageData)
	if err != nil {
		response.FromError(c, err)
		return
	}
	h.registered(c.Request.Context(), p)
	response.Created(c, p)
}

// registered runs the follow-ups of a successful registration.
func (h *Handler) registered(ctx context.Context, p registry.Person) {
	if h.Chime != nil {
		h.Chime.Success(ctx)
	}
	h.enrollFace(ctx, p)
}

func (h *Handler) enrollFace(ctx context.Context, p registry.Person) {
	if h.Faces == nil || p.ImageData == "" {
		return
	}
	res, err := h.Faces.Enroll(ctx, p.ID, p.ImageData, p.Name)
	if err != nil {
		h.Logger.Warn("face enrollment failed", zap.String("person", p.ID), zap.Error(err))
		return
	}
	if !res.Success {
		h.Logger.Warn("face enrollment rejected", zap.String("person", p.ID), zap.String("message", res.Message))
	}
}
