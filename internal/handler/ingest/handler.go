package ingest

import (
	"github.com/gin-gonic/gin"

	"github.com/carelink/carelink-api/internal/model"
	"github.com/carelink/carelink-api/internal/service/ingress"
	apperrors "github.com/carelink/carelink-api/pkg/errors"
	"github.com/carelink/carelink-api/pkg/httputil"
)

// Handler exposes the internal event-ingest entrypoints invoked by
// sibling services. They are mounted behind the internal route group,
// never on the public surface.
type Handler struct {
	service *ingress.Service
}

func NewHandler(service *ingress.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	events := r.Group("/events")
	{
		events.POST("/symptoms", h.SymptomSubmitted)
		events.POST("/messages", h.MessageSent)
		events.POST("/care-team", h.CareTeamMemberAdded)
		events.POST("/medications", h.MedicationChanged)
		events.POST("/device-readings", h.DeviceReadingIngested)
	}
}

func (h *Handler) SymptomSubmitted(c *gin.Context) {
	var ev model.SymptomEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		httputil.RespondWithError(c, apperrors.InvalidInput("invalid event payload", err))
		return
	}
	if err := h.service.SymptomSubmitted(c.Request.Context(), &ev); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "Success")
}

func (h *Handler) MessageSent(c *gin.Context) {
	var ev model.MessageEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		httputil.RespondWithError(c, apperrors.InvalidInput("invalid event payload", err))
		return
	}
	if err := h.service.MessageSent(c.Request.Context(), &ev); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "Success")
}

func (h *Handler) CareTeamMemberAdded(c *gin.Context) {
	var ev model.CareTeamEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		httputil.RespondWithError(c, apperrors.InvalidInput("invalid event payload", err))
		return
	}
	if err := h.service.CareTeamMemberAdded(c.Request.Context(), &ev); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "Success")
}

func (h *Handler) MedicationChanged(c *gin.Context) {
	var ev model.MedicationEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		httputil.RespondWithError(c, apperrors.InvalidInput("invalid event payload", err))
		return
	}
	if err := h.service.MedicationChanged(c.Request.Context(), &ev); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "Success")
}

func (h *Handler) DeviceReadingIngested(c *gin.Context) {
	var ev model.DeviceReadingEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		httputil.RespondWithError(c, apperrors.InvalidInput("invalid event payload", err))
		return
	}
	if err := h.service.DeviceReadingIngested(c.Request.Context(), &ev); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "Success")
}
