package notification

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carelink/carelink-api/internal/middleware"
	"github.com/carelink/carelink-api/internal/model"
	"github.com/carelink/carelink-api/internal/service/notification"
	apperrors "github.com/carelink/carelink-api/pkg/errors"
	"github.com/carelink/carelink-api/pkg/httputil"
)

// dateLayout is the wire format of from_date / to_date.
const dateLayout = "01/02/2006"

type Handler struct {
	service notification.Service
}

func NewHandler(service notification.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("/severity", h.SeveritySnapshot)
		notifications.GET("/:user_id", h.List)
		notifications.PUT("/:notification_id", h.MarkStatus)
	}
}

func (h *Handler) List(c *gin.Context) {
	callerID, ok := middleware.CallerID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("missing caller identity", nil))
		return
	}

	recipientID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || recipientID <= 0 {
		httputil.RespondWithError(c, apperrors.InvalidInput("invalid user id", err))
		return
	}

	// user_type is part of the wire contract but carries no authority;
	// the service derives the caller's role from the user store.
	switch model.UserType(c.Query("user_type")) {
	case model.UserTypePhysician, model.UserTypeNurse, model.UserTypeCaseManager,
		model.UserTypeCaregiver, model.UserTypePatient, model.UserTypeCustomer:
	default:
		httputil.RespondWithError(c, apperrors.InvalidInput("unknown user type", nil))
		return
	}

	if callerType, ok := middleware.CallerType(c); ok &&
		callerType == model.UserTypePatient && recipientID != callerID {
		httputil.RespondWithError(c, apperrors.Unauthorized("patients may only list their own notifications", nil))
		return
	}

	filter, err := parseFilter(c)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	grouped, err := h.service.List(c.Request.Context(), callerID, recipientID, filter)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, grouped)
}

// parseFilter reads notification_status, from_date, to_date and the
// optional stream subset. to_date is inclusive on the wire and becomes
// a half-open bound by adding one day.
func parseFilter(c *gin.Context) (*model.ListFilter, error) {
	filter := &model.ListFilter{}

	switch status := c.Query("notification_status"); status {
	case "", "all":
	case "read":
		v := model.StatusRead
		filter.Status = &v
	case "unread":
		v := model.StatusUnread
		filter.Status = &v
	default:
		return nil, apperrors.InvalidInput("unknown notification status", nil)
	}

	if raw := c.Query("from_date"); raw != "" {
		from, err := time.Parse(dateLayout, raw)
		if err != nil {
			return nil, apperrors.InvalidInput("invalid from_date, expected MM/DD/YYYY", err)
		}
		filter.From = &from
	}
	if raw := c.Query("to_date"); raw != "" {
		to, err := time.Parse(dateLayout, raw)
		if err != nil {
			return nil, apperrors.InvalidInput("invalid to_date, expected MM/DD/YYYY", err)
		}
		bound := to.AddDate(0, 0, 1)
		filter.To = &bound
	}

	if raw := c.Query("type"); raw != "" {
		for _, token := range strings.Split(raw, ",") {
			stream, ok := model.ParseStream(strings.TrimSpace(token))
			if !ok {
				return nil, apperrors.InvalidInput("unknown notification type", nil)
			}
			filter.Streams = append(filter.Streams, stream)
		}
	}
	return filter, nil
}

type markStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=read unread"`
	Type   string `json:"type" binding:"required"`
}

func (h *Handler) MarkStatus(c *gin.Context) {
	callerID, ok := middleware.CallerID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("missing caller identity", nil))
		return
	}

	notificationID, err := strconv.ParseInt(c.Param("notification_id"), 10, 64)
	if err != nil || notificationID <= 0 {
		httputil.RespondWithError(c, apperrors.InvalidInput("invalid notification id", err))
		return
	}

	var req markStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, apperrors.InvalidInput("invalid request body", err))
		return
	}
	stream, ok := model.ParseStream(req.Type)
	if !ok {
		httputil.RespondWithError(c, apperrors.InvalidInput("unknown notification type", nil))
		return
	}
	status := model.StatusRead
	if req.Status == "unread" {
		status = model.StatusUnread
	}

	if err := h.service.MarkStatus(c.Request.Context(), callerID, stream, notificationID, status); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "Success")
}

// SeveritySnapshot serves the dashboard indicator: per patient, the max
// unread symptom level for every canonical category.
func (h *Handler) SeveritySnapshot(c *gin.Context) {
	callerID, ok := middleware.CallerID(c)
	if !ok {
		httputil.RespondWithError(c, apperrors.Unauthorized("missing caller identity", nil))
		return
	}

	var patientID *int64
	if raw := c.Query("patient_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httputil.RespondWithError(c, apperrors.InvalidInput("invalid patient id", err))
			return
		}
		patientID = &id
	}

	snapshot, err := h.service.SeveritySnapshot(c.Request.Context(), callerID, patientID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, snapshot)
}
