package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/carelink-api/internal/middleware"
	"github.com/carelink/carelink-api/internal/model"
	apperrors "github.com/carelink/carelink-api/pkg/errors"
)

type listCall struct {
	callerID    int64
	recipientID int64
	filter      *model.ListFilter
}

type fakeService struct {
	listCalls  []listCall
	listResult *model.GroupedNotifications
	markErr    error
	markCalls  int
	snapshot   []*model.SeveritySnapshot
}

func (f *fakeService) List(_ context.Context, callerID, recipientID int64, filter *model.ListFilter) (*model.GroupedNotifications, error) {
	f.listCalls = append(f.listCalls, listCall{callerID: callerID, recipientID: recipientID, filter: filter})
	if f.listResult == nil {
		return &model.GroupedNotifications{}, nil
	}
	return f.listResult, nil
}

func (f *fakeService) MarkStatus(_ context.Context, _ int64, _ model.Stream, _ int64, _ int) error {
	f.markCalls++
	return f.markErr
}

func (f *fakeService) SeveritySnapshot(_ context.Context, _ int64, _ *int64) ([]*model.SeveritySnapshot, error) {
	return f.snapshot, nil
}

func newRouter(svc *fakeService, callerID int64) *gin.Engine {
	return newRouterWithType(svc, callerID, "")
}

func newRouterWithType(svc *fakeService, callerID int64, callerType model.UserType) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if callerID > 0 {
		r.Use(func(c *gin.Context) {
			c.Set(middleware.ContextCallerID, callerID)
			if callerType != "" {
				c.Set(middleware.ContextCallerType, callerType)
			}
		})
	}
	NewHandler(svc).RegisterRoutes(r.Group("/"))
	return r
}

func TestListParsesFilter(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc, 2)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/notifications/7?user_type=physician&notification_status=unread&from_date=01/15/2025&to_date=01/31/2025&type=symptoms,messages", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, svc.listCalls, 1)
	call := svc.listCalls[0]
	assert.Equal(t, int64(2), call.callerID)
	assert.Equal(t, int64(7), call.recipientID)

	require.NotNil(t, call.filter.Status)
	assert.Equal(t, model.StatusUnread, *call.filter.Status)
	assert.Equal(t, []model.Stream{model.StreamSymptoms, model.StreamMessages}, call.filter.Streams)

	require.NotNil(t, call.filter.From)
	assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), *call.filter.From)
	// to_date is inclusive on the wire: 01/31 parses to a 02/01 bound.
	require.NotNil(t, call.filter.To)
	assert.Equal(t, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), *call.filter.To)
}

func TestListRejectsBadDate(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc, 2)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/notifications/7?user_type=physician&from_date=2025-01-15", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.listCalls)
}

func TestListRejectsUnknownUserType(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc, 2)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/notifications/7?user_type=wizard", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc, 2)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/notifications/7?user_type=physician&notification_status=archived", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRequiresCaller(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc, 0)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/notifications/7?user_type=physician", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListPatientCallerCannotListOthers(t *testing.T) {
	svc := &fakeService{}
	r := newRouterWithType(svc, 3, model.UserTypePatient)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/notifications/7?user_type=physician", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, svc.listCalls)
}

func TestMarkStatusSuccess(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc, 2)

	body, _ := json.Marshal(map[string]string{"status": "read", "type": "symptoms"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/notifications/12", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Success"}`, w.Body.String())
	assert.Equal(t, 1, svc.markCalls)
}

func TestMarkStatusForbidden(t *testing.T) {
	svc := &fakeService{markErr: apperrors.Forbidden("notification belongs to another user", nil)}
	r := newRouter(svc, 2)

	body, _ := json.Marshal(map[string]string{"status": "unread", "type": "messages"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/notifications/12", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMarkStatusRejectsUnknownStream(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc, 2)

	body, _ := json.Marshal(map[string]string{"status": "read", "type": "calendar"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/notifications/12", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, svc.markCalls)
}

func TestMarkStatusRejectsBadStatus(t *testing.T) {
	svc := &fakeService{}
	r := newRouter(svc, 2)

	body, _ := json.Marshal(map[string]string{"status": "seen", "type": "symptoms"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/notifications/12", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSeveritySnapshot(t *testing.T) {
	svc := &fakeService{snapshot: []*model.SeveritySnapshot{
		{SubjectID: 7, Levels: []model.CategoryLevel{{Category: model.CategoryFever, Level: model.LevelAlert}}},
	}}
	r := newRouter(svc, 2)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/notifications/severity?patient_id=7", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"patient_id":7`)
}
