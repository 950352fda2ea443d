package notification

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/carelink-api/internal/model"
	"github.com/carelink/carelink-api/internal/service/composer"
	"github.com/carelink/carelink-api/pkg/crypto"
	apperrors "github.com/carelink/carelink-api/pkg/errors"
	"github.com/carelink/carelink-api/pkg/phi"
)

type statusUpdate struct {
	stream    model.Stream
	id        int64
	status    int
	updatedBy int64
	updatedAt time.Time
}

type fakeNotificationRepo struct {
	rows    map[model.Stream][]*model.Notification
	cells   []*model.SeverityCell
	updates []statusUpdate
}

func (f *fakeNotificationRepo) InsertFanout(context.Context, model.Stream, []*model.Notification, *model.OutboxEvent) (int, error) {
	return 0, errors.New("not implemented")
}

func (f *fakeNotificationRepo) Get(_ context.Context, stream model.Stream, id int64) (*model.Notification, error) {
	for _, row := range f.rows[stream] {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, fmt.Errorf("notification %d not found", id)
}

func (f *fakeNotificationRepo) List(_ context.Context, stream model.Stream, notifierID int64, filter *model.ListFilter) ([]*model.Notification, error) {
	var out []*model.Notification
	for _, row := range f.rows[stream] {
		if row.NotifierID != notifierID {
			continue
		}
		if filter.Status != nil && row.Status != *filter.Status {
			continue
		}
		if filter.From != nil && row.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !row.CreatedAt.Before(*filter.To) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (f *fakeNotificationRepo) UpdateStatus(_ context.Context, stream model.Stream, id int64, status int, updatedBy int64, updatedAt time.Time) error {
	f.updates = append(f.updates, statusUpdate{stream: stream, id: id, status: status, updatedBy: updatedBy, updatedAt: updatedAt})
	return nil
}

func (f *fakeNotificationRepo) SeveritySnapshot(context.Context, int64, *int64) ([]*model.SeverityCell, error) {
	return f.cells, nil
}

type fakeUsers struct {
	users map[int64]*model.User
}

func (f *fakeUsers) Get(_ context.Context, id int64) (*model.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %d not found", id)
	}
	return u, nil
}

func (f *fakeUsers) GetByIDs(_ context.Context, ids []int64) (map[int64]*model.User, error) {
	out := make(map[int64]*model.User)
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

type fakeNetworks struct {
	members map[int64][]int64
}

func (f *fakeNetworks) Resolve(context.Context, int64, bool) ([]*model.NetworkMember, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeNetworks) IsMember(_ context.Context, userID, patientID int64) (bool, error) {
	for _, id := range f.members[patientID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

type fakePHI struct {
	records map[string]*phi.Record
}

func (f *fakePHI) Get(_ context.Context, id string) (*phi.Record, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, fmt.Errorf("PHI record %q not found", id)
	}
	return rec, nil
}

func (f *fakePHI) BatchGet(_ context.Context, ids []string) (map[string]*phi.Record, error) {
	out := make(map[string]*phi.Record)
	for _, id := range ids {
		if rec, ok := f.records[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

type fixture struct {
	svc  Service
	repo *fakeNotificationRepo
	comp *composer.Composer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	enc, err := crypto.NewCBCEncryptor(crypto.DeriveKey("test-secret"))
	require.NoError(t, err)
	comp := composer.New(enc)

	users := &fakeUsers{users: map[int64]*model.User{
		1: {ID: 1, ExternalID: "ext-patient", UserType: model.UserTypePatient},
		2: {ID: 2, ExternalID: "ext-doc", UserType: model.UserTypePhysician},
		5: {ID: 5, ExternalID: "ext-other", UserType: model.UserTypePhysician},
		6: {ID: 6, ExternalID: "ext-patient-2", UserType: model.UserTypePatient},
	}}
	networks := &fakeNetworks{members: map[int64][]int64{1: {2, 3}}}
	phiStore := &fakePHI{records: map[string]*phi.Record{
		"ext-patient": {ExternalID: "ext-patient", FirstName: "FirstP", LastName: "LastP"},
	}}

	repo := &fakeNotificationRepo{rows: map[model.Stream][]*model.Notification{}}
	logger := zerolog.Nop()
	svc := NewService(repo, users, networks, comp, phiStore, &logger)
	return &fixture{svc: svc, repo: repo, comp: comp}
}

func (fx *fixture) seed(t *testing.T, stream model.Stream, id, notifierID int64, status int, details string, at time.Time) *model.Notification {
	t.Helper()
	sealed, err := fx.comp.Seal(details)
	require.NoError(t, err)
	row := &model.Notification{
		ID:            id,
		Stream:        stream,
		OriginEventID: uuid.New(),
		Level:         model.LevelNormal,
		Status:        status,
		Details:       sealed,
		NotifierID:    notifierID,
		SubjectID:     1,
		CreatedAt:     at,
	}
	fx.repo.rows[stream] = append(fx.repo.rows[stream], row)
	return row
}

func TestListGroupsStreams(t *testing.T) {
	fx := newFixture(t)
	now := time.Now().UTC()
	fx.seed(t, model.StreamSymptoms, 1, 2, model.StatusUnread, "symptom details", now)
	fx.seed(t, model.StreamMessages, 2, 2, model.StatusRead, "message details", now.Add(-time.Hour))
	fx.seed(t, model.StreamMedications, 3, 2, model.StatusUnread, "medication details", now.Add(-2*time.Hour))

	out, err := fx.svc.List(context.Background(), 2, 2, nil)
	require.NoError(t, err)

	require.Len(t, out.Symptoms, 1)
	require.Len(t, out.Messages, 1)
	require.Len(t, out.Medications, 1)
	assert.Empty(t, out.RemoteVitals)
	assert.Empty(t, out.CareTeam)
	assert.Equal(t, 3, out.TotalCount)
	assert.Equal(t, 2, out.UnreadCount)

	assert.Equal(t, "symptom details", out.Symptoms[0].DetailsText)
	assert.Equal(t, "FirstP", out.Symptoms[0].SubjectFirstName)
	assert.Equal(t, "LastP", out.Symptoms[0].SubjectLastName)
	assert.Equal(t, "ext-patient", out.Symptoms[0].SubjectExternal)
}

func TestListStatusPartition(t *testing.T) {
	fx := newFixture(t)
	now := time.Now().UTC()
	fx.seed(t, model.StreamSymptoms, 1, 2, model.StatusUnread, "a", now)
	fx.seed(t, model.StreamSymptoms, 2, 2, model.StatusRead, "b", now)
	fx.seed(t, model.StreamSymptoms, 3, 2, model.StatusUnread, "c", now)

	all, err := fx.svc.List(context.Background(), 2, 2, nil)
	require.NoError(t, err)

	unreadStatus := model.StatusUnread
	unread, err := fx.svc.List(context.Background(), 2, 2, &model.ListFilter{Status: &unreadStatus})
	require.NoError(t, err)

	readStatus := model.StatusRead
	read, err := fx.svc.List(context.Background(), 2, 2, &model.ListFilter{Status: &readStatus})
	require.NoError(t, err)

	assert.Equal(t, all.TotalCount, unread.TotalCount+read.TotalCount)
	assert.Equal(t, 2, unread.TotalCount)
	assert.Equal(t, 1, read.TotalCount)
}

func TestListPatientRestrictedToOwnMessages(t *testing.T) {
	fx := newFixture(t)
	now := time.Now().UTC()
	fx.seed(t, model.StreamSymptoms, 1, 1, model.StatusUnread, "a symptom", now)
	fx.seed(t, model.StreamMessages, 2, 1, model.StatusUnread, "a message", now)

	out, err := fx.svc.List(context.Background(), 1, 1, nil)
	require.NoError(t, err)
	assert.Empty(t, out.Symptoms)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, 1, out.TotalCount)
}

func TestListPatientCannotWidenStreams(t *testing.T) {
	fx := newFixture(t)
	now := time.Now().UTC()
	fx.seed(t, model.StreamSymptoms, 1, 1, model.StatusUnread, "a symptom", now)
	fx.seed(t, model.StreamMessages, 2, 1, model.StatusUnread, "a message", now)

	// The stored user type, not request input, decides the restriction:
	// a patient asking for the symptoms stream still gets messages only.
	out, err := fx.svc.List(context.Background(), 1, 1,
		&model.ListFilter{Streams: []model.Stream{model.StreamSymptoms}})
	require.NoError(t, err)
	assert.Empty(t, out.Symptoms)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, 1, out.TotalCount)
}

func TestListPatientCannotListOthers(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.List(context.Background(), 6, 1, nil)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrUnauthorized, appErr.Code)
}

func TestListNetworkMemberMayListPatient(t *testing.T) {
	fx := newFixture(t)
	now := time.Now().UTC()
	fx.seed(t, model.StreamMessages, 1, 1, model.StatusUnread, "a message", now)

	out, err := fx.svc.List(context.Background(), 2, 1, nil)
	require.NoError(t, err)
	require.Len(t, out.Messages, 1)
}

func TestListOutsiderRejected(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.List(context.Background(), 5, 1, nil)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrUnauthorized, appErr.Code)
}

func TestMarkStatusOwnerOnly(t *testing.T) {
	fx := newFixture(t)
	now := time.Now().UTC()
	fx.seed(t, model.StreamSymptoms, 1, 2, model.StatusUnread, "a symptom", now)

	err := fx.svc.MarkStatus(context.Background(), 5, model.StreamSymptoms, 1, model.StatusRead)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrForbidden, appErr.Code)
	assert.Empty(t, fx.repo.updates)
}

func TestMarkStatusStampsAudit(t *testing.T) {
	fx := newFixture(t)
	now := time.Now().UTC()
	fx.seed(t, model.StreamSymptoms, 1, 2, model.StatusUnread, "a symptom", now)

	require.NoError(t, fx.svc.MarkStatus(context.Background(), 2, model.StreamSymptoms, 1, model.StatusRead))
	require.Len(t, fx.repo.updates, 1)
	up := fx.repo.updates[0]
	assert.Equal(t, model.StatusRead, up.status)
	assert.Equal(t, int64(2), up.updatedBy)
	assert.False(t, up.updatedAt.IsZero())

	// Same-status write is accepted and stamps the audit columns again.
	require.NoError(t, fx.svc.MarkStatus(context.Background(), 2, model.StreamSymptoms, 1, model.StatusRead))
	assert.Len(t, fx.repo.updates, 2)
}

func TestMarkStatusUnknownNotification(t *testing.T) {
	fx := newFixture(t)

	err := fx.svc.MarkStatus(context.Background(), 2, model.StreamSymptoms, 99, model.StatusRead)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrNotFound, appErr.Code)
}

func TestMarkStatusRejectsBogusStatus(t *testing.T) {
	fx := newFixture(t)

	err := fx.svc.MarkStatus(context.Background(), 2, model.StreamSymptoms, 1, 7)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrInvalidInput, appErr.Code)
}

func TestSeveritySnapshotAlignsCategories(t *testing.T) {
	fx := newFixture(t)
	fx.repo.cells = []*model.SeverityCell{
		{SubjectID: 1, MedicalDataType: model.CategoryFever, MaxLevel: model.LevelAlert},
		{SubjectID: 1, MedicalDataType: model.CategoryFalls, MaxLevel: model.LevelNormal},
		{SubjectID: 6, MedicalDataType: model.CategoryChestPain, MaxLevel: model.LevelAlert},
	}

	out, err := fx.svc.SeveritySnapshot(context.Background(), 2, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)

	first := out[0]
	assert.Equal(t, int64(1), first.SubjectID)
	require.Len(t, first.Levels, len(model.MedicalCategories))
	levels := make(map[string]int, len(first.Levels))
	for i, cl := range first.Levels {
		// Entries follow the canonical category order.
		assert.Equal(t, model.MedicalCategories[i], cl.Category)
		levels[cl.Category] = cl.Level
	}
	assert.Equal(t, model.LevelAlert, levels[model.CategoryFever])
	assert.Equal(t, model.LevelNormal, levels[model.CategoryFalls])
	assert.Equal(t, 0, levels[model.CategoryNausea])

	second := out[1]
	assert.Equal(t, int64(6), second.SubjectID)
	secondLevels := make(map[string]int, len(second.Levels))
	for _, cl := range second.Levels {
		secondLevels[cl.Category] = cl.Level
	}
	assert.Equal(t, model.LevelAlert, secondLevels[model.CategoryChestPain])
}

func TestSeveritySnapshotProviderOnly(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.SeveritySnapshot(context.Background(), 1, nil)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrForbidden, appErr.Code)
}
