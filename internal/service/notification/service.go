package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/carelink/carelink-api/internal/model"
	"github.com/carelink/carelink-api/internal/repository"
	"github.com/carelink/carelink-api/internal/service/composer"
	"github.com/carelink/carelink-api/internal/service/network"
	apperrors "github.com/carelink/carelink-api/pkg/errors"
	"github.com/carelink/carelink-api/pkg/phi"
)

// Service is the read/mutation side of the notification store: grouped
// listings with PHI display fields joined in, owner-only status flips,
// and the dashboard severity snapshot.
type Service interface {
	List(ctx context.Context, callerID, recipientID int64, filter *model.ListFilter) (*model.GroupedNotifications, error)
	MarkStatus(ctx context.Context, callerID int64, stream model.Stream, notificationID int64, status int) error
	SeveritySnapshot(ctx context.Context, providerID int64, patientID *int64) ([]*model.SeveritySnapshot, error)
}

type service struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	networks      network.Service
	composer      *composer.Composer
	phi           phi.Store
	logger        *zerolog.Logger
	now           func() time.Time
}

func NewService(notifications repository.NotificationRepository, users repository.UserRepository, networks network.Service, comp *composer.Composer, phiStore phi.Store, logger *zerolog.Logger) Service {
	return &service{
		notifications: notifications,
		users:         users,
		networks:      networks,
		composer:      comp,
		phi:           phiStore,
		logger:        logger,
		now:           time.Now,
	}
}

func (s *service) List(ctx context.Context, callerID, recipientID int64, filter *model.ListFilter) (*model.GroupedNotifications, error) {
	if filter == nil {
		filter = &model.ListFilter{}
	}

	// The caller's role comes from the user store, never from request
	// input; a patient cannot widen their view by claiming another type.
	caller, err := s.users.Get(ctx, callerID)
	if err != nil {
		return nil, apperrors.Unauthorized("unknown caller", err)
	}
	if err := s.authorizeList(ctx, caller, recipientID); err != nil {
		return nil, err
	}

	streams := filter.Streams
	if len(streams) == 0 {
		streams = model.Streams
	}
	// Patients only ever see their own message stream.
	if caller.UserType == model.UserTypePatient {
		streams = []model.Stream{model.StreamMessages}
	}

	byStream := make(map[model.Stream][]*model.Notification, len(streams))
	for _, stream := range streams {
		rows, err := s.notifications.List(ctx, stream, recipientID, filter)
		if err != nil {
			return nil, apperrors.StorageFault(err)
		}
		byStream[stream] = rows
	}

	records, err := s.subjectRecords(ctx, byStream)
	if err != nil {
		return nil, err
	}

	out := &model.GroupedNotifications{
		Symptoms:     []*model.NotificationView{},
		Messages:     []*model.NotificationView{},
		RemoteVitals: []*model.NotificationView{},
		CareTeam:     []*model.NotificationView{},
		Medications:  []*model.NotificationView{},
	}
	for _, stream := range streams {
		views := make([]*model.NotificationView, 0, len(byStream[stream]))
		for _, row := range byStream[stream] {
			view, err := s.view(row, records)
			if err != nil {
				return nil, err
			}
			views = append(views, view)
			out.TotalCount++
			if row.Status == model.StatusUnread {
				out.UnreadCount++
			}
		}
		switch stream {
		case model.StreamSymptoms:
			out.Symptoms = views
		case model.StreamMessages:
			out.Messages = views
		case model.StreamRemoteVitals:
			out.RemoteVitals = views
		case model.StreamCareTeam:
			out.CareTeam = views
		case model.StreamMedications:
			out.Medications = views
		}
	}
	return out, nil
}

// authorizeList admits the recipient themselves and, when the recipient
// is a patient, any member of that patient's network.
func (s *service) authorizeList(ctx context.Context, caller *model.User, recipientID int64) error {
	if caller.ID == recipientID {
		return nil
	}

	if caller.UserType == model.UserTypePatient {
		return apperrors.Unauthorized("patients may only list their own notifications", nil)
	}

	ok, err := s.networks.IsMember(ctx, caller.ID, recipientID)
	if err != nil {
		return apperrors.StorageFault(err)
	}
	if !ok {
		return apperrors.Unauthorized("caller is not in the recipient's network", nil)
	}
	return nil
}

// subjectRecords batch-loads PHI display fields for every subject seen
// across the listed streams.
func (s *service) subjectRecords(ctx context.Context, byStream map[model.Stream][]*model.Notification) (map[int64]*phi.Record, error) {
	idSet := make(map[int64]struct{})
	for _, rows := range byStream {
		for _, row := range rows {
			idSet[row.SubjectID] = struct{}{}
		}
	}
	if len(idSet) == 0 {
		return map[int64]*phi.Record{}, nil
	}

	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	users, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, apperrors.StorageFault(err)
	}

	externalIDs := make([]string, 0, len(users))
	for _, u := range users {
		externalIDs = append(externalIDs, u.ExternalID)
	}
	phiRecords, err := s.phi.BatchGet(ctx, externalIDs)
	if err != nil {
		return nil, apperrors.StorageFault(err)
	}

	out := make(map[int64]*phi.Record, len(users))
	for id, u := range users {
		if rec, ok := phiRecords[u.ExternalID]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

func (s *service) view(row *model.Notification, records map[int64]*phi.Record) (*model.NotificationView, error) {
	text, err := s.composer.Open(row.Details)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("notification %d: %w", row.ID, err))
	}

	view := &model.NotificationView{Notification: *row, DetailsText: text}
	if rec, ok := records[row.SubjectID]; ok {
		view.SubjectFirstName = rec.FirstName
		view.SubjectLastName = rec.LastName
		view.SubjectExternal = rec.ExternalID
	}
	return view, nil
}

// MarkStatus flips a notification's read state. Only the notifier the
// record is addressed to may touch it; a same-status write still stamps
// updated_at and updated_by.
func (s *service) MarkStatus(ctx context.Context, callerID int64, stream model.Stream, notificationID int64, status int) error {
	if status != model.StatusRead && status != model.StatusUnread {
		return apperrors.InvalidInput(fmt.Sprintf("unknown notification status %d", status), nil)
	}

	row, err := s.notifications.Get(ctx, stream, notificationID)
	if err != nil {
		return apperrors.NotFound("notification", err)
	}
	if row.NotifierID != callerID {
		return apperrors.Forbidden("notification belongs to another user", nil)
	}

	if err := s.notifications.UpdateStatus(ctx, stream, notificationID, status, callerID, s.now().UTC()); err != nil {
		return apperrors.StorageFault(err)
	}
	return nil
}

// SeveritySnapshot returns, per patient, the max unread symptom level
// for every canonical category, in canonical category order. Categories
// with nothing unread report zero.
func (s *service) SeveritySnapshot(ctx context.Context, providerID int64, patientID *int64) ([]*model.SeveritySnapshot, error) {
	caller, err := s.users.Get(ctx, providerID)
	if err != nil {
		return nil, apperrors.Unauthorized("unknown caller", err)
	}
	if !caller.UserType.IsProvider() {
		return nil, apperrors.Forbidden("severity snapshot is provider-only", nil)
	}

	cells, err := s.notifications.SeveritySnapshot(ctx, providerID, patientID)
	if err != nil {
		return nil, apperrors.StorageFault(err)
	}

	byPatient := make(map[int64]map[string]int)
	var order []int64
	for _, cell := range cells {
		levels, ok := byPatient[cell.SubjectID]
		if !ok {
			levels = make(map[string]int, len(model.MedicalCategories))
			byPatient[cell.SubjectID] = levels
			order = append(order, cell.SubjectID)
		}
		if model.ValidCategory(cell.MedicalDataType) {
			levels[cell.MedicalDataType] = cell.MaxLevel
		}
	}

	out := make([]*model.SeveritySnapshot, 0, len(order))
	for _, id := range order {
		levels := make([]model.CategoryLevel, 0, len(model.MedicalCategories))
		for _, category := range model.MedicalCategories {
			levels = append(levels, model.CategoryLevel{Category: category, Level: byPatient[id][category]})
		}
		out = append(out, &model.SeveritySnapshot{SubjectID: id, Levels: levels})
	}
	return out, nil
}
