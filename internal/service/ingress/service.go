package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink-api/internal/model"
	"github.com/carelink/carelink-api/internal/repository"
	"github.com/carelink/carelink-api/internal/service/classifier"
	"github.com/carelink/carelink-api/internal/service/composer"
	"github.com/carelink/carelink-api/internal/service/network"
	apperrors "github.com/carelink/carelink-api/pkg/errors"
	"github.com/carelink/carelink-api/pkg/metrics"
	"github.com/carelink/carelink-api/pkg/phi"
)

// OutboxEventNotificationCreated tags broker payloads produced by fan-out.
const OutboxEventNotificationCreated = "notification.created"

// Dispatcher pushes out-of-band alerts after the fan-out has committed.
type Dispatcher interface {
	Dispatch(ctx context.Context, recipients []*model.NetworkMember, text, orgName string)
}

// Service is the event ingress: it turns each write event into one
// notification row per network member, in a single transaction, then
// hands the committed fact to the dispatcher.
type Service struct {
	validate      *validator.Validate
	users         repository.UserRepository
	networks      network.Service
	networkRepo   repository.NetworkRepository
	notifications repository.NotificationRepository
	classifier    *classifier.Classifier
	composer      *composer.Composer
	dispatcher    Dispatcher
	phi           phi.Store
	metrics       *metrics.Metrics
	logger        *zerolog.Logger
	now           func() time.Time
}

type Deps struct {
	Users         repository.UserRepository
	Networks      network.Service
	NetworkRepo   repository.NetworkRepository
	Notifications repository.NotificationRepository
	Classifier    *classifier.Classifier
	Composer      *composer.Composer
	Dispatcher    Dispatcher
	PHI           phi.Store
	Metrics       *metrics.Metrics
	Logger        *zerolog.Logger
	Now           func() time.Time
}

func NewService(d Deps) *Service {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		validate:      validator.New(),
		users:         d.Users,
		networks:      d.Networks,
		networkRepo:   d.NetworkRepo,
		notifications: d.Notifications,
		classifier:    d.Classifier,
		composer:      d.Composer,
		dispatcher:    d.Dispatcher,
		phi:           d.PHI,
		metrics:       d.Metrics,
		logger:        d.Logger,
		now:           now,
	}
}

// SymptomSubmitted fans out a symptom survey submission. The severity
// level comes from the classifier and is immutable once written.
func (s *Service) SymptomSubmitted(ctx context.Context, ev *model.SymptomEvent) error {
	defer s.observe(model.StreamSymptoms, s.now())

	if err := s.validate.Struct(ev); err != nil {
		return apperrors.InvalidInput("invalid symptom event", err)
	}
	if !model.ValidCategory(ev.Category) {
		return apperrors.InvalidInput(fmt.Sprintf("unknown medical data type %q", ev.Category), nil)
	}

	patient, err := s.subject(ctx, ev.PatientID)
	if err != nil {
		return err
	}
	members, err := s.resolve(ctx, ev.PatientID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		s.metrics.FanoutSize.Observe(0)
		return nil
	}

	level, err := s.classifier.Classify(ctx, ev.Category, ev.Payload, ev.PatientID, ev.At)
	if err != nil {
		return apperrors.StorageFault(err)
	}
	if level == model.LevelAlert {
		s.metrics.AlertsRaised.WithLabelValues(ev.Category).Inc()
	}

	patientName, err := s.displayName(ctx, patient.ExternalID)
	if err != nil {
		return err
	}
	var text string
	if ev.ReporterID == ev.PatientID {
		text = s.composer.Symptom(patientName, ev.Category, "", "", true)
	} else {
		reporter, err := s.users.Get(ctx, ev.ReporterID)
		if err != nil {
			return apperrors.NotFound("reporter", err)
		}
		reporterName, err := s.displayName(ctx, reporter.ExternalID)
		if err != nil {
			return err
		}
		text = s.composer.Symptom(patientName, ev.Category, reporterName, deref(reporter.Degree), false)
	}

	rows, err := s.buildRows(ev.EventEnvelope, level, text, members, func(n *model.Notification) {
		n.MedicalDataType = &ev.Category
		n.MedicalDataID = &ev.MedicalDataID
	})
	if err != nil {
		return err
	}
	if err := s.commit(ctx, model.StreamSymptoms, ev.EventEnvelope, level, rows); err != nil {
		return err
	}

	s.afterCommit(ctx, ev.PatientID, members, text)
	return nil
}

// MessageSent records a chat message notification for its single
// addressed receiver.
func (s *Service) MessageSent(ctx context.Context, ev *model.MessageEvent) error {
	defer s.observe(model.StreamMessages, s.now())

	if err := s.validate.Struct(ev); err != nil {
		return apperrors.InvalidInput("invalid message event", err)
	}

	receiver, err := s.users.Get(ctx, ev.ReceiverID)
	if err != nil {
		return apperrors.NotFound("receiver", err)
	}
	sender, err := s.users.Get(ctx, ev.SenderID)
	if err != nil {
		return apperrors.NotFound("sender", err)
	}

	var patientName string
	recipient := &model.NetworkMember{UserID: receiver.ID, ExternalID: receiver.ExternalID}
	if ev.PatientLinked {
		patient, err := s.subject(ctx, ev.PatientID)
		if err != nil {
			return err
		}
		if receiver.ID != patient.ID {
			members, err := s.resolve(ctx, ev.PatientID)
			if err != nil {
				return err
			}
			found := false
			for _, m := range members {
				if m.UserID == receiver.ID {
					recipient = m
					found = true
					break
				}
			}
			if !found {
				// Clinicians in the patient's organization may be
				// messaged without a network edge; they get the row
				// but no out-of-band alert.
				shared, err := s.networkRepo.SharedOrganization(ctx, receiver.ID, patient.ID)
				if err != nil {
					return apperrors.StorageFault(err)
				}
				if !shared {
					return apperrors.Forbidden("receiver is not in the patient's network", nil)
				}
			}
		}
		patientName, err = s.displayName(ctx, patient.ExternalID)
		if err != nil {
			return err
		}
	}

	senderName, err := s.displayName(ctx, sender.ExternalID)
	if err != nil {
		return err
	}
	text := s.composer.Message(senderName, deref(sender.Degree), patientName)

	// A direct message has no patient context; the row is about its
	// sender.
	env := ev.EventEnvelope
	if !ev.PatientLinked {
		env.PatientID = ev.SenderID
	}

	rows, err := s.buildRows(env, model.LevelNormal, text, []*model.NetworkMember{recipient}, func(n *model.Notification) {
		n.MessageID = &ev.MessageID
		n.ChannelName = &ev.ChannelName
		n.SenderID = &ev.SenderID
		n.ReceiverID = &ev.ReceiverID
	})
	if err != nil {
		return err
	}
	if err := s.commit(ctx, model.StreamMessages, env, model.LevelNormal, rows); err != nil {
		return err
	}

	if ev.PatientLinked {
		s.afterCommit(ctx, ev.PatientID, []*model.NetworkMember{recipient}, text)
	}
	return nil
}

// CareTeamMemberAdded notifies the patient's existing network about a
// new care-team member. The new member receives nothing.
func (s *Service) CareTeamMemberAdded(ctx context.Context, ev *model.CareTeamEvent) error {
	defer s.observe(model.StreamCareTeam, s.now())

	if err := s.validate.Struct(ev); err != nil {
		return apperrors.InvalidInput("invalid care team event", err)
	}

	patient, err := s.subject(ctx, ev.PatientID)
	if err != nil {
		return err
	}
	member, err := s.users.Get(ctx, ev.MemberID)
	if err != nil {
		return apperrors.NotFound("care team member", err)
	}

	members, err := s.resolve(ctx, ev.PatientID)
	if err != nil {
		return err
	}
	existing := members[:0]
	for _, m := range members {
		if m.UserID != ev.MemberID {
			existing = append(existing, m)
		}
	}
	if len(existing) == 0 {
		s.metrics.FanoutSize.Observe(0)
		return nil
	}

	patientName, err := s.displayName(ctx, patient.ExternalID)
	if err != nil {
		return err
	}
	memberName, err := s.displayName(ctx, member.ExternalID)
	if err != nil {
		return err
	}
	text := s.composer.CareTeam(memberName, deref(member.Degree), deref(member.Specialty), patientName)

	rows, err := s.buildRows(ev.EventEnvelope, model.LevelNormal, text, existing, func(n *model.Notification) {
		n.CareTeamUserID = &ev.MemberID
	})
	if err != nil {
		return err
	}
	if err := s.commit(ctx, model.StreamCareTeam, ev.EventEnvelope, model.LevelNormal, rows); err != nil {
		return err
	}

	s.afterCommit(ctx, ev.PatientID, existing, text)
	return nil
}

// MedicationChanged fans out a medication row change to the patient's
// network.
func (s *Service) MedicationChanged(ctx context.Context, ev *model.MedicationEvent) error {
	defer s.observe(model.StreamMedications, s.now())

	if err := s.validate.Struct(ev); err != nil {
		return apperrors.InvalidInput("invalid medication event", err)
	}

	patient, err := s.subject(ctx, ev.PatientID)
	if err != nil {
		return err
	}
	actor, err := s.users.Get(ctx, ev.ActorID)
	if err != nil {
		return apperrors.NotFound("actor", err)
	}

	members, err := s.resolve(ctx, ev.PatientID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		s.metrics.FanoutSize.Observe(0)
		return nil
	}

	patientName, err := s.displayName(ctx, patient.ExternalID)
	if err != nil {
		return err
	}
	actorName, err := s.displayName(ctx, actor.ExternalID)
	if err != nil {
		return err
	}
	text := s.composer.Medication(ev.Action, patientName, actorName, deref(actor.Degree),
		ev.DrugName, ev.Quantity, ev.Unit, ev.Sig)

	rows, err := s.buildRows(ev.EventEnvelope, model.LevelNormal, text, members, func(n *model.Notification) {
		n.MedicationRowID = &ev.MedicationRowID
	})
	if err != nil {
		return err
	}
	if err := s.commit(ctx, model.StreamMedications, ev.EventEnvelope, model.LevelNormal, rows); err != nil {
		return err
	}

	s.afterCommit(ctx, ev.PatientID, members, text)
	return nil
}

// DeviceReadingIngested fans out a remote-vital device reading to the
// patient's network.
func (s *Service) DeviceReadingIngested(ctx context.Context, ev *model.DeviceReadingEvent) error {
	defer s.observe(model.StreamRemoteVitals, s.now())

	if err := s.validate.Struct(ev); err != nil {
		return apperrors.InvalidInput("invalid device reading event", err)
	}

	patient, err := s.subject(ctx, ev.PatientID)
	if err != nil {
		return err
	}
	members, err := s.resolve(ctx, ev.PatientID)
	if err != nil {
		return err
	}
	if len(members) == 0 {
		s.metrics.FanoutSize.Observe(0)
		return nil
	}

	patientName, err := s.displayName(ctx, patient.ExternalID)
	if err != nil {
		return err
	}
	text := s.composer.RemoteVital(patientName)

	rows, err := s.buildRows(ev.EventEnvelope, model.LevelNormal, text, members, func(n *model.Notification) {
		n.RemoteVitalID = &ev.RemoteVitalID
	})
	if err != nil {
		return err
	}
	if err := s.commit(ctx, model.StreamRemoteVitals, ev.EventEnvelope, model.LevelNormal, rows); err != nil {
		return err
	}

	s.afterCommit(ctx, ev.PatientID, members, text)
	return nil
}

func (s *Service) observe(stream model.Stream, start time.Time) {
	s.metrics.EventsIngested.WithLabelValues(string(stream)).Inc()
	s.metrics.IngestLatency.WithLabelValues(string(stream)).Observe(time.Since(start).Seconds())
}

// subject loads the patient an event concerns.
func (s *Service) subject(ctx context.Context, patientID int64) (*model.User, error) {
	if patientID <= 0 {
		return nil, apperrors.InvalidInput("patient id is required", nil)
	}
	patient, err := s.users.Get(ctx, patientID)
	if err != nil {
		return nil, apperrors.NotFound("patient", err)
	}
	if patient.UserType != model.UserTypePatient {
		return nil, apperrors.InvalidInput(fmt.Sprintf("user %d is not a patient", patientID), nil)
	}
	return patient, nil
}

func (s *Service) resolve(ctx context.Context, patientID int64) ([]*model.NetworkMember, error) {
	members, err := s.networks.Resolve(ctx, patientID, true)
	if err != nil {
		return nil, apperrors.StorageFault(err)
	}
	return members, nil
}

func (s *Service) displayName(ctx context.Context, externalID string) (string, error) {
	rec, err := s.phi.Get(ctx, externalID)
	if err != nil {
		return "", apperrors.StorageFault(err)
	}
	return rec.DisplayName(), nil
}

// buildRows seals the rendered details once and stamps one notification
// per recipient; apply fills the stream discriminators.
func (s *Service) buildRows(env model.EventEnvelope, level int, text string, members []*model.NetworkMember, apply func(*model.Notification)) ([]*model.Notification, error) {
	sealed, err := s.composer.Seal(text)
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	origin := env.OriginEventID
	if origin == uuid.Nil {
		origin = uuid.New()
	}
	now := s.now().UTC()

	rows := make([]*model.Notification, 0, len(members))
	for _, m := range members {
		rows = append(rows, &model.Notification{
			OriginEventID: origin,
			Level:         level,
			Status:        model.StatusUnread,
			Details:       sealed,
			NotifierID:    m.UserID,
			SubjectID:     env.PatientID,
			CreatedAt:     now,
			CreatedBy:     env.ActorID,
			UpdatedAt:     now,
			UpdatedBy:     env.ActorID,
		})
		apply(rows[len(rows)-1])
	}
	return rows, nil
}

// commit writes all rows plus the broker outbox event in one transaction.
func (s *Service) commit(ctx context.Context, stream model.Stream, env model.EventEnvelope, level int, rows []*model.Notification) error {
	notifierIDs := make([]int64, len(rows))
	for i, r := range rows {
		notifierIDs[i] = r.NotifierID
	}
	payload, err := json.Marshal(model.NotificationEvent{
		OriginEventID: rows[0].OriginEventID,
		Stream:        stream,
		SubjectID:     env.PatientID,
		NotifierIDs:   notifierIDs,
		Level:         level,
		CreatedAt:     rows[0].CreatedAt,
	})
	if err != nil {
		return apperrors.Internal(err)
	}
	outbox := &model.OutboxEvent{
		ID:        uuid.New(),
		EventType: OutboxEventNotificationCreated,
		Payload:   payload,
		Status:    string(model.OutboxStatusPending),
		CreatedAt: rows[0].CreatedAt,
		UpdatedAt: rows[0].CreatedAt,
	}

	inserted, err := s.notifications.InsertFanout(ctx, stream, rows, outbox)
	if err != nil {
		return apperrors.StorageFault(err)
	}
	s.metrics.FanoutSize.Observe(float64(inserted))
	if inserted < len(rows) {
		s.logger.Info().
			Str("stream", string(stream)).
			Str("origin_event_id", rows[0].OriginEventID.String()).
			Int("duplicates", len(rows)-inserted).
			Msg("duplicate fan-out rows absorbed")
	}
	return nil
}

// afterCommit runs the best-effort dispatch phase. Nothing here may fail
// the ingest; the committed rows are authoritative.
func (s *Service) afterCommit(ctx context.Context, patientID int64, members []*model.NetworkMember, text string) {
	orgName := ""
	org, err := s.networkRepo.PrimaryOrganization(ctx, patientID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("patient_id", patientID).Msg("organization lookup failed, dispatching without name")
	} else if org != nil {
		orgName = org.Name
	}
	s.dispatcher.Dispatch(ctx, members, text, orgName)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
