package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/carelink/carelink-api/internal/email"
	"github.com/carelink/carelink-api/internal/model"
	"github.com/carelink/carelink-api/pkg/messaging"
	"github.com/carelink/carelink-api/pkg/metrics"
	"github.com/carelink/carelink-api/pkg/phi"
)

const emailSubject = "CareLink alert"

// Service pushes out-of-band alerts to network members flagged as
// alert receivers. Delivery is best effort: failures are logged and
// counted, never surfaced to the caller.
type Service struct {
	messenger messaging.Messenger
	email     email.Service
	phi       phi.Store
	metrics   *metrics.Metrics
	logger    *zerolog.Logger
}

// NewService builds a dispatcher. email may be nil when no SMTP relay
// is configured.
func NewService(messenger messaging.Messenger, emailSvc email.Service, phiStore phi.Store, m *metrics.Metrics, logger *zerolog.Logger) *Service {
	return &Service{
		messenger: messenger,
		email:     emailSvc,
		phi:       phiStore,
		metrics:   m,
		logger:    logger,
	}
}

// Dispatch sends text to every alert receiver in recipients. orgName
// prefixes the message so receivers can tell which practice it came
// from. Runs after the notification rows have committed.
func (s *Service) Dispatch(ctx context.Context, recipients []*model.NetworkMember, text, orgName string) {
	start := time.Now()
	defer func() {
		s.metrics.DispatchLatency.Observe(time.Since(start).Seconds())
	}()

	var externalIDs []string
	for _, member := range recipients {
		if member.AlertReceiver {
			externalIDs = append(externalIDs, member.ExternalID)
		}
	}
	if len(externalIDs) == 0 {
		return
	}

	records, err := s.phi.BatchGet(ctx, externalIDs)
	if err != nil {
		s.logger.Error().Err(err).Int("recipients", len(externalIDs)).Msg("dispatch skipped, PHI lookup failed")
		s.metrics.DispatchTotal.WithLabelValues("sms", "skipped").Add(float64(len(externalIDs)))
		return
	}

	body := text
	if orgName != "" {
		body = fmt.Sprintf("%s: %s", orgName, text)
	}

	for _, id := range externalIDs {
		rec, ok := records[id]
		if !ok {
			s.logger.Warn().Str("external_id", id).Msg("alert receiver has no PHI record")
			s.metrics.DispatchTotal.WithLabelValues("sms", "skipped").Inc()
			continue
		}
		s.sendSMS(ctx, rec, body)
		s.sendEmail(ctx, rec, body)
	}
}

func (s *Service) sendSMS(ctx context.Context, rec *phi.Record, body string) {
	phone := rec.FullPhone()
	if phone == "" {
		s.logger.Warn().Str("external_id", rec.ExternalID).Msg("alert receiver has no phone on file")
		s.metrics.DispatchTotal.WithLabelValues("sms", "skipped").Inc()
		return
	}

	messageID, err := s.messenger.SendSMS(ctx, phone, body)
	if err != nil {
		s.logger.Error().Err(err).Str("external_id", rec.ExternalID).Msg("failed to send alert SMS")
		s.metrics.DispatchTotal.WithLabelValues("sms", "failure").Inc()
		return
	}
	s.logger.Info().Str("external_id", rec.ExternalID).Str("message_id", messageID).Msg("alert SMS sent")
	s.metrics.DispatchTotal.WithLabelValues("sms", "success").Inc()
}

func (s *Service) sendEmail(ctx context.Context, rec *phi.Record, body string) {
	if s.email == nil || rec.Email == "" {
		return
	}

	if err := s.email.SendAlert(ctx, rec.Email, emailSubject, body); err != nil {
		s.logger.Error().Err(err).Str("external_id", rec.ExternalID).Msg("failed to send alert email")
		s.metrics.DispatchTotal.WithLabelValues("email", "failure").Inc()
		return
	}
	s.metrics.DispatchTotal.WithLabelValues("email", "success").Inc()
}
