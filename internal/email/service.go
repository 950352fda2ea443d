package email

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"github.com/carelink/carelink-api/pkg/secrets"
)

// Service delivers alert emails through the platform SMTP relay.
type Service interface {
	SendAlert(ctx context.Context, to, subject, content string) error
}

// Config holds SMTP relay settings. The password comes from the secret
// provider, not config.
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`
	From string `yaml:"from"`
}

type service struct {
	cfg    Config
	dialer *gomail.Dialer
	logger *zerolog.Logger
}

func NewService(cfg Config, provider secrets.Provider, logger *zerolog.Logger) (Service, error) {
	password, err := provider.Fetch(secrets.KeySMTPPassword)
	if err != nil {
		return nil, fmt.Errorf("smtp credentials: %w", err)
	}
	return &service{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, password),
		logger: logger,
	}, nil
}

func (s *service) SendAlert(ctx context.Context, to, subject, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", content)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}
	s.logger.Debug().Str("to", to).Msg("alert email sent")
	return nil
}
