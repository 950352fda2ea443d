package smsgw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/carelink/carelink-api/pkg/circuitbreaker"
	"github.com/carelink/carelink-api/pkg/messaging"
	"github.com/carelink/carelink-api/pkg/secrets"
)

// Config holds SMS gateway connection settings.
type Config struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type client struct {
	baseURL    string
	accountSID string
	authToken  string
	http       *http.Client
	cb         *circuitbreaker.CircuitBreaker
	logger     *zerolog.Logger
}

// NewClient builds the SMS gateway client implementing the Messenger
// contract. Credentials come from the secret provider at construction.
func NewClient(cfg Config, provider secrets.Provider, logger *zerolog.Logger) (messaging.Messenger, error) {
	sid, err := provider.Fetch(secrets.KeySMSAccount)
	if err != nil {
		return nil, fmt.Errorf("sms gateway credentials: %w", err)
	}
	token, err := provider.Fetch(secrets.KeySMSToken)
	if err != nil {
		return nil, fmt.Errorf("sms gateway credentials: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &client{
		baseURL:    cfg.BaseURL,
		accountSID: sid,
		authToken:  token,
		http:       &http.Client{Timeout: timeout},
		cb: circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "sms-gateway",
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		}),
		logger: logger,
	}, nil
}

type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error,omitempty"`
}

func (c *client) SendSMS(ctx context.Context, phone, text string) (string, error) {
	payload, err := json.Marshal(sendRequest{To: phone, Body: text})
	if err != nil {
		return "", fmt.Errorf("failed to marshal SMS request: %w", err)
	}

	var messageID string
	err = c.cb.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.SetBasicAuth(c.accountSID, c.authToken)

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		var body sendResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("failed to decode SMS gateway response: %w", err)
		}
		if resp.StatusCode >= 300 {
			return fmt.Errorf("sms gateway rejected message: %d %s", resp.StatusCode, body.Error)
		}
		messageID = body.MessageID
		return nil
	})
	if err != nil {
		return "", err
	}

	c.logger.Debug().Str("message_id", messageID).Msg("sms accepted by gateway")
	return messageID, nil
}
