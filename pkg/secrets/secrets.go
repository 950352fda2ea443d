package secrets

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/patrickmn/go-cache"
)

// Secret ids the service resolves.
const (
	KeyChatEncryptDecrypt = "chat_encrypt_decrypt_key"
	KeySMSAccount         = "sms_account_sid"
	KeySMSToken           = "sms_auth_token"
	KeySMTPPassword       = "smtp_password"
)

// Provider resolves named secrets. Implementations cache per process;
// rotation requires a restart.
type Provider interface {
	Fetch(id string) (string, error)
}

// KeyProvider narrows Provider to the detail-encryption key so rotation
// stays local to the composer.
type KeyProvider interface {
	EncryptionKey() (string, error)
}

type envSecrets struct {
	ChatEncryptDecryptKey string `envconfig:"CHAT_ENCRYPT_DECRYPT_KEY" required:"true"`
	SMSAccountSID         string `envconfig:"SMS_ACCOUNT_SID"`
	SMSAuthToken          string `envconfig:"SMS_AUTH_TOKEN"`
	SMTPPassword          string `envconfig:"SMTP_PASSWORD"`
}

type envProvider struct {
	cache *cache.Cache
}

// NewEnvProvider reads secrets from the environment once and serves them
// from a process-wide cache thereafter.
func NewEnvProvider(prefix string) (Provider, error) {
	var s envSecrets
	if err := envconfig.Process(prefix, &s); err != nil {
		return nil, fmt.Errorf("failed to load secrets: %w", err)
	}

	c := cache.New(cache.NoExpiration, time.Hour)
	c.Set(KeyChatEncryptDecrypt, s.ChatEncryptDecryptKey, cache.NoExpiration)
	c.Set(KeySMSAccount, s.SMSAccountSID, cache.NoExpiration)
	c.Set(KeySMSToken, s.SMSAuthToken, cache.NoExpiration)
	c.Set(KeySMTPPassword, s.SMTPPassword, cache.NoExpiration)

	return &envProvider{cache: c}, nil
}

func (p *envProvider) Fetch(id string) (string, error) {
	if v, ok := p.cache.Get(id); ok {
		if s, ok := v.(string); ok && s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("secret %q not available", id)
}

// Keys adapts a Provider to the KeyProvider interface.
func Keys(p Provider) KeyProvider {
	return keyProvider{p}
}

type keyProvider struct {
	p Provider
}

func (k keyProvider) EncryptionKey() (string, error) {
	return k.p.Fetch(KeyChatEncryptDecrypt)
}

// Static is a fixed-value provider for tests.
type Static map[string]string

func (s Static) Fetch(id string) (string, error) {
	if v, ok := s[id]; ok {
		return v, nil
	}
	return "", fmt.Errorf("secret %q not available", id)
}
