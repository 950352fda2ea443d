package phi

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink-api/pkg/metrics"
)

// batchSize caps keys per store round-trip when composing list views.
const batchSize = 50

// Record holds the personally identifying fields kept outside the
// relational store, keyed by external id.
type Record struct {
	ExternalID      string `json:"external_id"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone"`
	CellCountryCode string `json:"cell_country_code"`
	Role            string `json:"role"`
	Specialty       string `json:"specialty,omitempty"`
	Degree          string `json:"degree,omitempty"`
}

// DisplayName renders "First Last" for notification details.
func (r *Record) DisplayName() string {
	if r == nil {
		return ""
	}
	if r.FirstName == "" {
		return r.LastName
	}
	if r.LastName == "" {
		return r.FirstName
	}
	return r.FirstName + " " + r.LastName
}

// FullPhone joins country code and number for SMS dispatch.
func (r *Record) FullPhone() string {
	if r == nil || r.Phone == "" {
		return ""
	}
	return r.CellCountryCode + r.Phone
}

// Store reads PHI documents by external id.
type Store interface {
	Get(ctx context.Context, externalID string) (*Record, error)
	BatchGet(ctx context.Context, externalIDs []string) (map[string]*Record, error)
}

// Config holds PHI store connection settings.
type Config struct {
	URL       string        `yaml:"url"`
	KeyPrefix string        `yaml:"key_prefix"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

type redisStore struct {
	client  *redis.Client
	prefix  string
	cache   *cache.Cache
	metrics *metrics.Metrics
	logger  *zerolog.Logger
}

// NewRedisStore connects to the PHI document store. Documents are JSON
// blobs keyed "<prefix><external_id>".
func NewRedisStore(cfg Config, m *metrics.Metrics, logger *zerolog.Logger) (Store, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PHI store URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to PHI store: %w", err)
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &redisStore{
		client:  client,
		prefix:  cfg.KeyPrefix,
		cache:   cache.New(ttl, 2*ttl),
		metrics: m,
		logger:  logger,
	}, nil
}

func (s *redisStore) Get(ctx context.Context, externalID string) (*Record, error) {
	records, err := s.BatchGet(ctx, []string{externalID})
	if err != nil {
		return nil, err
	}
	rec, ok := records[externalID]
	if !ok {
		return nil, fmt.Errorf("PHI record %q not found", externalID)
	}
	return rec, nil
}

func (s *redisStore) BatchGet(ctx context.Context, externalIDs []string) (map[string]*Record, error) {
	out := make(map[string]*Record, len(externalIDs))

	var misses []string
	for _, id := range externalIDs {
		if v, ok := s.cache.Get(id); ok {
			out[id] = v.(*Record)
			continue
		}
		misses = append(misses, id)
	}

	for start := 0; start < len(misses); start += batchSize {
		end := start + batchSize
		if end > len(misses) {
			end = len(misses)
		}
		chunk := misses[start:end]

		keys := make([]string, len(chunk))
		for i, id := range chunk {
			keys[i] = s.prefix + id
		}

		s.metrics.PhiBatchGets.Inc()
		s.metrics.PhiBatchKeys.Observe(float64(len(chunk)))
		vals, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("PHI batch get failed: %w", err)
		}

		for i, v := range vals {
			if v == nil {
				continue
			}
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var rec Record
			if err := json.Unmarshal([]byte(raw), &rec); err != nil {
				s.logger.Warn().Str("external_id", chunk[i]).Err(err).Msg("malformed PHI document")
				continue
			}
			if rec.ExternalID == "" {
				rec.ExternalID = chunk[i]
			}
			out[chunk[i]] = &rec
			s.cache.SetDefault(chunk[i], &rec)
		}
	}

	return out, nil
}
