package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/carelink-api/internal/model"
	"github.com/carelink/carelink-api/pkg/logger"
	"github.com/carelink/carelink-api/pkg/messaging"
	"github.com/carelink/carelink-api/pkg/metrics"
)

var testMetrics = metrics.NewMetrics("carelink_test", "outbox")

type retryCall struct {
	id      uuid.UUID
	errMsg  string
	retryAt time.Time
}

type fakeOutboxRepo struct {
	pending     []*model.OutboxEvent
	claimErr    error
	processed   []uuid.UUID
	retries     []retryCall
	deadLetters []*model.OutboxEvent
}

func (f *fakeOutboxRepo) Create(context.Context, *model.OutboxEvent) error {
	return errors.New("not implemented")
}

func (f *fakeOutboxRepo) ClaimPending(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeOutboxRepo) MarkProcessed(_ context.Context, id uuid.UUID) error {
	f.processed = append(f.processed, id)
	return nil
}

func (f *fakeOutboxRepo) MarkRetry(_ context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error {
	f.retries = append(f.retries, retryCall{id: id, errMsg: errMsg, retryAt: retryAt})
	return nil
}

func (f *fakeOutboxRepo) DeadLetter(_ context.Context, event *model.OutboxEvent, _ string) error {
	f.deadLetters = append(f.deadLetters, event)
	return nil
}

func (f *fakeOutboxRepo) DeleteProcessedBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type published struct {
	channel string
	message interface{}
}

type fakeBroker struct {
	publishErr error
	published  []published
}

func (f *fakeBroker) Publish(_ context.Context, channel string, message interface{}) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, published{channel: channel, message: message})
	return nil
}

func (f *fakeBroker) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeBroker) Close() error { return nil }

func outboxEvent(retryCount int) *model.OutboxEvent {
	return &model.OutboxEvent{
		ID:         uuid.New(),
		EventType:  "notification.created",
		Payload:    json.RawMessage(`{"stream":"symptoms"}`),
		Status:     string(model.OutboxStatusPending),
		RetryCount: retryCount,
		CreatedAt:  time.Now().UTC(),
	}
}

func newTestProcessor(repo *fakeOutboxRepo, broker *fakeBroker) *OutboxProcessor {
	lg := logger.NewLogger(&logger.Config{Level: logger.ErrorLevel, Output: io.Discard})
	return NewOutboxProcessor(repo, broker, OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
	}, lg, testMetrics)
}

func TestProcessEventsPublishesAndMarksProcessed(t *testing.T) {
	event := outboxEvent(0)
	repo := &fakeOutboxRepo{pending: []*model.OutboxEvent{event}}
	broker := &fakeBroker{}
	p := newTestProcessor(repo, broker)

	require.NoError(t, p.processEvents(context.Background()))

	require.Len(t, broker.published, 1)
	assert.Equal(t, messaging.NotificationsChannel, broker.published[0].channel)
	require.Len(t, repo.processed, 1)
	assert.Equal(t, event.ID, repo.processed[0])
	assert.Empty(t, repo.retries)
	assert.Empty(t, repo.deadLetters)
}

func TestProcessEventsSchedulesRetryOnPublishFailure(t *testing.T) {
	event := outboxEvent(1)
	repo := &fakeOutboxRepo{pending: []*model.OutboxEvent{event}}
	broker := &fakeBroker{publishErr: errors.New("broker down")}
	p := newTestProcessor(repo, broker)

	before := time.Now()
	require.NoError(t, p.processEvents(context.Background()))

	assert.Empty(t, repo.processed)
	require.Len(t, repo.retries, 1)
	retry := repo.retries[0]
	assert.Equal(t, event.ID, retry.id)
	assert.Equal(t, "broker down", retry.errMsg)
	assert.True(t, retry.retryAt.After(before))
	assert.Empty(t, repo.deadLetters)
}

func TestProcessEventsDeadLettersAfterMaxRetries(t *testing.T) {
	event := outboxEvent(maxRetryCount - 1)
	repo := &fakeOutboxRepo{pending: []*model.OutboxEvent{event}}
	broker := &fakeBroker{publishErr: errors.New("broker down")}
	p := newTestProcessor(repo, broker)

	require.NoError(t, p.processEvents(context.Background()))

	assert.Empty(t, repo.retries)
	require.Len(t, repo.deadLetters, 1)
	assert.Equal(t, event.ID, repo.deadLetters[0].ID)
}

func TestProcessEventsBatchSurvivesOneFailure(t *testing.T) {
	bad := outboxEvent(0)
	good := outboxEvent(0)
	repo := &fakeOutboxRepo{pending: []*model.OutboxEvent{bad, good}}

	// The first publish fails, the second succeeds.
	calls := 0
	flaky := brokerFunc(func(context.Context, string, interface{}) error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	})
	p := newTestProcessor(repo, &fakeBroker{})
	p.broker = flaky

	require.NoError(t, p.processEvents(context.Background()))

	require.Len(t, repo.retries, 1)
	assert.Equal(t, bad.ID, repo.retries[0].id)
	require.Len(t, repo.processed, 1)
	assert.Equal(t, good.ID, repo.processed[0])
}

type brokerFunc func(ctx context.Context, channel string, message interface{}) error

func (f brokerFunc) Publish(ctx context.Context, channel string, message interface{}) error {
	return f(ctx, channel, message)
}

func (f brokerFunc) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (f brokerFunc) Close() error { return nil }
