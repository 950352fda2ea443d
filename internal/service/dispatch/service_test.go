package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/carelink/carelink-api/internal/model"
	"github.com/carelink/carelink-api/pkg/metrics"
	"github.com/carelink/carelink-api/pkg/phi"
)

var testMetrics = metrics.NewMetrics("carelink_test", "dispatch")

type fakeMessenger struct {
	sent []string
	fail bool
}

func (f *fakeMessenger) SendSMS(_ context.Context, phone, _ string) (string, error) {
	if f.fail {
		return "", errors.New("gateway unavailable")
	}
	f.sent = append(f.sent, phone)
	return "msg-1", nil
}

type fakeEmail struct {
	sent []string
	fail bool
}

func (f *fakeEmail) SendAlert(_ context.Context, to, _, _ string) error {
	if f.fail {
		return errors.New("relay unavailable")
	}
	f.sent = append(f.sent, to)
	return nil
}

type fakePHI struct {
	records map[string]*phi.Record
	err     error
}

func (f *fakePHI) Get(ctx context.Context, id string) (*phi.Record, error) {
	recs, err := f.BatchGet(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	return recs[id], nil
}

func (f *fakePHI) BatchGet(_ context.Context, ids []string) (map[string]*phi.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]*phi.Record)
	for _, id := range ids {
		if rec, ok := f.records[id]; ok {
			out[id] = rec
		}
	}
	return out, nil
}

func member(externalID string, alertReceiver bool) *model.NetworkMember {
	return &model.NetworkMember{
		ExternalID:    externalID,
		Role:          model.NetworkRoleProvider,
		AlertReceiver: alertReceiver,
	}
}

func newTestService(messenger *fakeMessenger, emailSvc *fakeEmail, store *fakePHI) *Service {
	logger := zerolog.Nop()
	if emailSvc == nil {
		return NewService(messenger, nil, store, testMetrics, &logger)
	}
	return NewService(messenger, emailSvc, store, testMetrics, &logger)
}

func TestDispatchOnlyAlertReceivers(t *testing.T) {
	messenger := &fakeMessenger{}
	store := &fakePHI{records: map[string]*phi.Record{
		"ext-1": {ExternalID: "ext-1", Phone: "5550001", CellCountryCode: "+1"},
		"ext-2": {ExternalID: "ext-2", Phone: "5550002", CellCountryCode: "+1"},
	}}
	svc := newTestService(messenger, nil, store)

	svc.Dispatch(context.Background(), []*model.NetworkMember{
		member("ext-1", true),
		member("ext-2", false),
	}, "New alert", "Mercy Clinic")

	assert.Equal(t, []string{"+15550001"}, messenger.sent)
}

func TestDispatchNoReceiversSkipsLookup(t *testing.T) {
	messenger := &fakeMessenger{}
	store := &fakePHI{err: errors.New("should not be called")}
	svc := newTestService(messenger, nil, store)

	svc.Dispatch(context.Background(), []*model.NetworkMember{
		member("ext-1", false),
	}, "New alert", "Mercy Clinic")

	assert.Empty(t, messenger.sent)
}

func TestDispatchSurvivesGatewayFailure(t *testing.T) {
	messenger := &fakeMessenger{fail: true}
	store := &fakePHI{records: map[string]*phi.Record{
		"ext-1": {ExternalID: "ext-1", Phone: "5550001", CellCountryCode: "+1"},
	}}
	svc := newTestService(messenger, nil, store)

	// Must not panic or error out; failures are logged only.
	svc.Dispatch(context.Background(), []*model.NetworkMember{
		member("ext-1", true),
	}, "New alert", "Mercy Clinic")

	assert.Empty(t, messenger.sent)
}

func TestDispatchSurvivesPHIFailure(t *testing.T) {
	messenger := &fakeMessenger{}
	store := &fakePHI{err: errors.New("store down")}
	svc := newTestService(messenger, nil, store)

	svc.Dispatch(context.Background(), []*model.NetworkMember{
		member("ext-1", true),
	}, "New alert", "Mercy Clinic")

	assert.Empty(t, messenger.sent)
}

func TestDispatchSkipsMissingPhone(t *testing.T) {
	messenger := &fakeMessenger{}
	emailSvc := &fakeEmail{}
	store := &fakePHI{records: map[string]*phi.Record{
		"ext-1": {ExternalID: "ext-1", Email: "doc@example.com"},
	}}
	svc := newTestService(messenger, emailSvc, store)

	svc.Dispatch(context.Background(), []*model.NetworkMember{
		member("ext-1", true),
	}, "New alert", "Mercy Clinic")

	assert.Empty(t, messenger.sent)
	assert.Equal(t, []string{"doc@example.com"}, emailSvc.sent)
}

func TestDispatchEmailOptional(t *testing.T) {
	messenger := &fakeMessenger{}
	store := &fakePHI{records: map[string]*phi.Record{
		"ext-1": {ExternalID: "ext-1", Phone: "5550001", CellCountryCode: "+1", Email: "doc@example.com"},
	}}
	svc := newTestService(messenger, nil, store)

	svc.Dispatch(context.Background(), []*model.NetworkMember{
		member("ext-1", true),
	}, "New alert", "")

	assert.Equal(t, []string{"+15550001"}, messenger.sent)
}
