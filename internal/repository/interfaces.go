package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink-api/internal/model"
)

// All repository interfaces in one file
type (
	// NotificationRepository owns the five per-stream notification tables.
	NotificationRepository interface {
		// InsertFanout writes one notification row per recipient in a
		// single transaction; duplicates on (origin, notifier) are
		// silently absorbed. The outbox event, when non-nil, commits in
		// the same transaction. Returns the number of rows inserted.
		InsertFanout(ctx context.Context, stream model.Stream, rows []*model.Notification, outbox *model.OutboxEvent) (int, error)
		Get(ctx context.Context, stream model.Stream, id int64) (*model.Notification, error)
		List(ctx context.Context, stream model.Stream, notifierID int64, filter *model.ListFilter) ([]*model.Notification, error)
		UpdateStatus(ctx context.Context, stream model.Stream, id int64, status int, updatedBy int64, updatedAt time.Time) error
		SeveritySnapshot(ctx context.Context, notifierID int64, subjectID *int64) ([]*model.SeverityCell, error)
	}

	// NetworkRepository resolves patients' care networks and the tenancy
	// checks around them.
	NetworkRepository interface {
		// ListNetwork returns providers then caregivers, user id
		// ascending, restricted to users active in an organization the
		// patient belongs to.
		ListNetwork(ctx context.Context, patientID int64) ([]*model.NetworkMember, error)
		SharedOrganization(ctx context.Context, userID, patientID int64) (bool, error)
		// PrimaryOrganization names the patient's first organization for
		// out-of-band message composition.
		PrimaryOrganization(ctx context.Context, patientID int64) (*model.Organization, error)
	}

	// UserRepository is the read-side view of the externally owned user
	// tables; this service never writes them.
	UserRepository interface {
		Get(ctx context.Context, id int64) (*model.User, error)
		GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.User, error)
	}

	// SymptomHistoryRepository backs the classifier's cross-stream
	// temporal lookups.
	SymptomHistoryRepository interface {
		// Latest returns the most recent submission of category for the
		// patient at or before now, or nil when none exists.
		Latest(ctx context.Context, category string, patientID int64, now time.Time) (*model.SymptomRecord, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// ClaimPending atomically flips a batch of due events to
		// processing and returns them, oldest first. Concurrent
		// claimers skip each other's rows; processing rows whose
		// worker died are reclaimed after a grace period.
		ClaimPending(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkProcessed(ctx context.Context, id uuid.UUID) error
		MarkRetry(ctx context.Context, id uuid.UUID, errMsg string, retryAt time.Time) error
		// DeadLetter moves an exhausted event to the dead-letter table
		// and removes it from the outbox, atomically.
		DeadLetter(ctx context.Context, event *model.OutboxEvent, errMsg string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
