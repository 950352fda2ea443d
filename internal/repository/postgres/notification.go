package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/carelink/carelink-api/internal/model"
	"github.com/carelink/carelink-api/internal/repository"
)

// One table per stream; shared columns plus per-stream discriminators.
var streamTables = map[model.Stream]struct {
	name          string
	discriminator []string
}{
	model.StreamSymptoms:     {"symptom_notifications", []string{"medical_data_type", "medical_data_id"}},
	model.StreamMessages:     {"message_notifications", []string{"message_id", "channel_name", "sender_id", "receiver_id"}},
	model.StreamRemoteVitals: {"remote_vital_notifications", []string{"remote_vital_id"}},
	model.StreamCareTeam:     {"care_team_notifications", []string{"ct_member_id"}},
	model.StreamMedications:  {"medication_notifications", []string{"medication_row_id"}},
}

var sharedColumns = []string{
	"origin_event_id", "level", "notification_details", "notification_status",
	"notifier_id", "subject_id", "created_on", "created_by", "updated_on", "updated_by",
}

type notificationRepository struct {
	BaseRepository
}

func NewNotificationRepository(base BaseRepository) repository.NotificationRepository {
	return &notificationRepository{base}
}

func discriminatorArgs(stream model.Stream, n *model.Notification) []interface{} {
	switch stream {
	case model.StreamSymptoms:
		return []interface{}{n.MedicalDataType, n.MedicalDataID}
	case model.StreamMessages:
		return []interface{}{n.MessageID, n.ChannelName, n.SenderID, n.ReceiverID}
	case model.StreamRemoteVitals:
		return []interface{}{n.RemoteVitalID}
	case model.StreamCareTeam:
		return []interface{}{n.CareTeamUserID}
	case model.StreamMedications:
		return []interface{}{n.MedicationRowID}
	}
	return nil
}

func insertQuery(stream model.Stream) string {
	t := streamTables[stream]
	cols := append(append([]string{}, sharedColumns...), t.discriminator...)

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	return fmt.Sprintf(
		`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (origin_event_id, notifier_id) DO NOTHING`,
		t.name, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
	)
}

func (r *notificationRepository) InsertFanout(ctx context.Context, stream model.Stream, rows []*model.Notification, outbox *model.OutboxEvent) (int, error) {
	if _, ok := streamTables[stream]; !ok {
		return 0, fmt.Errorf("unknown stream %q", stream)
	}

	query := insertQuery(stream)
	inserted := 0

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, n := range rows {
			args := []interface{}{
				n.OriginEventID, n.Level, n.Details, n.Status,
				n.NotifierID, n.SubjectID, n.CreatedAt, n.CreatedBy, n.UpdatedAt, n.UpdatedBy,
			}
			args = append(args, discriminatorArgs(stream, n)...)

			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("failed to insert %s notification: %w", stream, err)
			}
			if count, err := res.RowsAffected(); err == nil {
				inserted += int(count)
			}
		}

		if outbox != nil && inserted > 0 {
			insertOutbox := `
				INSERT INTO outbox_events (id, event_type, payload, status, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6)
			`
			if _, err := tx.ExecContext(ctx, insertOutbox,
				outbox.ID, outbox.EventType, outbox.Payload, outbox.Status,
				outbox.CreatedAt, outbox.UpdatedAt,
			); err != nil {
				return fmt.Errorf("failed to insert outbox event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

func selectColumns(stream model.Stream) string {
	t := streamTables[stream]
	cols := append([]string{"id"}, sharedColumns...)
	cols = append(cols, t.discriminator...)
	return strings.Join(cols, ", ")
}

func (r *notificationRepository) Get(ctx context.Context, stream model.Stream, id int64) (*model.Notification, error) {
	t, ok := streamTables[stream]
	if !ok {
		return nil, fmt.Errorf("unknown stream %q", stream)
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, selectColumns(stream), t.name)

	var n model.Notification
	if err := r.db.GetContext(ctx, &n, query, id); err != nil {
		return nil, fmt.Errorf("failed to get %s notification %d: %w", stream, id, err)
	}
	n.Stream = stream
	return &n, nil
}

func (r *notificationRepository) List(ctx context.Context, stream model.Stream, notifierID int64, filter *model.ListFilter) ([]*model.Notification, error) {
	t, ok := streamTables[stream]
	if !ok {
		return nil, fmt.Errorf("unknown stream %q", stream)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `SELECT %s FROM %s WHERE notifier_id = $1`, selectColumns(stream), t.name)
	args := []interface{}{notifierID}

	if filter != nil {
		if filter.Status != nil {
			args = append(args, *filter.Status)
			fmt.Fprintf(&sb, " AND notification_status = $%d", len(args))
		}
		if filter.From != nil {
			args = append(args, *filter.From)
			fmt.Fprintf(&sb, " AND created_on >= $%d", len(args))
		}
		if filter.To != nil {
			args = append(args, *filter.To)
			fmt.Fprintf(&sb, " AND created_on < $%d", len(args))
		}
	}
	sb.WriteString(" ORDER BY created_on DESC")

	var rows []*model.Notification
	if err := r.db.SelectContext(ctx, &rows, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("failed to list %s notifications: %w", stream, err)
	}
	for _, n := range rows {
		n.Stream = stream
	}
	return rows, nil
}

func (r *notificationRepository) UpdateStatus(ctx context.Context, stream model.Stream, id int64, status int, updatedBy int64, updatedAt time.Time) error {
	t, ok := streamTables[stream]
	if !ok {
		return fmt.Errorf("unknown stream %q", stream)
	}

	query := fmt.Sprintf(
		`UPDATE %s SET notification_status = $1, updated_on = $2, updated_by = $3 WHERE id = $4`,
		t.name,
	)
	res, err := r.db.ExecContext(ctx, query, status, updatedAt, updatedBy, id)
	if err != nil {
		return fmt.Errorf("failed to update %s notification %d: %w", stream, id, err)
	}
	if count, err := res.RowsAffected(); err == nil && count == 0 {
		return fmt.Errorf("notification %d not found in %s", id, t.name)
	}
	return nil
}

func (r *notificationRepository) SeveritySnapshot(ctx context.Context, notifierID int64, subjectID *int64) ([]*model.SeverityCell, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT subject_id, medical_data_type, MAX(level) AS max_level
		FROM symptom_notifications
		WHERE notifier_id = $1 AND notification_status = 1`)
	args := []interface{}{notifierID}

	if subjectID != nil {
		args = append(args, *subjectID)
		fmt.Fprintf(&sb, " AND subject_id = $%d", len(args))
	}
	sb.WriteString(" GROUP BY subject_id, medical_data_type ORDER BY subject_id ASC")

	var cells []*model.SeverityCell
	if err := r.db.SelectContext(ctx, &cells, sb.String(), args...); err != nil {
		return nil, fmt.Errorf("failed to aggregate severity snapshot: %w", err)
	}
	return cells, nil
}
