package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/carelink/carelink-api/internal/model"
	"github.com/carelink/carelink-api/internal/repository"
)

type symptomHistoryRepository struct {
	BaseRepository
}

func NewSymptomHistoryRepository(base BaseRepository) repository.SymptomHistoryRepository {
	return &symptomHistoryRepository{base}
}

// Latest fetches the single most recent submission of a category for the
// patient at or before now. Callers apply the 48h window themselves.
func (r *symptomHistoryRepository) Latest(ctx context.Context, category string, patientID int64, now time.Time) (*model.SymptomRecord, error) {
	query := `
		SELECT id, patient_id, medical_data_type, payload, submitted_on
		FROM symptom_submissions
		WHERE patient_id = $1 AND medical_data_type = $2 AND submitted_on <= $3
		ORDER BY submitted_on DESC
		LIMIT 1
	`

	var row struct {
		ID        int64           `db:"id"`
		PatientID int64           `db:"patient_id"`
		Category  string          `db:"medical_data_type"`
		Payload   json.RawMessage `db:"payload"`
		At        time.Time       `db:"submitted_on"`
	}
	if err := r.db.GetContext(ctx, &row, query, patientID, category, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up %s history for patient %d: %w", category, patientID, err)
	}

	rec := &model.SymptomRecord{
		ID:        row.ID,
		PatientID: row.PatientID,
		Category:  row.Category,
		At:        row.At,
	}
	if err := json.Unmarshal(row.Payload, &rec.Payload); err != nil {
		return nil, fmt.Errorf("malformed symptom payload for submission %d: %w", row.ID, err)
	}
	return rec, nil
}
