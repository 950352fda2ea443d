package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/carelink/carelink-api/internal/model"
	"github.com/carelink/carelink-api/internal/repository"
)

type networkRepository struct {
	BaseRepository
}

func NewNetworkRepository(base BaseRepository) repository.NetworkRepository {
	return &networkRepository{base}
}

// ListNetwork joins network edges against users and restricts to members
// sharing an active organization with the patient. Providers sort before
// caregivers, then user id ascending, so fan-out order is stable.
func (r *networkRepository) ListNetwork(ctx context.Context, patientID int64) ([]*model.NetworkMember, error) {
	query := `
		SELECT
			u.id AS user_id,
			CASE WHEN u.user_type = 'caregiver' THEN 'caregiver' ELSE 'provider' END AS role,
			u.external_id,
			ne.alert_receiver,
			u.degree
		FROM network_edges ne
		JOIN users u ON u.id = ne.user_id
		WHERE ne.patient_id = $1
		  AND u.status = 'active'
		  AND EXISTS (
			SELECT 1
			FROM organization_members om_u
			JOIN organization_members om_p
			  ON om_p.organization_id = om_u.organization_id
			WHERE om_u.user_id = u.id AND om_p.user_id = $1
		  )
		ORDER BY
			CASE WHEN u.user_type = 'caregiver' THEN 1 ELSE 0 END ASC,
			u.id ASC
	`

	var members []*model.NetworkMember
	if err := r.db.SelectContext(ctx, &members, query, patientID); err != nil {
		return nil, fmt.Errorf("failed to list network for patient %d: %w", patientID, err)
	}
	return members, nil
}

func (r *networkRepository) SharedOrganization(ctx context.Context, userID, patientID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM organization_members a
			JOIN organization_members b ON b.organization_id = a.organization_id
			WHERE a.user_id = $1 AND b.user_id = $2
		)
	`
	var shared bool
	if err := r.db.GetContext(ctx, &shared, query, userID, patientID); err != nil {
		return false, fmt.Errorf("failed to check shared organization: %w", err)
	}
	return shared, nil
}

func (r *networkRepository) PrimaryOrganization(ctx context.Context, patientID int64) (*model.Organization, error) {
	query := `
		SELECT o.id, o.name, o.status, o.created_on, o.updated_on
		FROM organizations o
		JOIN organization_members om ON om.organization_id = o.id
		WHERE om.user_id = $1 AND o.status = 'active'
		ORDER BY o.id ASC
		LIMIT 1
	`
	var org model.Organization
	if err := r.db.GetContext(ctx, &org, query, patientID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("no organization for patient %d: %w", patientID, err)
		}
		return nil, fmt.Errorf("failed to resolve organization for patient %d: %w", patientID, err)
	}
	return &org, nil
}
