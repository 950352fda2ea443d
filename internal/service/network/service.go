package network

import (
	"context"
	"fmt"

	"github.com/carelink/carelink-api/internal/model"
	"github.com/carelink/carelink-api/internal/repository"
)

// Service resolves the care network around a patient. It owns the
// caregiver masking rule: caregiver edges always come back with
// alert_receiver false, so no downstream component can dispatch to one.
type Service interface {
	Resolve(ctx context.Context, patientID int64, includeCaregivers bool) ([]*model.NetworkMember, error)
	IsMember(ctx context.Context, userID, patientID int64) (bool, error)
}

type service struct {
	repo repository.NetworkRepository
}

func NewService(repo repository.NetworkRepository) Service {
	return &service{repo: repo}
}

func (s *service) Resolve(ctx context.Context, patientID int64, includeCaregivers bool) ([]*model.NetworkMember, error) {
	members, err := s.repo.ListNetwork(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve network: %w", err)
	}

	out := make([]*model.NetworkMember, 0, len(members))
	for _, m := range members {
		if m.Role == model.NetworkRoleCaregiver {
			if !includeCaregivers {
				continue
			}
			m.AlertReceiver = false
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *service) IsMember(ctx context.Context, userID, patientID int64) (bool, error) {
	members, err := s.repo.ListNetwork(ctx, patientID)
	if err != nil {
		return false, fmt.Errorf("failed to resolve network: %w", err)
	}
	for _, m := range members {
		if m.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}
