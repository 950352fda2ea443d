package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/carelink/carelink-api/internal/model"
	"github.com/carelink/carelink-api/internal/repository"
)

type userRepository struct {
	BaseRepository
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func (r *userRepository) Get(ctx context.Context, id int64) (*model.User, error) {
	query := `
		SELECT id, external_id, user_type, degree, specialty, status, created_on, updated_on
		FROM users
		WHERE id = $1
	`
	var user model.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, fmt.Errorf("failed to get user %d: %w", id, err)
	}
	return &user, nil
}

func (r *userRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]*model.User, error) {
	if len(ids) == 0 {
		return map[int64]*model.User{}, nil
	}

	query := `
		SELECT id, external_id, user_type, degree, specialty, status, created_on, updated_on
		FROM users
		WHERE id = ANY($1)
	`
	var users []*model.User
	if err := sqlx.SelectContext(ctx, r.db, &users, query, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}

	out := make(map[int64]*model.User, len(users))
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}
