package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"caseTasks/internal/logger"
	"caseTasks/internal/models/user"
	repo "caseTasks/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type Storage struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool}
}

func (s *Storage) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	start := time.Now()

	query := `SELECT uuid, name, email, kind FROM users WHERE uuid = $1`

	u := &user.User{}
	err := s.pool.QueryRow(ctx, query, id).Scan(&u.UUID, &u.Name, &u.Email, &u.Kind)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repo.ErrNotFound
		}
		logger.Error("Repository: reading user", err, zap.Duration("ms", time.Since(start)))
		return nil, fmt.Errorf("reading user: %w", err)
	}

	if time.Since(start) > 50*time.Millisecond {
		logger.Warn("Repository: slow query", zap.String("op", "user_get"), zap.Duration("ms", time.Since(start)))
	}
	return u, nil
}

// Upsert inserts u or replaces the stored name, email and kind. Used when seeding.
func (s *Storage) Upsert(ctx context.Context, u user.User) error {
	query := `INSERT INTO users (uuid, name, email, kind)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (uuid) DO UPDATE
				SET name = EXCLUDED.name, email = EXCLUDED.email, kind = EXCLUDED.kind`

	if _, err := s.pool.Exec(ctx, query, u.UUID, u.Name, u.Email, u.Kind); err != nil {
		logger.Error("Repository: upserting user", err, zap.String("user_id", u.UUID.String()))
		return fmt.Errorf("upserting user: %w", err)
	}
	return nil
}
