package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Knifucrab/mauro-zen-notes/internal/domain"
	"github.com/Knifucrab/mauro-zen-notes/pkg/database"
)

// UserRepository implements domain.UserRepository over database/sql
type UserRepository struct {
	q       database.Querier
	dialect database.Dialect
	logger  *slog.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(q database.Querier, dialect database.Dialect, logger *slog.Logger) *UserRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &UserRepository{
		q:       q,
		dialect: dialect,
		logger:  logger,
	}
}

// Create inserts a new user. A taken username yields domain.ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	query := r.dialect.Rebind(`
		INSERT INTO users (id, username, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`)

	_, err := r.q.ExecContext(ctx, query,
		user.ID,
		user.Username,
		user.PasswordHash,
		r.dialect.TimeArg(user.CreatedAt),
		r.dialect.TimeArg(user.UpdatedAt),
	)
	if err != nil {
		if r.dialect.IsUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		r.logger.Error("failed to create user",
			slog.String("username", user.Username),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT id, username, password_hash, created_at, updated_at FROM users WHERE id = ?`, id)
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT id, username, password_hash, created_at, updated_at FROM users WHERE username = ?`, username)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg string) (*domain.User, error) {
	user := &domain.User{}
	var createdAt, updatedAt database.Timestamp

	err := r.q.QueryRowContext(ctx, r.dialect.Rebind(query), arg).Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.CreatedAt = createdAt.Time
	user.UpdatedAt = updatedAt.Time
	return user, nil
}

// UpdatePassword replaces a user's password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	query := r.dialect.Rebind(`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`)

	result, err := r.q.ExecContext(ctx, query, passwordHash, r.dialect.TimeArg(updatedAt), id)
	if err != nil {
		r.logger.Error("failed to update password",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to update password: %w", err)
	}

	return expectAffected(result)
}

func expectAffected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrRecordNotFound
	}
	return nil
}
