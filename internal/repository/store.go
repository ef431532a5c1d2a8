package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Knifucrab/mauro-zen-notes/internal/domain"
	"github.com/Knifucrab/mauro-zen-notes/pkg/database"
)

// Store implements domain.Store on a connection pool
type Store struct {
	db      *sql.DB
	dialect database.Dialect
	logger  *slog.Logger
	tracer  trace.Tracer
	repos
}

type repos struct {
	users *UserRepository
	notes *NoteRepository
	tags  *TagRepository
}

func newRepos(q database.Querier, dialect database.Dialect, logger *slog.Logger) repos {
	return repos{
		users: NewUserRepository(q, dialect, logger),
		notes: NewNoteRepository(q, dialect, logger),
		tags:  NewTagRepository(q, dialect, logger),
	}
}

func (r repos) Users() domain.UserRepository { return r.users }
func (r repos) Notes() domain.NoteRepository { return r.notes }
func (r repos) Tags() domain.TagRepository   { return r.tags }

// NewStore creates a store backed by the pool
func NewStore(pool *database.ConnectionPool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		db:      pool.GetDB(),
		dialect: pool.Dialect(),
		logger:  logger,
		tracer:  otel.Tracer("github.com/Knifucrab/mauro-zen-notes/internal/repository"),
		repos:   newRepos(pool.GetDB(), pool.Dialect(), logger),
	}
}

// WithinTx runs fn against repositories bound to one transaction
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.Repositories) error) (err error) {
	ctx, span := s.tracer.Start(ctx, "db.transaction")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		span.SetStatus(codes.Error, "begin failed")
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(newRepos(tx, s.dialect, s.logger)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("failed to roll back transaction", slog.String("error", rbErr.Error()))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "rolled back")
		return err
	}

	if err := tx.Commit(); err != nil {
		span.SetStatus(codes.Error, "commit failed")
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
