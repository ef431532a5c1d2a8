package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Knifucrab/mauro-zen-notes/internal/domain"
	"github.com/Knifucrab/mauro-zen-notes/pkg/database"
)

const tagColumns = `t.id, t.name, t.color, t.created_at, t.updated_at`

// TagRepository implements domain.TagRepository over database/sql
type TagRepository struct {
	q       database.Querier
	dialect database.Dialect
	logger  *slog.Logger
}

// NewTagRepository creates a new tag repository
func NewTagRepository(q database.Querier, dialect database.Dialect, logger *slog.Logger) *TagRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &TagRepository{
		q:       q,
		dialect: dialect,
		logger:  logger,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTag(row rowScanner, extra ...any) (domain.Tag, error) {
	var tag domain.Tag
	var createdAt, updatedAt database.Timestamp

	dest := append([]any{&tag.ID, &tag.Name, &tag.Color, &createdAt, &updatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Tag{}, err
	}

	tag.CreatedAt = createdAt.Time
	tag.UpdatedAt = updatedAt.Time
	return tag, nil
}

// Create inserts a tag. A name colliding case-insensitively yields domain.ErrDuplicate.
func (r *TagRepository) Create(ctx context.Context, tag *domain.Tag) error {
	query := r.dialect.Rebind(`
		INSERT INTO tags (id, name, name_key, color, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)

	_, err := r.q.ExecContext(ctx, query,
		tag.ID,
		tag.Name,
		domain.TagNameKey(tag.Name),
		tag.Color,
		r.dialect.TimeArg(tag.CreatedAt),
		r.dialect.TimeArg(tag.UpdatedAt),
	)
	if err != nil {
		if r.dialect.IsUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		r.logger.Error("failed to create tag",
			slog.String("name", tag.Name),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create tag: %w", err)
	}

	return nil
}

// GetByID retrieves a tag by ID
func (r *TagRepository) GetByID(ctx context.Context, id string) (*domain.Tag, error) {
	return r.getOne(ctx, `SELECT `+tagColumns+` FROM tags t WHERE t.id = ?`, id)
}

// GetByName retrieves a tag by name, ignoring case
func (r *TagRepository) GetByName(ctx context.Context, name string) (*domain.Tag, error) {
	return r.getOne(ctx, `SELECT `+tagColumns+` FROM tags t WHERE t.name_key = ?`, domain.TagNameKey(name))
}

func (r *TagRepository) getOne(ctx context.Context, query, arg string) (*domain.Tag, error) {
	tag, err := scanTag(r.q.QueryRowContext(ctx, r.dialect.Rebind(query), arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get tag: %w", err)
	}
	return &tag, nil
}

// CountExisting returns how many of ids name an existing tag
func (r *TagRepository) CountExisting(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query := r.dialect.Rebind(`SELECT COUNT(*) FROM tags WHERE id IN (` + placeholders(len(ids)) + `)`)

	var count int
	if err := r.q.QueryRowContext(ctx, query, stringArgs(ids)...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tags: %w", err)
	}
	return count, nil
}

// Update writes a tag's name and color
func (r *TagRepository) Update(ctx context.Context, tag *domain.Tag) error {
	query := r.dialect.Rebind(`UPDATE tags SET name = ?, name_key = ?, color = ?, updated_at = ? WHERE id = ?`)

	result, err := r.q.ExecContext(ctx, query,
		tag.Name,
		domain.TagNameKey(tag.Name),
		tag.Color,
		r.dialect.TimeArg(tag.UpdatedAt),
		tag.ID,
	)
	if err != nil {
		if r.dialect.IsUniqueViolation(err) {
			return domain.ErrDuplicate
		}
		return fmt.Errorf("failed to update tag: %w", err)
	}

	return expectAffected(result)
}

// Delete removes a tag. Its note links go with it.
func (r *TagRepository) Delete(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, r.dialect.Rebind(`DELETE FROM tags WHERE id = ?`), id)
	if err != nil {
		r.logger.Error("failed to delete tag",
			slog.String("tag_id", id),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to delete tag: %w", err)
	}

	return expectAffected(result)
}

// List returns one page of tags with their note counts plus the total number of matches
func (r *TagRepository) List(ctx context.Context, filter domain.TagFilter) ([]domain.TagWithCount, int, error) {
	where := ""
	var args []any
	if s := strings.TrimSpace(filter.Search); s != "" {
		where = ` WHERE t.name_key LIKE ? ESCAPE '\'`
		args = append(args, "%"+database.EscapeLike(strings.ToLower(s))+"%")
	}

	var total int
	if err := r.q.QueryRowContext(ctx, r.dialect.Rebind(`SELECT COUNT(*) FROM tags t`+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tags: %w", err)
	}

	query := `SELECT ` + tagColumns + `, COUNT(nt.note_id) AS note_count
		FROM tags t
		LEFT JOIN note_tags nt ON nt.tag_id = t.id` + where + `
		GROUP BY ` + tagColumns + `
		ORDER BY ` + tagOrderBy(filter)
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.q.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tags: %w", err)
	}
	defer rows.Close()

	tags := []domain.TagWithCount{}
	for rows.Next() {
		var count int
		tag, err := scanTag(rows, &count)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, domain.TagWithCount{Tag: tag, NoteCount: count})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate tags: %w", err)
	}

	return tags, total, nil
}

func tagOrderBy(filter domain.TagFilter) string {
	dir := "ASC"
	if filter.SortOrder == domain.SortDesc {
		dir = "DESC"
	}
	column := "t.name_key"
	if filter.SortBy == domain.TagSortCreatedAt {
		column = "t.created_at"
	}
	return column + " " + dir + ", t.id " + dir
}

// ListUsedBy returns the tags on a user's notes, most used first
func (r *TagRepository) ListUsedBy(ctx context.Context, userID string, limit int) ([]domain.TagUsage, error) {
	query := `SELECT ` + tagColumns + `, COUNT(*) AS usage_count
		FROM tags t
		JOIN note_tags nt ON nt.tag_id = t.id
		JOIN notes n ON n.id = nt.note_id
		WHERE n.user_id = ?
		GROUP BY ` + tagColumns + `, t.name_key
		ORDER BY usage_count DESC, t.name_key ASC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.q.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list used tags: %w", err)
	}
	defer rows.Close()

	usage := []domain.TagUsage{}
	for rows.Next() {
		var count int
		tag, err := scanTag(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		usage = append(usage, domain.TagUsage{Tag: tag, UsageCount: count})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate used tags: %w", err)
	}

	return usage, nil
}

// Stats counts tags and how many are attached to at least one note
func (r *TagRepository) Stats(ctx context.Context) (*domain.TagStats, error) {
	stats := &domain.TagStats{}

	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags`).Scan(&stats.TotalTags); err != nil {
		return nil, fmt.Errorf("failed to count tags: %w", err)
	}
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(DISTINCT tag_id) FROM note_tags`).Scan(&stats.UsedTags); err != nil {
		return nil, fmt.Errorf("failed to count used tags: %w", err)
	}

	stats.UnusedTags = stats.TotalTags - stats.UsedTags
	return stats, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
