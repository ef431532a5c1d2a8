package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Knifucrab/mauro-zen-notes/internal/domain"
	"github.com/Knifucrab/mauro-zen-notes/pkg/database"
)

const noteColumns = `n.id, n.user_id, n.title, n.content, n.archived, n.created_at, n.updated_at`

// NoteRepository implements domain.NoteRepository over database/sql
type NoteRepository struct {
	q       database.Querier
	dialect database.Dialect
	logger  *slog.Logger
}

// NewNoteRepository creates a new note repository
func NewNoteRepository(q database.Querier, dialect database.Dialect, logger *slog.Logger) *NoteRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &NoteRepository{
		q:       q,
		dialect: dialect,
		logger:  logger,
	}
}

func scanNote(row rowScanner) (domain.Note, error) {
	var note domain.Note
	var createdAt, updatedAt database.Timestamp

	if err := row.Scan(&note.ID, &note.UserID, &note.Title, &note.Content, &note.Archived, &createdAt, &updatedAt); err != nil {
		return domain.Note{}, err
	}

	note.CreatedAt = createdAt.Time
	note.UpdatedAt = updatedAt.Time
	note.Tags = []domain.Tag{}
	return note, nil
}

// Create inserts the note row. Tag links are attached separately.
func (r *NoteRepository) Create(ctx context.Context, note *domain.Note) error {
	query := r.dialect.Rebind(`
		INSERT INTO notes (id, user_id, title, content, archived, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.q.ExecContext(ctx, query,
		note.ID,
		note.UserID,
		note.Title,
		note.Content,
		note.Archived,
		r.dialect.TimeArg(note.CreatedAt),
		r.dialect.TimeArg(note.UpdatedAt),
	)
	if err != nil {
		if r.dialect.IsForeignKeyViolation(err) {
			return domain.ErrReference
		}
		r.logger.Error("failed to create note",
			slog.String("user_id", note.UserID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create note: %w", err)
	}

	return nil
}

// GetByID retrieves an owned note with its tags
func (r *NoteRepository) GetByID(ctx context.Context, id, userID string) (*domain.Note, error) {
	note, err := r.getOne(ctx, `SELECT `+noteColumns+` FROM notes n WHERE n.id = ? AND n.user_id = ?`, id, userID)
	if err != nil {
		return nil, err
	}

	notes := []domain.Note{*note}
	if err := r.loadTags(ctx, notes); err != nil {
		return nil, err
	}
	return &notes[0], nil
}

// GetForUpdate retrieves an owned note row, locked until the surrounding transaction ends
func (r *NoteRepository) GetForUpdate(ctx context.Context, id, userID string) (*domain.Note, error) {
	return r.getOne(ctx, `SELECT `+noteColumns+` FROM notes n WHERE n.id = ? AND n.user_id = ?`+r.dialect.ForUpdate(), id, userID)
}

func (r *NoteRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Note, error) {
	note, err := scanNote(r.q.QueryRowContext(ctx, r.dialect.Rebind(query), args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return &note, nil
}

// List returns one page of a user's notes plus the total number of matches
func (r *NoteRepository) List(ctx context.Context, userID string, filter domain.NoteFilter) ([]domain.Note, int, error) {
	conditions := []string{"n.user_id = ?"}
	args := []any{userID}

	if filter.Archived != nil {
		conditions = append(conditions, "n.archived = ?")
		args = append(args, *filter.Archived)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		pattern := "%" + database.EscapeLike(strings.ToLower(s)) + "%"
		conditions = append(conditions, `(`+r.dialect.Lower("n.title")+` LIKE ? ESCAPE '\' OR `+r.dialect.Lower("n.content")+` LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern)
	}
	if filter.TagID != "" {
		conditions = append(conditions, "EXISTS (SELECT 1 FROM note_tags f WHERE f.note_id = n.id AND f.tag_id = ?)")
		args = append(args, filter.TagID)
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.q.QueryRowContext(ctx, r.dialect.Rebind(`SELECT COUNT(*) FROM notes n`+where), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count notes: %w", err)
	}

	query := `SELECT ` + noteColumns + ` FROM notes n` + where + ` ORDER BY ` + noteOrderBy(r.dialect, filter)
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.q.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list notes: %w", err)
	}

	notes := []domain.Note{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, 0, fmt.Errorf("failed to iterate notes: %w", err)
	}
	// Release the connection before the tag query.
	rows.Close()

	if err := r.loadTags(ctx, notes); err != nil {
		return nil, 0, err
	}
	return notes, total, nil
}

func noteOrderBy(dialect database.Dialect, filter domain.NoteFilter) string {
	dir := "DESC"
	if filter.SortOrder == domain.SortAsc {
		dir = "ASC"
	}
	column := "n.updated_at"
	switch filter.SortBy {
	case domain.NoteSortTitle:
		column = dialect.Lower("n.title")
	case domain.NoteSortCreatedAt:
		column = "n.created_at"
	}
	return column + " " + dir + ", n.id " + dir
}

// loadTags fills Tags on each note with one query
func (r *NoteRepository) loadTags(ctx context.Context, notes []domain.Note) error {
	if len(notes) == 0 {
		return nil
	}

	index := make(map[string]int, len(notes))
	ids := make([]string, len(notes))
	for i := range notes {
		index[notes[i].ID] = i
		ids[i] = notes[i].ID
	}

	query := r.dialect.Rebind(`SELECT ` + tagColumns + `, nt.note_id
		FROM note_tags nt
		JOIN tags t ON t.id = nt.tag_id
		WHERE nt.note_id IN (` + placeholders(len(ids)) + `)
		ORDER BY t.name_key ASC`)

	rows, err := r.q.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return fmt.Errorf("failed to load note tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var noteID string
		tag, err := scanTag(rows, &noteID)
		if err != nil {
			return fmt.Errorf("failed to scan note tag: %w", err)
		}
		if i, ok := index[noteID]; ok {
			notes[i].Tags = append(notes[i].Tags, tag)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate note tags: %w", err)
	}
	return nil
}

// Update writes title, content, archived and updated_at of an owned note
func (r *NoteRepository) Update(ctx context.Context, note *domain.Note) error {
	query := r.dialect.Rebind(`
		UPDATE notes SET title = ?, content = ?, archived = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`)

	result, err := r.q.ExecContext(ctx, query,
		note.Title,
		note.Content,
		note.Archived,
		r.dialect.TimeArg(note.UpdatedAt),
		note.ID,
		note.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}

	return expectAffected(result)
}

// Delete removes an owned note and its tag links
func (r *NoteRepository) Delete(ctx context.Context, id, userID string) error {
	result, err := r.q.ExecContext(ctx, r.dialect.Rebind(`DELETE FROM notes WHERE id = ? AND user_id = ?`), id, userID)
	if err != nil {
		r.logger.Error("failed to delete note",
			slog.String("note_id", id),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to delete note: %w", err)
	}

	return expectAffected(result)
}

// AttachTag links a tag to a note. An existing link yields domain.ErrDuplicate,
// a vanished note or tag yields domain.ErrReference.
func (r *NoteRepository) AttachTag(ctx context.Context, noteID, tagID string) error {
	query := r.dialect.Rebind(`INSERT INTO note_tags (note_id, tag_id, created_at) VALUES (?, ?, ?)`)

	if _, err := r.q.ExecContext(ctx, query, noteID, tagID, r.dialect.TimeArg(time.Now())); err != nil {
		switch {
		case r.dialect.IsUniqueViolation(err):
			return domain.ErrDuplicate
		case r.dialect.IsForeignKeyViolation(err):
			return domain.ErrReference
		}
		return fmt.Errorf("failed to attach tag: %w", err)
	}
	return nil
}

// DetachTag removes a link. A missing link yields domain.ErrRecordNotFound.
func (r *NoteRepository) DetachTag(ctx context.Context, noteID, tagID string) error {
	result, err := r.q.ExecContext(ctx, r.dialect.Rebind(`DELETE FROM note_tags WHERE note_id = ? AND tag_id = ?`), noteID, tagID)
	if err != nil {
		return fmt.Errorf("failed to detach tag: %w", err)
	}

	return expectAffected(result)
}

// ClearTags removes every link of a note
func (r *NoteRepository) ClearTags(ctx context.Context, noteID string) error {
	if _, err := r.q.ExecContext(ctx, r.dialect.Rebind(`DELETE FROM note_tags WHERE note_id = ?`), noteID); err != nil {
		return fmt.Errorf("failed to clear note tags: %w", err)
	}
	return nil
}

// CountTags returns how many tags a note carries
func (r *NoteRepository) CountTags(ctx context.Context, noteID string) (int, error) {
	var count int
	if err := r.q.QueryRowContext(ctx, r.dialect.Rebind(`SELECT COUNT(*) FROM note_tags WHERE note_id = ?`), noteID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count note tags: %w", err)
	}
	return count, nil
}

// Stats summarizes a user's notes. recentSince bounds the recent count.
func (r *NoteRepository) Stats(ctx context.Context, userID string, recentSince time.Time) (*domain.NoteStats, error) {
	stats := &domain.NoteStats{}

	counts := []struct {
		dest  *int
		query string
		args  []any
	}{
		{&stats.Total, `SELECT COUNT(*) FROM notes WHERE user_id = ?`, []any{userID}},
		{&stats.Archived, `SELECT COUNT(*) FROM notes WHERE user_id = ? AND archived = ?`, []any{userID, true}},
		{&stats.WithTags, `SELECT COUNT(*) FROM notes n WHERE n.user_id = ? AND EXISTS (SELECT 1 FROM note_tags nt WHERE nt.note_id = n.id)`, []any{userID}},
		{&stats.RecentCount, `SELECT COUNT(*) FROM notes WHERE user_id = ? AND created_at >= ?`, []any{userID, r.dialect.TimeArg(recentSince)}},
	}
	for _, c := range counts {
		if err := r.q.QueryRowContext(ctx, r.dialect.Rebind(c.query), c.args...).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to compute note stats: %w", err)
		}
	}

	stats.Active = stats.Total - stats.Archived
	stats.WithoutTags = stats.Total - stats.WithTags
	return stats, nil
}
