package service

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Knifucrab/mauro-zen-notes/internal/domain"
	"github.com/Knifucrab/mauro-zen-notes/internal/observability/metrics"
)

const (
	DefaultNotesLimit = 10
	MaxListLimit      = 50
	// RecentWindow bounds the recent count in note stats
	RecentWindow = 7 * 24 * time.Hour
)

// Archived filter values accepted by ListNotesQuery
const (
	ArchivedOnly   = "true"
	ArchivedActive = "false"
	ArchivedAll    = "all"
)

// NoteService applies ownership and tagging rules to notes
type NoteService struct {
	store  domain.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewNoteService creates a new note service
func NewNoteService(store domain.Store, logger *slog.Logger) *NoteService {
	if logger == nil {
		logger = slog.Default()
	}

	return &NoteService{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateNoteInput holds the fields of a new note
type CreateNoteInput struct {
	Title   string
	Content string
	TagIDs  []string
}

// UpdateNoteInput holds a partial update. Nil fields are left unchanged; a non-nil TagIDs replaces the tag set.
type UpdateNoteInput struct {
	Title   *string
	Content *string
	TagIDs  *[]string
}

// ListNotesQuery is the raw listing request before normalization
type ListNotesQuery struct {
	Page      int
	Limit     int
	Search    string
	TagID     string
	SortBy    string
	SortOrder string
	Archived  string
}

// Create stores a note and links its tags in one transaction
func (s *NoteService) Create(ctx context.Context, userID string, in CreateNoteInput) (*domain.Note, error) {
	note, err := s.create(ctx, userID, in)
	metrics.ObserveNoteOperation("create", metrics.Result(err))
	return note, err
}

func (s *NoteService) create(ctx context.Context, userID string, in CreateNoteInput) (*domain.Note, error) {
	title, err := normalizeTitle(in.Title)
	if err != nil {
		return nil, err
	}
	if err := validateContent(in.Content); err != nil {
		return nil, err
	}
	if err := validateTagIDs(in.TagIDs); err != nil {
		return nil, err
	}

	now := s.now()
	note := &domain.Note{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Content:   in.Content,
		Tags:      []domain.Tag{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	var created *domain.Note
	err = s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		if err := s.requireTags(ctx, tx, in.TagIDs); err != nil {
			return err
		}
		if err := tx.Notes().Create(ctx, note); err != nil {
			if errors.Is(err, domain.ErrReference) {
				return domain.NotFound("User not found")
			}
			return err
		}
		if err := s.attachAll(ctx, tx, note.ID, in.TagIDs); err != nil {
			return err
		}

		loaded, err := tx.Notes().GetByID(ctx, note.ID, userID)
		if err != nil {
			return err
		}
		created = loaded
		return nil
	})
	if err != nil {
		return nil, s.translate("failed to create note", err)
	}

	s.logger.Info("note created",
		slog.String("note_id", created.ID),
		slog.String("user_id", userID),
		slog.Int("tags", len(created.Tags)),
	)
	return created, nil
}

// Get returns an owned note with its tags
func (s *NoteService) Get(ctx context.Context, userID, noteID string) (*domain.Note, error) {
	if !validID(noteID) {
		return nil, domain.NotFound(msgNoteNotFound)
	}

	note, err := s.store.Notes().GetByID(ctx, noteID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.NotFound(msgNoteNotFound)
		}
		return nil, internalError(s.logger, "failed to get note", err)
	}
	return note, nil
}

// List returns one page of the caller's notes
func (s *NoteService) List(ctx context.Context, userID string, q ListNotesQuery) (*domain.Page[domain.Note], error) {
	filter, page, err := normalizeNoteQuery(q)
	if err != nil {
		return nil, err
	}
	if filter.TagID != "" && !validID(filter.TagID) {
		return emptyNotePage(page, filter.Limit), nil
	}

	notes, total, err := s.store.Notes().List(ctx, userID, filter)
	if err != nil {
		return nil, internalError(s.logger, "failed to list notes", err)
	}

	pagination := domain.NewPagination(page, filter.Limit, total)
	return &domain.Page[domain.Note]{Items: notes, Pagination: &pagination}, nil
}

// ListByTag lists the caller's notes carrying tagID. An unknown tag is NotFound.
func (s *NoteService) ListByTag(ctx context.Context, userID, tagID string, q ListNotesQuery) (*domain.Page[domain.Note], error) {
	if !validID(tagID) {
		return nil, domain.NotFound(msgTagNotFound)
	}
	if _, err := s.store.Tags().GetByID(ctx, tagID); err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			return nil, domain.NotFound(msgTagNotFound)
		}
		return nil, internalError(s.logger, "failed to get tag", err)
	}

	q.TagID = tagID
	return s.List(ctx, userID, q)
}

// Update applies a partial update to an owned note
func (s *NoteService) Update(ctx context.Context, userID, noteID string, in UpdateNoteInput) (*domain.Note, error) {
	note, err := s.update(ctx, userID, noteID, in)
	metrics.ObserveNoteOperation("update", metrics.Result(err))
	return note, err
}

func (s *NoteService) update(ctx context.Context, userID, noteID string, in UpdateNoteInput) (*domain.Note, error) {
	if !validID(noteID) {
		return nil, domain.NotFound(msgNoteNotFound)
	}

	var title string
	if in.Title != nil {
		t, err := normalizeTitle(*in.Title)
		if err != nil {
			return nil, err
		}
		title = t
	}
	if in.Content != nil {
		if err := validateContent(*in.Content); err != nil {
			return nil, err
		}
	}
	if in.TagIDs != nil {
		if err := validateTagIDs(*in.TagIDs); err != nil {
			return nil, err
		}
	}

	var updated *domain.Note
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		note, err := tx.Notes().GetForUpdate(ctx, noteID, userID)
		if err != nil {
			return err
		}

		if in.Title != nil {
			note.Title = title
		}
		if in.Content != nil {
			note.Content = *in.Content
		}
		note.UpdatedAt = s.now()
		if err := tx.Notes().Update(ctx, note); err != nil {
			return err
		}

		if in.TagIDs != nil {
			if err := s.requireTags(ctx, tx, *in.TagIDs); err != nil {
				return err
			}
			if err := tx.Notes().ClearTags(ctx, note.ID); err != nil {
				return err
			}
			if err := s.attachAll(ctx, tx, note.ID, *in.TagIDs); err != nil {
				return err
			}
		}

		updated, err = tx.Notes().GetByID(ctx, note.ID, userID)
		return err
	})
	if err != nil {
		return nil, s.translate("failed to update note", err)
	}

	s.logger.Info("note updated", slog.String("note_id", noteID), slog.String("user_id", userID))
	return updated, nil
}

// Delete removes an owned note
func (s *NoteService) Delete(ctx context.Context, userID, noteID string) error {
	err := s.delete(ctx, userID, noteID)
	metrics.ObserveNoteOperation("delete", metrics.Result(err))
	return err
}

func (s *NoteService) delete(ctx context.Context, userID, noteID string) error {
	if !validID(noteID) {
		return domain.NotFound(msgNoteNotFound)
	}

	if err := s.store.Notes().Delete(ctx, noteID, userID); err != nil {
		return s.translate("failed to delete note", err)
	}

	s.logger.Info("note deleted", slog.String("note_id", noteID), slog.String("user_id", userID))
	return nil
}

// AddTag attaches an existing tag to an owned note
func (s *NoteService) AddTag(ctx context.Context, userID, noteID, tagID string) (*domain.Note, error) {
	note, err := s.addTag(ctx, userID, noteID, tagID)
	metrics.ObserveNoteOperation("add_tag", metrics.Result(err))
	return note, err
}

func (s *NoteService) addTag(ctx context.Context, userID, noteID, tagID string) (*domain.Note, error) {
	if !validID(noteID) {
		return nil, domain.NotFound(msgNoteNotFound)
	}
	if !validID(tagID) {
		return nil, domain.NotFound(msgTagNotFound)
	}

	var updated *domain.Note
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		note, err := tx.Notes().GetForUpdate(ctx, noteID, userID)
		if err != nil {
			return err
		}
		if _, err := tx.Tags().GetByID(ctx, tagID); err != nil {
			if errors.Is(err, domain.ErrRecordNotFound) {
				return domain.NotFound(msgTagNotFound)
			}
			return err
		}

		count, err := tx.Notes().CountTags(ctx, note.ID)
		if err != nil {
			return err
		}
		if count >= domain.MaxTagsPerNote {
			return domain.Validation(msgTooManyTags)
		}

		if err := tx.Notes().AttachTag(ctx, note.ID, tagID); err != nil {
			switch {
			case errors.Is(err, domain.ErrDuplicate):
				return domain.Conflict("Tag already added to this note")
			case errors.Is(err, domain.ErrReference):
				return domain.NotFound(msgTagNotFound)
			}
			return err
		}

		note.UpdatedAt = s.now()
		if err := tx.Notes().Update(ctx, note); err != nil {
			return err
		}

		updated, err = tx.Notes().GetByID(ctx, note.ID, userID)
		return err
	})
	if err != nil {
		return nil, s.translate("failed to add tag to note", err)
	}

	s.logger.Info("tag added to note",
		slog.String("note_id", noteID),
		slog.String("tag_id", tagID),
		slog.String("user_id", userID),
	)
	return updated, nil
}

// RemoveTag detaches a tag from an owned note
func (s *NoteService) RemoveTag(ctx context.Context, userID, noteID, tagID string) (*domain.Note, error) {
	note, err := s.removeTag(ctx, userID, noteID, tagID)
	metrics.ObserveNoteOperation("remove_tag", metrics.Result(err))
	return note, err
}

func (s *NoteService) removeTag(ctx context.Context, userID, noteID, tagID string) (*domain.Note, error) {
	if !validID(noteID) {
		return nil, domain.NotFound(msgNoteNotFound)
	}
	notAssociated := domain.Validation("Tag is not associated with this note")
	if !validID(tagID) {
		return nil, notAssociated
	}

	var updated *domain.Note
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		note, err := tx.Notes().GetForUpdate(ctx, noteID, userID)
		if err != nil {
			return err
		}

		if err := tx.Notes().DetachTag(ctx, note.ID, tagID); err != nil {
			if errors.Is(err, domain.ErrRecordNotFound) {
				return notAssociated
			}
			return err
		}

		note.UpdatedAt = s.now()
		if err := tx.Notes().Update(ctx, note); err != nil {
			return err
		}

		updated, err = tx.Notes().GetByID(ctx, note.ID, userID)
		return err
	})
	if err != nil {
		return nil, s.translate("failed to remove tag from note", err)
	}

	s.logger.Info("tag removed from note",
		slog.String("note_id", noteID),
		slog.String("tag_id", tagID),
		slog.String("user_id", userID),
	)
	return updated, nil
}

// SetArchived moves an owned note into or out of the archive. Repeating the current state is a Conflict.
func (s *NoteService) SetArchived(ctx context.Context, userID, noteID string, archived bool) (*domain.Note, error) {
	note, err := s.setArchived(ctx, userID, noteID, archived)
	op := "archive"
	if !archived {
		op = "unarchive"
	}
	metrics.ObserveNoteOperation(op, metrics.Result(err))
	return note, err
}

func (s *NoteService) setArchived(ctx context.Context, userID, noteID string, archived bool) (*domain.Note, error) {
	if !validID(noteID) {
		return nil, domain.NotFound(msgNoteNotFound)
	}

	var updated *domain.Note
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		note, err := tx.Notes().GetForUpdate(ctx, noteID, userID)
		if err != nil {
			return err
		}

		if note.Archived == archived {
			if archived {
				return domain.Conflict("Note is already archived")
			}
			return domain.Conflict("Note is not archived")
		}

		note.Archived = archived
		note.UpdatedAt = s.now()
		if err := tx.Notes().Update(ctx, note); err != nil {
			return err
		}

		updated, err = tx.Notes().GetByID(ctx, note.ID, userID)
		return err
	})
	if err != nil {
		return nil, s.translate("failed to change archive state", err)
	}

	s.logger.Info("note archive state changed",
		slog.String("note_id", noteID),
		slog.Bool("archived", archived),
	)
	return updated, nil
}

// Stats summarizes the caller's notes
func (s *NoteService) Stats(ctx context.Context, userID string) (*domain.NoteStats, error) {
	stats, err := s.store.Notes().Stats(ctx, userID, s.now().Add(-RecentWindow))
	if err != nil {
		return nil, internalError(s.logger, "failed to compute note stats", err)
	}
	return stats, nil
}

// requireTags fails NotFound unless every id names an existing tag
func (s *NoteService) requireTags(ctx context.Context, tx domain.Repositories, tagIDs []string) error {
	if len(tagIDs) == 0 {
		return nil
	}
	for _, id := range tagIDs {
		if !validID(id) {
			return domain.NotFound(msgTagsNotFound)
		}
	}

	count, err := tx.Tags().CountExisting(ctx, tagIDs)
	if err != nil {
		return err
	}
	if count != len(tagIDs) {
		return domain.NotFound(msgTagsNotFound)
	}
	return nil
}

func (s *NoteService) attachAll(ctx context.Context, tx domain.Repositories, noteID string, tagIDs []string) error {
	for _, tagID := range tagIDs {
		if err := tx.Notes().AttachTag(ctx, noteID, tagID); err != nil {
			if errors.Is(err, domain.ErrReference) {
				return domain.NotFound(msgTagsNotFound)
			}
			return err
		}
	}
	return nil
}

// translate maps repository sentinels to note errors and keeps domain errors as they are
func (s *NoteService) translate(msg string, err error) error {
	var de *domain.Error
	switch {
	case errors.As(err, &de):
		return de
	case errors.Is(err, domain.ErrRecordNotFound):
		return domain.NotFound(msgNoteNotFound)
	}
	return internalError(s.logger, msg, err)
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", domain.Validation("Title is required")
	}
	if utf8.RuneCountInString(title) > domain.MaxTitleLength {
		return "", domain.Validation("Title must be at most 200 characters")
	}
	return title, nil
}

func validateContent(content string) error {
	if utf8.RuneCountInString(content) > domain.MaxContentLength {
		return domain.Validation("Content must be at most 50000 characters")
	}
	return nil
}

func validateTagIDs(tagIDs []string) error {
	if len(tagIDs) > domain.MaxTagsPerNote {
		return domain.Validation(msgTooManyTags)
	}
	seen := make(map[string]struct{}, len(tagIDs))
	for _, id := range tagIDs {
		if _, ok := seen[id]; ok {
			return domain.Validation("Duplicate tag IDs are not allowed")
		}
		seen[id] = struct{}{}
	}
	return nil
}

func normalizeNoteQuery(q ListNotesQuery) (domain.NoteFilter, int, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	switch {
	case limit <= 0:
		limit = DefaultNotesLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}

	sortBy := domain.NoteSortUpdatedAt
	if q.SortBy != "" {
		sortBy = domain.NoteSortField(q.SortBy)
		if !sortBy.Valid() {
			return domain.NoteFilter{}, 0, domain.Validation("sortBy must be one of title, createdAt, updatedAt")
		}
	}
	sortOrder := domain.SortDesc
	if q.SortOrder != "" {
		sortOrder = domain.SortOrder(strings.ToLower(q.SortOrder))
		if !sortOrder.Valid() {
			return domain.NoteFilter{}, 0, domain.Validation("sortOrder must be asc or desc")
		}
	}

	var archived *bool
	switch strings.ToLower(q.Archived) {
	case "", ArchivedActive:
		v := false
		archived = &v
	case ArchivedOnly:
		v := true
		archived = &v
	case ArchivedAll:
	default:
		return domain.NoteFilter{}, 0, domain.Validation("archived must be true, false or all")
	}

	offset, err := pageOffset(page, limit)
	if err != nil {
		return domain.NoteFilter{}, 0, err
	}

	return domain.NoteFilter{
		Search:    strings.TrimSpace(q.Search),
		TagID:     strings.TrimSpace(q.TagID),
		Archived:  archived,
		SortBy:    sortBy,
		SortOrder: sortOrder,
		Limit:     limit,
		Offset:    offset,
	}, page, nil
}

// pageOffset returns the row offset of page, rejecting pages whose offset does not fit in an int
func pageOffset(page, limit int) (int, error) {
	if page-1 > math.MaxInt/limit {
		return 0, domain.Validation(msgPageTooLarge)
	}
	return (page - 1) * limit, nil
}

func emptyNotePage(page, limit int) *domain.Page[domain.Note] {
	pagination := domain.NewPagination(page, limit, 0)
	return &domain.Page[domain.Note]{Items: []domain.Note{}, Pagination: &pagination}
}
