package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Knifucrab/mauro-zen-notes/internal/domain"
	"github.com/Knifucrab/mauro-zen-notes/internal/observability/metrics"
)

const (
	DefaultTagsLimit = 20
	// MyTagsLimit caps the per-user tag usage listing
	MyTagsLimit = 50
)

const msgTagExists = "Tag with this name already exists"

// TagService manages the global tag registry
type TagService struct {
	store  domain.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewTagService creates a new tag service
func NewTagService(store domain.Store, logger *slog.Logger) *TagService {
	if logger == nil {
		logger = slog.Default()
	}

	return &TagService{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// CreateTagInput holds the fields of a new tag. An empty color picks the default.
type CreateTagInput struct {
	Name  string
	Color string
}

// UpdateTagInput holds a partial tag update
type UpdateTagInput struct {
	Name  *string
	Color *string
}

// ListTagsQuery is the raw listing request. Page and Limit both zero return every tag.
type ListTagsQuery struct {
	Page      int
	Limit     int
	Search    string
	SortBy    string
	SortOrder string
}

// Create registers a tag under a name not yet taken, ignoring case
func (s *TagService) Create(ctx context.Context, in CreateTagInput) (*domain.Tag, error) {
	tag, err := s.create(ctx, in)
	metrics.ObserveTagOperation("create", metrics.Result(err))
	return tag, err
}

func (s *TagService) create(ctx context.Context, in CreateTagInput) (*domain.Tag, error) {
	name, err := normalizeTagName(in.Name)
	if err != nil {
		return nil, err
	}
	color := strings.TrimSpace(in.Color)
	if color == "" {
		color = domain.DefaultTagColor
	} else if !domain.ValidTagColor(color) {
		return nil, domain.Validation("Color must be a valid hex color")
	}

	if _, err := s.store.Tags().GetByName(ctx, name); err == nil {
		return nil, domain.Conflict(msgTagExists)
	} else if !errors.Is(err, domain.ErrRecordNotFound) {
		return nil, internalError(s.logger, "failed to look up tag name", err)
	}

	now := s.now()
	tag := &domain.Tag{
		ID:        uuid.NewString(),
		Name:      name,
		Color:     color,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Tags().Create(ctx, tag); err != nil {
		if errors.Is(err, domain.ErrDuplicate) {
			return nil, domain.Conflict(msgTagExists)
		}
		return nil, internalError(s.logger, "failed to create tag", err)
	}

	s.logger.Info("tag created", slog.String("tag_id", tag.ID), slog.String("name", tag.Name))
	return tag, nil
}

// Get returns a tag by id
func (s *TagService) Get(ctx context.Context, id string) (*domain.Tag, error) {
	if !validID(id) {
		return nil, domain.NotFound(msgTagNotFound)
	}
	tag, err := s.store.Tags().GetByID(ctx, id)
	if err != nil {
		return nil, s.translate("failed to get tag", err)
	}
	return tag, nil
}

// GetByName returns a tag by name, ignoring case
func (s *TagService) GetByName(ctx context.Context, name string) (*domain.Tag, error) {
	tag, err := s.store.Tags().GetByName(ctx, name)
	if err != nil {
		return nil, s.translate("failed to get tag", err)
	}
	return tag, nil
}

// Update renames or recolors a tag
func (s *TagService) Update(ctx context.Context, id string, in UpdateTagInput) (*domain.Tag, error) {
	tag, err := s.update(ctx, id, in)
	metrics.ObserveTagOperation("update", metrics.Result(err))
	return tag, err
}

func (s *TagService) update(ctx context.Context, id string, in UpdateTagInput) (*domain.Tag, error) {
	if !validID(id) {
		return nil, domain.NotFound(msgTagNotFound)
	}

	var name, color string
	if in.Name != nil {
		n, err := normalizeTagName(*in.Name)
		if err != nil {
			return nil, err
		}
		name = n
	}
	if in.Color != nil {
		color = strings.TrimSpace(*in.Color)
		if !domain.ValidTagColor(color) {
			return nil, domain.Validation("Color must be a valid hex color")
		}
	}

	var updated *domain.Tag
	err := s.store.WithinTx(ctx, func(tx domain.Repositories) error {
		tag, err := tx.Tags().GetByID(ctx, id)
		if err != nil {
			return err
		}

		if in.Name != nil {
			existing, err := tx.Tags().GetByName(ctx, name)
			switch {
			case err == nil && existing.ID != tag.ID:
				return domain.Conflict(msgTagExists)
			case err != nil && !errors.Is(err, domain.ErrRecordNotFound):
				return err
			}
			tag.Name = name
		}
		if in.Color != nil {
			tag.Color = color
		}
		tag.UpdatedAt = s.now()

		if err := tx.Tags().Update(ctx, tag); err != nil {
			if errors.Is(err, domain.ErrDuplicate) {
				return domain.Conflict(msgTagExists)
			}
			return err
		}
		updated = tag
		return nil
	})
	if err != nil {
		return nil, s.translate("failed to update tag", err)
	}

	s.logger.Info("tag updated", slog.String("tag_id", id))
	return updated, nil
}

// Delete removes a tag and detaches it from every note
func (s *TagService) Delete(ctx context.Context, id string) error {
	err := s.delete(ctx, id)
	metrics.ObserveTagOperation("delete", metrics.Result(err))
	return err
}

func (s *TagService) delete(ctx context.Context, id string) error {
	if !validID(id) {
		return domain.NotFound(msgTagNotFound)
	}
	if err := s.store.Tags().Delete(ctx, id); err != nil {
		return s.translate("failed to delete tag", err)
	}

	s.logger.Info("tag deleted", slog.String("tag_id", id))
	return nil
}

// List returns tags with their note counts. Without page or limit every tag is returned.
func (s *TagService) List(ctx context.Context, q ListTagsQuery) (*domain.Page[domain.TagWithCount], error) {
	filter, page, err := normalizeTagQuery(q)
	if err != nil {
		return nil, err
	}

	tags, total, err := s.store.Tags().List(ctx, filter)
	if err != nil {
		return nil, internalError(s.logger, "failed to list tags", err)
	}

	result := &domain.Page[domain.TagWithCount]{Items: tags}
	if filter.Limit > 0 {
		pagination := domain.NewPagination(page, filter.Limit, total)
		result.Pagination = &pagination
	}
	return result, nil
}

// Colors returns the suggested tag palette
func (s *TagService) Colors() []string {
	return append([]string(nil), domain.TagColors...)
}

// MyTags returns the tags used on the caller's notes, most used first
func (s *TagService) MyTags(ctx context.Context, userID string) ([]domain.TagUsage, error) {
	usage, err := s.store.Tags().ListUsedBy(ctx, userID, MyTagsLimit)
	if err != nil {
		return nil, internalError(s.logger, "failed to list used tags", err)
	}
	return usage, nil
}

// Stats summarizes the registry
func (s *TagService) Stats(ctx context.Context) (*domain.TagStats, error) {
	stats, err := s.store.Tags().Stats(ctx)
	if err != nil {
		return nil, internalError(s.logger, "failed to compute tag stats", err)
	}
	return stats, nil
}

func (s *TagService) translate(msg string, err error) error {
	var de *domain.Error
	switch {
	case errors.As(err, &de):
		return de
	case errors.Is(err, domain.ErrRecordNotFound):
		return domain.NotFound(msgTagNotFound)
	}
	return internalError(s.logger, msg, err)
}

func normalizeTagName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", domain.Validation("Tag name is required")
	}
	if utf8.RuneCountInString(name) > domain.MaxTagNameLength {
		return "", domain.Validation("Tag name must be at most 20 characters")
	}
	return name, nil
}

func normalizeTagQuery(q ListTagsQuery) (domain.TagFilter, int, error) {
	sortBy := domain.TagSortName
	if q.SortBy != "" {
		sortBy = domain.TagSortField(q.SortBy)
		if !sortBy.Valid() {
			return domain.TagFilter{}, 0, domain.Validation("sortBy must be one of name, createdAt")
		}
	}
	sortOrder := domain.SortAsc
	if q.SortOrder != "" {
		sortOrder = domain.SortOrder(strings.ToLower(q.SortOrder))
		if !sortOrder.Valid() {
			return domain.TagFilter{}, 0, domain.Validation("sortOrder must be asc or desc")
		}
	}

	filter := domain.TagFilter{
		Search:    strings.TrimSpace(q.Search),
		SortBy:    sortBy,
		SortOrder: sortOrder,
	}
	if q.Page <= 0 && q.Limit <= 0 {
		return filter, 0, nil
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	switch {
	case limit <= 0:
		limit = DefaultTagsLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	offset, err := pageOffset(page, limit)
	if err != nil {
		return domain.TagFilter{}, 0, err
	}
	filter.Limit = limit
	filter.Offset = offset
	return filter, page, nil
}
