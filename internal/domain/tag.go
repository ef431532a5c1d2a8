package domain

import (
	"context"
	"regexp"
	"strings"
	"time"
)

const (
	MaxTagNameLength = 20
	DefaultTagColor  = "#3B82F6"
)

var hexColorPattern = regexp.MustCompile(`^#([A-Fa-f0-9]{6}|[A-Fa-f0-9]{3})$`)

// TagColors is the palette offered to clients when picking a tag color
var TagColors = []string{
	"#3B82F6", // blue
	"#10B981", // emerald
	"#F59E0B", // amber
	"#EF4444", // red
	"#8B5CF6", // violet
	"#EC4899", // pink
	"#06B6D4", // cyan
	"#84CC16", // lime
	"#F97316", // orange
	"#6B7280", // gray
}

// Tag is a globally unique named label
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TagWithCount is a tag plus the number of notes carrying it
type TagWithCount struct {
	Tag
	NoteCount int `json:"noteCount"`
}

// TagUsage is a tag plus how many of one user's notes carry it
type TagUsage struct {
	Tag
	UsageCount int `json:"usageCount"`
}

// TagStats summarizes the registry
type TagStats struct {
	TotalTags  int `json:"totalTags"`
	UsedTags   int `json:"usedTags"`
	UnusedTags int `json:"unusedTags"`
}

// TagNameKey is the normalized form tag names are unique on.
func TagNameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidTagColor reports whether color is a #RGB or #RRGGBB hex string.
func ValidTagColor(color string) bool {
	return hexColorPattern.MatchString(color)
}

// TagSortField is a column tags can be ordered by
type TagSortField string

const (
	TagSortName      TagSortField = "name"
	TagSortCreatedAt TagSortField = "createdAt"
)

// Valid reports whether f is a known sort field.
func (f TagSortField) Valid() bool {
	return f == TagSortName || f == TagSortCreatedAt
}

// TagFilter narrows a tag listing. Limit zero returns every match.
type TagFilter struct {
	Search    string
	SortBy    TagSortField
	SortOrder SortOrder
	Limit     int
	Offset    int
}

// TagRepository defines data access for the tag registry
type TagRepository interface {
	Create(ctx context.Context, tag *Tag) error
	GetByID(ctx context.Context, id string) (*Tag, error)
	GetByName(ctx context.Context, name string) (*Tag, error)
	CountExisting(ctx context.Context, ids []string) (int, error)
	Update(ctx context.Context, tag *Tag) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter TagFilter) ([]TagWithCount, int, error)
	ListUsedBy(ctx context.Context, userID string, limit int) ([]TagUsage, error)
	Stats(ctx context.Context) (*TagStats, error)
}
