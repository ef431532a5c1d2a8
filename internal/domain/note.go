package domain

import (
	"context"
	"time"
)

const (
	MaxTagsPerNote   = 4
	MaxTitleLength   = 200
	MaxContentLength = 50000
)

// Note is a titled piece of text owned by exactly one user
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Archived  bool      `json:"archived"`
	UserID    string    `json:"userId"`
	Tags      []Tag     `json:"tags"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NoteSortField is a column notes can be ordered by
type NoteSortField string

const (
	NoteSortTitle     NoteSortField = "title"
	NoteSortCreatedAt NoteSortField = "createdAt"
	NoteSortUpdatedAt NoteSortField = "updatedAt"
)

// Valid reports whether f is a known sort field.
func (f NoteSortField) Valid() bool {
	switch f {
	case NoteSortTitle, NoteSortCreatedAt, NoteSortUpdatedAt:
		return true
	}
	return false
}

// NoteFilter narrows a note listing. Archived nil means both states.
type NoteFilter struct {
	Search    string
	TagID     string
	Archived  *bool
	SortBy    NoteSortField
	SortOrder SortOrder
	Limit     int
	Offset    int
}

// NoteStats summarizes one user's notes
type NoteStats struct {
	Total       int `json:"total"`
	Active      int `json:"active"`
	Archived    int `json:"archived"`
	WithTags    int `json:"withTags"`
	WithoutTags int `json:"withoutTags"`
	RecentCount int `json:"recentCount"`
}

// NoteRepository defines data access for notes and their tag links.
// Every note lookup is scoped by owner.
type NoteRepository interface {
	Create(ctx context.Context, note *Note) error
	GetByID(ctx context.Context, id, userID string) (*Note, error)
	// GetForUpdate loads the note row, locking it where the engine supports it. Tags are not loaded.
	GetForUpdate(ctx context.Context, id, userID string) (*Note, error)
	List(ctx context.Context, userID string, filter NoteFilter) ([]Note, int, error)
	Update(ctx context.Context, note *Note) error
	Delete(ctx context.Context, id, userID string) error
	AttachTag(ctx context.Context, noteID, tagID string) error
	DetachTag(ctx context.Context, noteID, tagID string) error
	ClearTags(ctx context.Context, noteID string) error
	CountTags(ctx context.Context, noteID string) (int, error)
	Stats(ctx context.Context, userID string, recentSince time.Time) (*NoteStats, error)
}
