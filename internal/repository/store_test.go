package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Knifucrab/mauro-zen-notes/internal/domain"
	"github.com/Knifucrab/mauro-zen-notes/pkg/database/dbtest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(dbtest.New(t), nil)
}

func seedUser(t *testing.T, s *Store, username string) *domain.User {
	t.Helper()
	now := time.Now().UTC()
	u := &domain.User{ID: uuid.NewString(), Username: username, PasswordHash: "hash", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func seedTag(t *testing.T, s *Store, name string) *domain.Tag {
	t.Helper()
	now := time.Now().UTC()
	tag := &domain.Tag{ID: uuid.NewString(), Name: name, Color: domain.DefaultTagColor, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.Tags().Create(context.Background(), tag))
	return tag
}

func seedNote(t *testing.T, s *Store, userID, title, content string, at time.Time) *domain.Note {
	t.Helper()
	n := &domain.Note{ID: uuid.NewString(), UserID: userID, Title: title, Content: content, CreatedAt: at, UpdatedAt: at}
	require.NoError(t, s.Notes().Create(context.Background(), n))
	return n
}

func TestUserRepository(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")

	got, err := s.Users().GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)
	assert.WithinDuration(t, alice.CreatedAt, got.CreatedAt, time.Microsecond)

	dup := &domain.User{ID: uuid.NewString(), Username: "alice", PasswordHash: "x", CreatedAt: time.Now(), UpdatedAt: time.Now()}
	assert.ErrorIs(t, s.Users().Create(ctx, dup), domain.ErrDuplicate)

	_, err = s.Users().GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)

	require.NoError(t, s.Users().UpdatePassword(ctx, alice.ID, "new-hash", time.Now()))
	got, err = s.Users().GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)

	assert.ErrorIs(t, s.Users().UpdatePassword(ctx, uuid.NewString(), "h", time.Now()), domain.ErrRecordNotFound)
}

func TestTagRepositoryUniqueIgnoresCase(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	work := seedTag(t, s, "Work")

	now := time.Now()
	err := s.Tags().Create(ctx, &domain.Tag{ID: uuid.NewString(), Name: "work", Color: "#fff", CreatedAt: now, UpdatedAt: now})
	assert.ErrorIs(t, err, domain.ErrDuplicate)

	got, err := s.Tags().GetByName(ctx, "WORK")
	require.NoError(t, err)
	assert.Equal(t, work.ID, got.ID)
	assert.Equal(t, "Work", got.Name)

	home := seedTag(t, s, "Home")
	home.Name = "wOrK"
	assert.ErrorIs(t, s.Tags().Update(ctx, home), domain.ErrDuplicate)

	stats, err := s.Tags().Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalTags)
	assert.Equal(t, 0, stats.UsedTags)
}

func TestTagRepositoryListAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	u := seedUser(t, s, "alice")
	alpha := seedTag(t, s, "alpha")
	seedTag(t, s, "beta")
	seedTag(t, s, "100%")

	n := seedNote(t, s, u.ID, "a", "", time.Now())
	require.NoError(t, s.Notes().AttachTag(ctx, n.ID, alpha.ID))

	tags, total, err := s.Tags().List(ctx, domain.TagFilter{SortBy: domain.TagSortName, SortOrder: domain.SortAsc})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, tags, 3)
	assert.Equal(t, []string{"100%", "alpha", "beta"}, []string{tags[0].Name, tags[1].Name, tags[2].Name})
	assert.Equal(t, 1, tags[1].NoteCount)

	tags, total, err = s.Tags().List(ctx, domain.TagFilter{Search: "%"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "100%", tags[0].Name)

	tags, total, err = s.Tags().List(ctx, domain.TagFilter{SortOrder: domain.SortDesc, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, tags, 1)
	assert.Equal(t, "alpha", tags[0].Name)

	usage, err := s.Tags().ListUsedBy(ctx, u.ID, 10)
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, 1, usage[0].UsageCount)

	require.NoError(t, s.Tags().Delete(ctx, alpha.ID))
	count, err := s.Notes().CountTags(ctx, n.ID)
	require.NoError(t, err)
	assert.Zero(t, count, "deleting a tag drops its links")

	_, err = s.Notes().GetByID(ctx, n.ID, u.ID)
	assert.NoError(t, err, "deleting a tag keeps the note")

	assert.ErrorIs(t, s.Tags().Delete(ctx, alpha.ID), domain.ErrRecordNotFound)
}

func TestNoteRepositoryOwnershipAndTags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	tag := seedTag(t, s, "home")

	n := seedNote(t, s, alice.ID, "Groceries", "milk", time.Now())

	_, err := s.Notes().GetByID(ctx, n.ID, bob.ID)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	assert.ErrorIs(t, s.Notes().Delete(ctx, n.ID, bob.ID), domain.ErrRecordNotFound)

	require.NoError(t, s.Notes().AttachTag(ctx, n.ID, tag.ID))
	assert.ErrorIs(t, s.Notes().AttachTag(ctx, n.ID, tag.ID), domain.ErrDuplicate)
	assert.ErrorIs(t, s.Notes().AttachTag(ctx, n.ID, uuid.NewString()), domain.ErrReference)

	got, err := s.Notes().GetByID(ctx, n.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Groceries", got.Title)
	assert.Equal(t, "milk", got.Content)
	assert.False(t, got.Archived)
	require.Len(t, got.Tags, 1)
	assert.Equal(t, tag.ID, got.Tags[0].ID)

	require.NoError(t, s.Notes().DetachTag(ctx, n.ID, tag.ID))
	assert.ErrorIs(t, s.Notes().DetachTag(ctx, n.ID, tag.ID), domain.ErrRecordNotFound)

	got.Archived = true
	got.UpdatedAt = time.Now()
	require.NoError(t, s.Notes().Update(ctx, got))
	locked, err := s.Notes().GetForUpdate(ctx, n.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, locked.Archived)

	require.NoError(t, s.Notes().Delete(ctx, n.ID, alice.ID))
	_, err = s.Notes().GetByID(ctx, n.ID, alice.ID)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestNoteRepositoryList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	bob := seedUser(t, s, "bob")
	tag := seedTag(t, s, "work")

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	first := seedNote(t, s, alice.ID, "Banana bread", "flour", base)
	second := seedNote(t, s, alice.ID, "apple pie", "Butter 50%", base.Add(time.Minute))
	third := seedNote(t, s, alice.ID, "Cherry", "", base.Add(2*time.Minute))
	seedNote(t, s, bob.ID, "Bob's banana", "", base)
	require.NoError(t, s.Notes().AttachTag(ctx, second.ID, tag.ID))

	third.Archived = true
	require.NoError(t, s.Notes().Update(ctx, third))

	notes, total, err := s.Notes().List(ctx, alice.ID, domain.NoteFilter{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{third.ID, second.ID, first.ID}, noteIDs(notes), "default is updatedAt desc")

	notes, _, err = s.Notes().List(ctx, alice.ID, domain.NoteFilter{SortBy: domain.NoteSortTitle, SortOrder: domain.SortAsc, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID, first.ID, third.ID}, noteIDs(notes), "title sort ignores case")

	notes, total, err = s.Notes().List(ctx, alice.ID, domain.NoteFilter{Search: "BANANA", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, []string{first.ID}, noteIDs(notes))

	notes, _, err = s.Notes().List(ctx, alice.ID, domain.NoteFilter{Search: "50%", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, noteIDs(notes), "search matches content")

	notes, _, err = s.Notes().List(ctx, alice.ID, domain.NoteFilter{TagID: tag.ID, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, []string{second.ID}, noteIDs(notes))
	assert.Len(t, notes[0].Tags, 1)

	archived := false
	notes, total, err = s.Notes().List(ctx, alice.ID, domain.NoteFilter{Archived: &archived, Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{first.ID}, noteIDs(notes))

	stats, err := s.Notes().Stats(ctx, alice.ID, base.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, domain.NoteStats{Total: 3, Active: 2, Archived: 1, WithTags: 1, WithoutTags: 2, RecentCount: 2}, *stats)
}

func TestWithinTxRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := seedUser(t, s, "alice")
	boom := errors.New("boom")

	var noteID string
	err := s.WithinTx(ctx, func(tx domain.Repositories) error {
		n := &domain.Note{ID: uuid.NewString(), UserID: alice.ID, Title: "draft", CreatedAt: time.Now(), UpdatedAt: time.Now()}
		noteID = n.ID
		if err := tx.Notes().Create(ctx, n); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Notes().GetByID(ctx, noteID, alice.ID)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)

	err = s.WithinTx(ctx, func(tx domain.Repositories) error {
		return tx.Notes().Create(ctx, &domain.Note{ID: noteID, UserID: alice.ID, Title: "kept", CreatedAt: time.Now(), UpdatedAt: time.Now()})
	})
	require.NoError(t, err)
	_, err = s.Notes().GetByID(ctx, noteID, alice.ID)
	assert.NoError(t, err)
}

func noteIDs(notes []domain.Note) []string {
	ids := make([]string, len(notes))
	for i, n := range notes {
		ids[i] = n.ID
	}
	return ids
}
