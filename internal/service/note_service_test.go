package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Knifucrab/mauro-zen-notes/internal/domain"
	"github.com/Knifucrab/mauro-zen-notes/internal/repository"
	"github.com/Knifucrab/mauro-zen-notes/pkg/database/dbtest"
)

type fixture struct {
	store *repository.Store
	notes *NoteService
	tags  *TagService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewStore(dbtest.New(t), nil)
	return &fixture{
		store: store,
		notes: NewNoteService(store, nil),
		tags:  NewTagService(store, nil),
	}
}

func (f *fixture) user(t *testing.T, username string) string {
	t.Helper()
	now := time.Now().UTC()
	u := &domain.User{ID: uuid.NewString(), Username: username, PasswordHash: "hash", CreatedAt: now, UpdatedAt: now}
	if err := f.store.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u.ID
}

func (f *fixture) tag(t *testing.T, name string) *domain.Tag {
	t.Helper()
	tag, err := f.tags.Create(context.Background(), CreateTagInput{Name: name})
	if err != nil {
		t.Fatalf("create tag %s: %v", name, err)
	}
	return tag
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")

	created, err := f.notes.Create(ctx, owner, CreateNoteInput{Title: "A", Content: "B"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := f.notes.Get(ctx, owner, created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Title != "A" || got.Content != "B" || got.Archived || len(got.Tags) != 0 || got.Tags == nil {
		t.Fatalf("unexpected note %+v", got)
	}
}

func TestCreateValidatesInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	tag := f.tag(t, "Home")

	cases := map[string]struct {
		in   CreateNoteInput
		kind domain.Kind
	}{
		"blank title":    {CreateNoteInput{Title: "   "}, domain.KindValidation},
		"long title":     {CreateNoteInput{Title: strings.Repeat("t", 201)}, domain.KindValidation},
		"duplicate tags": {CreateNoteInput{Title: "x", TagIDs: []string{tag.ID, tag.ID}}, domain.KindValidation},
		"unknown tag":    {CreateNoteInput{Title: "x", TagIDs: []string{tag.ID, uuid.NewString()}}, domain.KindNotFound},
		"malformed tag":  {CreateNoteInput{Title: "x", TagIDs: []string{"nope"}}, domain.KindNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := f.notes.Create(ctx, owner, tc.in); domain.KindOf(err) != tc.kind {
				t.Fatalf("expected %s, got %v", tc.kind, err)
			}
		})
	}

	page, err := f.notes.List(ctx, owner, ListNotesQuery{Archived: ArchivedAll})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if page.Pagination.Total != 0 {
		t.Fatalf("expected no notes persisted, got %d", page.Pagination.Total)
	}
}

func TestCreateWithFiveTagsPersistsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")

	var ids []string
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		ids = append(ids, f.tag(t, name).ID)
	}

	_, err := f.notes.Create(ctx, owner, CreateNoteInput{Title: "Too many", TagIDs: ids})
	de := domain.AsError(err)
	if de.Kind != domain.KindValidation || de.Message != "Maximum 4 tags allowed per note" {
		t.Fatalf("expected tag cap error, got %v", err)
	}

	stats, err := f.notes.Stats(ctx, owner)
	if err != nil || stats.Total != 0 {
		t.Fatalf("expected no notes, got %+v %v", stats, err)
	}
}

func TestCreateWithTagsLinksThem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	work, home := f.tag(t, "Work"), f.tag(t, "Home")

	note, err := f.notes.Create(ctx, owner, CreateNoteInput{Title: "Tagged", TagIDs: []string{work.ID, home.ID}})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if len(note.Tags) != 2 || note.Tags[0].Name != "Home" || note.Tags[1].Name != "Work" {
		t.Fatalf("expected tags ordered by name, got %+v", note.Tags)
	}
}

func TestOwnershipHidesOtherUsersNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice, bob := f.user(t, "alice"), f.user(t, "bob")
	tag := f.tag(t, "Work")

	note, err := f.notes.Create(ctx, alice, CreateNoteInput{Title: "private"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := f.notes.Get(ctx, bob, note.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for other owner, got %v", err)
	}
	title := "stolen"
	if _, err := f.notes.Update(ctx, bob, note.ID, UpdateNoteInput{Title: &title}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on update, got %v", err)
	}
	if _, err := f.notes.AddTag(ctx, bob, note.ID, tag.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on add tag, got %v", err)
	}
	if _, err := f.notes.SetArchived(ctx, bob, note.ID, true); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on archive, got %v", err)
	}
	if err := f.notes.Delete(ctx, bob, note.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on delete, got %v", err)
	}
	if _, err := f.notes.Get(ctx, alice, "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for malformed id, got %v", err)
	}

	page, err := f.notes.List(ctx, bob, ListNotesQuery{Archived: ArchivedAll})
	if err != nil || len(page.Items) != 0 {
		t.Fatalf("expected empty listing for bob, got %+v %v", page, err)
	}
}

func TestUpdateNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	work, home := f.tag(t, "Work"), f.tag(t, "Home")

	note, err := f.notes.Create(ctx, owner, CreateNoteInput{Title: "Old", Content: "body", TagIDs: []string{work.ID}})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	empty := "  "
	if _, err := f.notes.Update(ctx, owner, note.ID, UpdateNoteInput{Title: &empty}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation for empty title, got %v", err)
	}

	title := " New "
	tags := []string{home.ID}
	updated, err := f.notes.Update(ctx, owner, note.ID, UpdateNoteInput{Title: &title, TagIDs: &tags})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Title != "New" || updated.Content != "body" {
		t.Fatalf("unexpected fields %+v", updated)
	}
	if len(updated.Tags) != 1 || updated.Tags[0].ID != home.ID {
		t.Fatalf("expected tags replaced, got %+v", updated.Tags)
	}
	if !updated.UpdatedAt.After(note.UpdatedAt) && !updated.UpdatedAt.Equal(note.UpdatedAt) {
		t.Fatalf("updatedAt went backwards")
	}

	bad := []string{home.ID, uuid.NewString()}
	if _, err := f.notes.Update(ctx, owner, note.ID, UpdateNoteInput{TagIDs: &bad}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown tag, got %v", err)
	}
	got, _ := f.notes.Get(ctx, owner, note.ID)
	if len(got.Tags) != 1 || got.Tags[0].ID != home.ID {
		t.Fatalf("failed update must not touch tags, got %+v", got.Tags)
	}
}

func TestAddAndRemoveTag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	note, err := f.notes.Create(ctx, owner, CreateNoteInput{Title: "Groceries", Content: "milk"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	home, err := f.tags.Create(ctx, CreateTagInput{Name: "Home", Color: "#112233"})
	if err != nil {
		t.Fatalf("create tag failed: %v", err)
	}

	tagged, err := f.notes.AddTag(ctx, owner, note.ID, home.ID)
	if err != nil {
		t.Fatalf("add tag failed: %v", err)
	}
	if len(tagged.Tags) != 1 || tagged.Tags[0].Color != "#112233" {
		t.Fatalf("expected one tag, got %+v", tagged.Tags)
	}

	if _, err := f.notes.AddTag(ctx, owner, note.ID, home.ID); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on second add, got %v", err)
	}
	if _, err := f.notes.AddTag(ctx, owner, note.ID, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown tag, got %v", err)
	}

	untagged, err := f.notes.RemoveTag(ctx, owner, note.ID, home.ID)
	if err != nil {
		t.Fatalf("remove tag failed: %v", err)
	}
	if len(untagged.Tags) != 0 {
		t.Fatalf("expected no tags, got %+v", untagged.Tags)
	}

	_, err = f.notes.RemoveTag(ctx, owner, note.ID, home.ID)
	de := domain.AsError(err)
	if de.Kind != domain.KindValidation || de.Message != "Tag is not associated with this note" {
		t.Fatalf("expected not associated, got %v", err)
	}
}

func TestAddTagEnforcesCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	note, _ := f.notes.Create(ctx, owner, CreateNoteInput{Title: "Busy"})

	for _, name := range []string{"a", "b", "c", "d"} {
		if _, err := f.notes.AddTag(ctx, owner, note.ID, f.tag(t, name).ID); err != nil {
			t.Fatalf("add tag %s failed: %v", name, err)
		}
	}

	fifth := f.tag(t, "e")
	if _, err := f.notes.AddTag(ctx, owner, note.ID, fifth.ID); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation on fifth tag, got %v", err)
	}
	got, _ := f.notes.Get(ctx, owner, note.ID)
	if len(got.Tags) != 4 {
		t.Fatalf("expected 4 tags, got %d", len(got.Tags))
	}
}

func TestSetArchivedRejectsRepeat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	note, _ := f.notes.Create(ctx, owner, CreateNoteInput{Title: "Old idea"})

	if _, err := f.notes.SetArchived(ctx, owner, note.ID, false); domain.AsError(err).Message != "Note is not archived" {
		t.Fatalf("expected not archived conflict, got %v", err)
	}

	archived, err := f.notes.SetArchived(ctx, owner, note.ID, true)
	if err != nil || !archived.Archived {
		t.Fatalf("archive failed: %+v %v", archived, err)
	}
	_, err = f.notes.SetArchived(ctx, owner, note.ID, true)
	if de := domain.AsError(err); de.Kind != domain.KindConflict || de.Message != "Note is already archived" {
		t.Fatalf("expected already archived conflict, got %v", err)
	}

	active, err := f.notes.List(ctx, owner, ListNotesQuery{})
	if err != nil || len(active.Items) != 0 {
		t.Fatalf("archived note must be hidden by default: %+v %v", active, err)
	}
	only, err := f.notes.List(ctx, owner, ListNotesQuery{Archived: ArchivedOnly})
	if err != nil || len(only.Items) != 1 {
		t.Fatalf("expected archived note listed: %+v %v", only, err)
	}

	if _, err := f.notes.SetArchived(ctx, owner, note.ID, false); err != nil {
		t.Fatalf("unarchive failed: %v", err)
	}
}

func TestListNormalizesQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	for _, title := range []string{"Banana", "apple", "Cherry 100%"} {
		if _, err := f.notes.Create(ctx, owner, CreateNoteInput{Title: title}); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	page, err := f.notes.List(ctx, owner, ListNotesQuery{Limit: 500, SortBy: "title", SortOrder: "ASC"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if page.Pagination.Limit != MaxListLimit || page.Pagination.Page != 1 {
		t.Fatalf("expected clamped limit, got %+v", page.Pagination)
	}
	if page.Items[0].Title != "apple" || page.Items[2].Title != "Cherry 100%" {
		t.Fatalf("unexpected order %v", page.Items)
	}

	second, err := f.notes.List(ctx, owner, ListNotesQuery{Page: 2, Limit: 2, SortBy: "title", SortOrder: "asc"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(second.Items) != 1 || !second.Pagination.HasPrev || second.Pagination.HasNext || second.Pagination.TotalPages != 2 {
		t.Fatalf("unexpected second page %+v", second.Pagination)
	}

	search, _ := f.notes.List(ctx, owner, ListNotesQuery{Search: "%"})
	if len(search.Items) != 1 || search.Items[0].Title != "Cherry 100%" {
		t.Fatalf("expected literal percent match, got %v", search.Items)
	}

	for _, q := range []ListNotesQuery{{SortBy: "color"}, {SortOrder: "up"}, {Archived: "maybe"}} {
		if _, err := f.notes.List(ctx, owner, q); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("expected validation for %+v, got %v", q, err)
		}
	}
}

func TestListSearchFoldsUnicodeCase(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	if _, err := f.notes.Create(ctx, owner, CreateNoteInput{Title: "CAFÉ notes"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := f.notes.Create(ctx, owner, CreateNoteInput{Title: "Trip", Content: "Weekend in ÅRHUS"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	for search, want := range map[string]string{
		"café":  "CAFÉ notes",
		"CAFÉ":  "CAFÉ notes",
		"Café":  "CAFÉ notes",
		"århus": "Trip",
		"ÅrHuS": "Trip",
	} {
		page, err := f.notes.List(ctx, owner, ListNotesQuery{Search: search})
		if err != nil {
			t.Fatalf("search %q failed: %v", search, err)
		}
		if len(page.Items) != 1 || page.Items[0].Title != want {
			t.Fatalf("search %q: got %v, want %q", search, page.Items, want)
		}
	}
}

func TestListRejectsOutOfRangePage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	for _, title := range []string{"a", "b", "c"} {
		if _, err := f.notes.Create(ctx, owner, CreateNoteInput{Title: title}); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	if _, err := f.notes.List(ctx, owner, ListNotesQuery{Page: 1<<62 + 1, Limit: 4}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for overflowing page, got %v", err)
	}

	far, err := f.notes.List(ctx, owner, ListNotesQuery{Page: 1000, Limit: 4})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(far.Items) != 0 || far.Pagination.Total != 3 || far.Pagination.HasNext {
		t.Fatalf("expected an empty page past the end, got %d items %+v", len(far.Items), far.Pagination)
	}
}

func TestListByTag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	work := f.tag(t, "Work")
	if _, err := f.notes.Create(ctx, owner, CreateNoteInput{Title: "tagged", TagIDs: []string{work.ID}}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := f.notes.Create(ctx, owner, CreateNoteInput{Title: "plain"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	page, err := f.notes.ListByTag(ctx, owner, work.ID, ListNotesQuery{})
	if err != nil || len(page.Items) != 1 || page.Items[0].Title != "tagged" {
		t.Fatalf("unexpected page %+v %v", page, err)
	}
	if _, err := f.notes.ListByTag(ctx, owner, uuid.NewString(), ListNotesQuery{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for unknown tag, got %v", err)
	}
}

func TestNoteStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	work := f.tag(t, "Work")

	first, _ := f.notes.Create(ctx, owner, CreateNoteInput{Title: "one", TagIDs: []string{work.ID}})
	if _, err := f.notes.Create(ctx, owner, CreateNoteInput{Title: "two"}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := f.notes.SetArchived(ctx, owner, first.ID, true); err != nil {
		t.Fatalf("archive failed: %v", err)
	}

	stats, err := f.notes.Stats(ctx, owner)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	want := domain.NoteStats{Total: 2, Active: 1, Archived: 1, WithTags: 1, WithoutTags: 1, RecentCount: 2}
	if *stats != want {
		t.Fatalf("stats = %+v, want %+v", *stats, want)
	}
}

func TestDeleteNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "alice")
	note, _ := f.notes.Create(ctx, owner, CreateNoteInput{Title: "bye"})

	if err := f.notes.Delete(ctx, owner, note.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if err := f.notes.Delete(ctx, owner, note.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}
