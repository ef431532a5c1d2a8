package handler

import (
	"log/slog"
	"net/http"

	"github.com/Knifucrab/mauro-zen-notes/internal/domain"
	"github.com/Knifucrab/mauro-zen-notes/internal/security/audit"
	"github.com/Knifucrab/mauro-zen-notes/internal/service"
)

// NoteHandler handles the caller's notes
type NoteHandler struct {
	notes     *service.NoteService
	validator *Validator
	respond   *Responder
	audit     *audit.Logger
	logger    *slog.Logger
}

// NewNoteHandler creates a new note handler
func NewNoteHandler(notes *service.NoteService, respond *Responder, auditLogger *audit.Logger, logger *slog.Logger) *NoteHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &NoteHandler{
		notes:     notes,
		validator: NewValidator(),
		respond:   respond,
		audit:     auditLogger,
		logger:    logger,
	}
}

// CreateNoteRequest is the body of POST /api/notes
type CreateNoteRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	TagIDs  []string `json:"tagIds" validate:"omitempty,dive,required"`
}

// UpdateNoteRequest is the body of PUT /api/notes/{id}. Absent fields are left unchanged.
type UpdateNoteRequest struct {
	Title   *string   `json:"title"`
	Content *string   `json:"content"`
	TagIDs  *[]string `json:"tagIds" validate:"omitempty,dive,required"`
}

// ListNotesRequest holds the query parameters of a note listing
type ListNotesRequest struct {
	Page      int    `json:"page" validate:"gte=0"`
	Limit     int    `json:"limit" validate:"gte=0"`
	Search    string `json:"search" validate:"max=200"`
	TagID     string `json:"tagId"`
	SortBy    string `json:"sortBy" validate:"omitempty,oneof=title createdAt updatedAt"`
	SortOrder string `json:"sortOrder" validate:"omitempty,oneof=asc desc ASC DESC"`
	Archived  string `json:"archived" validate:"omitempty,oneof=true false all"`
}

// parseListNotes reads and validates listing parameters from the query string
func parseListNotes(r *http.Request, v *Validator) (service.ListNotesQuery, error) {
	page, err := queryInt(r, "page")
	if err != nil {
		return service.ListNotesQuery{}, err
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		return service.ListNotesQuery{}, err
	}

	q := r.URL.Query()
	req := ListNotesRequest{
		Page:      page,
		Limit:     limit,
		Search:    q.Get("search"),
		TagID:     q.Get("tagId"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
		Archived:  q.Get("archived"),
	}
	if err := v.Validate(req); err != nil {
		return service.ListNotesQuery{}, err
	}

	return service.ListNotesQuery{
		Page:      req.Page,
		Limit:     req.Limit,
		Search:    req.Search,
		TagID:     req.TagID,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
		Archived:  req.Archived,
	}, nil
}

// List handles GET /api/notes
func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	q, err := parseListNotes(r, h.validator)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	page, err := h.notes.List(r.Context(), caller.ID, q)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, page)
}

// Stats handles GET /api/notes/stats
func (h *NoteHandler) Stats(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	stats, err := h.notes.Stats(r.Context(), caller.ID)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, stats)
}

// Get handles GET /api/notes/{id}
func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	note, err := h.notes.Get(r.Context(), caller.ID, r.PathValue("id"))
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, note)
}

// Create handles POST /api/notes
func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	var req CreateNoteRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respond.Error(w, r, err)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		h.respond.Error(w, r, err)
		return
	}

	note, err := h.notes.Create(r.Context(), caller.ID, service.CreateNoteInput{
		Title:   req.Title,
		Content: req.Content,
		TagIDs:  req.TagIDs,
	})
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	h.audit.LogSuccess(r.Context(), caller.ID, "create", audit.ResourceNote, note.ID)
	h.respond.JSON(w, http.StatusCreated, note)
}

// Update handles PUT /api/notes/{id}
func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	var req UpdateNoteRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respond.Error(w, r, err)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		h.respond.Error(w, r, err)
		return
	}

	id := r.PathValue("id")
	note, err := h.notes.Update(r.Context(), caller.ID, id, service.UpdateNoteInput{
		Title:   req.Title,
		Content: req.Content,
		TagIDs:  req.TagIDs,
	})
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	h.audit.LogSuccess(r.Context(), caller.ID, "update", audit.ResourceNote, id)
	h.respond.JSON(w, http.StatusOK, note)
}

// Delete handles DELETE /api/notes/{id}
func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	id := r.PathValue("id")
	if err := h.notes.Delete(r.Context(), caller.ID, id); err != nil {
		h.respond.Error(w, r, err)
		return
	}

	h.audit.LogSuccess(r.Context(), caller.ID, "delete", audit.ResourceNote, id)
	w.WriteHeader(http.StatusNoContent)
}

// Archive handles POST /api/notes/{id}/archive
func (h *NoteHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

// Unarchive handles POST /api/notes/{id}/unarchive
func (h *NoteHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *NoteHandler) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	caller, err := identity(r)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	action := "archive"
	if !archived {
		action = "unarchive"
	}

	id := r.PathValue("id")
	note, err := h.notes.SetArchived(r.Context(), caller.ID, id, archived)
	if err != nil {
		if domain.KindOf(err) == domain.KindConflict {
			h.audit.LogDenied(r.Context(), caller.ID, action, audit.ResourceNote, id, "conflict")
		}
		h.respond.Error(w, r, err)
		return
	}

	h.audit.LogSuccess(r.Context(), caller.ID, action, audit.ResourceNote, id)
	h.respond.JSON(w, http.StatusOK, note)
}

// AddTag handles POST /api/notes/{id}/tags/{tagId}
func (h *NoteHandler) AddTag(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	id, tagID := r.PathValue("id"), r.PathValue("tagId")
	note, err := h.notes.AddTag(r.Context(), caller.ID, id, tagID)
	if err != nil {
		if kind := domain.KindOf(err); kind == domain.KindConflict || kind == domain.KindValidation {
			h.audit.LogDenied(r.Context(), caller.ID, "add_tag", audit.ResourceNote, id, kind.String())
		}
		h.respond.Error(w, r, err)
		return
	}

	h.audit.LogSuccess(r.Context(), caller.ID, "add_tag", audit.ResourceNote, id)
	h.respond.JSON(w, http.StatusOK, note)
}

// RemoveTag handles DELETE /api/notes/{id}/tags/{tagId}
func (h *NoteHandler) RemoveTag(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	id, tagID := r.PathValue("id"), r.PathValue("tagId")
	note, err := h.notes.RemoveTag(r.Context(), caller.ID, id, tagID)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	h.audit.LogSuccess(r.Context(), caller.ID, "remove_tag", audit.ResourceNote, id)
	h.respond.JSON(w, http.StatusOK, note)
}
