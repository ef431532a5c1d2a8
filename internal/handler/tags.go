package handler

import (
	"log/slog"
	"net/http"

	"github.com/Knifucrab/mauro-zen-notes/internal/domain"
	"github.com/Knifucrab/mauro-zen-notes/internal/security/audit"
	"github.com/Knifucrab/mauro-zen-notes/internal/service"
)

// TagHandler handles the global tag registry
type TagHandler struct {
	tags      *service.TagService
	notes     *service.NoteService
	validator *Validator
	respond   *Responder
	audit     *audit.Logger
	logger    *slog.Logger
}

// NewTagHandler creates a new tag handler
func NewTagHandler(tags *service.TagService, notes *service.NoteService, respond *Responder, auditLogger *audit.Logger, logger *slog.Logger) *TagHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &TagHandler{
		tags:      tags,
		notes:     notes,
		validator: NewValidator(),
		respond:   respond,
		audit:     auditLogger,
		logger:    logger,
	}
}

// CreateTagRequest is the body of POST /api/tags
type CreateTagRequest struct {
	Name  string `json:"name" validate:"required"`
	Color string `json:"color"`
}

// UpdateTagRequest is the body of PUT /api/tags/{id}
type UpdateTagRequest struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
}

// ListTagsRequest holds the query parameters of a tag listing
type ListTagsRequest struct {
	Page      int    `json:"page" validate:"gte=0"`
	Limit     int    `json:"limit" validate:"gte=0"`
	Search    string `json:"search" validate:"max=20"`
	SortBy    string `json:"sortBy" validate:"omitempty,oneof=name createdAt"`
	SortOrder string `json:"sortOrder" validate:"omitempty,oneof=asc desc ASC DESC"`
}

// List handles GET /api/tags
func (h *TagHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	q := r.URL.Query()
	req := ListTagsRequest{
		Page:      page,
		Limit:     limit,
		Search:    q.Get("search"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
	}
	if err := h.validator.Validate(req); err != nil {
		h.respond.Error(w, r, err)
		return
	}

	tags, err := h.tags.List(r.Context(), service.ListTagsQuery{
		Page:      req.Page,
		Limit:     req.Limit,
		Search:    req.Search,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	})
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, tags)
}

// Colors handles GET /api/tags/colors
func (h *TagHandler) Colors(w http.ResponseWriter, r *http.Request) {
	h.respond.JSON(w, http.StatusOK, h.tags.Colors())
}

// Stats handles GET /api/tags/stats
func (h *TagHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.tags.Stats(r.Context())
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, stats)
}

// Mine handles GET /api/tags/mine
func (h *TagHandler) Mine(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	usage, err := h.tags.MyTags(r.Context(), caller.ID)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, usage)
}

// Get handles GET /api/tags/{id}
func (h *TagHandler) Get(w http.ResponseWriter, r *http.Request) {
	tag, err := h.tags.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, tag)
}

// Notes handles GET /api/tags/{id}/notes
func (h *TagHandler) Notes(w http.ResponseWriter, r *http.Request) {
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

	page, err := h.notes.ListByTag(r.Context(), caller.ID, r.PathValue("id"), q)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}
	h.respond.JSON(w, http.StatusOK, page)
}

// Create handles POST /api/tags
func (h *TagHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	var req CreateTagRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respond.Error(w, r, err)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		h.respond.Error(w, r, err)
		return
	}

	tag, err := h.tags.Create(r.Context(), service.CreateTagInput{Name: req.Name, Color: req.Color})
	if err != nil {
		if domain.KindOf(err) == domain.KindConflict {
			h.audit.LogDenied(r.Context(), caller.ID, "create", audit.ResourceTag, "", "conflict")
		}
		h.respond.Error(w, r, err)
		return
	}

	h.audit.LogSuccess(r.Context(), caller.ID, "create", audit.ResourceTag, tag.ID)
	h.respond.JSON(w, http.StatusCreated, tag)
}

// Update handles PUT /api/tags/{id}
func (h *TagHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	var req UpdateTagRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respond.Error(w, r, err)
		return
	}

	id := r.PathValue("id")
	tag, err := h.tags.Update(r.Context(), id, service.UpdateTagInput{Name: req.Name, Color: req.Color})
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	h.audit.LogSuccess(r.Context(), caller.ID, "update", audit.ResourceTag, id)
	h.respond.JSON(w, http.StatusOK, tag)
}

// Delete handles DELETE /api/tags/{id}
func (h *TagHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		h.respond.Error(w, r, err)
		return
	}

	id := r.PathValue("id")
	if err := h.tags.Delete(r.Context(), id); err != nil {
		h.respond.Error(w, r, err)
		return
	}

	h.audit.LogSuccess(r.Context(), caller.ID, "delete", audit.ResourceTag, id)
	w.WriteHeader(http.StatusNoContent)
}
