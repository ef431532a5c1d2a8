package service

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/Knifucrab/mauro-zen-notes/internal/domain"
)

const (
	msgNoteNotFound  = "Note not found"
	msgTagNotFound   = "Tag not found"
	msgTagsNotFound  = "One or more tags not found"
	msgTooManyTags   = "Maximum 4 tags allowed per note"
	msgPageTooLarge  = "page is out of range"
	msgInternalError = "Internal server error"
)

// internalError logs the cause and hides it behind the generic internal message
func internalError(logger *slog.Logger, msg string, err error) error {
	logger.Error(msg, slog.String("error", err.Error()))
	return domain.Internal(msgInternalError).WithCause(err)
}

// validID reports whether id is a well-formed UUID. Malformed ids never match a row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
