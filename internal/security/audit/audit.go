package audit

import (
	"context"
	"log/slog"
	"time"
)

// Resource kinds recorded in the audit trail
const (
	ResourceNote = "note"
	ResourceTag  = "tag"
	ResourceUser = "user"
)

// Logger writes one structured audit line per state change
type Logger struct {
	logger    *slog.Logger
	requestID func(context.Context) string
}

// NewLogger creates an audit logger. requestID extracts the correlation id from a request context.
func NewLogger(logger *slog.Logger, requestID func(context.Context) string) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if requestID == nil {
		requestID = func(context.Context) string { return "" }
	}
	return &Logger{logger: logger.With(slog.String("component", "audit")), requestID: requestID}
}

// LogAction records that userID performed action on resource/resourceID
func (al *Logger) LogAction(ctx context.Context, userID, action, resource, resourceID, status string) {
	al.logger.InfoContext(ctx, "audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("user_id", userID),
		slog.String("status", status),
		slog.String("request_id", al.requestID(ctx)),
		slog.Time("timestamp", time.Now().UTC()),
	)
}

// LogSuccess records a completed action
func (al *Logger) LogSuccess(ctx context.Context, userID, action, resource, resourceID string) {
	al.LogAction(ctx, userID, action, resource, resourceID, "success")
}

// LogDenied records a rejected action with the rejection kind
func (al *Logger) LogDenied(ctx context.Context, userID, action, resource, resourceID, reason string) {
	al.LogAction(ctx, userID, action, resource, resourceID, "denied:"+reason)
}
