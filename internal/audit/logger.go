package audit

import (
	"context"
	"time"

	"github.com/org/archpilot/internal/storage"
	"github.com/org/archpilot/pkg/models"
)

// Logger writes structured audit entries for API requests.
type Logger struct {
	store storage.StorageBackend
}

// NewLogger creates an audit Logger.
func NewLogger(store storage.StorageBackend) *Logger {
	return &Logger{store: store}
}

// LogRequest records an API request to the audit log. Secret material and
// passcodes must never be passed here, only request metadata.
func (l *Logger) LogRequest(ctx context.Context, entry *models.AuditEntry) {
	entry.Timestamp = time.Now().UTC()
	// Fire and forget: an audit write failure must not break the request.
	_ = l.store.WriteAuditEntry(ctx, entry)
}

// Query retrieves paginated audit log entries.
func (l *Logger) Query(ctx context.Context, filter storage.AuditFilter) ([]*models.AuditEntry, error) {
	return l.store.QueryAuditLog(ctx, filter)
}
