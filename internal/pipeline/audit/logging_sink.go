package audit

import (
	"context"
	"log/slog"
	"time"

	"pipelineengine/platform/logger"
)

// LoggingSink writes audit entries through the platform structured logger,
// grounded on the same slog-wrapper shape every other package in this
// module logs through — no separate audit store is implemented (out of
// scope per §6.3; persistence is the caller's concern if it ever wires one).
type LoggingSink struct {
	log *logger.Logger
}

func NewLoggingSink(log *logger.Logger) *LoggingSink {
	return &LoggingSink{log: log}
}

func (s *LoggingSink) LogEvent(ctx context.Context, eventType EventType, tenantID, userID, resourceType, resourceID string, metadata map[string]any) {
	attrs := []any{
		slog.String("event_type", string(eventType)),
		slog.String("tenant_id", tenantID),
		slog.String("resource_type", resourceType),
		slog.String("resource_id", resourceID),
		slog.Time("occurred_at", time.Now().UTC()),
	}
	if userID != "" {
		attrs = append(attrs, slog.String("user_id", userID))
	}
	if len(metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", metadata))
	}
	s.log.WithContext(ctx).Info("audit_event", attrs...)
}
