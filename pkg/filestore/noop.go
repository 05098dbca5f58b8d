package filestore

import (
	"context"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// FileUploaded does nothing and returns nil
func (n *NoopEventSink) FileUploaded(ctx context.Context, record *FileRecord) error {
	return nil
}

// FileDeleted does nothing and returns nil
func (n *NoopEventSink) FileDeleted(ctx context.Context, id string) error {
	return nil
}

// LoggingEventSink is an event sink that logs events but takes no other action.
// Useful for development and debugging.
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger.With("component", "events")}
}

// FileUploaded logs the upload event
func (l *LoggingEventSink) FileUploaded(ctx context.Context, record *FileRecord) error {
	l.logger.InfoContext(ctx, "File uploaded",
		"id", record.ID,
		"filename", record.Filename,
		"content_type", record.ContentType,
		"size_bytes", record.SizeBytes)
	return nil
}

// FileDeleted logs the deletion event
func (l *LoggingEventSink) FileDeleted(ctx context.Context, id string) error {
	l.logger.InfoContext(ctx, "File deleted", "id", id)
	return nil
}
