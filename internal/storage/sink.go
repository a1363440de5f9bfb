package storage

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/canstralian/rf-test-harness/internal/audit"
)

const sinkWriteTimeout = 5 * time.Second

// EventSink adapts a Store into a live audit.Sink for one run. Write
// failures are logged and otherwise swallowed: the in-memory audit log
// remains the source of truth.
type EventSink struct {
	store  *Store
	runID  int64
	logger *slog.Logger
}

// NewEventSink creates a sink persisting events under the given run.
func NewEventSink(store *Store, runID int64, logger *slog.Logger) *EventSink {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &EventSink{store: store, runID: runID, logger: logger}
}

func (s *EventSink) WriteEvent(e *audit.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkWriteTimeout)
	defer cancel()

	if err := s.store.StoreAuditEvent(ctx, s.runID, e); err != nil {
		s.logger.Error("storing audit event", slog.String("error", err.Error()))
	}
}
