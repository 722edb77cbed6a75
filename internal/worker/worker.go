package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"geoattend/internal/attendance"
	"geoattend/internal/metrics"
	"geoattend/internal/queue"
)

// FingerprintChecker flags device fingerprints reused across students.
type FingerprintChecker interface {
	CheckFingerprint(ctx context.Context, sheetID, fp string) (*attendance.FingerprintFlag, error)
}

// Worker consumes sign-in events published by the API.
type Worker struct {
	checker FingerprintChecker
	logger  *zap.Logger
}

// New creates a worker.
func New(checker FingerprintChecker, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{checker: checker, logger: logger}
}

// Run handles messages until the queue's channel closes.
func (w *Worker) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}
	w.logger.Info("worker started, waiting for messages")
	for msg := range messages {
		result := "ok"
		if err := w.Handle(ctx, msg); err != nil {
			result = "error"
			w.logger.Error("handle message failed", zap.String("type", msg.Type), zap.Error(err))
		}
		metrics.EventsProcessed.WithLabelValues(msg.Type, result).Inc()
	}
	w.logger.Info("worker stopped")
	return nil
}

// Handle processes one message. Unknown types are ignored.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) error {
	switch msg.Type {
	case attendance.EventAdmitted:
		var evt attendance.SignInEvent
		if err := msg.Decode(&evt); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		flag, err := w.checker.CheckFingerprint(ctx, evt.SheetID, evt.Fingerprint)
		if err != nil {
			return err
		}
		if flag != nil {
			w.logger.Info("flagged shared device",
				zap.String("sheet_id", flag.SheetID),
				zap.Int("students", len(flag.StudentIDs)))
		}
		return nil
	case attendance.EventDenied:
		var evt attendance.SignInEvent
		if err := msg.Decode(&evt); err != nil {
			return fmt.Errorf("decode %s: %w", msg.Type, err)
		}
		w.logger.Info("location denied; student must verify in person",
			zap.String("sheet_id", evt.SheetID),
			zap.String("student_id", evt.StudentID))
		return nil
	default:
		w.logger.Debug("ignoring message", zap.String("type", msg.Type))
		return nil
	}
}
