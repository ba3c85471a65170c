package deadletter

import (
	"context"

	"eventrouter/internal/constants"
	"eventrouter/internal/logger"
	"eventrouter/pkg/models"
)

// LogSink only writes the record to the log.
type LogSink struct {
	logger logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

func (s *LogSink) Name() string { return constants.SinkLog }

func (s *LogSink) Record(ctx context.Context, attempt models.DeliveryAttempt) error {
	s.logger.ErrorwCtx(ctx, "Dead letter",
		"dead_letter_id", attempt.ID,
		"rule_id", attempt.RuleID,
		"target_id", attempt.TargetID,
		"event_id", attempt.Envelope.ID,
		"attempt_count", attempt.AttemptCount,
		"last_error", attempt.LastError,
		"reason", attempt.Reason,
	)
	return nil
}
