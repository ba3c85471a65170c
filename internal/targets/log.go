package targets

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"eventrouter/internal/logger"
	"eventrouter/pkg/models"
)

const DefaultLogMessage = "Target triggered by router"

// Response mirrors a function-style handler result.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Body       string `json:"body"`
}

// Log writes the received envelope to the log and answers with a fixed
// message, the way a demo function handler would.
type Log struct {
	id      string
	message string
	logger  logger.Logger
}

func NewLog(id, message string, log logger.Logger) *Log {
	if message == "" {
		message = DefaultLogMessage
	}
	return &Log{id: id, message: message, logger: log}
}

func (l *Log) ID() string { return l.id }

func (l *Log) Handle(ctx context.Context, env models.Envelope) (Response, error) {
	event, err := env.MarshalIndent()
	if err != nil {
		return Response{}, Permanent(fmt.Errorf("failed to marshal envelope: %w", err))
	}
	l.logger.InfowCtx(ctx, "Event received", "target_id", l.id, "event", string(event))

	body, err := json.Marshal(map[string]string{"message": l.message})
	if err != nil {
		return Response{}, Permanent(err)
	}
	return Response{StatusCode: http.StatusOK, Body: string(body)}, nil
}

func (l *Log) Invoke(ctx context.Context, env models.Envelope) error {
	_, err := l.Handle(ctx, env)
	return err
}
