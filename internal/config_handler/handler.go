package config_handler

import (
	"context"
	"encoding/json"
	"fmt"

	"eventrouter/internal/logger"
	"eventrouter/pkg/models"
)

type ConfigReloader interface {
	ReloadRules(ctx context.Context, skipJitter ...bool) error
}

// Handler consumes config-update envelopes from the broker and reloads the
// components registered for their event type.
type Handler struct {
	reloaders map[string]ConfigReloader
	logger    logger.Logger
}

func NewHandler(log logger.Logger) *Handler {
	return &Handler{
		reloaders: make(map[string]ConfigReloader),
		logger:    log,
	}
}

func (h *Handler) WithReloader(eventType string, reloader ConfigReloader) *Handler {
	h.reloaders[eventType] = reloader
	return h
}

// IsConfigEvent reports whether env was published by a Notifier.
func IsConfigEvent(env models.Envelope) bool {
	return env.Source == models.SourceConfigEvents && env.DetailType == models.DetailTypeConfigUpdate
}

func decodeEvent(env models.Envelope) (models.ConfigUpdateEvent, error) {
	var event models.ConfigUpdateEvent
	raw, err := json.Marshal(env.Detail)
	if err != nil {
		return event, fmt.Errorf("failed to marshal event detail: %w", err)
	}
	if err := json.Unmarshal(raw, &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal config event: %w", err)
	}
	return event, nil
}

func (h *Handler) HandleConfigUpdateEvent(ctx context.Context, env models.Envelope) error {
	if !IsConfigEvent(env) {
		h.logger.DebugwCtx(ctx, "Ignoring non-config envelope on config topic",
			"source", env.Source,
			"detail_type", env.DetailType,
		)
		return nil
	}

	event, err := decodeEvent(env)
	if err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to decode config event", "error", err, "id", env.ID)
		return err
	}
	if event.EventType == "" {
		h.logger.WarnwCtx(ctx, "Config event missing event_type", "id", env.ID)
		return nil
	}

	h.logger.InfowCtx(ctx, "Received config update event",
		"event_type", event.EventType,
		"action", event.Action,
		"resource_id", event.ResourceID,
	)

	reloader, ok := h.reloaders[event.EventType]
	if !ok {
		return nil
	}
	// Reload immediately; jitter only spreads periodic reloads.
	if err := reloader.ReloadRules(ctx, true); err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to reload after config update", "error", err)
		return err
	}
	h.logger.InfowCtx(ctx, "Reloaded after config update", "event_type", event.EventType, "action", event.Action)
	return nil
}
