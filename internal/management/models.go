package management

import (
	"encoding/json"
	"time"

	"eventrouter/internal/rules"
	"eventrouter/pkg/models"
)

type RuleRequest struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Pattern     json.RawMessage `json:"pattern" swaggertype:"object"`
	Condition   string          `json:"condition"`
	Targets     []string        `json:"targets"`
	Enabled     *bool           `json:"enabled"`
}

type RuleResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name,omitempty"`
	Description string          `json:"description,omitempty"`
	Pattern     json.RawMessage `json:"pattern" swaggertype:"object"`
	Condition   string          `json:"condition,omitempty"`
	Targets     []string        `json:"targets"`
	Enabled     bool            `json:"enabled"`
	Origin      string          `json:"origin"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func toRuleResponse(r rules.Rule) RuleResponse {
	return RuleResponse{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Pattern:     json.RawMessage(r.Pattern.String()),
		Condition:   r.Condition,
		Targets:     r.TargetIDs(),
		Enabled:     !r.Disabled,
		Origin:      string(r.Origin),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

type TestPatternRequest struct {
	Pattern json.RawMessage `json:"pattern" swaggertype:"object"`
	Event   models.Envelope `json:"event"`
}

type TestPatternResponse struct {
	Matched bool `json:"matched"`
}

type ScheduleRequest struct {
	ID              string `json:"id"`
	Cadence         string `json:"cadence"`
	Target          string `json:"target"`
	FireImmediately bool   `json:"fire_immediately"`
	Enabled         *bool  `json:"enabled"`
}

// PutEventsRequest carries up to MaxPutEventsEntries envelopes.
type PutEventsRequest struct {
	Entries []models.Envelope `json:"entries"`
}

type PutEventsResultEntry struct {
	EventID      string   `json:"event_id,omitempty"`
	MatchedRules []string `json:"matched_rules,omitempty"`
	Duplicate    bool     `json:"duplicate,omitempty"`
	ErrorCode    string   `json:"error_code,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

type PutEventsResponse struct {
	FailedEntryCount int                    `json:"failed_entry_count"`
	Entries          []PutEventsResultEntry `json:"entries"`
}

type PauseRequest struct {
	Paused bool `json:"paused"`
}
