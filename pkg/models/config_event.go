package models

import "time"

type ConfigUpdateEvent struct {
	EventType  string                 `json:"event_type"` // "rule_updated", "schedule_updated"
	ResourceID string                 `json:"resource_id,omitempty"`
	Action     string                 `json:"action"` // "create", "update", "delete", "pause", "resume"
	Timestamp  time.Time              `json:"timestamp"`
	ChangedBy  string                 `json:"changed_by,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

const (
	EventTypeRuleUpdated     = "rule_updated"
	EventTypeScheduleUpdated = "schedule_updated"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionPause  = "pause"
	ActionResume = "resume"
	ActionReload = "reload"
)

const (
	SourceConfigEvents     = "router.management"
	DetailTypeConfigUpdate = "Router Config Update"
)
