package models

import "time"

const (
	ReasonRetryExhausted  = "retry_exhausted"
	ReasonShutdownTimeout = "shutdown_timeout"
	ReasonIngressFailed   = "ingress_failed"
)

// DeliveryAttempt tracks a failing (rule, target, envelope) delivery from its
// first failed invocation until success or dead-lettering.
type DeliveryAttempt struct {
	ID             string    `json:"id" bson:"_id"`
	RuleID         string    `json:"rule_id" bson:"rule_id"`
	TargetID       string    `json:"target_id" bson:"target_id"`
	Envelope       Envelope  `json:"envelope" bson:"envelope"`
	AttemptCount   int       `json:"attempt_count" bson:"attempt_count"`
	LastError      string    `json:"last_error,omitempty" bson:"last_error,omitempty"`
	FirstAttemptAt time.Time `json:"first_attempt_at" bson:"first_attempt_at"`
	NextRetryAt    time.Time `json:"next_retry_at,omitempty" bson:"next_retry_at,omitempty"`
	Reason         string    `json:"reason,omitempty" bson:"reason,omitempty"`
	RecordedAt     time.Time `json:"recorded_at,omitempty" bson:"recorded_at,omitempty"`
}
