package models

import (
	"encoding/json"
	"time"
)

const (
	SourceScheduler          = "scheduler"
	DetailTypeScheduledEvent = "Scheduled Event"
)

// Envelope is the canonical form of an inbound event. Envelopes are treated as
// immutable once built; use Clone before handing one to code that may mutate it.
type Envelope struct {
	ID         string                 `json:"id"`
	Version    string                 `json:"version,omitempty"`
	Source     string                 `json:"source"`
	DetailType string                 `json:"detail-type"`
	Account    string                 `json:"account,omitempty"`
	Region     string                 `json:"region,omitempty"`
	Time       time.Time              `json:"time"`
	Resources  []string               `json:"resources,omitempty"`
	Detail     map[string]interface{} `json:"detail"`
	Metadata   Metadata               `json:"metadata,omitempty"`
}

type Metadata struct {
	TraceID    string    `json:"trace_id,omitempty"`
	Ingress    string    `json:"ingress,omitempty"`
	ReceivedAt time.Time `json:"received_at,omitempty"`
}

func (e Envelope) Clone() Envelope {
	out := e
	if e.Resources != nil {
		out.Resources = append([]string(nil), e.Resources...)
	}
	out.Detail = CloneDetail(e.Detail)
	return out
}

// CloneDetail deep-copies a detail payload. Nested maps and slices are copied;
// scalars are shared.
func CloneDetail(detail map[string]interface{}) map[string]interface{} {
	if detail == nil {
		return nil
	}
	out := make(map[string]interface{}, len(detail))
	for k, v := range detail {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return CloneDetail(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return val
	}
}

// DetailField walks a dotted path inside the detail payload.
func (e Envelope) DetailField(path ...string) (interface{}, bool) {
	var current interface{} = e.Detail
	for _, segment := range path {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// ToMap renders the envelope the way it appears on the wire. Used by the CEL
// evaluator and by targets that forward the raw event.
func (e Envelope) ToMap() map[string]interface{} {
	resources := make([]interface{}, len(e.Resources))
	for i, r := range e.Resources {
		resources[i] = r
	}
	detail := e.Detail
	if detail == nil {
		detail = map[string]interface{}{}
	}
	return map[string]interface{}{
		"id":          e.ID,
		"version":     e.Version,
		"source":      e.Source,
		"detail-type": e.DetailType,
		"account":     e.Account,
		"region":      e.Region,
		"time":        e.Time.UTC().Format(time.RFC3339),
		"resources":   resources,
		"detail":      detail,
	}
}

func (e Envelope) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(e, "", "  ")
}
