package rules

import (
	"time"

	"eventrouter/pkg/cel"
	"eventrouter/pkg/pattern"
)

// Origin records which source owns a rule, so a reload from one source never
// clobbers rules that came from another.
type Origin string

const (
	OriginConfig   Origin = "config"
	OriginAPI      Origin = "api"
	OriginStore    Origin = "store"
	OriginSchedule Origin = "schedule"
)

// ScheduleRulePrefix prefixes the ID of the implicit rule routing a schedule.
const ScheduleRulePrefix = "schedule:"

type TargetRef struct {
	ID string `json:"id"`
}

type Rule struct {
	ID          string
	Name        string
	Description string
	Pattern     *pattern.Pattern
	// Condition is an optional CEL expression evaluated after the pattern matched.
	Condition string
	Targets   []TargetRef
	// Disabled rules stay registered but never match.
	Disabled  bool
	Origin    Origin
	CreatedAt time.Time
	UpdatedAt time.Time

	condition *cel.Condition
}

func (r Rule) TargetIDs() []string {
	ids := make([]string, len(r.Targets))
	for i, t := range r.Targets {
		ids[i] = t.ID
	}
	return ids
}

func (r Rule) clone() Rule {
	out := r
	out.Targets = append([]TargetRef(nil), r.Targets...)
	return out
}

func Targets(ids ...string) []TargetRef {
	refs := make([]TargetRef, len(ids))
	for i, id := range ids {
		refs[i] = TargetRef{ID: id}
	}
	return refs
}
