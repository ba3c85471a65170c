package management

import (
	"fmt"

	"eventrouter/internal/rules"
	"eventrouter/internal/scheduler"
	"eventrouter/pkg/errors"
	"eventrouter/pkg/pattern"
)

const MaxPutEventsEntries = 10

func ruleFromRequest(id string, req RuleRequest) (rules.Rule, error) {
	if len(req.Pattern) == 0 {
		return rules.Rule{}, errors.ErrValidation.WithMessage("pattern is required")
	}
	if len(req.Targets) == 0 {
		return rules.Rule{}, errors.ErrValidation.WithMessage("at least one target is required")
	}
	p, err := pattern.Compile(req.Pattern)
	if err != nil {
		return rules.Rule{}, errors.ErrMalformedRule.WithCause(err).WithMessage(fmt.Sprintf("invalid pattern: %v", err))
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return rules.Rule{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Pattern:     p,
		Condition:   req.Condition,
		Targets:     rules.Targets(req.Targets...),
		Disabled:    !enabled,
	}, nil
}

func scheduleFromRequest(req ScheduleRequest) (scheduler.Schedule, error) {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	sch := scheduler.Schedule{
		ID:              req.ID,
		Cadence:         req.Cadence,
		Target:          req.Target,
		FireImmediately: req.FireImmediately,
		Enabled:         enabled,
	}
	if _, err := scheduler.Validate(sch); err != nil {
		return scheduler.Schedule{}, err
	}
	return sch, nil
}
