package rules

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"eventrouter/internal/logger"
	"eventrouter/pkg/cel"
	apperrors "eventrouter/pkg/errors"
	"eventrouter/pkg/metrics"
	"eventrouter/pkg/models"
)

type snapshot struct {
	rules []Rule
	index map[string]int
}

func newSnapshot(rules []Rule) *snapshot {
	index := make(map[string]int, len(rules))
	for i, r := range rules {
		index[r.ID] = i
	}
	return &snapshot{rules: rules, index: index}
}

// Registry holds the rule set. Readers load an immutable snapshot without
// locking; writers serialize on mu and publish a fresh copy.
type Registry struct {
	mu        sync.Mutex
	current   atomic.Pointer[snapshot]
	evaluator *cel.Evaluator
	logger    logger.Logger
	now       func() time.Time
}

func NewRegistry(log logger.Logger) (*Registry, error) {
	evaluator, err := cel.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL evaluator: %w", err)
	}

	r := &Registry{
		evaluator: evaluator,
		logger:    log,
		now:       time.Now,
	}
	r.current.Store(newSnapshot(nil))
	return r, nil
}

// Prepare validates a rule and compiles its condition. It does not touch the registry.
func (r *Registry) Prepare(rule Rule) (Rule, error) {
	rule = rule.clone()

	if rule.Pattern == nil {
		return Rule{}, malformed(rule.ID, "event pattern is required")
	}
	if len(rule.Targets) == 0 {
		return Rule{}, malformed(rule.ID, "at least one target is required")
	}
	for i, t := range rule.Targets {
		if t.ID == "" {
			return Rule{}, malformed(rule.ID, fmt.Sprintf("target %d has no ID", i))
		}
	}

	rule.condition = nil
	if rule.Condition != "" {
		cond, err := r.evaluator.Compile(rule.Condition)
		if err != nil {
			return Rule{}, apperrors.ErrMalformedRule.WithCause(err).WithDetail("rule_id", rule.ID)
		}
		rule.condition = cond
	}

	return rule, nil
}

func malformed(ruleID, message string) error {
	return apperrors.ErrMalformedRule.WithMessage(message).WithDetail("rule_id", ruleID)
}

// Add registers a new rule and returns its ID. An empty ID is generated.
func (r *Registry) Add(rule Rule) (string, error) {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}

	prepared, err := r.Prepare(rule)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.current.Load()
	if _, exists := snap.index[prepared.ID]; exists {
		return "", apperrors.ErrConflict.WithMessage(fmt.Sprintf("rule %s already exists", prepared.ID)).WithDetail("rule_id", prepared.ID)
	}

	now := r.now().UTC()
	if prepared.CreatedAt.IsZero() {
		prepared.CreatedAt = now
	}
	prepared.UpdatedAt = now

	next := make([]Rule, len(snap.rules), len(snap.rules)+1)
	copy(next, snap.rules)
	next = append(next, prepared)
	r.publish(next)

	return prepared.ID, nil
}

// Put inserts or replaces a rule by ID. A replaced rule keeps its position
// and creation time.
func (r *Registry) Put(rule Rule) error {
	if rule.ID == "" {
		return malformed("", "rule ID is required")
	}

	prepared, err := r.Prepare(rule)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.current.Load()
	next := make([]Rule, len(snap.rules), len(snap.rules)+1)
	copy(next, snap.rules)

	prepared.UpdatedAt = r.now().UTC()
	if i, exists := snap.index[prepared.ID]; exists {
		prepared.CreatedAt = snap.rules[i].CreatedAt
		next[i] = prepared
	} else {
		if prepared.CreatedAt.IsZero() {
			prepared.CreatedAt = prepared.UpdatedAt
		}
		next = append(next, prepared)
	}
	r.publish(next)

	return nil
}

func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.current.Load()
	i, exists := snap.index[id]
	if !exists {
		return false
	}

	next := make([]Rule, 0, len(snap.rules)-1)
	next = append(next, snap.rules[:i]...)
	next = append(next, snap.rules[i+1:]...)
	r.publish(next)

	return true
}

// ReplaceOrigin swaps every rule owned by origin for the given set in one
// step. Rules that survive keep their position; new ones are appended. The
// whole set is validated before anything changes.
func (r *Registry) ReplaceOrigin(origin Origin, incoming []Rule) error {
	prepared := make([]Rule, 0, len(incoming))
	byID := make(map[string]int, len(incoming))
	for _, rule := range incoming {
		rule.Origin = origin
		p, err := r.Prepare(rule)
		if err != nil {
			return err
		}
		if _, dup := byID[p.ID]; dup {
			return apperrors.ErrConflict.WithMessage(fmt.Sprintf("rule %s listed twice", p.ID))
		}
		byID[p.ID] = len(prepared)
		prepared = append(prepared, p)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.current.Load()
	now := r.now().UTC()
	placed := make(map[string]bool, len(prepared))
	next := make([]Rule, 0, len(snap.rules)+len(prepared))

	for _, existing := range snap.rules {
		j, inIncoming := byID[existing.ID]
		if existing.Origin != origin {
			if inIncoming {
				return apperrors.ErrConflict.WithMessage(fmt.Sprintf("rule %s is owned by %s", existing.ID, existing.Origin))
			}
			next = append(next, existing)
			continue
		}
		if !inIncoming {
			continue
		}
		p := prepared[j]
		if p.CreatedAt.IsZero() {
			p.CreatedAt = existing.CreatedAt
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
		next = append(next, p)
		placed[p.ID] = true
	}

	for _, p := range prepared {
		if placed[p.ID] {
			continue
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		if p.UpdatedAt.IsZero() {
			p.UpdatedAt = now
		}
		next = append(next, p)
	}

	r.publish(next)
	return nil
}

func (r *Registry) publish(rules []Rule) {
	r.current.Store(newSnapshot(rules))
	metrics.SetActiveRules(len(rules))
}

// List returns every rule in insertion order.
func (r *Registry) List() []Rule {
	snap := r.current.Load()
	out := make([]Rule, len(snap.rules))
	for i, rule := range snap.rules {
		out[i] = rule.clone()
	}
	return out
}

func (r *Registry) Get(id string) (Rule, bool) {
	snap := r.current.Load()
	i, ok := snap.index[id]
	if !ok {
		return Rule{}, false
	}
	return snap.rules[i].clone(), true
}

func (r *Registry) Len() int {
	return len(r.current.Load().rules)
}

// Find returns the enabled rules whose pattern and condition match env, in
// registration order. A condition that fails to evaluate counts as no match.
func (r *Registry) Find(ctx context.Context, env models.Envelope) []Rule {
	snap := r.current.Load()

	var matched []Rule
	for _, rule := range snap.rules {
		if rule.Disabled || !rule.Pattern.Matches(env) {
			continue
		}

		if rule.condition != nil {
			ok, err := rule.condition.Evaluate(ctx, env)
			if err != nil {
				metrics.IncRuleEvaluation(rule.ID, "condition_error")
				r.logger.WarnwCtx(ctx, "Rule condition evaluation failed",
					"rule_id", rule.ID,
					"error", err,
				)
				continue
			}
			if !ok {
				continue
			}
		}

		metrics.IncRuleEvaluation(rule.ID, "matched")
		matched = append(matched, rule.clone())
	}

	return matched
}
