package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"eventrouter/internal/config"
	"eventrouter/internal/logger"
	apperrors "eventrouter/pkg/errors"
	"eventrouter/pkg/models"
	"eventrouter/pkg/pattern"
)

// Notifier tells other router replicas that the rule set changed.
type Notifier interface {
	NotifyConfigChange(ctx context.Context, eventType, action, resourceID string) error
}

// Service owns the rule lifecycle on top of the Registry: static rules from
// config, rules stored in Postgres, and rules created through the API.
type Service struct {
	registry *Registry
	repo     Repository
	cfg      config.RulesConfig
	notifier Notifier
	logger   logger.Logger
}

func NewService(registry *Registry, repo Repository, cfg config.RulesConfig, log logger.Logger) *Service {
	return &Service{
		registry: registry,
		repo:     repo,
		cfg:      cfg,
		logger:   log,
	}
}

func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

func (s *Service) Registry() *Registry {
	return s.registry
}

// writableOrigin is the origin assigned to rules created through the API.
func (s *Service) writableOrigin() Origin {
	if s.repo != nil {
		return OriginStore
	}
	return OriginAPI
}

// FromConfig builds a rule from its YAML declaration.
func FromConfig(def config.RuleConfig) (Rule, error) {
	p, err := pattern.Compile([]byte(def.Pattern))
	if err != nil {
		return Rule{}, apperrors.ErrMalformedRule.WithCause(err).WithDetail("rule_id", def.ID)
	}

	return Rule{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		Pattern:     p,
		Condition:   def.Condition,
		Targets:     Targets(def.Targets...),
		Disabled:    def.Disabled,
		Origin:      OriginConfig,
	}, nil
}

// LoadConfigRules installs the rules declared in configuration. Any malformed
// rule aborts the load and leaves the registry untouched.
func (s *Service) LoadConfigRules(defs []config.RuleConfig) error {
	rules := make([]Rule, 0, len(defs))
	for _, def := range defs {
		rule, err := FromConfig(def)
		if err != nil {
			return err
		}
		rules = append(rules, rule)
	}

	if err := s.registry.ReplaceOrigin(OriginConfig, rules); err != nil {
		return fmt.Errorf("failed to load configured rules: %w", err)
	}

	s.logger.Infow("Loaded configured rules", "rules_count", len(rules))
	return nil
}

func recordToRule(rec Record) (Rule, error) {
	p, err := pattern.Compile(rec.Pattern)
	if err != nil {
		return Rule{}, apperrors.ErrMalformedRule.WithCause(err).WithDetail("rule_id", rec.ID)
	}
	return Rule{
		ID:          rec.ID,
		Name:        rec.Name,
		Description: rec.Description,
		Pattern:     p,
		Condition:   rec.Condition,
		Targets:     Targets(rec.Targets...),
		Disabled:    !rec.Enabled,
		Origin:      OriginStore,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}, nil
}

func ruleToRecord(rule Rule) Record {
	return Record{
		ID:          rule.ID,
		Name:        rule.Name,
		Description: rule.Description,
		Pattern:     json.RawMessage(rule.Pattern.String()),
		Condition:   rule.Condition,
		Targets:     rule.TargetIDs(),
		Enabled:     !rule.Disabled,
		CreatedAt:   rule.CreatedAt,
	}
}

func (s *Service) ReloadRules(ctx context.Context, skipJitter ...bool) error {
	if s.repo == nil {
		return nil
	}

	shouldSkipJitter := len(skipJitter) > 0 && skipJitter[0]
	if err := s.applyJitter(ctx, shouldSkipJitter); err != nil {
		return err
	}

	s.logger.DebugwCtx(ctx, "Loading rules from database")
	records, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	rules := make([]Rule, 0, len(records))
	for _, rec := range records {
		rule, err := recordToRule(rec)
		if err == nil {
			rule, err = s.registry.Prepare(rule)
		}
		if err != nil {
			s.logger.ErrorwCtx(ctx, "Skipping malformed stored rule",
				"rule_id", rec.ID,
				"error", err,
			)
			continue
		}
		rules = append(rules, rule)
	}

	if err := s.registry.ReplaceOrigin(OriginStore, rules); err != nil {
		return fmt.Errorf("failed to apply reloaded rules: %w", err)
	}

	s.logger.InfowCtx(ctx, "Successfully reloaded rules",
		"rules_count", len(rules),
	)
	return nil
}

func (s *Service) applyJitter(ctx context.Context, skipJitter bool) error {
	if skipJitter || s.cfg.Reload.JitterMaxMilliseconds <= 0 {
		return nil
	}

	jitter := time.Duration(rand.Intn(s.cfg.Reload.JitterMaxMilliseconds)) * time.Millisecond
	s.logger.DebugwCtx(ctx, "Reload scheduled with jitter",
		"jitter_ms", jitter.Milliseconds(),
	)

	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// StartReloader reloads stored rules periodically until ctx is done.
func (s *Service) StartReloader(ctx context.Context) error {
	if s.repo == nil || s.cfg.Reload.IntervalSeconds <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(time.Duration(s.cfg.Reload.IntervalSeconds) * time.Second)
	defer ticker.Stop()

	if err := s.ReloadRules(ctx, true); err != nil {
		s.logger.ErrorwCtx(ctx, "Failed to reload rules", "error", err)
	}

	for {
		select {
		case <-ticker.C:
			if err := s.ReloadRules(ctx); err != nil {
				s.logger.ErrorwCtx(ctx, "Failed to reload rules", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Service) List() []Rule {
	return s.registry.List()
}

func (s *Service) Get(id string) (Rule, error) {
	rule, ok := s.registry.Get(id)
	if !ok {
		return Rule{}, apperrors.ErrNotFound.WithDetail("rule_id", id)
	}
	return rule, nil
}

func (s *Service) Create(ctx context.Context, rule Rule) (Rule, error) {
	if strings.HasPrefix(rule.ID, ScheduleRulePrefix) {
		return Rule{}, malformed(rule.ID, fmt.Sprintf("rule IDs starting with %q are reserved for schedules", ScheduleRulePrefix))
	}
	if _, exists := s.registry.Get(rule.ID); exists {
		return Rule{}, apperrors.ErrConflict.WithMessage(fmt.Sprintf("rule %s already exists", rule.ID))
	}

	rule.Origin = s.writableOrigin()
	prepared, err := s.registry.Prepare(rule)
	if err != nil {
		return Rule{}, err
	}

	if s.repo != nil {
		rec := ruleToRecord(prepared)
		if err := s.repo.Create(ctx, &rec); err != nil {
			return Rule{}, err
		}
		prepared.CreatedAt = rec.CreatedAt
	}

	id, err := s.registry.Add(prepared)
	if err != nil {
		if s.repo != nil {
			if delErr := s.repo.Delete(ctx, prepared.ID); delErr != nil {
				s.logger.ErrorwCtx(ctx, "Failed to roll back stored rule", "rule_id", prepared.ID, "error", delErr)
			}
		}
		return Rule{}, err
	}

	s.notify(ctx, models.ActionCreate, id)
	created, _ := s.registry.Get(id)
	return created, nil
}

func (s *Service) checkWritable(id string) (Rule, error) {
	existing, ok := s.registry.Get(id)
	if !ok {
		return Rule{}, apperrors.ErrNotFound.WithDetail("rule_id", id)
	}
	if existing.Origin != s.writableOrigin() {
		return Rule{}, apperrors.ErrConflict.WithMessage(fmt.Sprintf("rule %s is managed by %s and cannot be changed here", id, existing.Origin))
	}
	return existing, nil
}

// Update replaces a rule by ID. Only rules created through the API can change.
func (s *Service) Update(ctx context.Context, rule Rule) (Rule, error) {
	existing, err := s.checkWritable(rule.ID)
	if err != nil {
		return Rule{}, err
	}

	rule.Origin = existing.Origin
	rule.CreatedAt = existing.CreatedAt
	prepared, err := s.registry.Prepare(rule)
	if err != nil {
		return Rule{}, err
	}

	if s.repo != nil {
		rec := ruleToRecord(prepared)
		if err := s.repo.Update(ctx, &rec); err != nil {
			return Rule{}, err
		}
	}

	if err := s.registry.Put(prepared); err != nil {
		return Rule{}, err
	}

	s.notify(ctx, models.ActionUpdate, rule.ID)
	updated, _ := s.registry.Get(rule.ID)
	return updated, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.checkWritable(id); err != nil {
		return err
	}

	if s.repo != nil {
		if err := s.repo.Delete(ctx, id); err != nil {
			return err
		}
	}

	s.registry.Remove(id)
	s.notify(ctx, models.ActionDelete, id)
	return nil
}

func (s *Service) notify(ctx context.Context, action, ruleID string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyConfigChange(ctx, models.EventTypeRuleUpdated, action, ruleID); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to publish rule change",
			"rule_id", ruleID,
			"action", action,
			"error", err,
		)
	}
}

// TestPattern compiles a pattern document and evaluates it against env
// without registering anything.
func TestPattern(doc []byte, env models.Envelope) (bool, error) {
	p, err := pattern.Compile(doc)
	if err != nil {
		return false, apperrors.ErrMalformedRule.WithCause(err)
	}
	return p.Matches(env), nil
}
