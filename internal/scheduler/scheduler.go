// Package scheduler emits synthetic envelopes on fixed cadences and feeds
// them to the dispatcher like any external event.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"eventrouter/internal/config"
	"eventrouter/internal/constants"
	"eventrouter/internal/dispatch"
	"eventrouter/internal/logger"
	"eventrouter/internal/rules"
	"eventrouter/pkg/errors"
	"eventrouter/pkg/logging"
	"eventrouter/pkg/metrics"
	"eventrouter/pkg/models"
	"eventrouter/pkg/pattern"
)

type Submitter interface {
	Submit(ctx context.Context, env models.Envelope) (dispatch.Receipt, error)
}

// RuleSink receives the implicit rules that route each schedule to its target.
type RuleSink interface {
	ReplaceOrigin(origin rules.Origin, incoming []rules.Rule) error
}

type Schedule struct {
	ID              string `json:"id"`
	Cadence         string `json:"cadence"`
	Target          string `json:"target"`
	FireImmediately bool   `json:"fire_immediately"`
	Enabled         bool   `json:"enabled"`
}

// Info is a schedule with its runtime state.
type Info struct {
	Schedule
	Paused     bool      `json:"paused"`
	NextTickAt time.Time `json:"next_tick_at,omitempty"`
	LastTickAt time.Time `json:"last_tick_at,omitempty"`
	Fired      int64     `json:"fired"`
	Dropped    int64     `json:"dropped"`
}

type entry struct {
	schedule Schedule
	cadence  Cadence
	cancel   context.CancelFunc
	paused   bool
	next     time.Time
	last     time.Time
	fired    int64
	dropped  int64
}

type Scheduler struct {
	submitter Submitter
	rules     RuleSink
	clock     clockwork.Clock
	logger    logger.Logger

	mu      sync.Mutex
	entries map[string]*entry
	order   []string
	paused  bool
	runCtx  context.Context
	wg      sync.WaitGroup
}

type Option func(*Scheduler)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

func New(submitter Submitter, ruleSink RuleSink, log logger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		submitter: submitter,
		rules:     ruleSink,
		clock:     clockwork.NewRealClock(),
		logger:    log,
		entries:   make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func FromConfig(cfg config.ScheduleConfig) Schedule {
	return Schedule{
		ID:              cfg.ID,
		Cadence:         cfg.Cadence,
		Target:          cfg.Target,
		FireImmediately: cfg.FireImmediately,
		Enabled:         !cfg.Disabled,
	}
}

// Validate checks a schedule without registering it.
func Validate(sch Schedule) (Cadence, error) {
	if sch.ID == "" {
		return nil, errors.ErrValidation.WithMessage("schedule ID is required")
	}
	if sch.Target == "" {
		return nil, errors.ErrValidation.WithMessage("schedule target is required").WithDetail("schedule_id", sch.ID)
	}
	cadence, err := ParseCadence(sch.Cadence)
	if err != nil {
		return nil, errors.ErrValidation.WithCause(err).WithMessage(err.Error()).WithDetail("schedule_id", sch.ID)
	}
	return cadence, nil
}

// Add registers a schedule. It starts ticking at once if the scheduler is
// running, otherwise on Start.
func (s *Scheduler) Add(sch Schedule) error {
	cadence, err := Validate(sch)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[sch.ID]; exists {
		return errors.ErrConflict.WithMessage(fmt.Sprintf("schedule %s already exists", sch.ID)).WithDetail("schedule_id", sch.ID)
	}

	e := &entry{schedule: sch, cadence: cadence}
	s.entries[sch.ID] = e
	s.order = append(s.order, sch.ID)

	if err := s.syncRulesLocked(); err != nil {
		delete(s.entries, sch.ID)
		s.order = s.order[:len(s.order)-1]
		return err
	}
	if s.runCtx != nil && sch.Enabled {
		s.startLocked(e)
	}
	metrics.SetActiveSchedules(len(s.entries))

	s.logger.Infow("Schedule added",
		"schedule_id", sch.ID,
		"cadence", cadence.String(),
		"target", sch.Target,
	)
	return nil
}

// Remove stops future ticks of a schedule. Envelopes already submitted are
// not affected. It reports whether the schedule existed.
func (s *Scheduler) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	if e.cancel != nil {
		e.cancel()
	}
	delete(s.entries, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if err := s.syncRulesLocked(); err != nil {
		s.logger.Errorw("Failed to drop schedule rule", "schedule_id", id, "error", err)
	}
	metrics.SetActiveSchedules(len(s.entries))
	s.logger.Infow("Schedule removed", "schedule_id", id)
	return true
}

func (s *Scheduler) Get(id string) (Info, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Info{}, false
	}
	return s.infoLocked(e), true
}

func (s *Scheduler) List() []Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Info, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.infoLocked(s.entries[id]))
	}
	return out
}

func (s *Scheduler) infoLocked(e *entry) Info {
	return Info{
		Schedule:   e.schedule,
		Paused:     s.paused || e.paused,
		NextTickAt: e.next,
		LastTickAt: e.last,
		Fired:      e.fired,
		Dropped:    e.dropped,
	}
}

// Pause drops every tick until Resume. Dropped ticks are not caught up.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	s.logger.Info("Scheduler paused")
}

func (s *Scheduler) Resume() {
	s.mu.Lock()
	s.paused = false
	s.mu.Unlock()
	s.logger.Info("Scheduler resumed")
}

// PauseSchedule pauses a single schedule.
func (s *Scheduler) PauseSchedule(id string) error {
	return s.setPaused(id, true)
}

func (s *Scheduler) ResumeSchedule(id string) error {
	return s.setPaused(id, false)
}

func (s *Scheduler) setPaused(id string, paused bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return errors.ErrNotFound.WithMessage(fmt.Sprintf("schedule %s not found", id)).WithDetail("schedule_id", id)
	}
	e.paused = paused
	return nil
}

func (s *Scheduler) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Start runs every enabled schedule until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runCtx != nil {
		return
	}
	s.runCtx = ctx
	for _, id := range s.order {
		if e := s.entries[id]; e.schedule.Enabled {
			s.startLocked(e)
		}
	}
	s.logger.Infow("Scheduler started", "schedules", len(s.entries))
}

// Stop cancels every schedule and waits for their loops to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for _, e := range s.entries {
		if e.cancel != nil {
			e.cancel()
			e.cancel = nil
		}
	}
	s.runCtx = nil
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) startLocked(e *entry) {
	ctx, cancel := context.WithCancel(s.runCtx)
	e.cancel = cancel
	s.wg.Add(1)
	go s.run(ctx, e)
}

func (s *Scheduler) run(ctx context.Context, e *entry) {
	defer s.wg.Done()

	id := e.schedule.ID
	ctx = logging.WithScheduleID(ctx, id)

	start := s.clock.Now()
	if e.schedule.FireImmediately {
		s.tick(ctx, e, start)
	}

	next := e.cadence.Next(start)
	for {
		if next.IsZero() {
			s.logger.InfowCtx(ctx, "Schedule has no further ticks")
			return
		}
		s.mu.Lock()
		e.next = next
		s.mu.Unlock()

		timer := s.clock.NewTimer(next.Sub(s.clock.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.Chan():
		}

		s.tick(ctx, e, next)

		// Boundaries that passed while the tick ran are skipped.
		now := s.clock.Now()
		next = e.cadence.Next(next)
		for !next.IsZero() && !next.After(now) {
			metrics.IncSchedulerTick(id, "missed")
			next = e.cadence.Next(next)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, e *entry, at time.Time) {
	id := e.schedule.ID

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	if s.paused || e.paused {
		e.dropped++
		s.mu.Unlock()
		metrics.IncSchedulerTick(id, "paused")
		s.logger.DebugwCtx(ctx, "Schedule paused, tick dropped", "tick", at)
		return
	}
	e.fired++
	e.last = at
	s.mu.Unlock()

	env := TickEnvelope(id, at)
	receipt, err := s.submitter.Submit(context.WithoutCancel(ctx), env)
	if err != nil {
		metrics.IncSchedulerTick(id, "rejected")
		s.logger.WarnwCtx(ctx, "Scheduled envelope rejected", "tick", at, "error", err)
		return
	}
	metrics.IncSchedulerTick(id, "fired")
	s.logger.DebugwCtx(ctx, "Scheduled envelope submitted",
		"event_id", receipt.EventID,
		"tick", at,
		"deliveries", receipt.Deliveries,
	)
}

// TickEnvelope builds the envelope emitted by a schedule tick.
func TickEnvelope(scheduleID string, at time.Time) models.Envelope {
	return models.NewEnvelopeBuilder().
		WithSource(models.SourceScheduler).
		WithDetailType(models.DetailTypeScheduledEvent).
		WithTime(at).
		WithResources(scheduleID).
		WithDetail(map[string]interface{}{}).
		WithIngress(constants.IngressScheduler).
		Build()
}

// RuleFor is the implicit rule routing a schedule's envelopes to its target.
func RuleFor(sch Schedule) (rules.Rule, error) {
	p, err := pattern.FromMap(map[string]interface{}{
		pattern.FieldSource:     []interface{}{models.SourceScheduler},
		pattern.FieldDetailType: []interface{}{models.DetailTypeScheduledEvent},
		pattern.FieldResources:  []interface{}{sch.ID},
	})
	if err != nil {
		return rules.Rule{}, err
	}
	return rules.Rule{
		ID:          rules.ScheduleRulePrefix + sch.ID,
		Name:        sch.ID,
		Description: fmt.Sprintf("Routes schedule %s (%s)", sch.ID, sch.Cadence),
		Pattern:     p,
		Targets:     rules.Targets(sch.Target),
		Disabled:    !sch.Enabled,
		Origin:      rules.OriginSchedule,
	}, nil
}

func (s *Scheduler) syncRulesLocked() error {
	if s.rules == nil {
		return nil
	}
	out := make([]rules.Rule, 0, len(s.order))
	for _, id := range s.order {
		r, err := RuleFor(s.entries[id].schedule)
		if err != nil {
			return err
		}
		out = append(out, r)
	}
	return s.rules.ReplaceOrigin(rules.OriginSchedule, out)
}
