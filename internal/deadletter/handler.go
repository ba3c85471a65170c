package deadletter

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"eventrouter/internal/logger"
	"eventrouter/pkg/logging"
	"eventrouter/pkg/metrics"
	"eventrouter/pkg/models"
	"eventrouter/pkg/retry"
)

const sinkWriteTimeout = 10 * time.Second

// Delivery is the retry state of one failing (rule, target, envelope).
type Delivery struct {
	attempt models.DeliveryAttempt
	backoff backoff.BackOff
}

// Attempt returns a copy of the current bookkeeping.
func (d *Delivery) Attempt() models.DeliveryAttempt {
	return d.attempt
}

type pendingRetry struct {
	delivery *Delivery
	timer    clockwork.Timer
}

type Handler struct {
	policy     Policy
	sink       Sink
	sinkPolicy retry.Policy
	clock      clockwork.Clock
	logger     logger.Logger

	mu      sync.Mutex
	pending map[string]pendingRetry
}

type Option func(*Handler)

func WithClock(clock clockwork.Clock) Option {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithSinkRetry sets how often a failed sink write is repeated.
func WithSinkRetry(p retry.Policy) Option {
	return func(h *Handler) {
		h.sinkPolicy = p
	}
}

func NewHandler(policy Policy, sink Sink, log logger.Logger, opts ...Option) *Handler {
	h := &Handler{
		policy: policy,
		sink:   sink,
		sinkPolicy: retry.Policy{
			MaxAttempts:     3,
			InitialInterval: 100 * time.Millisecond,
			MaxInterval:     2 * time.Second,
			Multiplier:      2.0,
		},
		clock:   clockwork.NewRealClock(),
		logger:  log,
		pending: make(map[string]pendingRetry),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Policy() Policy {
	return h.policy
}

func (h *Handler) Sink() Sink {
	return h.sink
}

// Track starts bookkeeping for a delivery on its first failed invocation.
func (h *Handler) Track(ruleID, targetID string, env models.Envelope) *Delivery {
	return &Delivery{
		attempt: models.DeliveryAttempt{
			ID:             uuid.New().String(),
			RuleID:         ruleID,
			TargetID:       targetID,
			Envelope:       env,
			FirstAttemptAt: h.clock.Now().UTC(),
		},
		backoff: h.policy.NewBackOff(),
	}
}

// Fail records a transient failure of d. It either arms a timer that calls
// requeue after the backoff delay and returns true, or, once the attempts are
// exhausted, writes d to the sink and returns false.
func (h *Handler) Fail(ctx context.Context, d *Delivery, cause error, requeue func()) bool {
	d.attempt.AttemptCount++
	d.attempt.LastError = cause.Error()

	delay := d.backoff.NextBackOff()
	if delay == backoff.Stop {
		d.attempt.NextRetryAt = time.Time{}
		h.record(ctx, d.attempt, models.ReasonRetryExhausted)
		return false
	}

	d.attempt.NextRetryAt = h.clock.Now().Add(delay).UTC()
	metrics.IncRetryAttempt(d.attempt.RuleID, d.attempt.TargetID)
	h.logger.WarnwCtx(ctx, "Delivery failed, retry scheduled",
		"attempt", d.attempt.AttemptCount,
		"max_attempts", h.policy.MaxAttempts,
		"next_delay", delay,
		"error", cause,
	)

	id := d.attempt.ID
	h.mu.Lock()
	h.pending[id] = pendingRetry{delivery: d}
	h.mu.Unlock()

	// A zero delay may fire inside AfterFunc, so the entry exists first.
	timer := h.clock.AfterFunc(delay, func() {
		h.mu.Lock()
		_, armed := h.pending[id]
		delete(h.pending, id)
		h.mu.Unlock()
		if armed {
			requeue()
		}
	})

	h.mu.Lock()
	if p, ok := h.pending[id]; ok {
		p.timer = timer
		h.pending[id] = p
	}
	h.mu.Unlock()
	return true
}

// Succeeded closes the bookkeeping of a delivery that needed retries.
func (h *Handler) Succeeded(ctx context.Context, d *Delivery) {
	h.logger.InfowCtx(ctx, "Delivery succeeded after retry", "attempts", d.attempt.AttemptCount+1)
}

// Abandon writes a delivery cut short by shutdown. attempts is the number of
// invocations that were issued for it.
func (h *Handler) Abandon(ctx context.Context, ruleID, targetID string, env models.Envelope, d *Delivery, attempts int, cause string) {
	var attempt models.DeliveryAttempt
	if d != nil {
		attempt = d.attempt
	} else {
		attempt = models.DeliveryAttempt{
			ID:             uuid.New().String(),
			RuleID:         ruleID,
			TargetID:       targetID,
			Envelope:       env,
			FirstAttemptAt: h.clock.Now().UTC(),
		}
	}
	if attempts > attempt.AttemptCount {
		attempt.AttemptCount = attempts
	}
	attempt.LastError = cause
	attempt.NextRetryAt = time.Time{}
	h.record(ctx, attempt, models.ReasonShutdownTimeout)
}

// AbandonPending cancels every armed retry timer and records those
// deliveries with reason shutdown_timeout. It returns how many were abandoned.
func (h *Handler) AbandonPending(ctx context.Context) int {
	h.mu.Lock()
	abandoned := make([]*Delivery, 0, len(h.pending))
	for id, p := range h.pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		abandoned = append(abandoned, p.delivery)
		delete(h.pending, id)
	}
	h.mu.Unlock()

	for _, d := range abandoned {
		attempt := d.attempt
		attempt.NextRetryAt = time.Time{}
		h.record(ctx, attempt, models.ReasonShutdownTimeout)
	}
	return len(abandoned)
}

// Pending is the number of armed retry timers.
func (h *Handler) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

func (h *Handler) record(ctx context.Context, attempt models.DeliveryAttempt, reason string) {
	attempt.Reason = reason
	attempt.RecordedAt = h.clock.Now().UTC()

	// The write must survive cancellation of the delivery context.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sinkWriteTimeout)
	defer cancel()
	writeCtx = logging.WithDelivery(logging.WithEventID(writeCtx, attempt.Envelope.ID), attempt.RuleID, attempt.TargetID)

	err := retry.Retry(writeCtx, h.sinkPolicy, func() error {
		return h.sink.Record(writeCtx, attempt)
	})
	if err != nil {
		metrics.IncDeadLetterSinkError(h.sink.Name())
		h.logger.ErrorwCtx(writeCtx, "Failed to write dead letter, delivery lost",
			"sink", h.sink.Name(),
			"reason", reason,
			"attempts", attempt.AttemptCount,
			"error", err,
		)
		return
	}

	metrics.IncDeadLetter(h.sink.Name(), reason)
	h.logger.WarnwCtx(writeCtx, "Delivery dead-lettered",
		"sink", h.sink.Name(),
		"reason", reason,
		"attempts", attempt.AttemptCount,
		"last_error", attempt.LastError,
	)
}
