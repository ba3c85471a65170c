// Package dispatch routes submitted envelopes to the targets of every
// matching rule.
//
// Each (rule, target) pair owns a lane: a FIFO queue served by at most one
// goroutine, so invocations for a pair never overlap and start in the order
// the envelopes were routed. A rule's targets are attempted in declaration
// order: target i+1 is queued for an envelope once target i's first
// invocation has been issued. Transient failures go to the dead-letter
// handler, which either re-enqueues the delivery on its lane after a backoff
// delay or records it in the sink.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"eventrouter/internal/config"
	"eventrouter/internal/constants"
	"eventrouter/internal/deadletter"
	"eventrouter/internal/logger"
	"eventrouter/internal/rules"
	"eventrouter/internal/targets"
	"eventrouter/pkg/errors"
	"eventrouter/pkg/logging"
	"eventrouter/pkg/metrics"
	"eventrouter/pkg/models"
	"eventrouter/pkg/tracing"
)

const abandonedAtShutdown = "abandoned at shutdown"

type RuleFinder interface {
	Find(ctx context.Context, env models.Envelope) []rules.Rule
}

type TargetResolver interface {
	Get(id string) (targets.Target, bool)
}

// Deduplicator reports whether an envelope was already accepted. Release
// drops the claim of an envelope that was checked but then not routed.
type Deduplicator interface {
	IsDuplicate(ctx context.Context, env models.Envelope) (bool, error)
	Release(ctx context.Context, env models.Envelope) error
}

// Receipt is returned once routing for an envelope is computed.
type Receipt struct {
	EventID      string   `json:"event_id"`
	MatchedRules []string `json:"matched_rules"`
	Deliveries   int      `json:"deliveries"`
	Duplicate    bool     `json:"duplicate,omitempty"`
}

// Failure describes a delivery that failed permanently.
type Failure struct {
	RuleID   string
	TargetID string
	Envelope models.Envelope
	Attempts int
	Err      error
}

type Stats struct {
	Outstanding    int  `json:"outstanding"`
	InFlight       int  `json:"in_flight"`
	Lanes          int  `json:"lanes"`
	PendingRetries int  `json:"pending_retries"`
	Draining       bool `json:"draining"`
}

type Options struct {
	MaxConcurrency    int
	InvocationTimeout time.Duration
	Clock             clockwork.Clock
	Deduplicator      Deduplicator
	OnPermanent       func(ctx context.Context, f Failure)
}

func OptionsFromConfig(cfg config.DispatchConfig) Options {
	return Options{
		MaxConcurrency:    cfg.MaxConcurrency,
		InvocationTimeout: cfg.InvocationTimeout,
	}
}

type laneKey struct {
	ruleID   string
	targetID string
}

type lane struct {
	queue   []*job
	running bool
}

type job struct {
	ruleID      string
	targetIDs   []string
	index       int
	env         models.Envelope
	traceID     string
	delivery    *deadletter.Delivery
	invocations int
}

func (j *job) targetID() string {
	return j.targetIDs[j.index]
}

func (j *job) key() laneKey {
	return laneKey{ruleID: j.ruleID, targetID: j.targetID()}
}

type Dispatcher struct {
	rules    RuleFinder
	targets  TargetResolver
	retries  *deadletter.Handler
	dedup    Deduplicator
	sem      *semaphore.Weighted
	timeout  time.Duration
	clock    clockwork.Clock
	logger   logger.Logger
	onFailed func(ctx context.Context, f Failure)

	baseCtx context.Context
	cancel  context.CancelFunc

	mu         sync.Mutex
	lanes      map[laneKey]*lane
	draining   bool
	abandoning bool

	outstanding *tracker
	inFlight    atomic.Int64
}

func New(finder RuleFinder, resolver TargetResolver, retries *deadletter.Handler, log logger.Logger, opts Options) *Dispatcher {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 64
	}
	if opts.InvocationTimeout <= 0 {
		opts.InvocationTimeout = 30 * time.Second
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		rules:       finder,
		targets:     resolver,
		retries:     retries,
		dedup:       opts.Deduplicator,
		sem:         semaphore.NewWeighted(int64(opts.MaxConcurrency)),
		timeout:     opts.InvocationTimeout,
		clock:       opts.Clock,
		logger:      log,
		onFailed:    opts.OnPermanent,
		baseCtx:     baseCtx,
		cancel:      cancel,
		lanes:       make(map[laneKey]*lane),
		outstanding: newTracker(),
	}
}

// Submit validates env, finds the matching rules and queues one delivery
// per matching rule. It returns once routing is computed; delivery happens
// in the background.
func (d *Dispatcher) Submit(ctx context.Context, env models.Envelope) (receipt Receipt, err error) {
	start := time.Now()
	ingress := env.Metadata.Ingress
	if ingress == "" {
		ingress = constants.IngressDirect
	}
	status := "routed"
	defer func() {
		if err != nil {
			status = "rejected"
		}
		metrics.IncEventsSubmitted(ingress, status)
		metrics.ObserveSubmitDuration(time.Since(start), status)
	}()

	if d.isDraining() {
		return Receipt{}, errors.ErrDraining
	}
	if err := models.ValidateEnvelope(&env); err != nil {
		return Receipt{}, errors.ErrValidation.WithCause(err).WithMessage(err.Error())
	}

	env = env.Clone()
	if env.Metadata.TraceID == "" {
		env.Metadata.TraceID = logging.GetTraceID(ctx)
	}
	if env.Metadata.TraceID == "" {
		env.Metadata.TraceID = tracing.TraceID(ctx)
	}
	ctx = logging.WithEventID(ctx, env.ID)
	ctx, span := tracing.StartSpan(ctx, "dispatch.submit",
		attribute.String("event.id", env.ID),
		attribute.String("event.source", env.Source),
		attribute.String("event.detail_type", env.DetailType),
	)
	defer span.End()

	receipt = Receipt{EventID: env.ID, MatchedRules: []string{}}

	if d.dedup != nil {
		duplicate, err := d.dedup.IsDuplicate(ctx, env)
		if err != nil {
			tracing.RecordError(span, err)
			return Receipt{}, err
		}
		if duplicate {
			status = "duplicate"
			receipt.Duplicate = true
			d.logger.InfowCtx(ctx, "Duplicate envelope ignored")
			return receipt, nil
		}
	}

	matched := d.rules.Find(ctx, env)
	if len(matched) == 0 {
		status = "no_match"
		d.logger.DebugwCtx(ctx, "No rule matched envelope",
			"source", env.Source,
			"detail_type", env.DetailType,
		)
		return receipt, nil
	}

	jobs := make([]*job, 0, len(matched))
	for _, rule := range matched {
		receipt.MatchedRules = append(receipt.MatchedRules, rule.ID)
		if len(rule.Targets) == 0 {
			continue
		}
		jobs = append(jobs, &job{
			ruleID:    rule.ID,
			targetIDs: rule.TargetIDs(),
			env:       env,
			traceID:   env.Metadata.TraceID,
		})
	}

	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		if d.dedup != nil {
			if err := d.dedup.Release(ctx, env); err != nil {
				d.logger.WarnwCtx(ctx, "Failed to release dedup claim of rejected envelope", "error", err)
			}
		}
		return Receipt{}, errors.ErrDraining
	}
	d.track(len(jobs))
	for _, j := range jobs {
		d.enqueueLocked(j)
	}
	d.mu.Unlock()

	receipt.Deliveries = len(jobs)
	d.logger.DebugwCtx(ctx, "Envelope routed",
		"matched_rules", receipt.MatchedRules,
		"deliveries", receipt.Deliveries,
	)
	span.SetAttributes(attribute.Int("dispatch.deliveries", len(jobs)))
	return receipt, nil
}

func (d *Dispatcher) isDraining() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.draining
}

func (d *Dispatcher) track(n int) {
	if n == 0 {
		return
	}
	metrics.OutstandingDeliveries.Set(float64(d.outstanding.add(n)))
}

func (d *Dispatcher) finish() {
	metrics.OutstandingDeliveries.Set(float64(d.outstanding.add(-1)))
}

// enqueueLocked appends j to its lane and starts the lane worker if idle.
// The caller holds d.mu.
func (d *Dispatcher) enqueueLocked(j *job) {
	key := j.key()
	l, ok := d.lanes[key]
	if !ok {
		l = &lane{}
		d.lanes[key] = l
		metrics.ActiveLanes.Set(float64(len(d.lanes)))
	}
	l.queue = append(l.queue, j)
	if !l.running {
		l.running = true
		go d.runLane(key, l)
	}
}

func (d *Dispatcher) runLane(key laneKey, l *lane) {
	for {
		d.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			delete(d.lanes, key)
			metrics.ActiveLanes.Set(float64(len(d.lanes)))
			d.mu.Unlock()
			return
		}
		j := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		d.mu.Unlock()

		d.execute(j)
	}
}

func (d *Dispatcher) jobContext(j *job) context.Context {
	ctx := logging.WithTraceID(d.baseCtx, j.traceID)
	ctx = logging.WithEventID(ctx, j.env.ID)
	return logging.WithDelivery(ctx, j.ruleID, j.targetID())
}

func (d *Dispatcher) execute(j *job) {
	ctx := d.jobContext(j)

	if err := d.sem.Acquire(d.baseCtx, 1); err != nil {
		d.abandon(ctx, j)
		return
	}
	if d.isAbandoning() {
		d.sem.Release(1)
		d.abandon(ctx, j)
		return
	}

	if j.invocations == 0 && j.index+1 < len(j.targetIDs) {
		d.issueNext(ctx, j)
	}
	j.invocations++

	metrics.InFlightInvocations.Set(float64(d.inFlight.Add(1)))
	err := d.invoke(ctx, j)
	metrics.InFlightInvocations.Set(float64(d.inFlight.Add(-1)))
	d.sem.Release(1)

	d.settle(ctx, j, err)
}

// issueNext queues the envelope for the rule's next target.
func (d *Dispatcher) issueNext(ctx context.Context, j *job) {
	next := &job{
		ruleID:    j.ruleID,
		targetIDs: j.targetIDs,
		index:     j.index + 1,
		env:       j.env,
		traceID:   j.traceID,
	}

	d.mu.Lock()
	d.track(1)
	if d.abandoning {
		d.mu.Unlock()
		d.abandon(d.jobContext(next), next)
		return
	}
	d.enqueueLocked(next)
	d.mu.Unlock()
}

func (d *Dispatcher) invoke(ctx context.Context, j *job) (err error) {
	targetID := j.targetID()
	target, ok := d.targets.Get(targetID)
	if !ok {
		return targets.Permanent(fmt.Errorf("unknown target: %s", targetID))
	}

	ctx, span := tracing.StartSpan(ctx, "dispatch.invoke",
		attribute.String("rule.id", j.ruleID),
		attribute.String("target.id", targetID),
		attribute.Int("delivery.attempt", j.invocations),
	)
	invokeCtx, cancel := context.WithTimeout(ctx, d.timeout)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
		}
		cancel()
		metrics.ObserveTargetInvocation(targetID, string(targets.Classify(err)), time.Since(start))
		tracing.RecordError(span, err)
		span.End()
	}()

	return target.Invoke(invokeCtx, j.env)
}

func (d *Dispatcher) settle(ctx context.Context, j *job, err error) {
	switch targets.Classify(err) {
	case targets.OutcomeSuccess:
		if j.delivery != nil {
			d.retries.Succeeded(ctx, j.delivery)
		}
		d.finish()

	case targets.OutcomePermanent:
		d.logger.ErrorwCtx(ctx, "Delivery failed permanently",
			"attempts", j.invocations,
			"error", err,
		)
		if d.onFailed != nil {
			d.onFailed(ctx, Failure{
				RuleID:   j.ruleID,
				TargetID: j.targetID(),
				Envelope: j.env,
				Attempts: j.invocations,
				Err:      err,
			})
		}
		d.finish()

	default:
		if d.isAbandoning() {
			d.retries.Abandon(ctx, j.ruleID, j.targetID(), j.env, j.delivery, j.invocations, err.Error())
			d.finish()
			return
		}
		if j.delivery == nil {
			j.delivery = d.retries.Track(j.ruleID, j.targetID(), j.env)
		}
		if !d.retries.Fail(ctx, j.delivery, err, func() { d.requeue(j) }) {
			d.finish()
		}
	}
}

// requeue puts a delivery back on its lane once its backoff elapsed.
func (d *Dispatcher) requeue(j *job) {
	d.mu.Lock()
	if d.abandoning {
		d.mu.Unlock()
		d.abandon(d.jobContext(j), j)
		return
	}
	d.enqueueLocked(j)
	d.mu.Unlock()
}

func (d *Dispatcher) abandon(ctx context.Context, j *job) {
	d.retries.Abandon(ctx, j.ruleID, j.targetID(), j.env, j.delivery, j.invocations, abandonedAtShutdown)
	d.finish()
}

func (d *Dispatcher) isAbandoning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.abandoning
}

// Drain stops accepting envelopes and waits up to grace for outstanding
// deliveries, pending retries included. After that in-flight invocations
// are cancelled, and queued jobs and armed retries are abandoned. Every
// abandoned delivery is written to the dead-letter sink with reason
// shutdown_timeout, and ErrShutdownTimeout is returned.
func (d *Dispatcher) Drain(ctx context.Context, grace time.Duration) error {
	d.mu.Lock()
	d.draining = true
	d.mu.Unlock()

	d.logger.InfowCtx(ctx, "Draining dispatcher",
		"outstanding", d.outstanding.count(),
		"grace", grace,
	)

	select {
	case <-d.outstanding.wait():
		d.cancel()
		return nil
	default:
	}

	timer := d.clock.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-d.outstanding.wait():
		d.logger.InfowCtx(ctx, "Dispatcher drained")
		d.cancel()
		return nil
	case <-timer.Chan():
	case <-ctx.Done():
	}

	d.mu.Lock()
	d.abandoning = true
	var queued []*job
	for _, l := range d.lanes {
		queued = append(queued, l.queue...)
		l.queue = nil
	}
	d.mu.Unlock()

	d.cancel()

	for _, j := range queued {
		d.abandon(d.jobContext(j), j)
	}
	pending := d.retries.AbandonPending(ctx)
	for i := 0; i < pending; i++ {
		d.finish()
	}

	abandoned := len(queued) + pending
	d.logger.WarnwCtx(ctx, "Drain grace expired, abandoning deliveries",
		"queued", len(queued),
		"pending_retries", pending,
		"in_flight", d.inFlight.Load(),
	)

	// Cancelled invocations record themselves as they return.
	select {
	case <-d.outstanding.wait():
	case <-ctx.Done():
	}

	return errors.ErrShutdownTimeout.WithDetail("abandoned", abandoned)
}

func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	lanes := len(d.lanes)
	draining := d.draining
	d.mu.Unlock()

	return Stats{
		Outstanding:    d.outstanding.count(),
		InFlight:       int(d.inFlight.Load()),
		Lanes:          lanes,
		PendingRetries: d.retries.Pending(),
		Draining:       draining,
	}
}

// Healthy fails once the dispatcher is draining.
func (d *Dispatcher) Healthy(ctx context.Context) error {
	if d.isDraining() {
		return errors.ErrDraining
	}
	return nil
}
