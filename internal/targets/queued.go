package targets

import (
	"context"
	"fmt"
	"sync"

	"eventrouter/internal/logger"
	"eventrouter/pkg/errors"
	"eventrouter/pkg/logging"
	"eventrouter/pkg/models"
)

var (
	ErrQueueFull    = fmt.Errorf("target queue is full")
	ErrQueueStopped = fmt.Errorf("target queue is stopped")
)

// AbandonFunc receives an envelope a queued target accepted but could not
// finish before it was stopped. attempts is 1 when the handler was running.
type AbandonFunc func(ctx context.Context, ruleID, targetID string, env models.Envelope, attempts int, cause string)

type queuedItem struct {
	env     models.Envelope
	ruleID  string
	traceID string
}

// Queued accepts envelopes into a bounded buffer and hands them to fn on
// background workers. Invoke succeeds once the envelope is buffered, so
// failures of fn are logged rather than retried. With one worker, fn sees
// envelopes in the order they were buffered.
//
// The workers run on the target's own context: they keep going until Stop,
// which lets them finish the buffer until its ctx expires and hands
// whatever is left to the abandon callback.
type Queued struct {
	id      string
	fn      func(ctx context.Context, env models.Envelope) error
	workers int
	abandon AbandonFunc
	logger  logger.Logger

	mu      sync.Mutex
	queue   chan queuedItem
	stopped bool

	runCtx    context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	wg        sync.WaitGroup
}

func NewQueued(id string, capacity, workers int, fn func(ctx context.Context, env models.Envelope) error, abandon AbandonFunc, log logger.Logger) *Queued {
	if capacity <= 0 {
		capacity = 1
	}
	if workers <= 0 {
		workers = 1
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &Queued{
		id:      id,
		fn:      fn,
		queue:   make(chan queuedItem, capacity),
		workers: workers,
		abandon: abandon,
		logger:  log,
		runCtx:  runCtx,
		cancel:  cancel,
	}
}

func (q *Queued) ID() string { return q.id }

func (q *Queued) Invoke(ctx context.Context, env models.Envelope) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrQueueStopped
	}
	item := queuedItem{env: env.Clone(), ruleID: logging.GetRuleID(ctx), traceID: logging.GetTraceID(ctx)}
	select {
	case q.queue <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Start launches the workers.
func (q *Queued) Start() {
	q.startOnce.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go q.work()
		}
	})
}

func (q *Queued) work() {
	defer q.wg.Done()
	for {
		// Once cancelled, Stop owns the rest of the buffer.
		if q.runCtx.Err() != nil {
			return
		}
		select {
		case <-q.runCtx.Done():
			return
		case item, ok := <-q.queue:
			if !ok {
				return
			}
			if q.runCtx.Err() != nil {
				q.giveUp(item, 0, "queued target stopped before handling envelope")
				continue
			}
			q.run(item)
		}
	}
}

func (q *Queued) itemContext(item queuedItem) context.Context {
	ctx := logging.WithTraceID(q.runCtx, item.traceID)
	ctx = logging.WithEventID(ctx, item.env.ID)
	return logging.WithDelivery(ctx, item.ruleID, q.id)
}

func (q *Queued) run(item queuedItem) {
	ctx := q.itemContext(item)
	defer func() {
		if r := recover(); r != nil {
			q.logger.ErrorwCtx(ctx, "Queued target handler panicked", "error", errors.RecoverPanic(r))
		}
	}()
	if err := q.fn(ctx, item.env); err != nil {
		if q.runCtx.Err() != nil {
			q.giveUp(item, 1, err.Error())
			return
		}
		q.logger.ErrorwCtx(ctx, "Queued target handler failed", "error", err)
	}
}

func (q *Queued) giveUp(item queuedItem, attempts int, cause string) {
	ctx := logging.WithDelivery(logging.WithEventID(context.Background(), item.env.ID), item.ruleID, q.id)
	if q.abandon == nil {
		q.logger.WarnwCtx(ctx, "Queued envelope dropped at shutdown", "cause", cause)
		return
	}
	q.abandon(ctx, item.ruleID, q.id, item.env, attempts, cause)
}

// Stop refuses new envelopes and lets the workers finish the buffer until
// ctx is done. It then cancels the running handlers and abandons every
// envelope still buffered. It returns the number abandoned from the buffer.
func (q *Queued) Stop(ctx context.Context) int {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return 0
	}
	q.stopped = true
	close(q.queue)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
	q.cancel()

	abandoned := 0
	for item := range q.queue {
		q.giveUp(item, 0, "queued target stopped before handling envelope")
		abandoned++
	}
	if abandoned > 0 {
		q.logger.WarnwCtx(ctx, "Queued target stopped with pending envelopes", "target_id", q.id, "abandoned", abandoned)
	}
	return abandoned
}

// Wait blocks until all workers have exited.
func (q *Queued) Wait() {
	q.wg.Wait()
}
