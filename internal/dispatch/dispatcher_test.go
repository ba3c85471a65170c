package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventrouter/internal/deadletter"
	"eventrouter/internal/dedup"
	"eventrouter/internal/logger"
	"eventrouter/internal/rules"
	"eventrouter/internal/targets"
	apperrors "eventrouter/pkg/errors"
	"eventrouter/pkg/models"
	"eventrouter/pkg/pattern"
)

type fixture struct {
	rules    *rules.Registry
	targets  *targets.Registry
	sink     *deadletter.MemorySink
	retries  *deadletter.Handler
	dispatch *Dispatcher
}

func newFixture(t *testing.T, clock clockwork.Clock, policy deadletter.Policy, opts Options) *fixture {
	t.Helper()

	reg, err := rules.NewRegistry(logger.NopLogger())
	require.NoError(t, err)

	sink := deadletter.NewMemorySink(100)
	retries := deadletter.NewHandler(policy, sink, logger.NopLogger(), deadletter.WithClock(clock))

	opts.Clock = clock
	tr := targets.NewRegistry()
	f := &fixture{
		rules:   reg,
		targets: tr,
		sink:    sink,
		retries: retries,
	}
	f.dispatch = New(reg, tr, retries, logger.NopLogger(), opts)
	t.Cleanup(func() {
		_ = f.dispatch.Drain(context.Background(), 0)
	})
	return f
}

func (f *fixture) addRule(t *testing.T, id, source string, targetIDs ...string) {
	t.Helper()
	_, err := f.rules.Add(rules.Rule{
		ID:      id,
		Pattern: pattern.MustCompile(fmt.Sprintf(`{"source": [%q]}`, source)),
		Targets: rules.Targets(targetIDs...),
		Origin:  rules.OriginAPI,
	})
	require.NoError(t, err)
}

func (f *fixture) addTarget(t *testing.T, id string, fn func(ctx context.Context, env models.Envelope) error) {
	t.Helper()
	require.NoError(t, f.targets.Register("func", targets.NewFunc(id, fn)))
}

func envelope(source string, seq int) models.Envelope {
	return models.NewEnvelopeBuilder().
		WithSource(source).
		WithDetailType("Test Event").
		WithDetail(map[string]interface{}{"seq": seq}).
		Build()
}

func seqOf(env models.Envelope) int {
	switch v := env.Detail["seq"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return -1
}

func records(t *testing.T, sink *deadletter.MemorySink) []models.DeliveryAttempt {
	t.Helper()
	out, err := sink.List(context.Background(), 100, 0)
	require.NoError(t, err)
	return out
}

func TestDispatcher_LaneIsFIFOAndSerial(t *testing.T) {
	f := newFixture(t, clockwork.NewRealClock(), deadletter.DefaultPolicy(), Options{MaxConcurrency: 8})

	var (
		mu       sync.Mutex
		order    []int
		active   atomic.Int32
		overlaps atomic.Int32
	)
	f.addTarget(t, "sink", func(ctx context.Context, env models.Envelope) error {
		if active.Add(1) > 1 {
			overlaps.Add(1)
		}
		defer active.Add(-1)
		time.Sleep(time.Millisecond)
		mu.Lock()
		order = append(order, seqOf(env))
		mu.Unlock()
		return nil
	})
	f.addRule(t, "all", "app.orders", "sink")

	var (
		submitMu  sync.Mutex
		submitted []int
		wg        sync.WaitGroup
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(seq int) {
			defer wg.Done()
			submitMu.Lock()
			defer submitMu.Unlock()
			_, err := f.dispatch.Submit(context.Background(), envelope("app.orders", seq))
			assert.NoError(t, err)
			submitted = append(submitted, seq)
		}(i)
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 100
	}, 5*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, submitted, order)
	assert.Zero(t, overlaps.Load())
}

func TestDispatcher_TargetsInDeclarationOrder(t *testing.T) {
	f := newFixture(t, clockwork.NewRealClock(), deadletter.DefaultPolicy(), Options{MaxConcurrency: 1})

	var (
		mu    sync.Mutex
		calls []string
	)
	record := func(id string) func(context.Context, models.Envelope) error {
		return func(ctx context.Context, env models.Envelope) error {
			mu.Lock()
			calls = append(calls, id)
			mu.Unlock()
			return nil
		}
	}
	f.addTarget(t, "first", record("first"))
	f.addTarget(t, "second", record("second"))
	f.addTarget(t, "third", record("third"))
	f.addRule(t, "fanout", "app.users", "first", "second", "third")

	receipt, err := f.dispatch.Submit(context.Background(), envelope("app.users", 1))
	require.NoError(t, err)
	assert.Equal(t, []string{"fanout"}, receipt.MatchedRules)
	assert.Equal(t, 1, receipt.Deliveries)

	require.Eventually(t, func() bool {
		return f.dispatch.Stats().Outstanding == 0
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"first", "second", "third"}, calls)
}

func TestDispatcher_NoMatch(t *testing.T) {
	f := newFixture(t, clockwork.NewRealClock(), deadletter.DefaultPolicy(), Options{})
	f.addTarget(t, "sink", func(ctx context.Context, env models.Envelope) error { return nil })
	f.addRule(t, "orders", "app.orders", "sink")

	receipt, err := f.dispatch.Submit(context.Background(), envelope("app.billing", 1))
	require.NoError(t, err)
	assert.Empty(t, receipt.MatchedRules)
	assert.Zero(t, receipt.Deliveries)
	assert.Zero(t, f.dispatch.Stats().Outstanding)
}

func TestDispatcher_RejectsInvalidEnvelope(t *testing.T) {
	f := newFixture(t, clockwork.NewRealClock(), deadletter.DefaultPolicy(), Options{})

	_, err := f.dispatch.Submit(context.Background(), models.Envelope{DetailType: "x"})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
}

func TestDispatcher_TransientRetriesThenDeadLetters(t *testing.T) {
	clock := clockwork.NewFakeClock()
	policy := deadletter.Policy{BaseDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute, MaxAttempts: 3}
	f := newFixture(t, clock, policy, Options{})

	var (
		mu      sync.Mutex
		invoked []time.Time
	)
	f.addTarget(t, "flaky", func(ctx context.Context, env models.Envelope) error {
		mu.Lock()
		invoked = append(invoked, clock.Now())
		mu.Unlock()
		return errors.New("connection refused")
	})
	f.addRule(t, "orders", "app.orders", "flaky")

	start := clock.Now()
	_, err := f.dispatch.Submit(context.Background(), envelope("app.orders", 1))
	require.NoError(t, err)

	// The retry timer is the only waiter on the clock.
	waitPending := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
	}

	waitPending()
	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(invoked) == 2
	}, 2*time.Second, time.Millisecond)

	waitPending()
	clock.Advance(2 * time.Second)

	require.Eventually(t, func() bool { return f.sink.Len() == 1 }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return f.dispatch.Stats().Outstanding == 0 }, 2*time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, []time.Time{start, start.Add(time.Second), start.Add(3 * time.Second)}, invoked)
	mu.Unlock()

	got := records(t, f.sink)
	require.Len(t, got, 1)
	assert.Equal(t, "orders", got[0].RuleID)
	assert.Equal(t, "flaky", got[0].TargetID)
	assert.Equal(t, 3, got[0].AttemptCount)
	assert.Equal(t, models.ReasonRetryExhausted, got[0].Reason)
	assert.Equal(t, "connection refused", got[0].LastError)
}

func TestDispatcher_PermanentFailureNotRetried(t *testing.T) {
	var failures []Failure
	var mu sync.Mutex
	f := newFixture(t, clockwork.NewRealClock(), deadletter.DefaultPolicy(), Options{
		OnPermanent: func(ctx context.Context, fl Failure) {
			mu.Lock()
			failures = append(failures, fl)
			mu.Unlock()
		},
	})

	var calls atomic.Int32
	f.addTarget(t, "strict", func(ctx context.Context, env models.Envelope) error {
		calls.Add(1)
		return targets.Permanent(errors.New("bad request"))
	})
	f.addRule(t, "orders", "app.orders", "strict")

	_, err := f.dispatch.Submit(context.Background(), envelope("app.orders", 1))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.dispatch.Stats().Outstanding == 0 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.Zero(t, f.retries.Pending())
	assert.Zero(t, f.sink.Len())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failures, 1)
	assert.Equal(t, "strict", failures[0].TargetID)
	assert.Equal(t, 1, failures[0].Attempts)
}

func TestDispatcher_PanicAndUnknownTargetArePermanent(t *testing.T) {
	var failed atomic.Int32
	f := newFixture(t, clockwork.NewRealClock(), deadletter.DefaultPolicy(), Options{
		OnPermanent: func(ctx context.Context, fl Failure) { failed.Add(1) },
	})

	f.addTarget(t, "boom", func(ctx context.Context, env models.Envelope) error {
		panic("nil map")
	})
	f.addRule(t, "panics", "app.orders", "boom")
	f.addRule(t, "missing", "app.orders", "does-not-exist")

	receipt, err := f.dispatch.Submit(context.Background(), envelope("app.orders", 1))
	require.NoError(t, err)
	assert.Equal(t, 2, receipt.Deliveries)

	require.Eventually(t, func() bool { return failed.Load() == 2 }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return f.dispatch.Stats().Outstanding == 0 }, 2*time.Second, time.Millisecond)
	assert.Zero(t, f.retries.Pending())
}

func TestDispatcher_DrainWaitsForOutstanding(t *testing.T) {
	f := newFixture(t, clockwork.NewRealClock(), deadletter.DefaultPolicy(), Options{})

	release := make(chan struct{})
	var done atomic.Bool
	f.addTarget(t, "slow", func(ctx context.Context, env models.Envelope) error {
		<-release
		done.Store(true)
		return nil
	})
	f.addRule(t, "orders", "app.orders", "slow")

	_, err := f.dispatch.Submit(context.Background(), envelope("app.orders", 1))
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()

	require.NoError(t, f.dispatch.Drain(context.Background(), 5*time.Second))
	assert.True(t, done.Load())
	assert.Zero(t, f.sink.Len())

	_, err = f.dispatch.Submit(context.Background(), envelope("app.orders", 2))
	assert.True(t, apperrors.IsDraining(err))
	assert.Error(t, f.dispatch.Healthy(context.Background()))
}

func TestDispatcher_DrainGraceExpiredAbandons(t *testing.T) {
	clock := clockwork.NewFakeClock()
	policy := deadletter.Policy{BaseDelay: time.Minute, Multiplier: 2, MaxDelay: time.Hour, MaxAttempts: 5}
	f := newFixture(t, clock, policy, Options{})

	started := make(chan struct{}, 1)
	f.addTarget(t, "blocking", func(ctx context.Context, env models.Envelope) error {
		started <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	})
	f.addTarget(t, "failing", func(ctx context.Context, env models.Envelope) error {
		return errors.New("503 from upstream")
	})
	f.addRule(t, "block", "app.block", "blocking")
	f.addRule(t, "flaky", "app.flaky", "failing")

	ctx := context.Background()
	_, err := f.dispatch.Submit(ctx, envelope("app.block", 1))
	require.NoError(t, err)
	<-started
	_, err = f.dispatch.Submit(ctx, envelope("app.block", 2))
	require.NoError(t, err)
	_, err = f.dispatch.Submit(ctx, envelope("app.flaky", 3))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.retries.Pending() == 1 }, 2*time.Second, time.Millisecond)

	drained := make(chan error, 1)
	go func() {
		drained <- f.dispatch.Drain(ctx, 30*time.Second)
	}()

	// One armed retry plus the drain timer.
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 2))
	clock.Advance(30 * time.Second)

	select {
	case err := <-drained:
		require.Error(t, err)
		assert.True(t, apperrors.IsShutdownTimeout(err))
	case <-time.After(2 * time.Second):
		t.Fatal("drain did not return")
	}

	got := records(t, f.sink)
	require.Len(t, got, 3)
	seqs := map[int]bool{}
	for _, r := range got {
		assert.Equal(t, models.ReasonShutdownTimeout, r.Reason)
		seqs[seqOf(r.Envelope)] = true
	}
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, seqs)
	assert.Zero(t, f.dispatch.Stats().Outstanding)
}

func TestTracker(t *testing.T) {
	tr := newTracker()

	select {
	case <-tr.wait():
	default:
		t.Fatal("new tracker should be idle")
	}

	tr.add(2)
	idle := tr.wait()
	tr.add(-1)
	select {
	case <-idle:
		t.Fatal("tracker idle with work outstanding")
	default:
	}
	tr.add(-1)
	<-idle
	assert.Zero(t, tr.count())
}

// drainingDedup starts draining the dispatcher between the dedup claim and
// the enqueue, the window in which Submit must give the claim back.
type drainingDedup struct {
	*dedup.Service
	dispatch *Dispatcher
}

func (d *drainingDedup) IsDuplicate(ctx context.Context, env models.Envelope) (bool, error) {
	dup, err := d.Service.IsDuplicate(ctx, env)
	if err == nil && !dup {
		err = d.dispatch.Drain(ctx, 0)
	}
	return dup, err
}

func TestDispatcher_DrainingReleasesDedupClaim(t *testing.T) {
	svc := dedup.NewService(dedup.NewMemoryStore(nil), time.Hour, "deny", logger.NopLogger())
	racing := &drainingDedup{Service: svc}
	f := newFixture(t, clockwork.NewRealClock(), deadletter.DefaultPolicy(), Options{Deduplicator: racing})
	racing.dispatch = f.dispatch
	f.addTarget(t, "sink", func(ctx context.Context, env models.Envelope) error { return nil })
	f.addRule(t, "orders", "app.orders", "sink")

	ctx := context.Background()
	env := envelope("app.orders", 1)
	_, err := f.dispatch.Submit(ctx, env)
	require.True(t, apperrors.IsDraining(err))

	// A redelivery to another replica sharing the store must not be a duplicate.
	dup, err := svc.IsDuplicate(ctx, env)
	require.NoError(t, err)
	assert.False(t, dup)
}
