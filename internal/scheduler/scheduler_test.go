package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventrouter/internal/dispatch"
	"eventrouter/internal/logger"
	"eventrouter/internal/rules"
	apperrors "eventrouter/pkg/errors"
	"eventrouter/pkg/models"
)

type recordingSubmitter struct {
	mu   sync.Mutex
	envs []models.Envelope
}

func (r *recordingSubmitter) Submit(ctx context.Context, env models.Envelope) (dispatch.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	return dispatch.Receipt{EventID: env.ID, Deliveries: 1}, nil
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.envs)
}

func (r *recordingSubmitter) all() []models.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Envelope(nil), r.envs...)
}

func waitForTimer(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, n))
}

func newTestScheduler(t *testing.T, ruleSink RuleSink) (*Scheduler, *recordingSubmitter, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	sub := &recordingSubmitter{}
	s := New(sub, ruleSink, logger.NopLogger(), WithClock(clock))
	t.Cleanup(s.Stop)
	return s, sub, clock
}

func TestScheduler_FiveMinuteRateOverTwentyMinutes(t *testing.T) {
	s, sub, clock := newTestScheduler(t, nil)
	start := clock.Now()

	require.NoError(t, s.Add(Schedule{ID: "every-5m", Cadence: "rate(5 minutes)", Target: "log", Enabled: true}))
	s.Start(context.Background())

	for i := 1; i <= 4; i++ {
		waitForTimer(t, clock, 1)
		clock.Advance(5 * time.Minute)
		require.Eventually(t, func() bool { return sub.count() == i }, 2*time.Second, time.Millisecond)
	}
	waitForTimer(t, clock, 1)

	envs := sub.all()
	require.Len(t, envs, 4)
	for i, env := range envs {
		assert.Equal(t, models.SourceScheduler, env.Source)
		assert.Equal(t, models.DetailTypeScheduledEvent, env.DetailType)
		assert.Equal(t, []string{"every-5m"}, env.Resources)
		assert.Empty(t, env.Detail)
		assert.Equal(t, start.Add(time.Duration(i+1)*5*time.Minute), env.Time)
	}

	info, ok := s.Get("every-5m")
	require.True(t, ok)
	assert.Equal(t, int64(4), info.Fired)
	assert.Equal(t, start.Add(25*time.Minute), info.NextTickAt)
}

func TestScheduler_FireImmediately(t *testing.T) {
	s, sub, clock := newTestScheduler(t, nil)

	require.NoError(t, s.Add(Schedule{ID: "now", Cadence: "2m", Target: "log", FireImmediately: true, Enabled: true}))
	s.Start(context.Background())

	waitForTimer(t, clock, 1)
	assert.Equal(t, 1, sub.count())
}

func TestScheduler_PausedTicksAreDropped(t *testing.T) {
	s, sub, clock := newTestScheduler(t, nil)

	require.NoError(t, s.Add(Schedule{ID: "tick", Cadence: "rate(1 minute)", Target: "log", Enabled: true}))
	s.Start(context.Background())

	s.Pause()
	for i := 0; i < 3; i++ {
		waitForTimer(t, clock, 1)
		clock.Advance(time.Minute)
	}
	waitForTimer(t, clock, 1)
	assert.Zero(t, sub.count())

	s.Resume()
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return sub.count() == 1 }, 2*time.Second, time.Millisecond)

	info, _ := s.Get("tick")
	assert.Equal(t, int64(3), info.Dropped)
	assert.Equal(t, int64(1), info.Fired)
}

func TestScheduler_PauseSingleSchedule(t *testing.T) {
	s, sub, clock := newTestScheduler(t, nil)

	require.NoError(t, s.Add(Schedule{ID: "a", Cadence: "1m", Target: "log", Enabled: true}))
	require.NoError(t, s.Add(Schedule{ID: "b", Cadence: "1m", Target: "log", Enabled: true}))
	require.NoError(t, s.PauseSchedule("a"))
	s.Start(context.Background())

	waitForTimer(t, clock, 2)
	clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return sub.count() == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, []string{"b"}, sub.all()[0].Resources)

	assert.True(t, apperrors.IsNotFound(s.PauseSchedule("missing")))
}

func TestScheduler_RemoveStopsTicks(t *testing.T) {
	s, sub, clock := newTestScheduler(t, nil)

	require.NoError(t, s.Add(Schedule{ID: "gone", Cadence: "1m", Target: "log", Enabled: true}))
	s.Start(context.Background())
	waitForTimer(t, clock, 1)

	assert.True(t, s.Remove("gone"))
	assert.False(t, s.Remove("gone"))
	clock.Advance(5 * time.Minute)

	assert.Never(t, func() bool { return sub.count() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.Empty(t, s.List())
}

func TestScheduler_AddValidates(t *testing.T) {
	s, _, _ := newTestScheduler(t, nil)

	tests := []struct {
		name  string
		sched Schedule
	}{
		{"missing id", Schedule{Cadence: "1m", Target: "t"}},
		{"missing target", Schedule{ID: "x", Cadence: "1m"}},
		{"bad cadence", Schedule{ID: "x", Cadence: "every tuesday", Target: "t"}},
		{"negative duration", Schedule{ID: "x", Cadence: "-5m", Target: "t"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Add(tt.sched)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})
	}

	require.NoError(t, s.Add(Schedule{ID: "dup", Cadence: "1m", Target: "t"}))
	assert.True(t, apperrors.IsConflict(s.Add(Schedule{ID: "dup", Cadence: "1m", Target: "t"})))
}

func TestScheduler_ImplicitRules(t *testing.T) {
	reg, err := rules.NewRegistry(logger.NopLogger())
	require.NoError(t, err)
	s, _, _ := newTestScheduler(t, reg)

	require.NoError(t, s.Add(Schedule{ID: "nightly", Cadence: "cron(0 2 * * ? *)", Target: "report", Enabled: true}))
	require.NoError(t, s.Add(Schedule{ID: "poll", Cadence: "rate(2 minutes)", Target: "log", Enabled: true}))

	rule, ok := reg.Get("schedule:nightly")
	require.True(t, ok)
	assert.Equal(t, rules.OriginSchedule, rule.Origin)
	assert.Equal(t, []string{"report"}, rule.TargetIDs())

	matched := reg.Find(context.Background(), TickEnvelope("poll", time.Now()))
	require.Len(t, matched, 1)
	assert.Equal(t, "schedule:poll", matched[0].ID)

	require.True(t, s.Remove("poll"))
	_, ok = reg.Get("schedule:poll")
	assert.False(t, ok)
	assert.Empty(t, reg.Find(context.Background(), TickEnvelope("poll", time.Now())))
}

func TestParseCadence(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 7, 30, 0, time.UTC) // a Friday

	tests := []struct {
		cadence string
		next    time.Time
		wantErr bool
	}{
		{cadence: "rate(5 minutes)", next: base.Add(5 * time.Minute)},
		{cadence: "rate(1 hour)", next: base.Add(time.Hour)},
		{cadence: "rate(2 days)", next: base.Add(48 * time.Hour)},
		{cadence: "90s", next: base.Add(90 * time.Second)},
		{cadence: "cron(0/5 * * * ? *)", next: time.Date(2024, 3, 1, 10, 10, 0, 0, time.UTC)},
		{cadence: "cron(0 12 ? * 2 *)", next: time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)},
		{cadence: "cron(30 9 1 * ? *)", next: time.Date(2024, 4, 1, 9, 30, 0, 0, time.UTC)},
		{cadence: "rate(0 minutes)", wantErr: true},
		{cadence: "rate(5 fortnights)", wantErr: true},
		{cadence: "cron(* * * *)", wantErr: true},
		{cadence: "cron(0 12 ? * 9 *)", wantErr: true},
		{cadence: "", wantErr: true},
		{cadence: "0s", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.cadence, func(t *testing.T) {
			c, err := ParseCadence(tt.cadence)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.next, c.Next(base))
			assert.Equal(t, tt.cadence, c.String())
		})
	}
}
