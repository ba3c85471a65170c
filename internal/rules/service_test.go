package rules

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventrouter/internal/config"
	"eventrouter/internal/logger"
	apperrors "eventrouter/pkg/errors"
	"eventrouter/pkg/models"
	"eventrouter/pkg/pattern"
)

type memoryRepository struct {
	mu      sync.Mutex
	records []Record
	listErr error
}

func (m *memoryRepository) List(ctx context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]Record(nil), m.records...), nil
}

func (m *memoryRepository) Get(ctx context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			rec := r
			return &rec, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *memoryRepository) Create(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == rec.ID {
			return apperrors.ErrConflict
		}
	}
	m.records = append(m.records, *rec)
	return nil
}

func (m *memoryRepository) Update(ctx context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.records {
		if r.ID == rec.ID {
			m.records[i] = *rec
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *memoryRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.records {
		if r.ID == id {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) NotifyConfigChange(ctx context.Context, eventType, action, resourceID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, eventType+":"+action+":"+resourceID)
	return nil
}

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	return NewService(newTestRegistry(t), repo, config.RulesConfig{}, logger.NopLogger())
}

func TestService_LoadConfigRules(t *testing.T) {
	svc := newTestService(t, nil)

	err := svc.LoadConfigRules([]config.RuleConfig{
		{
			ID:      "ec2-instance-change",
			Pattern: `{"source": ["aws.ec2"], "detail": {"state": ["stopped", "terminated"]}}`,
			Targets: []string{"handler"},
		},
		{
			ID:       "disabled",
			Pattern:  `{"source": ["aws.ec2"]}`,
			Targets:  []string{"handler"},
			Disabled: true,
		},
	})
	require.NoError(t, err)

	matched := svc.Registry().Find(context.Background(), ec2Event("terminated"))
	require.Len(t, matched, 1)
	assert.Equal(t, OriginConfig, matched[0].Origin)
	assert.Equal(t, []string{"handler"}, matched[0].TargetIDs())
}

func TestService_LoadConfigRulesRejectsMalformedPattern(t *testing.T) {
	svc := newTestService(t, nil)

	err := svc.LoadConfigRules([]config.RuleConfig{
		{ID: "ok", Pattern: `{"source": ["a"]}`, Targets: []string{"t"}},
		{ID: "bad", Pattern: `{"sauce": ["a"]}`, Targets: []string{"t"}},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, 0, svc.Registry().Len())
}

func TestService_CreateUpdateDeleteInMemory(t *testing.T) {
	svc := newTestService(t, nil)
	notifier := &recordingNotifier{}
	svc.WithNotifier(notifier)
	ctx := context.Background()

	created, err := svc.Create(ctx, testRule("r1", `{"source": ["aws.s3"]}`))
	require.NoError(t, err)
	assert.Equal(t, OriginAPI, created.Origin)

	_, err = svc.Create(ctx, testRule("r1", `{"source": ["aws.s3"]}`))
	assert.True(t, apperrors.IsConflict(err))

	updated, err := svc.Update(ctx, testRule("r1", `{"source": ["aws.ec2"]}`, "t2"))
	require.NoError(t, err)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	assert.Equal(t, []string{"t2"}, updated.TargetIDs())

	_, err = svc.Update(ctx, testRule("missing", `{"source": ["x"]}`))
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, svc.Delete(ctx, "r1"))
	assert.True(t, apperrors.IsNotFound(svc.Delete(ctx, "r1")))

	assert.Equal(t, []string{
		"rule_updated:create:r1",
		"rule_updated:update:r1",
		"rule_updated:delete:r1",
	}, notifier.events)
}

func TestService_ProtectsNonWritableRules(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.LoadConfigRules([]config.RuleConfig{
		{ID: "cfg", Pattern: `{"source": ["a"]}`, Targets: []string{"t"}},
	}))

	_, err := svc.Update(ctx, testRule("cfg", `{"source": ["b"]}`))
	assert.True(t, apperrors.IsConflict(err))
	assert.True(t, apperrors.IsConflict(svc.Delete(ctx, "cfg")))

	_, err = svc.Create(ctx, testRule(ScheduleRulePrefix+"nightly", `{"source": ["scheduler"]}`))
	assert.True(t, apperrors.IsValidation(err))
}

func TestService_CreatePersistsToRepository(t *testing.T) {
	repo := &memoryRepository{}
	svc := newTestService(t, repo)
	ctx := context.Background()

	rule := testRule("stored", `{"source": ["aws.signin"]}`)
	rule.Condition = `region == "eu-west-1"`
	created, err := svc.Create(ctx, rule)
	require.NoError(t, err)
	assert.Equal(t, OriginStore, created.Origin)

	require.Len(t, repo.records, 1)
	rec := repo.records[0]
	assert.Equal(t, "stored", rec.ID)
	assert.JSONEq(t, `{"source": ["aws.signin"]}`, string(rec.Pattern))
	assert.Equal(t, `region == "eu-west-1"`, rec.Condition)
	assert.Equal(t, []string{"t1"}, rec.Targets)

	require.NoError(t, svc.Delete(ctx, "stored"))
	assert.Empty(t, repo.records)
}

func TestService_ReloadRules(t *testing.T) {
	repo := &memoryRepository{records: []Record{
		{ID: "a", Pattern: json.RawMessage(`{"source": ["aws.ec2"]}`), Targets: []string{"t1"}, Enabled: true},
		{ID: "broken", Pattern: json.RawMessage(`{"source": "aws.ec2"}`), Targets: []string{"t1"}, Enabled: true},
		{ID: "b", Pattern: json.RawMessage(`{"source": ["aws.s3"]}`), Targets: []string{"t1"}, Enabled: true},
	}}
	svc := newTestService(t, repo)
	ctx := context.Background()

	require.NoError(t, svc.ReloadRules(ctx, true))
	assert.Equal(t, 2, svc.Registry().Len())

	repo.records = repo.records[:1]
	require.NoError(t, svc.ReloadRules(ctx, true))
	assert.Equal(t, 1, svc.Registry().Len())

	repo.listErr = assert.AnError
	assert.Error(t, svc.ReloadRules(ctx, true))
	assert.Equal(t, 1, svc.Registry().Len())
}

func TestService_ReloadWithoutRepositoryIsNoop(t *testing.T) {
	svc := newTestService(t, nil)
	_, err := svc.Registry().Add(testRule("keep", `{"source": ["x"]}`))
	require.NoError(t, err)

	require.NoError(t, svc.ReloadRules(context.Background()))
	assert.Equal(t, 1, svc.Registry().Len())
}

func TestTestPattern(t *testing.T) {
	env := ec2Event("stopped")

	ok, err := TestPattern([]byte(`{"detail": {"state": ["stopped"]}}`), env)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = TestPattern([]byte(`{"detail": {"state": [{"anything-but": ["stopped"]}]}}`), env)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = TestPattern([]byte(`{"detail": {"state": []}}`), env)
	assert.True(t, apperrors.IsValidation(err))
}

func TestFromConfig(t *testing.T) {
	rule, err := FromConfig(config.RuleConfig{
		ID:        "s3-put-object",
		Name:      "S3PutObjectRule",
		Pattern:   `{"source": ["aws.s3"], "detail-type": ["Object Created"], "detail": {"bucket": {"name": ["demo"]}}}`,
		Condition: `detail.object.size > 0.0`,
		Targets:   []string{"a", "b"},
	})
	require.NoError(t, err)
	assert.False(t, rule.Disabled)
	assert.Equal(t, []string{"a", "b"}, rule.TargetIDs())

	env := models.NewEnvelopeBuilder().
		WithSource("aws.s3").
		WithDetailType("Object Created").
		WithDetail(map[string]interface{}{"bucket": map[string]interface{}{"name": "demo"}}).
		Build()
	assert.True(t, pattern.Matches(rule.Pattern, env))
}
