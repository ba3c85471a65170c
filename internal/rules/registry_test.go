package rules

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventrouter/internal/logger"
	apperrors "eventrouter/pkg/errors"
	"eventrouter/pkg/models"
	"eventrouter/pkg/pattern"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(logger.NopLogger())
	require.NoError(t, err)
	return reg
}

func testRule(id, doc string, targets ...string) Rule {
	if len(targets) == 0 {
		targets = []string{"t1"}
	}
	return Rule{
		ID:      id,
		Pattern: pattern.MustCompile(doc),
		Targets: Targets(targets...),
		Origin:  OriginAPI,
	}
}

func ec2Event(state string) models.Envelope {
	return models.NewEnvelopeBuilder().
		WithSource("aws.ec2").
		WithDetailType("EC2 Instance State-change Notification").
		WithDetail(map[string]interface{}{"state": state, "instance-id": "i-123"}).
		Build()
}

func TestRegistry_AddAndFind(t *testing.T) {
	reg := newTestRegistry(t)

	id, err := reg.Add(testRule("ec2", `{"source": ["aws.ec2"], "detail": {"state": ["stopped", "terminated"]}}`))
	require.NoError(t, err)
	assert.Equal(t, "ec2", id)

	_, err = reg.Add(testRule("s3", `{"source": ["aws.s3"]}`))
	require.NoError(t, err)

	matched := reg.Find(context.Background(), ec2Event("stopped"))
	require.Len(t, matched, 1)
	assert.Equal(t, "ec2", matched[0].ID)

	assert.Empty(t, reg.Find(context.Background(), ec2Event("running")))
}

func TestRegistry_AddedRuleIsActiveByDefault(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Add(Rule{ID: "plain", Pattern: pattern.MustCompile(`{"source": ["aws.ec2"]}`), Targets: Targets("t1")})
	require.NoError(t, err)

	matched := reg.Find(context.Background(), ec2Event("stopped"))
	require.Len(t, matched, 1)
	assert.Equal(t, "plain", matched[0].ID)
}

func TestRegistry_AddGeneratesID(t *testing.T) {
	reg := newTestRegistry(t)

	id, err := reg.Add(testRule("", `{"source": ["a"]}`))
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	rule, ok := reg.Get(id)
	require.True(t, ok)
	assert.False(t, rule.CreatedAt.IsZero())
}

func TestRegistry_AddRejectsDuplicates(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Add(testRule("dup", `{"source": ["a"]}`))
	require.NoError(t, err)

	_, err = reg.Add(testRule("dup", `{"source": ["b"]}`))
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_AddRejectsMalformed(t *testing.T) {
	reg := newTestRegistry(t)

	tests := []struct {
		name string
		rule Rule
	}{
		{name: "missing pattern", rule: Rule{ID: "r", Targets: Targets("t1")}},
		{name: "no targets", rule: Rule{ID: "r", Pattern: pattern.MustCompile(`{"source": ["a"]}`)}},
		{name: "empty target id", rule: Rule{ID: "r", Pattern: pattern.MustCompile(`{"source": ["a"]}`), Targets: Targets("")}},
		{name: "bad condition", rule: func() Rule {
			r := testRule("r", `{"source": ["a"]}`)
			r.Condition = `detail.size +`
			return r
		}()},
		{name: "non-bool condition", rule: func() Rule {
			r := testRule("r", `{"source": ["a"]}`)
			r.Condition = `detail.size`
			return r
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.Add(tt.rule)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
		})
	}
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_PutReplacesInPlace(t *testing.T) {
	reg := newTestRegistry(t)

	for _, id := range []string{"a", "b", "c"} {
		_, err := reg.Add(testRule(id, `{"source": ["x"]}`))
		require.NoError(t, err)
	}
	original, _ := reg.Get("b")

	require.NoError(t, reg.Put(testRule("b", `{"source": ["y"]}`)))

	ids := []string{}
	for _, r := range reg.List() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	updated, _ := reg.Get("b")
	assert.Equal(t, original.CreatedAt, updated.CreatedAt)
	assert.JSONEq(t, `{"source": ["y"]}`, updated.Pattern.String())

	require.NoError(t, reg.Put(testRule("d", `{"source": ["z"]}`)))
	assert.Equal(t, 4, reg.Len())
}

func TestRegistry_Remove(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Add(testRule("a", `{"source": ["x"]}`))
	require.NoError(t, err)

	assert.True(t, reg.Remove("a"))
	assert.False(t, reg.Remove("a"))
	assert.Empty(t, reg.Find(context.Background(), models.NewEnvelopeBuilder().WithSource("x").WithDetailType("t").Build()))
}

func TestRegistry_FindSkipsDisabledAndPreservesOrder(t *testing.T) {
	reg := newTestRegistry(t)

	disabled := testRule("off", `{"source": ["aws.ec2"]}`)
	disabled.Disabled = true
	_, err := reg.Add(testRule("first", `{"source": ["aws.ec2"]}`))
	require.NoError(t, err)
	_, err = reg.Add(disabled)
	require.NoError(t, err)
	_, err = reg.Add(testRule("second", `{"detail-type": ["EC2 Instance State-change Notification"]}`))
	require.NoError(t, err)

	matched := reg.Find(context.Background(), ec2Event("stopped"))
	require.Len(t, matched, 2)
	assert.Equal(t, "first", matched[0].ID)
	assert.Equal(t, "second", matched[1].ID)
}

func TestRegistry_FindEvaluatesCondition(t *testing.T) {
	reg := newTestRegistry(t)

	rule := testRule("big-objects", `{"source": ["aws.s3"]}`)
	rule.Condition = `detail.size > 1000.0`
	_, err := reg.Add(rule)
	require.NoError(t, err)

	build := func(detail map[string]interface{}) models.Envelope {
		return models.NewEnvelopeBuilder().WithSource("aws.s3").WithDetailType("Object Created").WithDetail(detail).Build()
	}

	assert.Len(t, reg.Find(context.Background(), build(map[string]interface{}{"size": 5000.0})), 1)
	assert.Empty(t, reg.Find(context.Background(), build(map[string]interface{}{"size": 10.0})))
	// Evaluation errors are treated as no match.
	assert.Empty(t, reg.Find(context.Background(), build(map[string]interface{}{})))
}

func TestRegistry_ReturnedRulesAreCopies(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.Add(testRule("a", `{"source": ["x"]}`, "t1", "t2"))
	require.NoError(t, err)

	listed := reg.List()
	listed[0].Targets[0].ID = "mutated"

	rule, _ := reg.Get("a")
	assert.Equal(t, []string{"t1", "t2"}, rule.TargetIDs())
}

func TestRegistry_ReplaceOrigin(t *testing.T) {
	reg := newTestRegistry(t)

	cfgRule := testRule("cfg", `{"source": ["x"]}`)
	cfgRule.Origin = OriginConfig
	_, err := reg.Add(cfgRule)
	require.NoError(t, err)

	require.NoError(t, reg.ReplaceOrigin(OriginStore, []Rule{
		testRule("s1", `{"source": ["x"]}`),
		testRule("s2", `{"source": ["x"]}`),
	}))
	_, err = reg.Add(testRule("api", `{"source": ["x"]}`))
	require.NoError(t, err)

	require.NoError(t, reg.ReplaceOrigin(OriginStore, []Rule{
		testRule("s3", `{"source": ["x"]}`),
		testRule("s2", `{"source": ["y"]}`),
	}))

	ids := []string{}
	for _, r := range reg.List() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"cfg", "s2", "api", "s3"}, ids)

	s2, _ := reg.Get("s2")
	assert.Equal(t, OriginStore, s2.Origin)
	assert.JSONEq(t, `{"source": ["y"]}`, s2.Pattern.String())

	err = reg.ReplaceOrigin(OriginStore, []Rule{testRule("cfg", `{"source": ["x"]}`)})
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, 4, reg.Len())

	err = reg.ReplaceOrigin(OriginStore, []Rule{{ID: "broken", Targets: Targets("t1")}})
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, 4, reg.Len())
}

func TestRegistry_ConcurrentReadersAndWriters(t *testing.T) {
	reg := newTestRegistry(t)
	env := ec2Event("stopped")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := fmt.Sprintf("r-%d-%d", i, j)
				_, err := reg.Add(testRule(id, `{"source": ["aws.ec2"]}`))
				assert.NoError(t, err)
				if j%2 == 0 {
					reg.Remove(id)
				}
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				for _, r := range reg.Find(context.Background(), env) {
					assert.False(t, r.Disabled)
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8*25, reg.Len())
}
