//go:build integration

package rules

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eventrouter/internal/config"
	"eventrouter/internal/logger"
	"eventrouter/internal/testinfra"
	apperrors "eventrouter/pkg/errors"
	"eventrouter/pkg/models"
)

func TestPostgresRepository_CRUD(t *testing.T) {
	db := testinfra.StartPostgres(t)
	repo := NewRepository(db)
	ctx := context.Background()

	rec := &Record{
		ID:      "s3-put-object",
		Name:    "S3PutObjectRule",
		Pattern: json.RawMessage(`{"source":["aws.s3"]}`),
		Targets: []string{"handler"},
		Enabled: true,
	}
	require.NoError(t, repo.Create(ctx, rec))
	assert.False(t, rec.CreatedAt.IsZero())

	err := repo.Create(ctx, rec)
	assert.True(t, apperrors.IsConflict(err), "duplicate insert should conflict: %v", err)

	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"handler"}, got.Targets)
	assert.JSONEq(t, `{"source":["aws.s3"]}`, string(got.Pattern))

	got.Targets = []string{"handler", "audit"}
	got.Enabled = false
	require.NoError(t, repo.Update(ctx, got))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []string{"handler", "audit"}, all[0].Targets)
	assert.False(t, all[0].Enabled)

	require.NoError(t, repo.Delete(ctx, rec.ID))
	assert.True(t, apperrors.IsNotFound(repo.Delete(ctx, rec.ID)))
	_, err = repo.Get(ctx, rec.ID)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestService_StoredRulesRoute(t *testing.T) {
	db := testinfra.StartPostgres(t)
	ctx := context.Background()

	registry, err := NewRegistry(logger.NopLogger())
	require.NoError(t, err)
	cfg := config.RulesConfig{Source: "postgres"}
	svc := NewService(registry, NewRepository(db), cfg, logger.NopLogger())

	rule, err := FromConfig(config.RuleConfig{
		ID:      "console-login",
		Pattern: `{"source":["aws.signin"]}`,
		Targets: []string{"handler"},
	})
	require.NoError(t, err)
	_, err = svc.Create(ctx, rule)
	require.NoError(t, err)

	// A second replica sees the rule after a reload.
	other, err := NewRegistry(logger.NopLogger())
	require.NoError(t, err)
	replica := NewService(other, NewRepository(db), cfg, logger.NopLogger())
	require.NoError(t, replica.ReloadRules(ctx, true))

	env := models.NewEnvelopeBuilder().WithSource("aws.signin").WithDetailType("AWS Console Sign In via CloudTrail").Build()
	matched := other.Find(ctx, env)
	require.Len(t, matched, 1)
	assert.Equal(t, "console-login", matched[0].ID)
}
