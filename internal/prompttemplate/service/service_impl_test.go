package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/songgift/internal/clock"
	"github.com/smallbiznis/songgift/internal/prompttemplate/domain"
	"github.com/smallbiznis/songgift/internal/prompttemplate/repository"
	"github.com/smallbiznis/songgift/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) domain.Service {
	t.Helper()
	db := testutil.OpenSQLite(t, &domain.Template{})
	return New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: testutil.SnowflakeNode(t),
		Clock: clock.NewFakeClock(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
}

func TestPublishDeactivatesPrevious(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	first, err := svc.Publish(ctx, domain.PublishRequest{Type: domain.TypeLyrics, Body: "v1 {{story}}"})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)

	second, err := svc.Publish(ctx, domain.PublishRequest{Type: domain.TypeLyrics, Body: "v2 {{story}}"})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)

	versions, err := svc.Versions(ctx, domain.TypeLyrics)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.True(t, versions[0].IsActive)
	assert.False(t, versions[1].IsActive)

	active, err := svc.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v2 {{story}}", active[domain.TypeLyrics].Body)
}

func TestPublishValidation(t *testing.T) {
	svc := newService(t)

	_, err := svc.Publish(context.Background(), domain.PublishRequest{Type: "chorus", Body: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidType)

	_, err = svc.Publish(context.Background(), domain.PublishRequest{Type: domain.TypeMusic, Body: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidBody)
}

func TestEnsureDefaultsIsIdempotent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	require.NoError(t, svc.EnsureDefaults(ctx))
	require.NoError(t, svc.EnsureDefaults(ctx))

	active, err := svc.Active(ctx)
	require.NoError(t, err)
	assert.Empty(t, active.Missing())

	versions, err := svc.Versions(ctx, domain.TypeMusic)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}
