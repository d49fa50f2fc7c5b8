//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consentgate/internal/privacy"
	id "consentgate/pkg/domain"
	"consentgate/pkg/platform/sentinel"
	"consentgate/pkg/testutil/containers"
)

func TestRedisCache(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	rc := containers.NewRedisContainer(t)
	defer func() { _ = rc.Container.Terminate(ctx) }()

	c := NewRedisCache(rc.Client, time.Minute)
	userID := id.NewUserID()

	t.Run("miss then hit", func(t *testing.T) {
		_, _, err := c.Get(ctx, userID)
		require.ErrorIs(t, err, sentinel.ErrNotFound)

		score := privacy.Compute(20, 26)
		require.NoError(t, c.Set(ctx, userID, score))

		got, age, err := c.Get(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, score, *got)
		assert.GreaterOrEqual(t, age, time.Duration(0))
	})

	t.Run("invalidate", func(t *testing.T) {
		require.NoError(t, c.Set(ctx, userID, privacy.Compute(26, 26)))
		require.NoError(t, c.Invalidate(ctx, userID))

		_, _, err := c.Get(ctx, userID)
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("corrupt entry reads as miss", func(t *testing.T) {
		require.NoError(t, rc.Client.Set(ctx, "privacy_score:"+userID.String(), "{not json", time.Minute).Err())

		_, _, err := c.Get(ctx, userID)
		require.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}
