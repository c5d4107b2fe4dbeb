package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/community-pulse/internal/errors"
	"github.com/community-pulse/internal/models"
)

func TestCleanup_DeletesOutsideWindow(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.seedMember("bob", day("2023-01-01"))
	_, err := store.UpsertDailyActivities(ctx, []models.DailyActivity{
		{Username: "bob", Date: day("2024-01-01")},
		{Username: "bob", Date: day("2024-03-31")},
		{Username: "bob", Date: day("2024-04-01")},
	})
	require.NoError(t, err)
	require.NoError(t, store.UpsertCommunityStats(ctx, &models.CommunityDailyStats{Date: day("2024-01-01")}))
	require.NoError(t, store.UpsertCommunityStats(ctx, &models.CommunityDailyStats{Date: day("2024-04-15")}))

	svc := NewMaintenanceService(store, store, 30)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC) }

	result, err := svc.Cleanup(ctx)
	require.NoError(t, err)

	assert.Equal(t, day("2024-04-01"), result.Cutoff)
	assert.Equal(t, int64(2), result.ActivityDeleted)
	assert.Equal(t, int64(1), result.StatsDeleted)
	assert.Equal(t, 1, store.activityCount("bob"))

	member, err := store.GetMember(ctx, "bob")
	require.NoError(t, err)
	assert.NotNil(t, member, "members are never pruned")
}

func TestCleanup_RejectsNonPositiveRetention(t *testing.T) {
	svc := NewMaintenanceService(newMemStore(), newMemStore(), 0)

	_, err := svc.Cleanup(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsUserError(err))
}
