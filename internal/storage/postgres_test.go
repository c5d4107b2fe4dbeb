package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/community-pulse/internal/errors"
	"github.com/community-pulse/internal/models"
)

func uniqueName(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, time.Now().UnixNano()%1_000_000)
}

func TestMemberRepository_Lifecycle(t *testing.T) {
	db := integrationPostgres(t)
	ctx := testContext(t)
	store := NewPostgresStore(db)

	name := uniqueName("pt")
	joined := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	member := &models.Member{Username: name, DisplayName: "Test", CreatedAt: joined, UpdatedAt: joined, IsActive: true}
	member.AppendTag(models.TagJoined, joined)
	require.NoError(t, store.UpsertMember(ctx, member))
	require.NoError(t, store.AppendMembershipChange(ctx, models.NewMembershipChange(name, models.ActionJoined, joined, nil)))

	_, err := store.UpsertDailyActivities(ctx, []models.DailyActivity{
		{Username: name, Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), PostsCount: 1, EngagementScore: 10, PatacoinsEarned: 2},
	})
	require.NoError(t, err)

	left := joined.AddDate(0, 1, 0)
	require.NoError(t, store.DeactivateMember(ctx, name, left))
	got, err := store.GetMember(ctx, name)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.IsActive)
	assert.Len(t, got.TagEntries(), 2)

	rows, err := store.GetDailyActivity(ctx, name, joined, left)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "leaving keeps data")

	rejoined := left.AddDate(0, 1, 0)
	require.NoError(t, store.ResetMember(ctx, name, rejoined, &joined))
	got, err = store.GetMember(ctx, name)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.True(t, got.CreatedAt.Equal(rejoined))

	rows, err = store.GetDailyActivity(ctx, name, joined, rejoined)
	require.NoError(t, err)
	assert.Empty(t, rows, "rejoin resets history")

	changes, err := store.GetMembershipChanges(ctx, name)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, models.ActionJoined, changes[0].Action)
}

func TestMemberRepository_MissingRowIsNotFound(t *testing.T) {
	db := integrationPostgres(t)
	ctx := testContext(t)
	store := NewPostgresStore(db)

	missing := uniqueName("nx")
	err := store.ResetMember(ctx, missing, time.Now(), nil)
	assert.True(t, errors.IsNotFound(err))

	err = store.DeactivateMember(ctx, missing, time.Now())
	assert.True(t, errors.IsNotFound(err))

	m, err := store.GetMember(ctx, missing)
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestMemberRepository_ClearAllKeepsChangeLog(t *testing.T) {
	db := integrationPostgres(t)
	ctx := testContext(t)
	store := NewPostgresStore(db)

	name := uniqueName("ca")
	joined := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertMember(ctx, &models.Member{Username: name, CreatedAt: joined, UpdatedAt: joined, IsActive: true}))
	require.NoError(t, store.AppendMembershipChange(ctx, models.NewMembershipChange(name, models.ActionJoined, joined, nil)))

	require.NoError(t, store.ClearAll(ctx))

	m, err := store.GetMember(ctx, name)
	require.NoError(t, err)
	assert.Nil(t, m)

	changes, err := store.GetMembershipChanges(ctx, name)
	require.NoError(t, err)
	assert.Len(t, changes, 1)
}

func TestActivityRepository_UpsertIsIdempotent(t *testing.T) {
	db := integrationPostgres(t)
	ctx := testContext(t)
	store := NewPostgresStore(db)

	name := uniqueName("up")
	now := time.Now().UTC()
	require.NoError(t, store.UpsertMember(ctx, &models.Member{Username: name, CreatedAt: now, UpdatedAt: now, IsActive: true}))

	date := time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)
	row := models.DailyActivity{Username: name, Date: date, PostsCount: 1, EngagementScore: 10, PatacoinsEarned: 2}
	failed, err := store.UpsertDailyActivities(ctx, []models.DailyActivity{row})
	require.NoError(t, err)
	assert.Empty(t, failed)

	row.CommentsCount = 2
	row.EngagementScore = 20
	failed, err = store.UpsertDailyActivities(ctx, []models.DailyActivity{row})
	require.NoError(t, err)
	assert.Empty(t, failed)

	rows, err := store.GetDailyActivity(ctx, name, date, date)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].CommentsCount)
	assert.Equal(t, 20.0, rows[0].EngagementScore)
}

func TestActivityRepository_BatchFallbackReportsFailedRows(t *testing.T) {
	db := integrationPostgres(t)
	ctx := testContext(t)
	store := NewPostgresStore(db)

	name := uniqueName("ok")
	now := time.Now().UTC()
	require.NoError(t, store.UpsertMember(ctx, &models.Member{Username: name, CreatedAt: now, UpdatedAt: now, IsActive: true}))

	date := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	// the second row violates the members foreign key
	failed, err := store.UpsertDailyActivities(ctx, []models.DailyActivity{
		{Username: name, Date: date, PostsCount: 1},
		{Username: uniqueName("ghost"), Date: date, PostsCount: 1},
	})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.NotEqual(t, name, failed[0])

	rows, err := store.GetDailyActivity(ctx, name, date, date)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestStatsRepository_Upsert(t *testing.T) {
	db := integrationPostgres(t)
	ctx := testContext(t)
	store := NewPostgresStore(db)

	date := time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.UpsertCommunityStats(ctx, &models.CommunityDailyStats{Date: date, TotalMembers: 3, HealthIndex: 12.5}))
	require.NoError(t, store.UpsertCommunityStats(ctx, &models.CommunityDailyStats{Date: date, TotalMembers: 4, HealthIndex: 13.5}))

	got, err := store.GetCommunityStats(ctx, date)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 4, got.TotalMembers)
	assert.Equal(t, 13.5, got.HealthIndex)

	n, err := store.DeleteCommunityStatsBefore(ctx, date.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))

	got, err = store.GetCommunityStats(ctx, date)
	require.NoError(t, err)
	assert.Nil(t, got)
}
