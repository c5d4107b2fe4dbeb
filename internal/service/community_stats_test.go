package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/community-pulse/internal/models"
)

func TestComputeCommunityStats(t *testing.T) {
	activities := []models.UserActivity{
		{Username: "a", PostsCount: 2, CommentsCount: 1, UpvotesGiven: 4, UpvotesReceived: 3, EngagementScore: 38},
		{Username: "b", UpvotesGiven: 1, EngagementScore: 2},
		{Username: "c", UpvotesReceived: 5, EngagementScore: 5},
		{Username: "d"},
	}

	stats := ComputeCommunityStats(activities, day("2024-05-01"), 2)

	assert.Equal(t, 4, stats.TotalMembers)
	assert.Equal(t, 2, stats.ActiveUsers, "received votes alone do not make a member active")
	assert.Equal(t, 2, stats.TotalPosts)
	assert.Equal(t, 1, stats.TotalComments)
	assert.Equal(t, 13, stats.TotalUpvotes)
	assert.Equal(t, 2, stats.NewMembers)
	assert.Equal(t, 50.0, stats.EngagementRate)
	// avg 10, one member in four above it
	assert.Equal(t, 13.5, stats.HealthIndex)
}

func TestComputeCommunityStats_ZeroGuard(t *testing.T) {
	stats := ComputeCommunityStats(nil, day("2024-05-01"), 0)

	assert.Equal(t, 0, stats.TotalMembers)
	assert.Equal(t, 0.0, stats.EngagementRate)
	assert.Equal(t, 0.0, stats.HealthIndex)
}

func TestHealthIndex_Capped(t *testing.T) {
	activities := []models.UserActivity{
		{Username: "a", EngagementScore: 5000},
		{Username: "b", EngagementScore: 0},
	}
	assert.Equal(t, 100.0, HealthIndex(activities))
}

func TestHealthIndex_BoundsProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("health index stays within [0, 100]", prop.ForAll(
		func(scores []float64) bool {
			activities := make([]models.UserActivity, len(scores))
			for i, s := range scores {
				activities[i] = models.UserActivity{Username: fmt.Sprintf("m%d", i), EngagementScore: s}
			}
			h := HealthIndex(activities)
			return h >= 0 && h <= 100
		},
		gen.SliceOf(gen.Float64Range(0, 1e6)),
	))

	properties.Property("engagement rate never exceeds 100", prop.ForAll(
		func(posts []int) bool {
			activities := make([]models.UserActivity, len(posts))
			for i, p := range posts {
				activities[i] = models.UserActivity{Username: fmt.Sprintf("m%d", i), PostsCount: p}
			}
			rate := ComputeCommunityStats(activities, day("2024-05-01"), 0).EngagementRate
			return rate >= 0 && rate <= 100
		},
		gen.SliceOf(gen.IntRange(0, 5)),
	))

	properties.TestingRun(t)
}

func TestDistribution(t *testing.T) {
	d := Distribution([]models.UserActivity{
		{EngagementScore: 0}, {EngagementScore: 19.9}, {EngagementScore: 20}, {EngagementScore: 50}, {EngagementScore: 90},
	})
	assert.Equal(t, models.EngagementDistribution{Low: 2, Medium: 1, High: 2}, d)
}

func TestAggregate_UpsertsPerDate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 21, 0, 0, 0, time.UTC)
	store := newMemStore()
	store.now = func() time.Time { return now }
	store.seedMember("fresh", now.Add(-time.Hour))
	store.seedMember("old", now.AddDate(0, -1, 0))
	svc := NewCommunityStatsService(store, store)

	_, err := svc.Aggregate(ctx, []models.UserActivity{{Username: "fresh", PostsCount: 1, EngagementScore: 10}}, day("2024-05-01"))
	require.NoError(t, err)
	stats, err := svc.Aggregate(ctx, []models.UserActivity{{Username: "fresh"}, {Username: "old"}}, day("2024-05-01"))
	require.NoError(t, err)

	stored, err := svc.Get(ctx, day("2024-05-01"))
	require.NoError(t, err)
	assert.Equal(t, *stats, *stored)
	assert.Equal(t, 2, stored.TotalMembers)
	assert.Equal(t, 1, stored.NewMembers)
	assert.Len(t, store.stats, 1)
}

func TestComputeGrowth(t *testing.T) {
	today := &models.CommunityDailyStats{TotalPosts: 12}
	yesterday := &models.CommunityDailyStats{TotalPosts: 10}
	weekAgo := &models.CommunityDailyStats{TotalPosts: 24}

	g := ComputeGrowth(day("2024-05-08"), today, yesterday, weekAgo)
	assert.Equal(t, 20.0, g.DailyGrowth)
	assert.Equal(t, -50.0, g.WeeklyGrowth)
	assert.Equal(t, models.TrendGrowing, g.Trend)

	g = ComputeGrowth(day("2024-05-08"), &models.CommunityDailyStats{TotalPosts: 9}, yesterday, nil)
	assert.Equal(t, models.TrendDeclining, g.Trend)
	assert.Equal(t, 0.0, g.WeeklyGrowth)

	g = ComputeGrowth(day("2024-05-08"), today, &models.CommunityDailyStats{}, nil)
	assert.Equal(t, models.TrendStable, g.Trend)
}
