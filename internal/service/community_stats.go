package service

import (
	"context"
	"math"
	"time"

	"github.com/community-pulse/internal/errors"
	"github.com/community-pulse/internal/logging"
	"github.com/community-pulse/internal/models"
)

// Trend threshold in percent of daily post growth
const growthTrendThreshold = 5.0

// CommunityStatsService rolls member activity up into community-wide stats
type CommunityStatsService struct {
	members MemberStore
	store   StatsStore
	logger  *logging.Logger
}

// NewCommunityStatsService creates a new community stats service
func NewCommunityStatsService(members MemberStore, store StatsStore) *CommunityStatsService {
	return &CommunityStatsService{
		members: members,
		store:   store,
		logger:  logging.WithComponent("community_stats"),
	}
}

// Aggregate computes and stores the stats row for date. The computed stats
// are returned even when the write fails.
func (s *CommunityStatsService) Aggregate(ctx context.Context, activities []models.UserActivity, date time.Time) (*models.CommunityDailyStats, error) {
	newMembers, err := s.members.CountNewMembers(ctx, 1)
	if err != nil {
		s.logger.WithError(err).Warn("New member count unavailable, using 0")
		newMembers = 0
	}

	stats := ComputeCommunityStats(activities, date, newMembers)

	if err := s.store.UpsertCommunityStats(ctx, &stats); err != nil {
		return &stats, errors.NewDatabaseError("upsert community stats", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"date":           stats.Date.Format(models.DateLayout),
		"members":        stats.TotalMembers,
		"active":         stats.ActiveUsers,
		"engagementRate": stats.EngagementRate,
		"healthIndex":    stats.HealthIndex,
	}).Info("Community stats stored")

	return &stats, nil
}

// ComputeCommunityStats is the pure part of Aggregate
func ComputeCommunityStats(activities []models.UserActivity, date time.Time, newMembers int) models.CommunityDailyStats {
	stats := models.CommunityDailyStats{
		Date:         models.DateOnly(date),
		TotalMembers: len(activities),
		NewMembers:   newMembers,
	}

	var given, received int
	for i := range activities {
		a := &activities[i]
		stats.TotalPosts += a.PostsCount
		stats.TotalComments += a.CommentsCount
		given += a.UpvotesGiven
		received += a.UpvotesReceived
		if a.IsActive() {
			stats.ActiveUsers++
		}
	}
	stats.TotalUpvotes = given + received

	if stats.TotalMembers > 0 {
		stats.EngagementRate = models.Round2(float64(stats.ActiveUsers) / float64(stats.TotalMembers) * 100)
	}
	stats.HealthIndex = HealthIndex(activities)
	return stats
}

// HealthIndex is min(100, avg/10 + share_above_avg*0.5), rounded to two
// decimals; 0 for no activities.
func HealthIndex(activities []models.UserActivity) float64 {
	if len(activities) == 0 {
		return 0
	}

	var sum float64
	for i := range activities {
		sum += activities[i].EngagementScore
	}
	avg := sum / float64(len(activities))

	above := 0
	for i := range activities {
		if activities[i].EngagementScore > avg {
			above++
		}
	}
	distribution := float64(above) / float64(len(activities)) * 100

	index := math.Min(100, avg/10+distribution*0.5)
	return models.Round2(math.Max(0, index))
}

// Distribution counts activities per engagement band
func Distribution(activities []models.UserActivity) models.EngagementDistribution {
	var d models.EngagementDistribution
	for i := range activities {
		switch models.BucketFor(activities[i].EngagementScore) {
		case models.BucketLow:
			d.Low++
		case models.BucketMedium:
			d.Medium++
		case models.BucketHigh:
			d.High++
		}
	}
	return d
}

// Get returns the stored stats for date
func (s *CommunityStatsService) Get(ctx context.Context, date time.Time) (*models.CommunityDailyStats, error) {
	stats, err := s.store.GetCommunityStats(ctx, models.DateOnly(date))
	if err != nil {
		return nil, errors.NewDatabaseError("get community stats", err)
	}
	if stats == nil {
		return nil, errors.NewNotFoundError("community stats", date.Format(models.DateLayout))
	}
	return stats, nil
}

// Growth compares date's post volume with the previous day and the same
// day a week earlier. Missing baselines count as zero growth.
func (s *CommunityStatsService) Growth(ctx context.Context, date time.Time) (*models.GrowthMetrics, error) {
	date = models.DateOnly(date)
	today, err := s.store.GetCommunityStats(ctx, date)
	if err != nil {
		return nil, errors.NewDatabaseError("get community stats", err)
	}
	yesterday, err := s.store.GetCommunityStats(ctx, date.AddDate(0, 0, -1))
	if err != nil {
		return nil, errors.NewDatabaseError("get community stats", err)
	}
	weekAgo, err := s.store.GetCommunityStats(ctx, date.AddDate(0, 0, -7))
	if err != nil {
		return nil, errors.NewDatabaseError("get community stats", err)
	}
	return ComputeGrowth(date, today, yesterday, weekAgo), nil
}

// ComputeGrowth is the pure part of Growth
func ComputeGrowth(date time.Time, today, yesterday, weekAgo *models.CommunityDailyStats) *models.GrowthMetrics {
	g := &models.GrowthMetrics{Date: models.DateOnly(date), Trend: models.TrendStable}
	if today == nil {
		return g
	}

	g.DailyGrowth = percentChange(today.TotalPosts, yesterday)
	g.WeeklyGrowth = percentChange(today.TotalPosts, weekAgo)

	switch {
	case g.DailyGrowth > growthTrendThreshold:
		g.Trend = models.TrendGrowing
	case g.DailyGrowth < -growthTrendThreshold:
		g.Trend = models.TrendDeclining
	}
	return g
}

func percentChange(current int, base *models.CommunityDailyStats) float64 {
	if base == nil || base.TotalPosts == 0 {
		return 0
	}
	return models.Round2(float64(current-base.TotalPosts) / float64(base.TotalPosts) * 100)
}
