package service

import (
	"context"
	"time"

	"github.com/community-pulse/internal/errors"
	"github.com/community-pulse/internal/models"
)

// DailySummary is the published view of one day
type DailySummary struct {
	Date          time.Time                     `json:"date"`
	Stats         *models.CommunityDailyStats   `json:"stats"`
	Distribution  models.EngagementDistribution `json:"distribution"`
	TopPerformers *models.TopPerformers         `json:"topPerformers"`
	Leaderboard   []models.PatacoinEntry        `json:"leaderboard"`
	Growth        *models.GrowthMetrics         `json:"growth,omitempty"`
}

// Summary returns the published view of a finished cycle
func (r *CycleResult) Summary() *DailySummary {
	return &DailySummary{
		Date:          r.Date,
		Stats:         r.Stats,
		Distribution:  r.Distribution,
		TopPerformers: r.TopPerformers,
		Leaderboard:   r.Leaderboard,
		Growth:        r.Growth,
	}
}

// DayActivities returns the stored activity of every member for date
func (s *ActivityService) DayActivities(ctx context.Context, date time.Time) ([]models.UserActivity, error) {
	rows, err := s.store.ListDailyActivityByDate(ctx, models.DateOnly(date))
	if err != nil {
		return nil, errors.NewDatabaseError("list daily activity", err)
	}
	out := make([]models.UserActivity, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].Activity())
	}
	return out, nil
}

// LoadSummary rebuilds date's summary from stored rows without touching
// the activity source. It is a not-found error when date was never
// aggregated.
func (p *Pipeline) LoadSummary(ctx context.Context, date time.Time) (*DailySummary, error) {
	date = models.DateOnly(date)

	stats, err := p.stats.Get(ctx, date)
	if err != nil {
		return nil, err
	}

	activities, err := p.activity.DayActivities(ctx, date)
	if err != nil {
		return nil, err
	}
	leaderboard, err := p.activity.Leaderboard(ctx, date, 0)
	if err != nil {
		return nil, err
	}

	summary := &DailySummary{
		Date:          date,
		Stats:         stats,
		Distribution:  Distribution(activities),
		TopPerformers: RankTopPerformers(activities),
		Leaderboard:   leaderboard,
	}

	if growth, gerr := p.stats.Growth(ctx, date); gerr != nil {
		p.logger.WithError(gerr).Warn("Growth metrics unavailable")
	} else {
		summary.Growth = growth
	}
	return summary, nil
}
