package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/community-pulse/internal/models"
)

// StatsRepository handles community_daily_stats persistence
type StatsRepository struct {
	db *PostgresDB
}

// NewStatsRepository creates a new stats repository
func NewStatsRepository(db *PostgresDB) *StatsRepository {
	return &StatsRepository{db: db}
}

// UpsertCommunityStats writes the row for stats.Date, replacing any earlier one
func (r *StatsRepository) UpsertCommunityStats(ctx context.Context, stats *models.CommunityDailyStats) error {
	query := `
		INSERT INTO community_daily_stats (
			date, total_members, active_users, total_posts, total_comments,
			total_upvotes, new_members, engagement_rate, health_index
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (date) DO UPDATE SET
			total_members = EXCLUDED.total_members,
			active_users = EXCLUDED.active_users,
			total_posts = EXCLUDED.total_posts,
			total_comments = EXCLUDED.total_comments,
			total_upvotes = EXCLUDED.total_upvotes,
			new_members = EXCLUDED.new_members,
			engagement_rate = EXCLUDED.engagement_rate,
			health_index = EXCLUDED.health_index,
			updated_at = NOW()
	`

	_, err := r.db.Pool().Exec(ctx, query,
		models.DateOnly(stats.Date),
		stats.TotalMembers,
		stats.ActiveUsers,
		stats.TotalPosts,
		stats.TotalComments,
		stats.TotalUpvotes,
		stats.NewMembers,
		stats.EngagementRate,
		stats.HealthIndex,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert community stats: %w", err)
	}
	return nil
}

// GetCommunityStats returns nil, nil when no row exists for date
func (r *StatsRepository) GetCommunityStats(ctx context.Context, date time.Time) (*models.CommunityDailyStats, error) {
	query := `
		SELECT date, total_members, active_users, total_posts, total_comments,
			total_upvotes, new_members, engagement_rate, health_index
		FROM community_daily_stats
		WHERE date = $1
	`

	var s models.CommunityDailyStats
	err := r.db.Pool().QueryRow(ctx, query, models.DateOnly(date)).Scan(
		&s.Date,
		&s.TotalMembers,
		&s.ActiveUsers,
		&s.TotalPosts,
		&s.TotalComments,
		&s.TotalUpvotes,
		&s.NewMembers,
		&s.EngagementRate,
		&s.HealthIndex,
	)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get community stats: %w", err)
	}
	return &s, nil
}

// DeleteCommunityStatsBefore removes rows dated strictly before cutoff
func (r *StatsRepository) DeleteCommunityStatsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Pool().Exec(ctx, `DELETE FROM community_daily_stats WHERE date < $1`, models.DateOnly(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old stats: %w", err)
	}
	return result.RowsAffected(), nil
}
