package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/community-pulse/internal/logging"
	"github.com/community-pulse/internal/models"
)

const upsertActivityQuery = `
	INSERT INTO daily_activity (
		username, date, posts_count, comments_count, upvotes_given,
		upvotes_received, engagement_score, patacoins_earned
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (username, date) DO UPDATE SET
		posts_count = EXCLUDED.posts_count,
		comments_count = EXCLUDED.comments_count,
		upvotes_given = EXCLUDED.upvotes_given,
		upvotes_received = EXCLUDED.upvotes_received,
		engagement_score = EXCLUDED.engagement_score,
		patacoins_earned = EXCLUDED.patacoins_earned,
		updated_at = NOW()
`

// ActivityRepository handles daily activity persistence
type ActivityRepository struct {
	db     *PostgresDB
	logger *logging.Logger
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *PostgresDB) *ActivityRepository {
	return &ActivityRepository{
		db:     db,
		logger: logging.WithComponent("activity_repository"),
	}
}

func activityArgs(row *models.DailyActivity) []interface{} {
	return []interface{}{
		row.Username,
		models.DateOnly(row.Date),
		row.PostsCount,
		row.CommentsCount,
		row.UpvotesGiven,
		row.UpvotesReceived,
		row.EngagementScore,
		row.PatacoinsEarned,
	}
}

// UpsertDailyActivities writes rows keyed by (username, date). The rows are
// sent as one batch; if the batch fails each row is retried on its own and
// the usernames that still fail are returned.
func (r *ActivityRepository) UpsertDailyActivities(ctx context.Context, rows []models.DailyActivity) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	batch := &pgx.Batch{}
	for i := range rows {
		batch.Queue(upsertActivityQuery, activityArgs(&rows[i])...)
	}

	err := r.db.Pool().SendBatch(ctx, batch).Close()
	if err == nil {
		return nil, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	r.logger.WithError(err).WithField("rows", len(rows)).Warn("Batch upsert failed, retrying rows individually")

	var failed []string
	for i := range rows {
		if _, err := r.db.Pool().Exec(ctx, upsertActivityQuery, activityArgs(&rows[i])...); err != nil {
			r.logger.WithError(err).WithField("username", rows[i].Username).Error("Failed to upsert daily activity")
			failed = append(failed, rows[i].Username)
		}
	}
	return failed, nil
}

const activityColumns = `username, date, posts_count, comments_count, upvotes_given,
	upvotes_received, engagement_score, patacoins_earned`

func collectActivity(rows pgx.Rows) ([]models.DailyActivity, error) {
	defer rows.Close()

	var out []models.DailyActivity
	for rows.Next() {
		var a models.DailyActivity
		err := rows.Scan(
			&a.Username,
			&a.Date,
			&a.PostsCount,
			&a.CommentsCount,
			&a.UpvotesGiven,
			&a.UpvotesReceived,
			&a.EngagementScore,
			&a.PatacoinsEarned,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan daily activity: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily activity: %w", err)
	}
	return out, nil
}

// GetDailyActivity returns username's rows in [from, to], oldest first
func (r *ActivityRepository) GetDailyActivity(ctx context.Context, username string, from, to time.Time) ([]models.DailyActivity, error) {
	query := `
		SELECT ` + activityColumns + `
		FROM daily_activity
		WHERE username = $1 AND date BETWEEN $2 AND $3
		ORDER BY date ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, username, models.DateOnly(from), models.DateOnly(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily activity: %w", err)
	}
	return collectActivity(rows)
}

// ListDailyActivityByDate returns every row for date
func (r *ActivityRepository) ListDailyActivityByDate(ctx context.Context, date time.Time) ([]models.DailyActivity, error) {
	query := `
		SELECT ` + activityColumns + `
		FROM daily_activity
		WHERE date = $1
		ORDER BY patacoins_earned DESC, username ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, models.DateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily activity: %w", err)
	}
	return collectActivity(rows)
}

// CountActiveUsersSince counts distinct members who posted, commented or
// voted on or after since
func (r *ActivityRepository) CountActiveUsersSince(ctx context.Context, since time.Time) (int, error) {
	query := `
		SELECT COUNT(DISTINCT username)
		FROM daily_activity
		WHERE date >= $1
		  AND (posts_count > 0 OR comments_count > 0 OR upvotes_given > 0)
	`

	var n int
	if err := r.db.Pool().QueryRow(ctx, query, models.DateOnly(since)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count active users: %w", err)
	}
	return n, nil
}

// TopEngagingMembers sums activity since the given date per member and
// returns the highest total engagement first. limit <= 0 returns all.
func (r *ActivityRepository) TopEngagingMembers(ctx context.Context, since time.Time, limit int) ([]models.EngagingMember, error) {
	query := `
		SELECT a.username,
			COALESCE(m.display_name, ''),
			COUNT(*),
			COALESCE(SUM(a.posts_count), 0),
			COALESCE(SUM(a.comments_count), 0),
			COALESCE(SUM(a.engagement_score), 0),
			COALESCE(SUM(a.patacoins_earned), 0)
		FROM daily_activity a
		LEFT JOIN members m ON m.username = a.username
		WHERE a.date >= $1
		GROUP BY a.username, m.display_name
		ORDER BY 6 DESC, a.username ASC
		LIMIT $2
	`

	var lim interface{}
	if limit > 0 {
		lim = limit
	}

	rows, err := r.db.Pool().Query(ctx, query, models.DateOnly(since), lim)
	if err != nil {
		return nil, fmt.Errorf("failed to query top engaging members: %w", err)
	}
	defer rows.Close()

	var out []models.EngagingMember
	for rows.Next() {
		var e models.EngagingMember
		err := rows.Scan(
			&e.Username,
			&e.DisplayName,
			&e.ActiveDays,
			&e.TotalPosts,
			&e.TotalComments,
			&e.TotalEngagement,
			&e.TotalPatacoins,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan engaging member: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating engaging members: %w", err)
	}
	return out, nil
}

// DeleteActivityBefore removes rows dated strictly before cutoff
func (r *ActivityRepository) DeleteActivityBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.Pool().Exec(ctx, `DELETE FROM daily_activity WHERE date < $1`, models.DateOnly(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old activity: %w", err)
	}
	return result.RowsAffected(), nil
}
