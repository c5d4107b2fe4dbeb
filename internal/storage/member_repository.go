package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/community-pulse/internal/errors"
	"github.com/community-pulse/internal/models"
)

const memberColumns = `username, display_name, reputation, followers, following,
	created_at, updated_at, is_active, is_business, tags`

// MemberRepository handles member and membership change persistence
type MemberRepository struct {
	db *PostgresDB
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db *PostgresDB) *MemberRepository {
	return &MemberRepository{db: db}
}

func scanMember(row pgx.Row) (*models.Member, error) {
	var m models.Member
	err := row.Scan(
		&m.Username,
		&m.DisplayName,
		&m.Reputation,
		&m.Followers,
		&m.Following,
		&m.CreatedAt,
		&m.UpdatedAt,
		&m.IsActive,
		&m.IsBusiness,
		&m.Tags,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetActiveMembers returns the usernames of active members, sorted
func (r *MemberRepository) GetActiveMembers(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool().Query(ctx, `SELECT username FROM members WHERE is_active ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active members: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan active members: %w", err)
	}
	return names, nil
}

// ListActiveMembers returns full rows for active members, sorted by username
func (r *MemberRepository) ListActiveMembers(ctx context.Context) ([]*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE is_active ORDER BY username`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active members: %w", err)
	}
	defer rows.Close()

	var members []*models.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}
	return members, nil
}

// GetMember returns nil, nil when username has no row
func (r *MemberRepository) GetMember(ctx context.Context, username string) (*models.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE username = $1`

	m, err := scanMember(r.db.Pool().QueryRow(ctx, query, username))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return m, nil
}

// UpsertMember inserts or fully replaces the member row
func (r *MemberRepository) UpsertMember(ctx context.Context, member *models.Member) error {
	query := `
		INSERT INTO members (` + memberColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (username) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			reputation = EXCLUDED.reputation,
			followers = EXCLUDED.followers,
			following = EXCLUDED.following,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at,
			is_active = EXCLUDED.is_active,
			is_business = EXCLUDED.is_business,
			tags = EXCLUDED.tags
	`

	_, err := r.db.Pool().Exec(ctx, query,
		member.Username,
		member.DisplayName,
		member.Reputation,
		member.Followers,
		member.Following,
		member.CreatedAt,
		member.UpdatedAt,
		member.IsActive,
		member.IsBusiness,
		member.Tags,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert member %s: %w", member.Username, err)
	}
	return nil
}

// DeactivateMember marks username as left. Data is kept.
func (r *MemberRepository) DeactivateMember(ctx context.Context, username string, leftAt time.Time) error {
	query := `
		UPDATE members
		SET is_active = FALSE,
			updated_at = $2,
			tags = CASE WHEN tags = '' THEN $3 ELSE tags || ',' || $3 END
		WHERE username = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, username, leftAt, tagValue(leftAt, models.TagLeft))
	if err != nil {
		return fmt.Errorf("failed to deactivate member %s: %w", username, err)
	}
	if result.RowsAffected() == 0 {
		return errors.NewNotFoundError("member", username)
	}
	return nil
}

// ResetMember reactivates a returning member and deletes their daily
// activity in one transaction. A missing row is a not-found error and
// nothing is changed.
func (r *MemberRepository) ResetMember(ctx context.Context, username string, joinedAt time.Time, previousJoin *time.Time) error {
	tags := tagValue(joinedAt, models.TagRejoined)
	if previousJoin != nil {
		tags += "," + tagValue(*previousJoin, models.TagPreviousMember)
	}

	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		result, err := tx.Exec(ctx, `
			UPDATE members
			SET is_active = TRUE,
				created_at = $2,
				updated_at = $2,
				tags = CASE WHEN tags = '' THEN $3 ELSE tags || ',' || $3 END
			WHERE username = $1
		`, username, joinedAt, tags)
		if err != nil {
			return fmt.Errorf("failed to reset member %s: %w", username, err)
		}
		if result.RowsAffected() == 0 {
			return errors.NewNotFoundError("member", username)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM daily_activity WHERE username = $1`, username); err != nil {
			return fmt.Errorf("failed to delete activity for %s: %w", username, err)
		}
		return nil
	})
}

// tagValue formats a single tag log entry the same way Member.AppendTag does
func tagValue(at time.Time, prefix string) string {
	var m models.Member
	m.AppendTag(prefix, at)
	return m.Tags
}

// AppendMembershipChange records a lifecycle event
func (r *MemberRepository) AppendMembershipChange(ctx context.Context, change models.MembershipChange) error {
	query := `
		INSERT INTO membership_changes (id, username, action, timestamp, previous_join_date)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		change.ID,
		change.Username,
		string(change.Action),
		change.Timestamp,
		change.PreviousJoinDate,
	)
	if err != nil {
		return fmt.Errorf("failed to insert membership change for %s: %w", change.Username, err)
	}
	return nil
}

// GetMembershipChanges returns username's events oldest first
func (r *MemberRepository) GetMembershipChanges(ctx context.Context, username string) ([]models.MembershipChange, error) {
	query := `
		SELECT id, username, action, timestamp, previous_join_date
		FROM membership_changes
		WHERE username = $1
		ORDER BY timestamp ASC
	`

	rows, err := r.db.Pool().Query(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("failed to query membership changes: %w", err)
	}
	defer rows.Close()

	var changes []models.MembershipChange
	for rows.Next() {
		var c models.MembershipChange
		var action string
		if err := rows.Scan(&c.ID, &c.Username, &action, &c.Timestamp, &c.PreviousJoinDate); err != nil {
			return nil, fmt.Errorf("failed to scan membership change: %w", err)
		}
		c.Action = models.MembershipAction(action)
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating membership changes: %w", err)
	}
	return changes, nil
}

// CountNewMembers counts members whose current join is within sinceDays
func (r *MemberRepository) CountNewMembers(ctx context.Context, sinceDays int) (int, error) {
	query := `SELECT COUNT(*) FROM members WHERE created_at > NOW() - make_interval(days => $1)`

	var n int
	if err := r.db.Pool().QueryRow(ctx, query, sinceDays).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count new members: %w", err)
	}
	return n, nil
}

// ClearAll deletes members and their activity. Membership changes and
// community stats are kept.
func (r *MemberRepository) ClearAll(ctx context.Context) error {
	return r.db.InTx(ctx, func(tx pgx.Tx) error {
		for _, table := range []string{"daily_activity", "members"} {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}
