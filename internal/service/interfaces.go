// Package service holds the community pulse core: membership
// reconciliation, activity aggregation, community statistics and rewards.
package service

import (
	"context"
	"time"

	"github.com/community-pulse/internal/models"
)

// ActivitySource is the external social network the pulse reads from
type ActivitySource interface {
	GetFollowers(ctx context.Context, community string) ([]string, error)
	GetUserOperations(ctx context.Context, username string, day time.Time) ([]models.Operation, error)
	// GetAccountInfo returns nil, nil for unknown accounts
	GetAccountInfo(ctx context.Context, username string) (*models.AccountInfo, error)
}

// UpvotesReceivedSource is an optional ActivitySource capability. Sources
// that cannot look up received votes leave upvotes_received at 0.
type UpvotesReceivedSource interface {
	GetUpvotesReceived(ctx context.Context, username string, day time.Time) (int, error)
}

// MemberStore persists members and their lifecycle events
type MemberStore interface {
	GetActiveMembers(ctx context.Context) ([]string, error)
	ListActiveMembers(ctx context.Context) ([]*models.Member, error)
	// GetMember returns nil, nil when the username has no row
	GetMember(ctx context.Context, username string) (*models.Member, error)
	UpsertMember(ctx context.Context, member *models.Member) error
	DeactivateMember(ctx context.Context, username string, leftAt time.Time) error
	// ResetMember reactivates a returning member and deletes their daily
	// activity. It returns a not-found error when no row exists.
	ResetMember(ctx context.Context, username string, joinedAt time.Time, previousJoin *time.Time) error
	AppendMembershipChange(ctx context.Context, change models.MembershipChange) error
	// GetMembershipChanges returns events oldest first
	GetMembershipChanges(ctx context.Context, username string) ([]models.MembershipChange, error)
	CountNewMembers(ctx context.Context, sinceDays int) (int, error)
	// ClearAll deletes every member and all daily activity. The membership
	// change log is append-only and survives.
	ClearAll(ctx context.Context) error
}

// ActivityStore persists per-member daily activity
type ActivityStore interface {
	// UpsertDailyActivities writes rows keyed by (username, date) and returns
	// the usernames whose row could not be written.
	UpsertDailyActivities(ctx context.Context, rows []models.DailyActivity) ([]string, error)
	GetDailyActivity(ctx context.Context, username string, from, to time.Time) ([]models.DailyActivity, error)
	ListDailyActivityByDate(ctx context.Context, date time.Time) ([]models.DailyActivity, error)
	CountActiveUsersSince(ctx context.Context, since time.Time) (int, error)
	TopEngagingMembers(ctx context.Context, since time.Time, limit int) ([]models.EngagingMember, error)
	DeleteActivityBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// StatsStore persists community daily stats
type StatsStore interface {
	UpsertCommunityStats(ctx context.Context, stats *models.CommunityDailyStats) error
	// GetCommunityStats returns nil, nil when no row exists for date
	GetCommunityStats(ctx context.Context, date time.Time) (*models.CommunityDailyStats, error)
	DeleteCommunityStatsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store is the full persistence surface used by the pipeline
type Store interface {
	MemberStore
	ActivityStore
	StatsStore
}

// OperationArchive keeps the raw classified operations behind each day's counters
type OperationArchive interface {
	ArchiveOperations(ctx context.Context, username string, day time.Time, ops []models.Operation) error
}

// RunLock gives a cycle exclusive ownership across processes
type RunLock interface {
	// TryAcquire returns false without error when another run holds the lock
	TryAcquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	Holder(ctx context.Context) (string, error)
}

// Clock returns the current time; swapped in tests
type Clock func() time.Time
