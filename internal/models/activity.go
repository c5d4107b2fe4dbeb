package models

import (
	"math"
	"time"
)

// DailyActivity is a member's counters for one calendar day. (Username, Date)
// is unique; writing it again overwrites the previous values.
type DailyActivity struct {
	Username        string    `json:"username" db:"username"`
	Date            time.Time `json:"date" db:"date"`
	PostsCount      int       `json:"postsCount" db:"posts_count"`
	CommentsCount   int       `json:"commentsCount" db:"comments_count"`
	UpvotesGiven    int       `json:"upvotesGiven" db:"upvotes_given"`
	UpvotesReceived int       `json:"upvotesReceived" db:"upvotes_received"`
	EngagementScore float64   `json:"engagementScore" db:"engagement_score"`
	PatacoinsEarned float64   `json:"patacoinsEarned" db:"patacoins_earned"`
}

// UserActivity is the in-memory aggregate produced for one member and day
type UserActivity struct {
	Username        string  `json:"username"`
	PostsCount      int     `json:"postsCount"`
	CommentsCount   int     `json:"commentsCount"`
	UpvotesGiven    int     `json:"upvotesGiven"`
	UpvotesReceived int     `json:"upvotesReceived"`
	EngagementScore float64 `json:"engagementScore"`
}

// Engagement weights
const (
	PostWeight           = 10
	CommentWeight        = 5
	UpvoteGivenWeight    = 2
	UpvoteReceivedWeight = 1
	LowEngagementCeiling = 20.0
	HighEngagementFloor  = 50.0
	scoreRounding        = 100
)

// ComputeEngagement sets EngagementScore from the counters
func (a *UserActivity) ComputeEngagement() {
	raw := a.PostsCount*PostWeight +
		a.CommentsCount*CommentWeight +
		a.UpvotesGiven*UpvoteGivenWeight +
		a.UpvotesReceived*UpvoteReceivedWeight
	a.EngagementScore = Round2(float64(raw))
}

// Total is the number of content items plus votes cast
func (a *UserActivity) Total() int {
	return a.PostsCount + a.CommentsCount + a.UpvotesGiven
}

// IsActive reports whether the member did anything on the day
func (a *UserActivity) IsActive() bool {
	return a.Total() > 0
}

// ToDaily converts the aggregate into a persisted row for date
func (a *UserActivity) ToDaily(date time.Time, patacoins float64) DailyActivity {
	return DailyActivity{
		Username:        a.Username,
		Date:            DateOnly(date),
		PostsCount:      a.PostsCount,
		CommentsCount:   a.CommentsCount,
		UpvotesGiven:    a.UpvotesGiven,
		UpvotesReceived: a.UpvotesReceived,
		EngagementScore: a.EngagementScore,
		PatacoinsEarned: patacoins,
	}
}

// Activity returns the counters of a stored row
func (d *DailyActivity) Activity() UserActivity {
	return UserActivity{
		Username:        d.Username,
		PostsCount:      d.PostsCount,
		CommentsCount:   d.CommentsCount,
		UpvotesGiven:    d.UpvotesGiven,
		UpvotesReceived: d.UpvotesReceived,
		EngagementScore: d.EngagementScore,
	}
}

// EngagementBucket is the low/medium/high band of an engagement score
type EngagementBucket string

const (
	BucketLow    EngagementBucket = "low"
	BucketMedium EngagementBucket = "medium"
	BucketHigh   EngagementBucket = "high"
)

// BucketFor places score into its band: <20 low, 20..50 medium, >=50 high
func BucketFor(score float64) EngagementBucket {
	switch {
	case score < LowEngagementCeiling:
		return BucketLow
	case score < HighEngagementFloor:
		return BucketMedium
	default:
		return BucketHigh
	}
}

// Round2 rounds half away from zero to two decimals
func Round2(v float64) float64 {
	return math.Round(v*scoreRounding) / scoreRounding
}

// DateOnly truncates t to midnight UTC of its calendar day
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateLayout is the wire format for dates in the CLI and API
const DateLayout = "2006-01-02"
