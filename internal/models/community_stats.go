package models

import "time"

// CommunityDailyStats is the community-wide summary for one day. Date is unique.
type CommunityDailyStats struct {
	Date           time.Time `json:"date" db:"date"`
	TotalMembers   int       `json:"totalMembers" db:"total_members"`
	ActiveUsers    int       `json:"activeUsers" db:"active_users"`
	TotalPosts     int       `json:"totalPosts" db:"total_posts"`
	TotalComments  int       `json:"totalComments" db:"total_comments"`
	TotalUpvotes   int       `json:"totalUpvotes" db:"total_upvotes"`
	NewMembers     int       `json:"newMembers" db:"new_members"`
	EngagementRate float64   `json:"engagementRate" db:"engagement_rate"`
	HealthIndex    float64   `json:"healthIndex" db:"health_index"`
}

// EngagementDistribution counts members per engagement band
type EngagementDistribution struct {
	Low    int `json:"low"`
	Medium int `json:"medium"`
	High   int `json:"high"`
}

// Trend labels for growth metrics
const (
	TrendGrowing   = "growing"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// GrowthMetrics compares post volume against previous days
type GrowthMetrics struct {
	Date         time.Time `json:"date"`
	DailyGrowth  float64   `json:"dailyGrowth"`
	WeeklyGrowth float64   `json:"weeklyGrowth"`
	Trend        string    `json:"trend"`
}

// MembershipStats summarizes the tracked population
type MembershipStats struct {
	TotalTracked         int     `json:"totalTracked"`
	ActiveToday          int     `json:"activeToday"`
	ActiveThisWeek       int     `json:"activeThisWeek"`
	NewThisWeek          int     `json:"newThisWeek"`
	WeeklyEngagementRate float64 `json:"weeklyEngagementRate"`
}

// EngagingMember is one row of the top engaging members over a window
type EngagingMember struct {
	Username        string  `json:"username"`
	DisplayName     string  `json:"displayName"`
	ActiveDays      int     `json:"activeDays"`
	TotalPosts      int     `json:"totalPosts"`
	TotalComments   int     `json:"totalComments"`
	TotalEngagement float64 `json:"totalEngagement"`
	TotalPatacoins  float64 `json:"totalPatacoins"`
}
