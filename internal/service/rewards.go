package service

import (
	"cmp"
	"math"
	"slices"

	"github.com/community-pulse/internal/models"
)

// Patacoin rates
const (
	PatacoinsPerPost           = 2.0
	PatacoinsPerComment        = 0.5
	PatacoinsPerUpvoteGiven    = 0.02
	PatacoinsUpvoteGivenCap    = 0.5
	PatacoinsPerUpvoteReceived = 0.1
)

// Patacoins is the daily reward for activity. The vote-giving component is
// capped; it is independent of the engagement score.
func Patacoins(a *models.UserActivity) float64 {
	given := math.Min(float64(a.UpvotesGiven)*PatacoinsPerUpvoteGiven, PatacoinsUpvoteGivenCap)
	total := float64(a.PostsCount)*PatacoinsPerPost +
		float64(a.CommentsCount)*PatacoinsPerComment +
		given +
		float64(a.UpvotesReceived)*PatacoinsPerUpvoteReceived
	return models.Round2(total)
}

// leaders returns every user tied at the maximum of metric, zero included.
// Only an empty list has no winner.
func leaders[T int | float64](activities []models.UserActivity, metric func(*models.UserActivity) T) models.Leaders[T] {
	var best models.Leaders[T]
	for i := range activities {
		v := metric(&activities[i])
		switch {
		case i == 0 || v > best.Value:
			best = models.Leaders[T]{Users: []string{activities[i].Username}, Value: v}
		case v == best.Value:
			best.Users = append(best.Users, activities[i].Username)
		}
	}
	return best
}

// RankTopPerformers picks the day's leaders. Ties keep every tied user in
// input order; an empty list yields no winners.
func RankTopPerformers(activities []models.UserActivity) *models.TopPerformers {
	top := &models.TopPerformers{
		TopPoster:    leaders(activities, func(a *models.UserActivity) int { return a.PostsCount }),
		TopCommenter: leaders(activities, func(a *models.UserActivity) int { return a.CommentsCount }),
		TopSupporter: leaders(activities, func(a *models.UserActivity) int { return a.UpvotesGiven }),
		MostEngaged:  leaders(activities, func(a *models.UserActivity) float64 { return a.EngagementScore }),
	}

	if top.MostEngaged.HasWinner() {
		top.RisingStar = &models.RisingStar{
			Username:    top.MostEngaged.Users[0],
			Score:       top.MostEngaged.Value,
			Improvement: "N/A",
		}
	}

	balanced := leaders(activities, func(a *models.UserActivity) int {
		return min(a.PostsCount, a.CommentsCount, a.UpvotesGiven/5)
	})
	if balanced.HasWinner() {
		top.ConsistentContributor = &models.Single[int]{Username: balanced.Users[0], Value: balanced.Value}
	}

	return top
}

// PatacoinLeaderboard orders rows by Patacoins earned, highest first, ties
// by username. Rows that earned nothing are dropped. limit <= 0 keeps all.
func PatacoinLeaderboard(rows []models.DailyActivity, limit int) []models.PatacoinEntry {
	entries := make([]models.PatacoinEntry, 0, len(rows))
	for _, r := range rows {
		if r.PatacoinsEarned > 0 {
			entries = append(entries, models.PatacoinEntry{Username: r.Username, Patacoins: r.PatacoinsEarned})
		}
	}
	slices.SortFunc(entries, func(a, b models.PatacoinEntry) int {
		if c := cmp.Compare(b.Patacoins, a.Patacoins); c != 0 {
			return c
		}
		return cmp.Compare(a.Username, b.Username)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}
