package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/community-pulse/internal/models"
	"github.com/community-pulse/internal/service"
)

func sampleSummary() *service.DailySummary {
	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	activities := []models.UserActivity{
		{Username: "bob", PostsCount: 1, CommentsCount: 1, UpvotesGiven: 3, EngagementScore: 21},
		{Username: "carl"},
	}
	return &service.DailySummary{
		Date: date,
		Stats: &models.CommunityDailyStats{
			Date: date, TotalMembers: 2, ActiveUsers: 1, TotalPosts: 1, TotalComments: 1,
			TotalUpvotes: 3, NewMembers: 2, EngagementRate: 50, HealthIndex: 26.05,
		},
		Distribution:  service.Distribution(activities),
		TopPerformers: service.RankTopPerformers(activities),
		Leaderboard: []models.PatacoinEntry{
			{Username: "bob", Patacoins: 2.56},
			{Username: "ann", Patacoins: 1},
		},
		Growth: &models.GrowthMetrics{Date: date, DailyGrowth: 20, WeeklyGrowth: -50, Trend: models.TrendGrowing},
	}
}

func TestRender_DefaultTemplate(t *testing.T) {
	r, err := NewRenderer("hive-115276", 10)
	require.NoError(t, err)

	out, err := r.Render(sampleSummary())
	require.NoError(t, err)

	assert.Contains(t, out, "## 1 de mayo de 2024")
	assert.Contains(t, out, "| Usuarios activos | 1 (50.0%) |")
	assert.Contains(t, out, "| Índice de salud | 26.05 / 100 |")
	assert.Contains(t, out, "20.0% vs. ayer")
	assert.Contains(t, out, "**Top Poster**: @bob (1 posts)")
	assert.Contains(t, out, "**Contribuidor Constante**: @bob (nivel 0)")
	assert.Contains(t, out, "| 1 | @bob | 2.56 |")
	assert.Contains(t, out, "| 2 | @ann | 1.00 |")
	assert.Contains(t, out, "https://peakd.com/c/hive-115276")
}

func TestRender_LeaderboardLimitAndEmpty(t *testing.T) {
	r, err := NewRenderer("hive-115276", 1)
	require.NoError(t, err)

	s := sampleSummary()
	out, err := r.Render(s)
	require.NoError(t, err)
	assert.NotContains(t, out, "@ann")

	s.Leaderboard = nil
	s.Growth = nil
	out, err = r.Render(s)
	require.NoError(t, err)
	assert.Contains(t, out, "Sin actividad registrada.")
	assert.NotContains(t, out, "Crecimiento")
}

func TestRender_Ties(t *testing.T) {
	r, err := NewRendererWithTemplate(`{% for a in awards %}{{ a.title }}={{ a.users | join: "," }};{% endfor %}`, "c", 0)
	require.NoError(t, err)

	s := sampleSummary()
	s.TopPerformers = service.RankTopPerformers([]models.UserActivity{
		{Username: "u1", PostsCount: 5}, {Username: "u2", PostsCount: 5},
	})
	out, err := r.Render(s)
	require.NoError(t, err)
	assert.Contains(t, out, "Top Poster=@u1,@u2;")
}

func TestRender_RequiresStats(t *testing.T) {
	r, err := NewRenderer("c", 0)
	require.NoError(t, err)

	_, err = r.Render(&service.DailySummary{})
	assert.Error(t, err)
}

func TestNewRendererWithTemplate_ParseError(t *testing.T) {
	_, err := NewRendererWithTemplate("{% for x in %}", "c", 0)
	assert.Error(t, err)
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "31 de diciembre de 2023", FormatDate(time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)))
}
