// Package report renders the daily community summary as markdown.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/osteele/liquid"

	"github.com/community-pulse/internal/models"
	"github.com/community-pulse/internal/service"
)

// DefaultTemplate is the published daily summary
const DefaultTemplate = `# Hive Ecuador Pulse - Reporte Diario

## {{ date }}

Resumen de la actividad de la comunidad [{{ community }}](https://peakd.com/c/{{ community }}).

| Métrica | Valor |
|---------|-------|
| Miembros | {{ stats.total_members }} |
| Usuarios activos | {{ stats.active_users }} ({{ stats.engagement_rate | pct }}) |
| Posts | {{ stats.total_posts }} |
| Comentarios | {{ stats.total_comments }} |
| Votos | {{ stats.total_upvotes }} |
| Nuevos miembros | {{ stats.new_members }} |
| Índice de salud | {{ stats.health_index | fixed2 }} / 100 |
{% if growth %}
**Crecimiento**: {{ growth.daily | pct }} vs. ayer, {{ growth.weekly | pct }} vs. la semana pasada ({{ growth.trend }}).
{% endif %}
## Participación

- Alta: {{ distribution.high }}
- Media: {{ distribution.medium }}
- Baja: {{ distribution.low }}

## Destacados del Día
{% for award in awards %}
- **{{ award.title }}**: {% if award.users.size > 0 %}{{ award.users | join: ", " }} ({{ award.value }}){% else %}N/A{% endif %}{% endfor %}

## Patacoins
{% if leaderboard.size > 0 %}
| # | Usuario | Patacoins |
|---|---------|-----------|
{% for entry in leaderboard %}| {{ forloop.index }} | @{{ entry.username }} | {{ entry.patacoins | fixed2 }} |
{% endfor %}{% else %}
Sin actividad registrada.
{% endif %}`

// Renderer turns a DailySummary into markdown
type Renderer struct {
	tpl       *liquid.Template
	community string
	limit     int
}

// NewRenderer parses the default template
func NewRenderer(community string, leaderboardSize int) (*Renderer, error) {
	return NewRendererWithTemplate(DefaultTemplate, community, leaderboardSize)
}

// NewRendererWithTemplate parses src as the summary template
func NewRendererWithTemplate(src, community string, leaderboardSize int) (*Renderer, error) {
	engine := liquid.NewEngine()
	engine.RegisterFilter("pct", func(v float64) string {
		return fmt.Sprintf("%.1f%%", v)
	})
	engine.RegisterFilter("fixed2", func(v float64) string {
		return fmt.Sprintf("%.2f", v)
	})

	tpl, err := engine.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse report template: %w", err)
	}
	return &Renderer{tpl: tpl, community: community, limit: leaderboardSize}, nil
}

// Render renders summary. Summary.Stats must be set.
func (r *Renderer) Render(summary *service.DailySummary) (string, error) {
	if summary == nil || summary.Stats == nil {
		return "", fmt.Errorf("summary has no community stats")
	}

	out, err := r.tpl.RenderString(r.bindings(summary))
	if err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return out, nil
}

func (r *Renderer) bindings(s *service.DailySummary) map[string]interface{} {
	st := s.Stats
	b := map[string]interface{}{
		"date":      FormatDate(s.Date),
		"community": r.community,
		"stats": map[string]interface{}{
			"total_members":   st.TotalMembers,
			"active_users":    st.ActiveUsers,
			"total_posts":     st.TotalPosts,
			"total_comments":  st.TotalComments,
			"total_upvotes":   st.TotalUpvotes,
			"new_members":     st.NewMembers,
			"engagement_rate": st.EngagementRate,
			"health_index":    st.HealthIndex,
		},
		"distribution": map[string]interface{}{
			"low":    s.Distribution.Low,
			"medium": s.Distribution.Medium,
			"high":   s.Distribution.High,
		},
		"awards":      awards(s.TopPerformers),
		"leaderboard": leaderboard(s.Leaderboard, r.limit),
	}

	if s.Growth != nil {
		b["growth"] = map[string]interface{}{
			"daily":  s.Growth.DailyGrowth,
			"weekly": s.Growth.WeeklyGrowth,
			"trend":  s.Growth.Trend,
		}
	}
	return b
}

func award(title string, users []string, value string) map[string]interface{} {
	handles := make([]string, len(users))
	for i, u := range users {
		handles[i] = "@" + u
	}
	return map[string]interface{}{"title": title, "users": handles, "value": value}
}

func awards(top *models.TopPerformers) []map[string]interface{} {
	if top == nil {
		top = &models.TopPerformers{}
	}

	out := []map[string]interface{}{
		award("Top Poster", top.TopPoster.Users, fmt.Sprintf("%d posts", top.TopPoster.Value)),
		award("Top Comentarista", top.TopCommenter.Users, fmt.Sprintf("%d comentarios", top.TopCommenter.Value)),
		award("Top Votante", top.TopSupporter.Users, fmt.Sprintf("%d votos", top.TopSupporter.Value)),
		award("Más Comprometido", top.MostEngaged.Users, fmt.Sprintf("%.2f puntos", top.MostEngaged.Value)),
	}

	if c := top.ConsistentContributor; c != nil {
		out = append(out, award("Contribuidor Constante", []string{c.Username}, fmt.Sprintf("nivel %d", c.Value)))
	} else {
		out = append(out, award("Contribuidor Constante", nil, ""))
	}
	return out
}

func leaderboard(entries []models.PatacoinEntry, limit int) []map[string]interface{} {
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]interface{}{"username": e.Username, "patacoins": e.Patacoins})
	}
	return out
}

var months = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// FormatDate renders "1 de mayo de 2024"
func FormatDate(t time.Time) string {
	return strings.Join([]string{
		fmt.Sprint(t.Day()), "de", months[t.Month()-1], "de", fmt.Sprint(t.Year()),
	}, " ")
}
