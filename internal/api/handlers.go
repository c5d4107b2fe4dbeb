package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/community-pulse/internal/errors"
	"github.com/community-pulse/internal/models"
	"github.com/community-pulse/internal/storage"
)

const (
	defaultHistoryDays = 30
	maxHistoryDays     = 366
	defaultTopLimit    = 10
	maxTopLimit        = 100
)

// handleGetMember returns a member's row, join date and lifecycle events
func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	view, err := s.membership.Member(r.Context(), username)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// handleGetMemberActivity returns stored daily rows for a member.
// Query: from, to (YYYY-MM-DD). Defaults to the last 30 days.
func (s *Server) handleGetMemberActivity(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	q := r.URL.Query()

	to := models.DateOnly(s.now().UTC())
	if v := q.Get("to"); v != "" {
		t, err := parseDate("to", v)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		to = t
	}

	from := to.AddDate(0, 0, -(defaultHistoryDays - 1))
	if v := q.Get("from"); v != "" {
		f, err := parseDate("from", v)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		from = f
	}

	if to.Sub(from) > maxHistoryDays*24*time.Hour {
		respondServiceError(w, r, errors.NewInvalidParameterError("from", "range exceeds one year"))
		return
	}

	rows, err := s.activity.History(r.Context(), username, from, to)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if rows == nil {
		rows = []models.DailyActivity{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"username": models.NormalizeUsername(username),
		"from":     from.Format(models.DateLayout),
		"to":       to.Format(models.DateLayout),
		"activity": rows,
	})
}

// handleMembershipStats returns tracked/active/new member counts
func (s *Server) handleMembershipStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.membership.Stats(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// pathDate parses the {date} route variable
func pathDate(r *http.Request) (time.Time, error) {
	return parseDate("date", mux.Vars(r)["date"])
}

// handleGetStats returns the community stats row for a date
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	date, err := pathDate(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	stats, err := storage.Fetch(r.Context(), s.cache, storage.DateKey(storage.CacheKeyStats, date),
		func(ctx context.Context) (*models.CommunityDailyStats, error) {
			return s.stats.Get(ctx, date)
		})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// handleGetGrowth returns post growth against the previous day and week
func (s *Server) handleGetGrowth(w http.ResponseWriter, r *http.Request) {
	date, err := pathDate(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	growth, err := storage.Fetch(r.Context(), s.cache, storage.DateKey(storage.CacheKeyGrowth, date),
		func(ctx context.Context) (*models.GrowthMetrics, error) {
			return s.stats.Growth(ctx, date)
		})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, growth)
}

// handleGetLeaderboard returns the Patacoin ranking for a date.
// Query: limit (default 10, max 100).
func (s *Server) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	date, err := pathDate(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultTopLimit, 1, maxTopLimit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	// the full ranking is cached; limit is applied per request
	entries, err := storage.Fetch(r.Context(), s.cache, storage.DateKey(storage.CacheKeyLeaderboard, date),
		func(ctx context.Context) ([]models.PatacoinEntry, error) {
			return s.activity.Leaderboard(ctx, date, 0)
		})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []models.PatacoinEntry{}
	}
	if len(entries) > limit {
		entries = entries[:limit]
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"date":        date.Format(models.DateLayout),
		"leaderboard": entries,
	})
}

// handleTopEngaging ranks members by engagement over recent days.
// Query: days (default 7, max 90), limit (default 10, max 100).
func (s *Server) handleTopEngaging(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 7, 1, 90)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", defaultTopLimit, 1, maxTopLimit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	members, err := s.activity.TopEngaging(r.Context(), s.now().UTC(), days, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if members == nil {
		members = []models.EngagingMember{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"days":    days,
		"members": members,
	})
}

// handleGetSummary returns the full published view of a date
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	date, err := pathDate(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	summary, err := s.summaries.LoadSummary(r.Context(), date)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// handleGetReport renders a date's summary as markdown
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if s.renderer == nil {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "report rendering is not configured", nil)
		return
	}

	date, err := pathDate(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	summary, err := s.summaries.LoadSummary(r.Context(), date)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	out, err := s.renderer.Render(summary)
	if err != nil {
		respondServiceError(w, r, errors.NewInternalError("render report", err))
		return
	}

	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out)) // nolint:errcheck // client went away
}
