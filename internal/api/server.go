// Package api provides the read-only HTTP API over stored community data.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/community-pulse/internal/logging"
	"github.com/community-pulse/internal/models"
	"github.com/community-pulse/internal/report"
	"github.com/community-pulse/internal/service"
	"github.com/community-pulse/internal/storage"
)

// Service interfaces for dependency injection and testing

// MembershipReader serves member lookups
type MembershipReader interface {
	Member(ctx context.Context, username string) (*service.MemberView, error)
	Stats(ctx context.Context) (*models.MembershipStats, error)
}

// ActivityReader serves stored daily activity
type ActivityReader interface {
	History(ctx context.Context, username string, from, to time.Time) ([]models.DailyActivity, error)
	Leaderboard(ctx context.Context, date time.Time, limit int) ([]models.PatacoinEntry, error)
	TopEngaging(ctx context.Context, now time.Time, days, limit int) ([]models.EngagingMember, error)
}

// StatsReader serves community stats
type StatsReader interface {
	Get(ctx context.Context, date time.Time) (*models.CommunityDailyStats, error)
	Growth(ctx context.Context, date time.Time) (*models.GrowthMetrics, error)
}

// SummaryLoader rebuilds a day's published summary
type SummaryLoader interface {
	LoadSummary(ctx context.Context, date time.Time) (*service.DailySummary, error)
}

// StatusReporter reports the scheduler state on /health
type StatusReporter interface {
	GetStatus() *service.SchedulerStatus
}

// HealthCheck pings one dependency
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	membership MembershipReader
	activity   ActivityReader
	stats      StatsReader
	summaries  SummaryLoader
	renderer   *report.Renderer
	cache      *storage.StatsCache
	scheduler  StatusReporter
	checks     map[string]HealthCheck
	config     *ServerConfig
	now        func() time.Time
	logger     *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RateLimitRPS    int // Requests per second per client IP
}

// Dependencies are the readers behind the API. Renderer, Cache, Scheduler
// and Checks are optional.
type Dependencies struct {
	Membership MembershipReader
	Activity   ActivityReader
	Stats      StatsReader
	Summaries  SummaryLoader
	Renderer   *report.Renderer
	Cache      *storage.StatsCache
	Scheduler  StatusReporter
	Checks     map[string]HealthCheck
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps Dependencies) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		membership: deps.Membership,
		activity:   deps.Activity,
		stats:      deps.Stats,
		summaries:  deps.Summaries,
		renderer:   deps.Renderer,
		cache:      deps.Cache,
		scheduler:  deps.Scheduler,
		checks:     deps.Checks,
		config:     config,
		now:        time.Now,
		logger:     logging.WithComponent("api"),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RateLimitRPS)

	s.router.Use(LoggingMiddleware(s.logger))
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(RateLimitMiddleware(rateLimiter))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/members/{username}", s.handleGetMember).Methods("GET")
	api.HandleFunc("/members/{username}/activity", s.handleGetMemberActivity).Methods("GET")
	api.HandleFunc("/membership/stats", s.handleMembershipStats).Methods("GET")

	api.HandleFunc("/stats/{date}", s.handleGetStats).Methods("GET")
	api.HandleFunc("/stats/{date}/growth", s.handleGetGrowth).Methods("GET")
	api.HandleFunc("/leaderboard/{date}", s.handleGetLeaderboard).Methods("GET")
	api.HandleFunc("/top-engaging", s.handleTopEngaging).Methods("GET")

	api.HandleFunc("/summary/{date}", s.handleGetSummary).Methods("GET")
	api.HandleFunc("/report/{date}", s.handleGetReport).Methods("GET")
}

// handleHealth reports dependency reachability and the scheduler state
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	body := map[string]interface{}{
		"status":       "healthy",
		"service":      "community-pulse",
		"dependencies": deps,
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if s.scheduler != nil {
		body["scheduler"] = s.scheduler.GetStatus()
	}

	respondJSON(w, status, body)
}

// Handler returns the router behind CORS. Preflight requests never match
// a GET route, so CORS wraps the router instead of running inside it.
func (s *Server) Handler() http.Handler {
	return CORSMiddleware(s.router)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
