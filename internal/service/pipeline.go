package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/community-pulse/internal/errors"
	"github.com/community-pulse/internal/logging"
	"github.com/community-pulse/internal/models"
)

// CacheInvalidator drops cached views of a date after it is recomputed
type CacheInvalidator interface {
	InvalidateDate(ctx context.Context, date time.Time) error
}

// CycleResult is everything one reconcile → aggregate → rank cycle produced
type CycleResult struct {
	RunID         string                        `json:"runId"`
	Date          time.Time                     `json:"date"`
	StartedAt     time.Time                     `json:"startedAt"`
	FinishedAt    time.Time                     `json:"finishedAt"`
	Sync          *SyncResult                   `json:"sync"`
	Collect       *CollectResult                `json:"collect"`
	Stats         *models.CommunityDailyStats   `json:"stats"`
	Distribution  models.EngagementDistribution `json:"distribution"`
	TopPerformers *models.TopPerformers         `json:"topPerformers"`
	Leaderboard   []models.PatacoinEntry        `json:"leaderboard"`
	Growth        *models.GrowthMetrics         `json:"growth,omitempty"`
}

// Pipeline runs the daily cycle
type Pipeline struct {
	membership *MembershipService
	activity   *ActivityService
	stats      *CommunityStatsService
	lock       RunLock
	cache      CacheInvalidator
	logger     *logging.Logger
}

// PipelineConfig wires a Pipeline. Lock and Cache are optional.
type PipelineConfig struct {
	Membership *MembershipService
	Activity   *ActivityService
	Stats      *CommunityStatsService
	Lock       RunLock
	Cache      CacheInvalidator
}

// NewPipeline creates a new pipeline
func NewPipeline(cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		membership: cfg.Membership,
		activity:   cfg.Activity,
		stats:      cfg.Stats,
		lock:       cfg.Lock,
		cache:      cfg.Cache,
		logger:     logging.WithComponent("pipeline"),
	}
}

// RunCycle reconciles membership, collects date's activity, aggregates
// community stats and ranks performers. It refuses to start while another
// run holds the lock. Every write is an upsert, so re-running a date is the
// recovery path after a failure.
func (p *Pipeline) RunCycle(ctx context.Context, date time.Time) (*CycleResult, error) {
	runID := uuid.NewString()
	logger := p.logger.WithField("run", runID)
	ctx = logging.WithLogger(ctx, logger)

	release, err := p.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	result := &CycleResult{
		RunID:     runID,
		Date:      models.DateOnly(date),
		StartedAt: time.Now().UTC(),
	}
	logger.WithField("date", result.Date.Format(models.DateLayout)).Info("Cycle started")

	result.Sync = p.membership.Sync(ctx)

	collect, err := p.activity.CollectAll(ctx, result.Date)
	result.Collect = collect
	if err != nil {
		return result, err
	}

	stats, err := p.stats.Aggregate(ctx, collect.Activities, result.Date)
	result.Stats = stats
	result.Distribution = Distribution(collect.Activities)
	result.TopPerformers = RankTopPerformers(collect.Activities)
	result.Leaderboard = leaderboardFromActivities(collect.Activities, result.Date)
	if err != nil {
		return result, err
	}

	if growth, gerr := p.stats.Growth(ctx, result.Date); gerr != nil {
		logger.WithError(gerr).Warn("Growth metrics unavailable")
	} else {
		result.Growth = growth
	}

	if p.cache != nil {
		if cerr := p.cache.InvalidateDate(ctx, result.Date); cerr != nil {
			logger.WithError(cerr).Warn("Failed to invalidate cached stats")
		}
	}

	result.FinishedAt = time.Now().UTC()
	logger.WithFields(map[string]interface{}{
		"duration":    result.FinishedAt.Sub(result.StartedAt).String(),
		"collected":   len(collect.Activities),
		"healthIndex": stats.HealthIndex,
	}).Info("Cycle completed")

	return result, nil
}

// Exclusive runs fn while holding the run lock. A held lock yields a
// RunInProgress error and fn is not called.
func (p *Pipeline) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	release, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// acquire takes the run lock when one is configured
func (p *Pipeline) acquire(ctx context.Context) (func(), error) {
	if p.lock == nil {
		return func() {}, nil
	}

	ok, err := p.lock.TryAcquire(ctx)
	if err != nil {
		return nil, errors.NewCacheError("acquire run lock", err)
	}
	if !ok {
		holder, _ := p.lock.Holder(ctx)
		return nil, errors.NewRunInProgressError(holder)
	}

	return func() {
		// The caller's ctx may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.lock.Release(releaseCtx); err != nil {
			p.logger.WithError(err).Warn("Failed to release run lock")
		}
	}, nil
}

func leaderboardFromActivities(activities []models.UserActivity, date time.Time) []models.PatacoinEntry {
	rows := make([]models.DailyActivity, 0, len(activities))
	for i := range activities {
		rows = append(rows, activities[i].ToDaily(date, Patacoins(&activities[i])))
	}
	return PatacoinLeaderboard(rows, 0)
}
