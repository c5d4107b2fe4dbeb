package service

import (
	"context"
	"time"

	"github.com/community-pulse/internal/errors"
	"github.com/community-pulse/internal/logging"
	"github.com/community-pulse/internal/models"
)

// CleanupResult reports how many rows a retention pass removed
type CleanupResult struct {
	Cutoff          time.Time `json:"cutoff"`
	ActivityDeleted int64     `json:"activityDeleted"`
	StatsDeleted    int64     `json:"statsDeleted"`
}

// MaintenanceService enforces data retention
type MaintenanceService struct {
	activity ActivityStore
	stats    StatsStore
	days     int
	now      Clock
	logger   *logging.Logger
}

// NewMaintenanceService keeps retentionDays of activity and stats
func NewMaintenanceService(activity ActivityStore, stats StatsStore, retentionDays int) *MaintenanceService {
	return &MaintenanceService{
		activity: activity,
		stats:    stats,
		days:     retentionDays,
		now:      time.Now,
		logger:   logging.WithComponent("maintenance"),
	}
}

// Cleanup deletes daily activity and community stats older than the
// retention window. Members and membership changes are never deleted.
func (s *MaintenanceService) Cleanup(ctx context.Context) (*CleanupResult, error) {
	if s.days < 1 {
		return nil, errors.NewInvalidParameterError("retention days", "must be positive")
	}

	cutoff := models.DateOnly(s.now().UTC()).AddDate(0, 0, -s.days)
	result := &CleanupResult{Cutoff: cutoff}

	n, err := s.activity.DeleteActivityBefore(ctx, cutoff)
	if err != nil {
		return result, errors.NewDatabaseError("delete old activity", err)
	}
	result.ActivityDeleted = n

	n, err = s.stats.DeleteCommunityStatsBefore(ctx, cutoff)
	if err != nil {
		return result, errors.NewDatabaseError("delete old stats", err)
	}
	result.StatsDeleted = n

	s.logger.WithFields(map[string]interface{}{
		"cutoff":   cutoff.Format(models.DateLayout),
		"activity": result.ActivityDeleted,
		"stats":    result.StatsDeleted,
	}).Info("Retention cleanup completed")

	return result, nil
}
