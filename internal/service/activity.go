package service

import (
	"context"
	"time"

	"github.com/community-pulse/internal/errors"
	"github.com/community-pulse/internal/logging"
	"github.com/community-pulse/internal/models"
)

// CollectResult is the outcome of one CollectAll pass
type CollectResult struct {
	Date       time.Time             `json:"date"`
	Activities []models.UserActivity `json:"activities"`
	// Skipped members joined after Date
	Skipped []string `json:"skipped,omitempty"`
	// SourceErrors members were recorded with zero activity
	SourceErrors []string `json:"sourceErrors,omitempty"`
	// Failed rows could not be persisted
	Failed []string `json:"failed,omitempty"`
}

// ActivityService turns each member's daily operations into counters and scores
type ActivityService struct {
	source  ActivitySource
	members MemberStore
	store   ActivityStore
	archive OperationArchive
	logger  *logging.Logger
}

// NewActivityService creates a new activity service. archive may be nil.
func NewActivityService(source ActivitySource, members MemberStore, store ActivityStore, archive OperationArchive) *ActivityService {
	return &ActivityService{
		source:  source,
		members: members,
		store:   store,
		archive: archive,
		logger:  logging.WithComponent("activity"),
	}
}

// CollectActivity aggregates username's activity on date. The second return
// is false when the member joined after date and nothing was collected.
// Source failures yield a zero-valued activity, never an error.
func (s *ActivityService) CollectActivity(ctx context.Context, username string, date time.Time) (*models.UserActivity, bool) {
	member, err := s.members.GetMember(ctx, username)
	if err != nil {
		s.logger.WithField("username", username).WithError(err).Warn("Member lookup failed, collecting as legacy member")
	}
	var changes []models.MembershipChange
	if member != nil {
		if changes, err = s.members.GetMembershipChanges(ctx, username); err != nil {
			s.logger.WithField("username", username).WithError(err).Warn("Membership history unavailable")
		}
	}

	activity, collected, _ := s.collect(ctx, username, DeriveLifecycle(member, changes), date)
	return activity, collected
}

// collect reports sourceErr when the source failed and a zero activity was substituted
func (s *ActivityService) collect(ctx context.Context, username string, lc Lifecycle, date time.Time) (activity *models.UserActivity, collected bool, sourceErr error) {
	log := s.logger.WithFields(map[string]interface{}{
		"username": username,
		"date":     date.Format(models.DateLayout),
	})

	if !lc.EligibleOn(date) {
		log.Debug("Member joined after date, skipping")
		return nil, false, nil
	}

	activity = &models.UserActivity{Username: username}

	ops, err := s.source.GetUserOperations(ctx, username, date)
	if err != nil {
		log.WithError(err).Warn("Operations unavailable, recording zero activity")
		return activity, true, err
	}

	for _, op := range ops {
		switch {
		case op.IsPost():
			activity.PostsCount++
		case op.IsComment():
			activity.CommentsCount++
		case op.Type == models.OpVote:
			activity.UpvotesGiven++
		}
	}

	if rs, ok := s.source.(UpvotesReceivedSource); ok {
		received, err := rs.GetUpvotesReceived(ctx, username, date)
		if err != nil {
			log.WithError(err).Warn("Upvotes received unavailable, using 0")
		} else {
			activity.UpvotesReceived = received
		}
	}

	activity.ComputeEngagement()

	if s.archive != nil && len(ops) > 0 {
		if err := s.archive.ArchiveOperations(ctx, username, date, ops); err != nil {
			log.WithError(err).Warn("Failed to archive operations")
		}
	}

	return activity, true, nil
}

// CollectAll collects every active member sequentially and persists the
// rows in one batch. An error is returned only when members cannot be
// listed or ctx ends; partial results are kept either way.
func (s *ActivityService) CollectAll(ctx context.Context, date time.Time) (*CollectResult, error) {
	date = models.DateOnly(date)
	result := &CollectResult{Date: date}

	members, err := s.members.ListActiveMembers(ctx)
	if err != nil {
		return result, errors.NewDatabaseError("list active members", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"date":    date.Format(models.DateLayout),
		"members": len(members),
	}).Info("Collecting daily activity")

	rows := make([]models.DailyActivity, 0, len(members))
	for _, m := range members {
		if err := ctx.Err(); err != nil {
			s.persist(ctx, result, rows)
			return result, err
		}

		changes, err := s.members.GetMembershipChanges(ctx, m.Username)
		if err != nil {
			s.logger.WithField("username", m.Username).WithError(err).Warn("Membership history unavailable")
		}

		activity, collected, sourceErr := s.collect(ctx, m.Username, DeriveLifecycle(m, changes), date)
		if !collected {
			result.Skipped = append(result.Skipped, m.Username)
			continue
		}
		if sourceErr != nil {
			result.SourceErrors = append(result.SourceErrors, m.Username)
		}

		result.Activities = append(result.Activities, *activity)
		rows = append(rows, activity.ToDaily(date, Patacoins(activity)))
	}

	s.persist(ctx, result, rows)

	s.logger.WithFields(map[string]interface{}{
		"date":         date.Format(models.DateLayout),
		"collected":    len(result.Activities),
		"skipped":      len(result.Skipped),
		"sourceErrors": len(result.SourceErrors),
		"failed":       len(result.Failed),
	}).Info("Daily activity collected")

	return result, nil
}

// CollectOne collects and stores a single member's row for date, the way
// CollectAll does for the whole roster
func (s *ActivityService) CollectOne(ctx context.Context, username string, date time.Time) (*CollectResult, error) {
	name := models.NormalizeUsername(username)
	if !models.ValidUsername(name) {
		return nil, errors.NewInvalidUsernameError(username)
	}
	date = models.DateOnly(date)
	result := &CollectResult{Date: date}

	member, err := s.members.GetMember(ctx, name)
	if err != nil {
		s.logger.WithField("username", name).WithError(err).Warn("Member lookup failed, collecting as legacy member")
	}
	var changes []models.MembershipChange
	if member != nil {
		if changes, err = s.members.GetMembershipChanges(ctx, name); err != nil {
			s.logger.WithField("username", name).WithError(err).Warn("Membership history unavailable")
		}
	}

	activity, collected, sourceErr := s.collect(ctx, name, DeriveLifecycle(member, changes), date)
	if !collected {
		result.Skipped = []string{name}
		return result, nil
	}
	if sourceErr != nil {
		result.SourceErrors = []string{name}
	}

	result.Activities = []models.UserActivity{*activity}
	s.persist(ctx, result, []models.DailyActivity{activity.ToDaily(date, Patacoins(activity))})
	return result, nil
}

func (s *ActivityService) persist(ctx context.Context, result *CollectResult, rows []models.DailyActivity) {
	if len(rows) == 0 {
		return
	}
	failed, err := s.store.UpsertDailyActivities(ctx, rows)
	if err != nil {
		s.logger.WithError(err).Error("Daily activity batch failed")
		for _, r := range rows {
			result.Failed = append(result.Failed, r.Username)
		}
		return
	}
	result.Failed = append(result.Failed, failed...)
}

// Leaderboard returns the stored Patacoin ranking for date, highest first
func (s *ActivityService) Leaderboard(ctx context.Context, date time.Time, limit int) ([]models.PatacoinEntry, error) {
	rows, err := s.store.ListDailyActivityByDate(ctx, models.DateOnly(date))
	if err != nil {
		return nil, errors.NewDatabaseError("list daily activity", err)
	}
	return PatacoinLeaderboard(rows, limit), nil
}

// History returns username's stored rows between from and to inclusive
func (s *ActivityService) History(ctx context.Context, username string, from, to time.Time) ([]models.DailyActivity, error) {
	username = models.NormalizeUsername(username)
	if !models.ValidUsername(username) {
		return nil, errors.NewInvalidUsernameError(username)
	}
	if to.Before(from) {
		return nil, errors.NewInvalidParameterError("to", "must not be before from")
	}
	rows, err := s.store.GetDailyActivity(ctx, username, models.DateOnly(from), models.DateOnly(to))
	if err != nil {
		return nil, errors.NewDatabaseError("get daily activity", err)
	}
	return rows, nil
}

// TopEngaging ranks members by summed engagement over the last days
func (s *ActivityService) TopEngaging(ctx context.Context, now time.Time, days, limit int) ([]models.EngagingMember, error) {
	if days < 1 {
		return nil, errors.NewInvalidParameterError("days", "must be positive")
	}
	since := models.DateOnly(now).AddDate(0, 0, -(days - 1))
	top, err := s.store.TopEngagingMembers(ctx, since, limit)
	if err != nil {
		return nil, errors.NewDatabaseError("top engaging members", err)
	}
	return top, nil
}
