package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/community-pulse/internal/errors"
	"github.com/community-pulse/internal/logging"
	"github.com/community-pulse/internal/models"
)

// SyncResult summarizes one reconciliation pass
type SyncResult struct {
	TotalFollowers      int      `json:"totalFollowers"`
	TotalTracked        int      `json:"totalTracked"`
	NewMembers          int      `json:"newMembers"`
	LeftMembers         int      `json:"leftMembers"`
	RejoinedMembers     int      `json:"rejoinedMembers"`
	Failed              []string `json:"failed,omitempty"`
	InvariantViolations []string `json:"invariantViolations,omitempty"`
}

// NewCandidate is a follower that is not currently tracked and has never left.
// Existing is set when an inactive row without leave history is already stored.
type NewCandidate struct {
	Username string
	Existing *models.Member
}

// RejoinCandidate is a returning follower whose history shows a departure
type RejoinCandidate struct {
	Username     string
	PreviousJoin *time.Time
}

// ReconcilePlan is the classification of one pass. Every valid username in
// followers ∪ tracked lands in exactly one of New, Rejoin, Left, Unchanged
// unless its lookup failed.
type ReconcilePlan struct {
	Followers []string
	Tracked   []string
	New       []NewCandidate
	Rejoin    []RejoinCandidate
	Left      []string
	Unchanged []string
	Invalid   []string
	Failed    []string
}

// MembershipService keeps the member table in step with the community's followers
type MembershipService struct {
	source    ActivitySource
	store     MemberStore
	activity  ActivityStore
	community string
	now       Clock
	logger    *logging.Logger
}

// NewMembershipService creates a new membership service
func NewMembershipService(source ActivitySource, store MemberStore, activity ActivityStore, community string) *MembershipService {
	return &MembershipService{
		source:    source,
		store:     store,
		activity:  activity,
		community: community,
		now:       time.Now,
		logger:    logging.WithComponent("membership"),
	}
}

// Sync classifies followers against tracked members, then applies the plan.
// A failed follower fetch yields an empty result rather than an error.
func (s *MembershipService) Sync(ctx context.Context) *SyncResult {
	plan, err := s.Classify(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Membership sync skipped")
		return &SyncResult{}
	}
	return s.Apply(ctx, plan)
}

// Classify is phase one: it reads followers, tracked members and the prior
// history of every untracked follower, and returns an immutable plan.
// Nothing is written.
func (s *MembershipService) Classify(ctx context.Context) (*ReconcilePlan, error) {
	raw, err := s.source.GetFollowers(ctx, s.community)
	if err != nil {
		return nil, fmt.Errorf("fetch followers: %w", err)
	}
	tracked, err := s.store.GetActiveMembers(ctx)
	if err != nil {
		return nil, errors.NewDatabaseError("list active members", err)
	}

	plan := &ReconcilePlan{Tracked: tracked}
	followerSet := make(map[string]struct{}, len(raw))
	for _, name := range raw {
		name = models.NormalizeUsername(name)
		if !models.ValidUsername(name) {
			plan.Invalid = append(plan.Invalid, name)
			continue
		}
		if _, dup := followerSet[name]; dup {
			continue
		}
		followerSet[name] = struct{}{}
		plan.Followers = append(plan.Followers, name)
	}

	trackedSet := make(map[string]struct{}, len(tracked))
	for _, name := range tracked {
		trackedSet[name] = struct{}{}
		if _, ok := followerSet[name]; !ok {
			plan.Left = append(plan.Left, name)
		}
	}

	for _, name := range plan.Followers {
		if _, ok := trackedSet[name]; ok {
			plan.Unchanged = append(plan.Unchanged, name)
			continue
		}

		member, err := s.store.GetMember(ctx, name)
		if err != nil {
			s.logger.WithField("username", name).WithError(err).Warn("Member lookup failed, skipping")
			plan.Failed = append(plan.Failed, name)
			continue
		}
		if member == nil {
			plan.New = append(plan.New, NewCandidate{Username: name})
			continue
		}

		changes, err := s.store.GetMembershipChanges(ctx, name)
		if err != nil {
			s.logger.WithField("username", name).WithError(err).Warn("Membership history lookup failed, skipping")
			plan.Failed = append(plan.Failed, name)
			continue
		}

		lc := DeriveLifecycle(member, changes)
		if lc.HasLeft {
			plan.Rejoin = append(plan.Rejoin, RejoinCandidate{Username: name, PreviousJoin: lc.LastJoin})
		} else {
			plan.New = append(plan.New, NewCandidate{Username: name, Existing: member})
		}
	}

	if len(plan.Invalid) > 0 {
		s.logger.WithField("invalid", plan.Invalid).Warn("Ignoring invalid follower usernames")
	}

	return plan, nil
}

// Apply is phase two. Per-user failures are recorded and skipped.
func (s *MembershipService) Apply(ctx context.Context, plan *ReconcilePlan) *SyncResult {
	result := &SyncResult{
		TotalFollowers: len(plan.Followers),
		Failed:         slices.Clone(plan.Failed),
	}

	for _, name := range plan.Left {
		if err := s.leave(ctx, name); err != nil {
			s.logger.WithField("username", name).WithError(err).Error("Failed to deactivate member")
			result.Failed = append(result.Failed, name)
			continue
		}
		result.LeftMembers++
	}

	for _, c := range plan.New {
		if err := s.join(ctx, c); err != nil {
			s.logger.WithField("username", c.Username).WithError(err).Error("Failed to add member")
			result.Failed = append(result.Failed, c.Username)
			continue
		}
		result.NewMembers++
	}

	for _, c := range plan.Rejoin {
		err := s.rejoin(ctx, c)
		switch {
		case err == nil:
			result.RejoinedMembers++
		case errors.IsInvariantViolation(err):
			s.logger.WithField("username", c.Username).WithError(err).Error("Invariant violation during rejoin")
			result.InvariantViolations = append(result.InvariantViolations, c.Username)
		default:
			s.logger.WithField("username", c.Username).WithError(err).Error("Failed to reset rejoining member")
			result.Failed = append(result.Failed, c.Username)
		}
	}

	result.TotalTracked = len(plan.Tracked) + result.NewMembers + result.RejoinedMembers - result.LeftMembers

	s.logger.WithFields(map[string]interface{}{
		"followers": result.TotalFollowers,
		"tracked":   result.TotalTracked,
		"new":       result.NewMembers,
		"left":      result.LeftMembers,
		"rejoined":  result.RejoinedMembers,
		"failed":    len(result.Failed),
	}).Info("Membership sync completed")

	return result
}

func (s *MembershipService) leave(ctx context.Context, username string) error {
	now := s.now().UTC()
	if err := s.store.DeactivateMember(ctx, username, now); err != nil {
		return err
	}
	return s.store.AppendMembershipChange(ctx, models.NewMembershipChange(username, models.ActionLeft, now, nil))
}

func (s *MembershipService) join(ctx context.Context, c NewCandidate) error {
	now := s.now().UTC()

	member := c.Existing
	if member == nil {
		member = &models.Member{Username: c.Username, CreatedAt: now}
		s.fillAccountInfo(ctx, member)
	} else {
		member = cloneMember(member)
	}
	member.IsActive = true
	member.UpdatedAt = now
	member.AppendTag(models.TagJoined, now)

	if err := s.store.UpsertMember(ctx, member); err != nil {
		return err
	}
	return s.store.AppendMembershipChange(ctx, models.NewMembershipChange(c.Username, models.ActionJoined, now, nil))
}

func (s *MembershipService) rejoin(ctx context.Context, c RejoinCandidate) error {
	now := s.now().UTC()

	if err := s.store.ResetMember(ctx, c.Username, now, c.PreviousJoin); err != nil {
		if errors.IsNotFound(err) {
			return errors.NewInvariantError(c.Username, "rejoin reset attempted on a member with no row")
		}
		return err
	}
	return s.store.AppendMembershipChange(ctx, models.NewMembershipChange(c.Username, models.ActionRejoined, now, c.PreviousJoin))
}

// fillAccountInfo copies profile data onto a new member; failures only log
func (s *MembershipService) fillAccountInfo(ctx context.Context, member *models.Member) {
	info, err := s.source.GetAccountInfo(ctx, member.Username)
	if err != nil {
		s.logger.WithField("username", member.Username).WithError(err).Warn("Account info unavailable")
		return
	}
	if info == nil {
		return
	}
	member.DisplayName = info.DisplayName
	member.Reputation = info.Reputation
	member.Followers = info.Followers
	member.Following = info.Following
}

func cloneMember(m *models.Member) *models.Member {
	cp := *m
	return &cp
}

// ForceResync wipes every member and all activity, then re-adds every
// current follower as new. confirm must be true.
func (s *MembershipService) ForceResync(ctx context.Context, confirm bool) (*SyncResult, error) {
	if !confirm {
		return nil, errors.NewConfirmationRequiredError("force resync")
	}

	// Fetch first so a source outage never leaves the table empty
	plan, err := s.Classify(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.WithField("followers", len(plan.Followers)).Warn("Force resync: clearing all members and activity")
	if err := s.store.ClearAll(ctx); err != nil {
		return nil, errors.NewDatabaseError("clear all", err)
	}

	fresh := &ReconcilePlan{Followers: plan.Followers}
	for _, name := range plan.Followers {
		fresh.New = append(fresh.New, NewCandidate{Username: name})
	}
	return s.Apply(ctx, fresh), nil
}

// MemberView is a member together with its derived lifecycle
type MemberView struct {
	Member   *models.Member            `json:"member"`
	JoinDate *time.Time                `json:"joinDate,omitempty"`
	IsActive bool                      `json:"isActive"`
	History  []models.MembershipChange `json:"history"`
}

// Member looks up one member by username
func (s *MembershipService) Member(ctx context.Context, username string) (*MemberView, error) {
	username = models.NormalizeUsername(username)
	if !models.ValidUsername(username) {
		return nil, errors.NewInvalidUsernameError(username)
	}

	member, err := s.store.GetMember(ctx, username)
	if err != nil {
		return nil, errors.NewDatabaseError("get member", err)
	}
	if member == nil {
		return nil, errors.NewNotFoundError("member", username)
	}
	changes, err := s.store.GetMembershipChanges(ctx, username)
	if err != nil {
		return nil, errors.NewDatabaseError("get membership changes", err)
	}

	lc := DeriveLifecycle(member, changes)
	if changes == nil {
		changes = []models.MembershipChange{}
	}
	return &MemberView{
		Member:   member,
		JoinDate: lc.LastJoin,
		IsActive: member.IsActive,
		History:  changes,
	}, nil
}

// Stats summarizes the tracked population as of now
func (s *MembershipService) Stats(ctx context.Context) (*models.MembershipStats, error) {
	tracked, err := s.store.GetActiveMembers(ctx)
	if err != nil {
		return nil, errors.NewDatabaseError("list active members", err)
	}

	today := models.DateOnly(s.now().UTC())
	activeToday, err := s.activity.CountActiveUsersSince(ctx, today)
	if err != nil {
		return nil, errors.NewDatabaseError("count active today", err)
	}
	activeWeek, err := s.activity.CountActiveUsersSince(ctx, today.AddDate(0, 0, -6))
	if err != nil {
		return nil, errors.NewDatabaseError("count active this week", err)
	}
	newWeek, err := s.store.CountNewMembers(ctx, 7)
	if err != nil {
		return nil, errors.NewDatabaseError("count new members", err)
	}

	stats := &models.MembershipStats{
		TotalTracked:   len(tracked),
		ActiveToday:    activeToday,
		ActiveThisWeek: activeWeek,
		NewThisWeek:    newWeek,
	}
	if len(tracked) > 0 {
		stats.WeeklyEngagementRate = models.Round2(float64(activeWeek) / float64(len(tracked)) * 100)
	}
	return stats, nil
}
