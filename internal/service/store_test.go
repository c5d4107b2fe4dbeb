package service

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/community-pulse/internal/errors"
	"github.com/community-pulse/internal/models"
)

// memStore is an in-memory Store for service tests
type memStore struct {
	mu       sync.Mutex
	members  map[string]*models.Member
	activity map[string]models.DailyActivity
	stats    map[string]models.CommunityDailyStats
	changes  []models.MembershipChange
	now      func() time.Time

	failUpsertMember map[string]error
	failActivityRow  map[string]error
	upsertCalls      int
}

func newMemStore() *memStore {
	return &memStore{
		members:          map[string]*models.Member{},
		activity:         map[string]models.DailyActivity{},
		stats:            map[string]models.CommunityDailyStats{},
		now:              time.Now,
		failUpsertMember: map[string]error{},
		failActivityRow:  map[string]error{},
	}
}

func activityKey(username string, date time.Time) string {
	return username + "|" + models.DateOnly(date).Format(models.DateLayout)
}

func (m *memStore) GetActiveMembers(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for name, mem := range m.members {
		if mem.IsActive {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) ListActiveMembers(ctx context.Context) ([]*models.Member, error) {
	names, _ := m.GetActiveMembers(ctx)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Member, 0, len(names))
	for _, n := range names {
		cp := *m.members[n]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memStore) GetMember(ctx context.Context, username string) (*models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[username]
	if !ok {
		return nil, nil
	}
	cp := *mem
	return &cp, nil
}

func (m *memStore) UpsertMember(ctx context.Context, member *models.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failUpsertMember[member.Username]; err != nil {
		return err
	}
	cp := *member
	m.members[member.Username] = &cp
	return nil
}

func (m *memStore) DeactivateMember(ctx context.Context, username string, leftAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[username]
	if !ok {
		return errors.NewNotFoundError("member", username)
	}
	mem.IsActive = false
	mem.UpdatedAt = leftAt
	mem.AppendTag(models.TagLeft, leftAt)
	return nil
}

func (m *memStore) ResetMember(ctx context.Context, username string, joinedAt time.Time, previousJoin *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem, ok := m.members[username]
	if !ok {
		return errors.NewNotFoundError("member", username)
	}
	mem.IsActive = true
	mem.CreatedAt = joinedAt
	mem.UpdatedAt = joinedAt
	mem.AppendTag(models.TagRejoined, joinedAt)
	if previousJoin != nil {
		mem.AppendTag(models.TagPreviousMember, *previousJoin)
	}
	for k, row := range m.activity {
		if row.Username == username {
			delete(m.activity, k)
		}
	}
	return nil
}

func (m *memStore) AppendMembershipChange(ctx context.Context, change models.MembershipChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, change)
	return nil
}

func (m *memStore) GetMembershipChanges(ctx context.Context, username string) ([]models.MembershipChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.MembershipChange
	for _, c := range m.changes {
		if c.Username == username {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memStore) CountNewMembers(ctx context.Context, sinceDays int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-time.Duration(sinceDays) * 24 * time.Hour)
	n := 0
	for _, mem := range m.members {
		if mem.CreatedAt.After(cutoff) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) ClearAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members = map[string]*models.Member{}
	m.activity = map[string]models.DailyActivity{}
	return nil
}

func (m *memStore) UpsertDailyActivities(ctx context.Context, rows []models.DailyActivity) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upsertCalls++
	var failed []string
	for _, r := range rows {
		if m.failActivityRow[r.Username] != nil {
			failed = append(failed, r.Username)
			continue
		}
		m.activity[activityKey(r.Username, r.Date)] = r
	}
	return failed, nil
}

func (m *memStore) GetDailyActivity(ctx context.Context, username string, from, to time.Time) ([]models.DailyActivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DailyActivity
	for _, r := range m.activity {
		if r.Username == username && !r.Date.Before(from) && !r.Date.After(to) {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b models.DailyActivity) int { return a.Date.Compare(b.Date) })
	return out, nil
}

func (m *memStore) ListDailyActivityByDate(ctx context.Context, date time.Time) ([]models.DailyActivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.DailyActivity
	for _, r := range m.activity {
		if r.Date.Equal(models.DateOnly(date)) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) CountActiveUsersSince(ctx context.Context, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	for _, r := range m.activity {
		if !r.Date.Before(since) && (r.PostsCount > 0 || r.CommentsCount > 0 || r.UpvotesGiven > 0) {
			seen[r.Username] = true
		}
	}
	return len(seen), nil
}

func (m *memStore) TopEngagingMembers(ctx context.Context, since time.Time, limit int) ([]models.EngagingMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agg := map[string]*models.EngagingMember{}
	for _, r := range m.activity {
		if r.Date.Before(since) {
			continue
		}
		e, ok := agg[r.Username]
		if !ok {
			e = &models.EngagingMember{Username: r.Username}
			agg[r.Username] = e
		}
		e.ActiveDays++
		e.TotalPosts += r.PostsCount
		e.TotalComments += r.CommentsCount
		e.TotalEngagement += r.EngagementScore
		e.TotalPatacoins += r.PatacoinsEarned
	}
	out := make([]models.EngagingMember, 0, len(agg))
	for _, e := range agg {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TotalEngagement > out[j].TotalEngagement })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) DeleteActivityBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, r := range m.activity {
		if r.Date.Before(cutoff) {
			delete(m.activity, k)
			n++
		}
	}
	return n, nil
}

func (m *memStore) UpsertCommunityStats(ctx context.Context, stats *models.CommunityDailyStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats[stats.Date.Format(models.DateLayout)] = *stats
	return nil
}

func (m *memStore) GetCommunityStats(ctx context.Context, date time.Time) (*models.CommunityDailyStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[models.DateOnly(date).Format(models.DateLayout)]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memStore) DeleteCommunityStatsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, s := range m.stats {
		if s.Date.Before(cutoff) {
			delete(m.stats, k)
			n++
		}
	}
	return n, nil
}

// seedMember stores an active member joined at joined
func (m *memStore) seedMember(username string, joined time.Time) {
	mem := &models.Member{Username: username, CreatedAt: joined, UpdatedAt: joined, IsActive: true}
	mem.AppendTag(models.TagJoined, joined)
	m.members[username] = mem
	m.changes = append(m.changes, models.NewMembershipChange(username, models.ActionJoined, joined, nil))
}

func (m *memStore) activityCount(username string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.activity {
		if r.Username == username {
			n++
		}
	}
	return n
}

var _ Store = (*memStore)(nil)

func day(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(fmt.Sprintf("bad date %q", s))
	}
	return t
}
