package service

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/community-pulse/internal/hive/hivetest"
	"github.com/community-pulse/internal/models"
)

type recordingArchive struct {
	calls map[string]int
	err   error
}

func (a *recordingArchive) ArchiveOperations(ctx context.Context, username string, day time.Time, ops []models.Operation) error {
	if a.calls == nil {
		a.calls = map[string]int{}
	}
	a.calls[username] += len(ops)
	return a.err
}

type plainSource struct{ fake *hivetest.FakeSource }

func (p plainSource) GetFollowers(ctx context.Context, community string) ([]string, error) {
	return p.fake.GetFollowers(ctx, community)
}

func (p plainSource) GetUserOperations(ctx context.Context, username string, day time.Time) ([]models.Operation, error) {
	return p.fake.GetUserOperations(ctx, username, day)
}

func (p plainSource) GetAccountInfo(ctx context.Context, username string) (*models.AccountInfo, error) {
	return p.fake.GetAccountInfo(ctx, username)
}

func bobOperations(fake *hivetest.FakeSource) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	fake.AddOperations("bob",
		hivetest.Post("bob", "my-post", at),
		hivetest.Comment("bob", "alice", "re-alice", at.Add(time.Minute)),
		hivetest.Vote("bob", "a", "p1", at.Add(2*time.Minute)),
		hivetest.Vote("bob", "b", "p2", at.Add(3*time.Minute)),
		hivetest.Vote("bob", "c", "p3", at.Add(4*time.Minute)),
		// next day, must be ignored
		hivetest.Post("bob", "tomorrow", at.Add(24*time.Hour)),
	)
}

func TestCollectActivity_BobScenario(t *testing.T) {
	store := newMemStore()
	store.seedMember("bob", day("2024-01-01"))
	fake := &hivetest.FakeSource{}
	bobOperations(fake)

	svc := NewActivityService(plainSource{fake}, store, store, nil)
	activity, collected := svc.CollectActivity(context.Background(), "bob", day("2024-05-01"))

	require.True(t, collected)
	assert.Equal(t, 1, activity.PostsCount)
	assert.Equal(t, 1, activity.CommentsCount)
	assert.Equal(t, 3, activity.UpvotesGiven)
	assert.Equal(t, 0, activity.UpvotesReceived)
	assert.Equal(t, 21.0, activity.EngagementScore)
}

func TestCollectActivity_UsesReceivedCapability(t *testing.T) {
	store := newMemStore()
	store.seedMember("bob", day("2024-01-01"))
	fake := &hivetest.FakeSource{}
	bobOperations(fake)
	fake.SetUpvotesReceived("bob", 4)

	svc := NewActivityService(fake, store, store, nil)
	activity, _ := svc.CollectActivity(context.Background(), "bob", day("2024-05-01"))

	assert.Equal(t, 4, activity.UpvotesReceived)
	assert.Equal(t, 25.0, activity.EngagementScore)
}

func TestCollectActivity_SkipsDaysBeforeJoin(t *testing.T) {
	store := newMemStore()
	store.seedMember("alice", day("2024-01-01"))
	fake := &hivetest.FakeSource{}
	fake.AddOperations("alice", hivetest.Post("alice", "early", time.Date(2023, 12, 31, 12, 0, 0, 0, time.UTC)))

	svc := NewActivityService(fake, store, store, nil)

	activity, collected := svc.CollectActivity(context.Background(), "alice", day("2023-12-31"))
	assert.False(t, collected)
	assert.Nil(t, activity)
	assert.Equal(t, 0, fake.Calls("GetUserOperations"))

	_, collected = svc.CollectActivity(context.Background(), "alice", day("2024-01-01"))
	assert.True(t, collected, "the join day itself is collected")
}

func TestCollectActivity_LegacyMemberAlwaysCollected(t *testing.T) {
	store := newMemStore()
	store.members["old"] = &models.Member{Username: "old", IsActive: true}
	fake := &hivetest.FakeSource{}

	svc := NewActivityService(fake, store, store, nil)
	_, collected := svc.CollectActivity(context.Background(), "old", day("2015-01-01"))
	assert.True(t, collected)
}

func TestCollectActivity_SourceErrorYieldsZero(t *testing.T) {
	store := newMemStore()
	store.seedMember("bob", day("2024-01-01"))
	fake := &hivetest.FakeSource{OperationsErr: map[string]error{"bob": stderrors.New("timeout")}}

	svc := NewActivityService(fake, store, store, nil)
	activity, collected := svc.CollectActivity(context.Background(), "bob", day("2024-05-01"))

	assert.True(t, collected)
	assert.Equal(t, models.UserActivity{Username: "bob"}, *activity)
}

func TestCollectAll_PersistsIdempotently(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.seedMember("bob", day("2024-01-01"))
	store.seedMember("late", day("2024-06-01"))
	store.seedMember("flaky", day("2024-01-01"))
	fake := &hivetest.FakeSource{OperationsErr: map[string]error{"flaky": stderrors.New("502")}}
	bobOperations(fake)
	archive := &recordingArchive{err: stderrors.New("clickhouse down")}

	svc := NewActivityService(fake, store, store, archive)

	first, err := svc.CollectAll(ctx, day("2024-05-01"))
	require.NoError(t, err)
	assert.Len(t, first.Activities, 2)
	assert.Equal(t, []string{"late"}, first.Skipped)
	assert.Equal(t, []string{"flaky"}, first.SourceErrors)
	assert.Equal(t, 5, archive.calls["bob"], "archive failure is non-fatal")

	_, err = svc.CollectAll(ctx, day("2024-05-01"))
	require.NoError(t, err)

	rows, _ := store.GetDailyActivity(ctx, "bob", day("2024-05-01"), day("2024-05-01"))
	require.Len(t, rows, 1, "re-running a day overwrites")
	assert.Equal(t, 3, rows[0].UpvotesGiven)
	assert.Equal(t, 21.0, rows[0].EngagementScore)
	assert.Equal(t, 2.5+0.06, rows[0].PatacoinsEarned)
	assert.Equal(t, 2, store.upsertCalls, "one batch per pass")
}

func TestCollectOne_PersistsRow(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.seedMember("bob", day("2024-01-01"))
	fake := &hivetest.FakeSource{}
	bobOperations(fake)
	svc := NewActivityService(plainSource{fake}, store, store, nil)

	result, err := svc.CollectOne(ctx, "@Bob", day("2024-05-01"))
	require.NoError(t, err)
	require.Len(t, result.Activities, 1)
	assert.Empty(t, result.Failed)

	rows, _ := store.GetDailyActivity(ctx, "bob", day("2024-05-01"), day("2024-05-01"))
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].PostsCount)
	assert.Equal(t, 2.5+0.06, rows[0].PatacoinsEarned)
}

func TestCollectOne_SkippedMemberNotStored(t *testing.T) {
	store := newMemStore()
	store.seedMember("late", day("2024-06-01"))
	svc := NewActivityService(&hivetest.FakeSource{}, store, store, nil)

	result, err := svc.CollectOne(context.Background(), "late", day("2024-05-01"))
	require.NoError(t, err)
	assert.Equal(t, []string{"late"}, result.Skipped)
	assert.Zero(t, store.activityCount("late"))
	assert.Zero(t, store.upsertCalls)
}

func TestCollectOne_InvalidUsername(t *testing.T) {
	store := newMemStore()
	svc := NewActivityService(&hivetest.FakeSource{}, store, store, nil)

	_, err := svc.CollectOne(context.Background(), "no spaces allowed", day("2024-05-01"))
	assert.Error(t, err)
}

func TestCollectAll_RowFailureReported(t *testing.T) {
	store := newMemStore()
	store.seedMember("bob", day("2024-01-01"))
	store.seedMember("carl", day("2024-01-01"))
	store.failActivityRow["carl"] = stderrors.New("deadlock")

	svc := NewActivityService(&hivetest.FakeSource{}, store, store, nil)
	result, err := svc.CollectAll(context.Background(), day("2024-05-01"))

	require.NoError(t, err)
	assert.Equal(t, []string{"carl"}, result.Failed)
	assert.Equal(t, 1, store.activityCount("bob"))
}

func TestActivityService_HistoryValidation(t *testing.T) {
	store := newMemStore()
	svc := NewActivityService(&hivetest.FakeSource{}, store, store, nil)

	_, err := svc.History(context.Background(), "bob", day("2024-05-02"), day("2024-05-01"))
	assert.Error(t, err)

	rows, err := svc.History(context.Background(), "bob", day("2024-05-01"), day("2024-05-02"))
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestActivityService_TopEngaging(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	_, _ = store.UpsertDailyActivities(ctx, []models.DailyActivity{
		{Username: "a", Date: day("2024-05-10"), EngagementScore: 10},
		{Username: "b", Date: day("2024-05-09"), EngagementScore: 30},
		{Username: "b", Date: day("2024-04-01"), EngagementScore: 500},
	})
	svc := NewActivityService(&hivetest.FakeSource{}, store, store, nil)

	top, err := svc.TopEngaging(ctx, day("2024-05-10"), 7, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].Username)
	assert.Equal(t, 30.0, top[0].TotalEngagement)
}
