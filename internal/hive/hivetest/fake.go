// Package hivetest provides an in-memory activity source for tests and
// offline runs.
package hivetest

import (
	"context"
	"sync"
	"time"

	"github.com/community-pulse/internal/models"
)

// FakeSource is a deterministic activity source. Zero value is ready to use.
type FakeSource struct {
	mu         sync.Mutex
	followers  []string
	operations map[string][]models.Operation
	accounts   map[string]*models.AccountInfo
	received   map[string]int

	// Errors returned instead of data when set
	FollowersErr  error
	OperationsErr map[string]error
	AccountErr    map[string]error

	calls map[string]int
}

// SetFollowers replaces the follower list
func (f *FakeSource) SetFollowers(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followers = append([]string(nil), names...)
}

// AddOperations appends ops to username's history
func (f *FakeSource) AddOperations(username string, ops ...models.Operation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.operations == nil {
		f.operations = make(map[string][]models.Operation)
	}
	f.operations[username] = append(f.operations[username], ops...)
}

// SetAccount registers profile data for username
func (f *FakeSource) SetAccount(info models.AccountInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.accounts == nil {
		f.accounts = make(map[string]*models.AccountInfo)
	}
	f.accounts[info.Username] = &info
}

// SetUpvotesReceived makes the fake report n received votes for username
func (f *FakeSource) SetUpvotesReceived(username string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.received == nil {
		f.received = make(map[string]int)
	}
	f.received[username] = n
}

// Calls returns how many times method was invoked
func (f *FakeSource) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *FakeSource) record(method string) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[method]++
}

func (f *FakeSource) GetFollowers(ctx context.Context, community string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetFollowers")
	if f.FollowersErr != nil {
		return nil, f.FollowersErr
	}
	return append([]string(nil), f.followers...), nil
}

// GetUserOperations returns the stored ops whose timestamp falls on day (UTC)
func (f *FakeSource) GetUserOperations(ctx context.Context, username string, day time.Time) ([]models.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetUserOperations")
	if err := f.OperationsErr[username]; err != nil {
		return nil, err
	}

	from := models.DateOnly(day)
	to := from.Add(24 * time.Hour)
	var out []models.Operation
	for _, op := range f.operations[username] {
		if !op.Timestamp.Before(from) && op.Timestamp.Before(to) {
			out = append(out, op)
		}
	}
	return out, nil
}

func (f *FakeSource) GetAccountInfo(ctx context.Context, username string) (*models.AccountInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetAccountInfo")
	if err := f.AccountErr[username]; err != nil {
		return nil, err
	}
	info, ok := f.accounts[username]
	if !ok {
		return nil, nil
	}
	cp := *info
	return &cp, nil
}

// GetUpvotesReceived implements the optional received-votes capability
func (f *FakeSource) GetUpvotesReceived(ctx context.Context, username string, day time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetUpvotesReceived")
	return f.received[username], nil
}

// Post builds a top-level content op
func Post(author, permlink string, at time.Time) models.Operation {
	return models.Operation{Type: models.OpContent, Author: author, Permlink: permlink, Timestamp: at}
}

// Comment builds a reply to parentAuthor
func Comment(author, parentAuthor, permlink string, at time.Time) models.Operation {
	return models.Operation{Type: models.OpContent, ParentRef: parentAuthor, Author: author, Permlink: permlink, Timestamp: at}
}

// Vote builds a vote cast by voter
func Vote(voter, author, permlink string, at time.Time) models.Operation {
	return models.Operation{Type: models.OpVote, Voter: voter, Author: author, Permlink: permlink, Timestamp: at, Weight: 10000}
}
