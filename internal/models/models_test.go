package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestComputeEngagement(t *testing.T) {
	a := UserActivity{Username: "bob", PostsCount: 1, CommentsCount: 1, UpvotesGiven: 3}
	a.ComputeEngagement()
	assert.Equal(t, 21.0, a.EngagementScore)
	assert.True(t, a.IsActive())
	assert.Equal(t, 5, a.Total())
}

func TestIsActive_ReceivedUpvotesAlone(t *testing.T) {
	a := UserActivity{Username: "bob", UpvotesReceived: 4}
	assert.Zero(t, a.Total())
	assert.False(t, a.IsActive())

	a.CommentsCount = 1
	assert.True(t, a.IsActive())
}

func TestBucketFor(t *testing.T) {
	assert.Equal(t, BucketLow, BucketFor(19.99))
	assert.Equal(t, BucketMedium, BucketFor(20))
	assert.Equal(t, BucketMedium, BucketFor(49.99))
	assert.Equal(t, BucketHigh, BucketFor(50))
}

func TestValidUsername(t *testing.T) {
	tests := map[string]bool{
		"bob":               true,
		"alice.dev":         true,
		"hive-115276":       true,
		"ab":                false,
		"-bob":              false,
		"bob.":              false,
		"bo..b":             false,
		"bo--b":             false,
		"Bob":               false,
		"averyveryverylong": false,
	}
	for name, want := range tests {
		assert.Equal(t, want, ValidUsername(name), name)
	}
	assert.Equal(t, "bob", NormalizeUsername(" @Bob "))
}

func TestMemberTags(t *testing.T) {
	joined := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	left := joined.Add(48 * time.Hour)

	m := Member{Username: "carol"}
	m.AppendTag(TagJoined, joined)
	m.AppendTag(TagLeft, left)
	m.Tags += ",garbage"

	entries := m.TagEntries()
	assert.Len(t, entries, 2)
	assert.Equal(t, TagJoined, entries[0].Prefix)
	assert.True(t, entries[1].At.Equal(left))
}

func TestDateOnly(t *testing.T) {
	loc := time.FixedZone("ECT", -5*3600)
	d := DateOnly(time.Date(2024, 3, 9, 23, 30, 0, 0, loc))
	assert.Equal(t, "2024-03-09", d.Format(DateLayout))
	assert.Equal(t, time.UTC, d.Location())
}
