// Package models provides the data models for the community pulse system.
package models

import (
	"strings"
	"time"
)

// Member is one tracked community follower. There is exactly one row per
// username; leaving and rejoining mutate it in place.
type Member struct {
	Username    string    `json:"username" db:"username"`
	DisplayName string    `json:"displayName" db:"display_name"`
	Reputation  int64     `json:"reputation" db:"reputation"`
	Followers   int       `json:"followers" db:"followers"`
	Following   int       `json:"following" db:"following"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
	IsActive    bool      `json:"isActive" db:"is_active"`
	IsBusiness  bool      `json:"isBusiness" db:"is_business"`
	Tags        string    `json:"tags,omitempty" db:"tags"`
}

// Tag prefixes written to Member.Tags. The tag log predates the
// membership_changes table and is only read for members without events.
const (
	TagJoined         = "joined"
	TagLeft           = "left"
	TagPreviousMember = "previous_member"
	TagRejoined       = "rejoined"
)

// AppendTag adds "<prefix>:<RFC3339 ts>" to the comma separated tag log
func (m *Member) AppendTag(prefix string, at time.Time) {
	tag := prefix + ":" + at.UTC().Format(time.RFC3339)
	if m.Tags == "" {
		m.Tags = tag
		return
	}
	m.Tags += "," + tag
}

// TagEntries returns the parsed tag log in write order. Malformed entries
// are skipped.
func (m *Member) TagEntries() []TagEntry {
	if m.Tags == "" {
		return nil
	}
	var out []TagEntry
	for _, raw := range strings.Split(m.Tags, ",") {
		prefix, ts, ok := strings.Cut(strings.TrimSpace(raw), ":")
		if !ok {
			continue
		}
		at, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			continue
		}
		out = append(out, TagEntry{Prefix: prefix, At: at})
	}
	return out
}

// TagEntry is one parsed element of Member.Tags
type TagEntry struct {
	Prefix string
	At     time.Time
}

// AccountInfo is the profile data fetched for a new member
type AccountInfo struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Reputation  int64     `json:"reputation"`
	Followers   int       `json:"followers"`
	Following   int       `json:"following"`
	CreatedAt   time.Time `json:"createdAt"`
}
