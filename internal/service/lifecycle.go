package service

import (
	"slices"
	"time"

	"github.com/community-pulse/internal/models"
)

// Lifecycle is a member's state as derived from their history
type Lifecycle struct {
	Active   bool
	LastJoin *time.Time
	// HasLeft is true once the member has left at least once
	HasLeft bool
	// FromEvents is false when the state came from the legacy tag log
	FromEvents bool
}

// DeriveLifecycle replays membership events. Members that predate the event
// log fall back to their tag log, then to the row itself.
func DeriveLifecycle(member *models.Member, changes []models.MembershipChange) Lifecycle {
	if len(changes) > 0 {
		return fromEvents(changes)
	}
	if member == nil {
		return Lifecycle{}
	}

	lc := Lifecycle{Active: member.IsActive}
	for _, tag := range member.TagEntries() {
		switch tag.Prefix {
		case models.TagJoined, models.TagRejoined:
			at := tag.At
			lc.LastJoin = &at
		case models.TagLeft, models.TagPreviousMember:
			lc.HasLeft = true
		}
	}
	if lc.LastJoin == nil && !member.CreatedAt.IsZero() {
		at := member.CreatedAt
		lc.LastJoin = &at
	}
	return lc
}

func fromEvents(changes []models.MembershipChange) Lifecycle {
	sorted := slices.Clone(changes)
	slices.SortStableFunc(sorted, func(a, b models.MembershipChange) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	lc := Lifecycle{FromEvents: true}
	for _, c := range sorted {
		switch c.Action {
		case models.ActionJoined, models.ActionRejoined:
			at := c.Timestamp
			lc.LastJoin = &at
			lc.Active = true
		case models.ActionLeft:
			lc.Active = false
			lc.HasLeft = true
		}
	}
	return lc
}

// EligibleOn reports whether activity may be recorded for date. Members
// without a join date are legacy and always eligible.
func (lc Lifecycle) EligibleOn(date time.Time) bool {
	if lc.LastJoin == nil {
		return true
	}
	return !models.DateOnly(*lc.LastJoin).After(models.DateOnly(date))
}
