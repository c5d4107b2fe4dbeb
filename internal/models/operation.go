package models

import "time"

// OperationType is the normalized kind of a source operation
type OperationType string

const (
	// OpContent is a post (empty ParentRef) or a comment
	OpContent OperationType = "content"
	// OpVote is a vote cast by the member
	OpVote OperationType = "vote"
)

// Operation is one normalized item of a member's account history
type Operation struct {
	Type      OperationType `json:"type"`
	ParentRef string        `json:"parentRef,omitempty"`
	Author    string        `json:"author"`
	Permlink  string        `json:"permlink"`
	Voter     string        `json:"voter,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Weight    int           `json:"weight,omitempty"`
}

// IsPost reports whether a content op is top level
func (o Operation) IsPost() bool {
	return o.Type == OpContent && o.ParentRef == ""
}

// IsComment reports whether a content op replies to something
func (o Operation) IsComment() bool {
	return o.Type == OpContent && o.ParentRef != ""
}
