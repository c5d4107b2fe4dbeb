package hive

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/community-pulse/internal/models"
)

// rawOp is one condenser_api history item: [index, {timestamp, op}]
type rawOp struct {
	Index     int64
	Timestamp time.Time
	Type      string
	Value     json.RawMessage
}

func (r *rawOp) UnmarshalJSON(b []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return fmt.Errorf("history item: %w", err)
	}
	if err := json.Unmarshal(pair[0], &r.Index); err != nil {
		return fmt.Errorf("history index: %w", err)
	}

	var body struct {
		Timestamp string          `json:"timestamp"`
		Op        json.RawMessage `json:"op"`
	}
	if err := json.Unmarshal(pair[1], &body); err != nil {
		return fmt.Errorf("history body: %w", err)
	}
	ts, err := time.Parse(hiveTimeLayout, body.Timestamp)
	if err != nil {
		return fmt.Errorf("history timestamp: %w", err)
	}
	r.Timestamp = ts.UTC()

	// condenser_api uses ["type", {...}]; appbase nodes answer
	// {"type": "type_operation", "value": {...}}
	var legacy [2]json.RawMessage
	if err := json.Unmarshal(body.Op, &legacy); err == nil {
		if err := json.Unmarshal(legacy[0], &r.Type); err != nil {
			return fmt.Errorf("history op type: %w", err)
		}
		r.Value = legacy[1]
		return nil
	}

	var typed struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(body.Op, &typed); err != nil {
		return fmt.Errorf("history op: %w", err)
	}
	r.Type = strings.TrimSuffix(typed.Type, "_operation")
	r.Value = typed.Value
	return nil
}

type commentOp struct {
	ParentAuthor string `json:"parent_author"`
	Author       string `json:"author"`
	Permlink     string `json:"permlink"`
}

type voteOp struct {
	Voter    string `json:"voter"`
	Author   string `json:"author"`
	Permlink string `json:"permlink"`
	Weight   int    `json:"weight"`
}

// GetUserOperations returns the content and votes username produced on the
// UTC calendar day of day, oldest first. History is paged backwards from
// the newest entry until it reaches the previous day or the page limit.
func (c *Client) GetUserOperations(ctx context.Context, username string, day time.Time) ([]models.Operation, error) {
	from := models.DateOnly(day)
	to := from.Add(24 * time.Hour)

	var ops []models.Operation
	seen := make(map[string]struct{})
	start := int64(-1)
	limit := c.pageSize

	for page := 0; page < c.maxPages; page++ {
		var items []rawOp
		if err := c.call(ctx, &items, "condenser_api.get_account_history", username, start, limit); err != nil {
			return nil, err
		}
		if len(items) == 0 {
			break
		}

		oldestIndex := items[0].Index
		reachedBefore := false
		for _, item := range items {
			if item.Index < oldestIndex {
				oldestIndex = item.Index
			}
			if item.Timestamp.Before(from) {
				reachedBefore = true
				continue
			}
			if !item.Timestamp.Before(to) {
				continue
			}
			if op, ok := normalize(username, item); ok {
				key := string(op.Type) + "/" + op.Author + "/" + op.Permlink
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				ops = append(ops, op)
			}
		}

		if reachedBefore || oldestIndex <= 0 {
			break
		}
		start = oldestIndex - 1
		// The node rejects limit > start
		if start < int64(limit) {
			limit = int(start)
		}
		if limit < 1 {
			break
		}
	}

	slices.SortStableFunc(ops, func(a, b models.Operation) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	c.logger.WithFields(map[string]interface{}{
		"username":   username,
		"date":       from.Format(models.DateLayout),
		"operations": len(ops),
	}).Debug("Fetched user operations")

	return ops, nil
}

// normalize keeps comments authored by username and votes cast by username.
// Repeated comment ops for the same permlink are edits and collapse into
// one item in the caller.
func normalize(username string, item rawOp) (models.Operation, bool) {
	switch item.Type {
	case "comment":
		var v commentOp
		if err := json.Unmarshal(item.Value, &v); err != nil || v.Author != username {
			return models.Operation{}, false
		}
		return models.Operation{
			Type:      models.OpContent,
			ParentRef: v.ParentAuthor,
			Author:    v.Author,
			Permlink:  v.Permlink,
			Timestamp: item.Timestamp,
		}, true
	case "vote":
		var v voteOp
		if err := json.Unmarshal(item.Value, &v); err != nil || v.Voter != username {
			return models.Operation{}, false
		}
		return models.Operation{
			Type:      models.OpVote,
			Author:    v.Author,
			Permlink:  v.Permlink,
			Voter:     v.Voter,
			Timestamp: item.Timestamp,
			Weight:    v.Weight,
		}, true
	default:
		return models.Operation{}, false
	}
}
