package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/community-pulse/internal/models"
	"github.com/community-pulse/internal/service"
)

// OperationArchive stores raw member operations in ClickHouse
type OperationArchive struct {
	db *ClickHouseDB
}

// NewOperationArchive creates a new archive on db
func NewOperationArchive(db *ClickHouseDB) *OperationArchive {
	return &OperationArchive{db: db}
}

// ArchiveOperations writes ops for username and day in one batch.
// Re-archiving a day replaces the earlier rows on merge.
func (a *OperationArchive) ArchiveOperations(ctx context.Context, username string, day time.Time, ops []models.Operation) error {
	if len(ops) == 0 {
		return nil
	}

	batch, err := a.db.Conn().PrepareBatch(ctx, `
		INSERT INTO member_operations
			(username, day, kind, author, permlink, parent_ref, voter, weight, ts)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare operation batch: %w", err)
	}

	day = models.DateOnly(day)
	for _, op := range ops {
		err := batch.Append(
			username,
			day,
			string(opKind(op)),
			op.Author,
			op.Permlink,
			op.ParentRef,
			op.Voter,
			int32(op.Weight), // #nosec G115 - vote weights are within ±10000
			op.Timestamp.UTC(),
		)
		if err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append operation: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send operation batch: %w", err)
	}
	return nil
}

// OperationKind is the archived classification of an operation
type OperationKind string

const (
	KindPost    OperationKind = "post"
	KindComment OperationKind = "comment"
	KindVote    OperationKind = "vote"
)

func opKind(op models.Operation) OperationKind {
	switch {
	case op.Type == models.OpVote:
		return KindVote
	case op.IsComment():
		return KindComment
	default:
		return KindPost
	}
}

// KindCounts returns the number of archived operations per kind for
// username on day
func (a *OperationArchive) KindCounts(ctx context.Context, username string, day time.Time) (map[OperationKind]uint64, error) {
	rows, err := a.db.Conn().Query(ctx, `
		SELECT kind, count() FROM member_operations FINAL
		WHERE username = ? AND day = ?
		GROUP BY kind
	`, username, models.DateOnly(day))
	if err != nil {
		return nil, fmt.Errorf("failed to query operation counts: %w", err)
	}
	defer rows.Close()

	counts := map[OperationKind]uint64{}
	for rows.Next() {
		var kind string
		var n uint64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan operation counts: %w", err)
		}
		counts[OperationKind(kind)] = n
	}
	return counts, rows.Err()
}

var _ service.OperationArchive = (*OperationArchive)(nil)
