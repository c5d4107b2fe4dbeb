package storage

import "github.com/community-pulse/internal/service"

// PostgresStore bundles the repositories behind service.Store
type PostgresStore struct {
	*MemberRepository
	*ActivityRepository
	*StatsRepository
}

// NewPostgresStore creates the repositories on db
func NewPostgresStore(db *PostgresDB) *PostgresStore {
	return &PostgresStore{
		MemberRepository:   NewMemberRepository(db),
		ActivityRepository: NewActivityRepository(db),
		StatsRepository:    NewStatsRepository(db),
	}
}

var _ service.Store = (*PostgresStore)(nil)
