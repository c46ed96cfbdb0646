package store

import (
	"github.com/Andy963/ads-sub001/internal/db"
	"github.com/google/uuid"
)

// Store is the persistence facade exposing typed repositories over a dual
// sqlite/postgres connection pool (internal/db.Pool), grounded on the
// teacher's repository-over-pool layering in task/repository/sqlite.
type Store struct {
	pool   *db.Pool
	driver string
}

// New wraps an already-opened Pool. Callers must call Migrate before first use.
func New(pool *db.Pool, driver string) *Store {
	return &Store{pool: pool, driver: driver}
}

// Driver reports the configured SQL driver ("sqlite3" or "pgx").
func (s *Store) Driver() string { return s.driver }

func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
