package database

import (
	"database/sql"

	"github.com/frostdev-ops/pma-solar-go/internal/database/repositories"
	"github.com/frostdev-ops/pma-solar-go/internal/database/sqlite"
)

// Repositories holds all repository instances
type Repositories struct {
	Snapshot repositories.SnapshotRepository
	EventLog repositories.EventLogRepository
}

// NewRepositories creates all repository instances
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		Snapshot: sqlite.NewSnapshotRepository(db),
		EventLog: sqlite.NewEventLogRepository(db),
	}
}
