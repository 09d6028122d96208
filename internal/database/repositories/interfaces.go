package repositories

import (
	"context"

	"github.com/frostdev-ops/pma-solar-go/internal/database/models"
)

// SnapshotRepository defines snapshot data access methods. A snapshot is the
// flat key/value capture of the accounting engine's accumulator state, keyed
// by installation instance.
type SnapshotRepository interface {
	Load(ctx context.Context, instance string) (map[string]string, error)
	Save(ctx context.Context, instance string, data map[string]string) error
	Delete(ctx context.Context, instance string) error
}

// EventLogRepository defines access to the notification event log, kept so
// fired milestones and warnings can be inspected after the fact.
type EventLogRepository interface {
	Append(ctx context.Context, entry *models.EventLogEntry) error
	Recent(ctx context.Context, instance string, limit int) ([]*models.EventLogEntry, error)
}
