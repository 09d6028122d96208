package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/frostdev-ops/pma-solar-go/internal/database/models"
	"github.com/frostdev-ops/pma-solar-go/internal/database/repositories"
)

// EventLogRepository implements repositories.EventLogRepository
type EventLogRepository struct {
	db *sql.DB
}

// NewEventLogRepository creates a new EventLogRepository
func NewEventLogRepository(db *sql.DB) repositories.EventLogRepository {
	return &EventLogRepository{db: db}
}

// Append records a fired notification event
func (r *EventLogRepository) Append(ctx context.Context, entry *models.EventLogEntry) error {
	query := `
		INSERT INTO solar_event_log (instance, event_type, message, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		entry.Instance,
		entry.EventType,
		entry.Message,
		entry.Payload,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to append event log entry: %w", err)
	}

	return nil
}

// Recent returns the newest entries for an instance, most recent first
func (r *EventLogRepository) Recent(ctx context.Context, instance string, limit int) ([]*models.EventLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, instance, event_type, message, payload, created_at
		FROM solar_event_log
		WHERE instance = ?
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, instance, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query event log: %w", err)
	}
	defer rows.Close()

	var entries []*models.EventLogEntry
	for rows.Next() {
		entry := &models.EventLogEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.Instance,
			&entry.EventType,
			&entry.Message,
			&entry.Payload,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event log entry: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
