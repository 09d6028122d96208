package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/frostdev-ops/pma-solar-go/internal/database/repositories"
)

// SnapshotRepository implements repositories.SnapshotRepository
type SnapshotRepository struct {
	db *sql.DB
}

// NewSnapshotRepository creates a new SnapshotRepository
func NewSnapshotRepository(db *sql.DB) repositories.SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Load retrieves all snapshot fields for an instance. A missing snapshot is
// not an error; it yields an empty map.
func (r *SnapshotRepository) Load(ctx context.Context, instance string) (map[string]string, error) {
	query := `
		SELECT key, value
		FROM solar_snapshot
		WHERE instance = ?
	`

	rows, err := r.db.QueryContext(ctx, query, instance)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	data := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot field: %w", err)
		}
		data[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshot fields: %w", err)
	}

	return data, nil
}

// Save upserts all fields of a snapshot inside one transaction so a partial
// write can never be observed by a later restore.
func (r *SnapshotRepository) Save(ctx context.Context, instance string, data map[string]string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO solar_snapshot (instance, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(instance, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	now := time.Now()
	for key, value := range data {
		if _, err := tx.ExecContext(ctx, query, instance, key, value, now); err != nil {
			return fmt.Errorf("failed to save snapshot field %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	return nil
}

// Delete removes an instance's snapshot entirely
func (r *SnapshotRepository) Delete(ctx context.Context, instance string) error {
	query := `DELETE FROM solar_snapshot WHERE instance = ?`

	if _, err := r.db.ExecContext(ctx, query, instance); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	return nil
}
