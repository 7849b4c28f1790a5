package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/evalview/pkg/models"
)

// Cache persists bulk payload snapshots in SQLite so a later session can
// start warm. It implements cache.Backing.
type Cache struct {
	db *sql.DB
}

const createSnapshotTable = `
CREATE TABLE IF NOT EXISTS payload_snapshots (
	run_id TEXT NOT NULL,
	model TEXT NOT NULL,
	payload BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (run_id, model)
);
`

// New opens (or creates) the snapshot database at dbPath.
func New(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createSnapshotTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: db}, nil
}

// Load returns the snapshot for key, if one exists.
func (c *Cache) Load(key models.CacheKey) (*models.BulkPayload, bool, error) {
	var blob []byte
	err := c.db.QueryRow(
		`SELECT payload FROM payload_snapshots WHERE run_id = ? AND model = ?`,
		key.RunID, key.ModelName,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache load: %w", err)
	}

	var p models.BulkPayload
	if err := json.Unmarshal(blob, &p); err != nil {
		return nil, false, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return &p, true, nil
}

// Save replaces the snapshot for key.
func (c *Cache) Save(key models.CacheKey, p *models.BulkPayload) error {
	blob, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode snapshot %s: %w", key, err)
	}
	_, err = c.db.Exec(
		`INSERT OR REPLACE INTO payload_snapshots (run_id, model, payload, updated_at)
		 VALUES (?, ?, ?, ?)`,
		key.RunID, key.ModelName, blob, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("cache save: %w", err)
	}
	return nil
}

// Delete removes the snapshot for key. Missing keys are not an error.
func (c *Cache) Delete(key models.CacheKey) error {
	_, err := c.db.Exec(
		`DELETE FROM payload_snapshots WHERE run_id = ? AND model = ?`,
		key.RunID, key.ModelName,
	)
	if err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Keys lists every persisted key, most recently updated first.
func (c *Cache) Keys() ([]models.CacheKey, error) {
	rows, err := c.db.Query(`SELECT run_id, model FROM payload_snapshots ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("cache keys: %w", err)
	}
	defer rows.Close()

	var keys []models.CacheKey
	for rows.Next() {
		var k models.CacheKey
		if err := rows.Scan(&k.RunID, &k.ModelName); err != nil {
			return nil, fmt.Errorf("scan cache key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Count returns the number of persisted snapshots.
func (c *Cache) Count() (int64, error) {
	var count int64
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM payload_snapshots`).Scan(&count); err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return count, nil
}

// Clear removes snapshots. With runID set, only that run's snapshots go.
func (c *Cache) Clear(runID string) error {
	var err error
	if runID != "" {
		_, err = c.db.Exec(`DELETE FROM payload_snapshots WHERE run_id = ?`, runID)
	} else {
		_, err = c.db.Exec(`DELETE FROM payload_snapshots`)
	}
	if err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
