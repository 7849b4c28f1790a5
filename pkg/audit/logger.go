// Package audit keeps a persistent history of finished operations.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pario-ai/evalview/pkg/models"
	_ "modernc.org/sqlite"
)

// Logger writes and queries operation history in a dedicated SQLite database.
// It implements tracker.Recorder.
type Logger struct {
	db        *sql.DB
	cfg       models.AuditConfig
	sessionID string
	logger    *slog.Logger
	done      chan struct{}
	wg        sync.WaitGroup
}

// New opens the audit SQLite database, creates the schema, and starts the
// hourly retention loop. sessionID tags every entry this Logger writes.
func New(cfg models.AuditConfig, sessionID string, logger *slog.Logger) (*Logger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	// Operations finish on background goroutines, so writers may overlap.
	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	l := &Logger{
		db:        db,
		cfg:       cfg,
		sessionID: sessionID,
		logger:    logger.With("component", "audit"),
		done:      make(chan struct{}),
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS operation_log (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id   TEXT NOT NULL,
		operation_id INTEGER NOT NULL,
		kind         TEXT NOT NULL,
		description  TEXT NOT NULL,
		status       TEXT NOT NULL,
		message      TEXT,
		started_at   DATETIME NOT NULL,
		finished_at  DATETIME NOT NULL
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_oplog_kind ON operation_log(kind)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_oplog_finished ON operation_log(finished_at)`)
	return err
}

// Record inserts a finished operation. Running operations are ignored.
func (l *Logger) Record(ctx context.Context, op models.Operation) error {
	if l == nil || l.db == nil || !op.Terminal() {
		return nil
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO operation_log
		(session_id, operation_id, kind, description, status, message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.sessionID, op.ID, string(op.Kind), op.Description, string(op.Status),
		op.Message, op.StartTime.UTC(), op.EndTime.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record operation: %w", err)
	}
	return nil
}

// Query returns history entries matching opts, newest first.
func (l *Logger) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	q := `SELECT id, session_id, operation_id, kind, description, status, message, started_at, finished_at
		FROM operation_log WHERE 1=1`
	var args []any

	if opts.Kind != "" {
		q += " AND kind = ?"
		args = append(args, string(opts.Kind))
	}
	if opts.Status != "" {
		q += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	if opts.SessionID != "" {
		q += " AND session_id = ?"
		args = append(args, opts.SessionID)
	}
	if !opts.Since.IsZero() {
		q += " AND finished_at >= ?"
		args = append(args, opts.Since.UTC())
	}

	q += " ORDER BY finished_at DESC, id DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var kind, status string
		var message sql.NullString
		if err := rows.Scan(
			&e.ID, &e.SessionID, &e.OperationID, &kind, &e.Description,
			&status, &message, &e.StartedAt, &e.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Kind = models.OperationKind(kind)
		e.Status = models.OperationStatus(status)
		e.Message = message.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns counts grouped by kind and status.
func (l *Logger) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT kind, status, count(*) FROM operation_log
		 GROUP BY kind, status ORDER BY kind, status`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var s models.AuditStat
		var kind, status string
		if err := rows.Scan(&kind, &status, &s.Count); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.Kind = models.OperationKind(kind)
		s.Status = models.OperationStatus(status)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the configured retention period.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	if l.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM operation_log WHERE finished_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			n, err := l.Cleanup(context.Background())
			if err != nil {
				l.logger.Warn("retention cleanup", "error", err)
				continue
			}
			if n > 0 {
				l.logger.Debug("retention cleanup", "deleted", n)
			}
		}
	}
}
