// Package sqlite implements the history store on a local SQLite file, the
// default backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/openbeans/plugin-counter/internal/errs"
	"github.com/openbeans/plugin-counter/model"
)

type SqliteStorage struct {
	db *sql.DB
}

// NewSqliteStorage opens (or creates) the database file and ensures the
// schema exists.
func NewSqliteStorage(ctx context.Context, path string) (*SqliteStorage, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite single-writer

	store := &SqliteStorage{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func (store *SqliteStorage) initSchema(ctx context.Context) error {
	return store.inTx(ctx, func(tx *sql.Tx) error {
		stmts := []string{
			`CREATE TABLE IF NOT EXISTS plugins (
				id TEXT PRIMARY KEY,
				name TEXT,
				created_at INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS downloads (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				plugin_id TEXT NOT NULL,
				timestamp INTEGER NOT NULL,
				count INTEGER NOT NULL,
				FOREIGN KEY (plugin_id) REFERENCES plugins (id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_downloads_plugin_timestamp
				ON downloads(plugin_id, timestamp)`,
			`CREATE TABLE IF NOT EXISTS scrape_logs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				plugin_id TEXT NOT NULL,
				timestamp INTEGER NOT NULL,
				success INTEGER NOT NULL,
				error_message TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_scrape_logs_plugin_timestamp
				ON scrape_logs(plugin_id, timestamp DESC)`,
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

// inTx runs fn in a transaction: commit on success, rollback on error, so
// no connection leaks and no transaction is left half-applied.
func (store *SqliteStorage) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func (store *SqliteStorage) AddPlugin(ctx context.Context, p *model.Plugin) error {
	return store.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO plugins (id, name, created_at) VALUES (?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET name = COALESCE(NULLIF(excluded.name, ''), plugins.name)`,
			p.ID, p.Name, p.CreatedAt.UnixNano())
		return err
	})
}

func (store *SqliteStorage) GetPlugin(ctx context.Context, pluginID string) (*model.Plugin, error) {
	row := store.db.QueryRowContext(ctx,
		`SELECT id, COALESCE(name, ''), created_at FROM plugins WHERE id = ?`, pluginID)

	var p model.Plugin
	var createdAt int64
	if err := row.Scan(&p.ID, &p.Name, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNoData
		}
		return nil, err
	}
	p.CreatedAt = time.Unix(0, createdAt).UTC()
	return &p, nil
}

func (store *SqliteStorage) AddSample(ctx context.Context, s *model.Sample) error {
	return store.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO downloads (plugin_id, timestamp, count) VALUES (?, ?, ?)`,
			s.PluginID, s.Timestamp.UnixNano(), s.Count)
		return err
	})
}

func (store *SqliteStorage) LatestSample(ctx context.Context, pluginID string) (*model.Sample, error) {
	row := store.db.QueryRowContext(ctx,
		`SELECT timestamp, count FROM downloads WHERE plugin_id = ? ORDER BY timestamp DESC LIMIT 1`,
		pluginID)

	var ts, count int64
	if err := row.Scan(&ts, &count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errs.ErrNoData
		}
		return nil, err
	}
	return &model.Sample{PluginID: pluginID, Timestamp: time.Unix(0, ts).UTC(), Count: count}, nil
}

func (store *SqliteStorage) History(ctx context.Context, pluginID string, since time.Time) ([]model.Sample, error) {
	rows, err := store.db.QueryContext(ctx,
		`SELECT timestamp, count FROM downloads
			WHERE plugin_id = ? AND timestamp >= ?
			ORDER BY timestamp ASC`,
		pluginID, since.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Sample
	for rows.Next() {
		var ts, count int64
		if err := rows.Scan(&ts, &count); err != nil {
			return nil, err
		}
		result = append(result, model.Sample{
			PluginID:  pluginID,
			Timestamp: time.Unix(0, ts).UTC(),
			Count:     count,
		})
	}
	return result, rows.Err()
}

func (store *SqliteStorage) AddScrapeLog(ctx context.Context, e *model.ScrapeLogEntry) error {
	return store.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO scrape_logs (plugin_id, timestamp, success, error_message) VALUES (?, ?, ?, ?)`,
			e.PluginID, e.Timestamp.UnixNano(), boolToInt(e.Success), nullable(e.Error))
		return err
	})
}

func (store *SqliteStorage) RecentScrapeLogs(ctx context.Context, pluginID string, limit int) ([]model.ScrapeLogEntry, error) {
	rows, err := store.db.QueryContext(ctx,
		`SELECT timestamp, success, COALESCE(error_message, '') FROM scrape_logs
			WHERE plugin_id = ?
			ORDER BY timestamp DESC
			LIMIT ?`,
		pluginID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.ScrapeLogEntry
	for rows.Next() {
		var ts int64
		var success int
		var msg string
		if err := rows.Scan(&ts, &success, &msg); err != nil {
			return nil, err
		}
		result = append(result, model.ScrapeLogEntry{
			PluginID:  pluginID,
			Timestamp: time.Unix(0, ts).UTC(),
			Success:   success != 0,
			Error:     msg,
		})
	}
	return result, rows.Err()
}

func (store *SqliteStorage) Ping(ctx context.Context) error {
	return store.db.PingContext(ctx)
}

func (store *SqliteStorage) Close() error {
	return store.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
