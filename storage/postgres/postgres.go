// Package postgres implements the history store on PostgreSQL, selected
// when a database DSN is configured.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openbeans/plugin-counter/internal/errs"
	"github.com/openbeans/plugin-counter/internal/utils"
	"github.com/openbeans/plugin-counter/model"
)

type PostgresStorage struct {
	db *pgxpool.Pool
}

func NewPostgresStorage(ctx context.Context, databaseDsn string) (*PostgresStorage, error) {
	db, err := pgxpool.New(ctx, databaseDsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	store := &PostgresStorage{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return store, nil
}

func (store *PostgresStorage) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS plugins (
			id TEXT PRIMARY KEY,
			name TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS downloads (
			id BIGSERIAL PRIMARY KEY,
			plugin_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			count BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_downloads_plugin_ts ON downloads(plugin_id, ts)`,
		`CREATE TABLE IF NOT EXISTS scrape_logs (
			id BIGSERIAL PRIMARY KEY,
			plugin_id TEXT NOT NULL,
			ts TIMESTAMPTZ NOT NULL,
			success BOOLEAN NOT NULL,
			error_message TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scrape_logs_plugin_ts ON scrape_logs(plugin_id, ts DESC)`,
	}
	return utils.WithRetry(ctx, func() error {
		for _, stmt := range stmts {
			if _, err := store.db.Exec(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}

func (store *PostgresStorage) AddPlugin(ctx context.Context, p *model.Plugin) error {
	return utils.WithRetry(ctx, func() error {
		_, err := store.db.Exec(ctx,
			`INSERT INTO plugins (id, name, created_at) VALUES ($1, NULLIF($2, ''), $3)
				ON CONFLICT (id) DO UPDATE SET name = COALESCE(NULLIF($2, ''), plugins.name)`,
			p.ID, p.Name, p.CreatedAt)
		return err
	})
}

func (store *PostgresStorage) GetPlugin(ctx context.Context, pluginID string) (*model.Plugin, error) {
	var p model.Plugin
	err := store.db.QueryRow(ctx,
		`SELECT id, COALESCE(name, ''), created_at FROM plugins WHERE id = $1`, pluginID).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNoData
		}
		return nil, err
	}
	return &p, nil
}

func (store *PostgresStorage) AddSample(ctx context.Context, s *model.Sample) error {
	return utils.WithRetry(ctx, func() error {
		_, err := store.db.Exec(ctx,
			`INSERT INTO downloads (plugin_id, ts, count) VALUES ($1, $2, $3)`,
			s.PluginID, s.Timestamp, s.Count)
		return err
	})
}

func (store *PostgresStorage) LatestSample(ctx context.Context, pluginID string) (*model.Sample, error) {
	s := model.Sample{PluginID: pluginID}
	err := store.db.QueryRow(ctx,
		`SELECT ts, count FROM downloads WHERE plugin_id = $1 ORDER BY ts DESC LIMIT 1`,
		pluginID).Scan(&s.Timestamp, &s.Count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNoData
		}
		return nil, err
	}
	return &s, nil
}

func (store *PostgresStorage) History(ctx context.Context, pluginID string, since time.Time) ([]model.Sample, error) {
	rows, err := store.db.Query(ctx,
		`SELECT ts, count FROM downloads
			WHERE plugin_id = $1 AND ts >= $2
			ORDER BY ts ASC`,
		pluginID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.Sample
	for rows.Next() {
		s := model.Sample{PluginID: pluginID}
		if err := rows.Scan(&s.Timestamp, &s.Count); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (store *PostgresStorage) AddScrapeLog(ctx context.Context, e *model.ScrapeLogEntry) error {
	return utils.WithRetry(ctx, func() error {
		_, err := store.db.Exec(ctx,
			`INSERT INTO scrape_logs (plugin_id, ts, success, error_message)
				VALUES ($1, $2, $3, NULLIF($4, ''))`,
			e.PluginID, e.Timestamp, e.Success, e.Error)
		return err
	})
}

func (store *PostgresStorage) RecentScrapeLogs(ctx context.Context, pluginID string, limit int) ([]model.ScrapeLogEntry, error) {
	rows, err := store.db.Query(ctx,
		`SELECT ts, success, COALESCE(error_message, '') FROM scrape_logs
			WHERE plugin_id = $1
			ORDER BY ts DESC
			LIMIT $2`,
		pluginID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []model.ScrapeLogEntry
	for rows.Next() {
		e := model.ScrapeLogEntry{PluginID: pluginID}
		if err := rows.Scan(&e.Timestamp, &e.Success, &e.Error); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (store *PostgresStorage) Ping(ctx context.Context) error {
	return store.db.Ping(ctx)
}

func (store *PostgresStorage) Close() error {
	store.db.Close()
	return nil
}
