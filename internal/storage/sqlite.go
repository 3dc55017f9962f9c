package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "voicely/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if bt := strings.TrimSpace(cfg.BusyTimeout); bt != "" {
		if d, err := time.ParseDuration(bt); err == nil && d > 0 {
			_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", d.Milliseconds()))
		}
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) LoadRegistry(ctx context.Context) (RegistrySnapshot, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT tenant, room, threshold, subscriber FROM pings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := RegistrySnapshot{}
	for rows.Next() {
		var tenant, room, subscriber string
		var threshold int
		if err := rows.Scan(&tenant, &room, &threshold, &subscriber); err != nil {
			return nil, err
		}
		byRoom, ok := snap[tenant]
		if !ok {
			byRoom = map[string]map[int][]string{}
			snap[tenant] = byRoom
		}
		byThr, ok := byRoom[room]
		if !ok {
			byThr = map[int][]string{}
			byRoom[room] = byThr
		}
		byThr[threshold] = append(byThr[threshold], subscriber)
	}
	return snap, rows.Err()
}

// SaveRegistry overwrites the whole pings table in one transaction, matching
// the whole-structure snapshot semantics of the file driver.
func (s *sqliteStore) SaveRegistry(ctx context.Context, snap RegistrySnapshot) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM pings`); err != nil {
		return err
	}
	for tenant, byRoom := range snap {
		for room, byThr := range byRoom {
			for threshold, subs := range byThr {
				for _, sub := range subs {
					if _, err := tx.ExecContext(ctx,
						`INSERT INTO pings(tenant, room, threshold, subscriber) VALUES(?,?,?,?)`,
						tenant, room, threshold, sub,
					); err != nil {
						return err
					}
				}
			}
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) LoadSettings(ctx context.Context) (SettingsSnapshot, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT tenant, default_threshold, public_confirm FROM tenant_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := SettingsSnapshot{}
	for rows.Next() {
		var tenant string
		var def int
		var public int
		if err := rows.Scan(&tenant, &def, &public); err != nil {
			return nil, err
		}
		snap[tenant] = TenantSettings{DefaultThreshold: def, PublicConfirm: public != 0}
	}
	return snap, rows.Err()
}

func (s *sqliteStore) SaveSettings(ctx context.Context, snap SettingsSnapshot) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM tenant_settings`); err != nil {
		return err
	}
	for tenant, st := range snap {
		public := 0
		if st.PublicConfirm {
			public = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO tenant_settings(tenant, default_threshold, public_confirm) VALUES(?,?,?)`,
			tenant, st.DefaultThreshold, public,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}
