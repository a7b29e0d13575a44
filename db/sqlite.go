package db

import (
	"context"
	"embed"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

type SqliteStore struct {
	DB *sqlx.DB
}

func NewSqliteStore(dsn string) (*SqliteStore, error) {
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite only allows a single writer and every in-memory connection
	// would otherwise get its own empty database
	db.SetMaxOpenConns(1)
	return &SqliteStore{
		DB: db,
	}, nil
}

func (s *SqliteStore) ApplyMigrations(migrations embed.FS) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		return err
	}

	if err := goose.Up(s.DB.DB, "."); err != nil {
		return err
	}

	return nil
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

func (s *SqliteStore) Remember(ctx context.Context, kind PreferenceKind, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	if _, err := ParsePreferenceKind(string(kind)); err != nil {
		return err
	}

	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	var committed bool
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	query := `
	INSERT INTO preferences (kind, value, seq)
	VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM preferences))
	ON CONFLICT (kind, value) DO UPDATE SET
	seq = excluded.seq
	`
	if _, err := tx.ExecContext(ctx, query, kind, value); err != nil {
		return fmt.Errorf("failed to remember %s: %w", kind, err)
	}

	_, err = tx.ExecContext(ctx, `
	  DELETE FROM preferences
	  WHERE kind = ? AND seq NOT IN (
	    SELECT seq FROM preferences WHERE kind = ? ORDER BY seq DESC LIMIT ?
	  )`, kind, kind, MaxPreferences)
	if err != nil {
		return fmt.Errorf("failed to trim %s history: %w", kind, err)
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *SqliteStore) Suggestions(ctx context.Context, kind PreferenceKind, limit int) ([]string, error) {
	values := []string{}
	err := s.DB.SelectContext(ctx, &values, `
	  SELECT value FROM preferences
	  WHERE kind = ?
	  ORDER BY seq DESC
	  LIMIT ?`, kind, clampLimit(limit))
	return values, err
}
