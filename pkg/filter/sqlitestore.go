// SQLite store for per-session filter criteria
package filter

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// SQLiteStore keeps criteria in a SQLite database, one row per session.
// Criteria are stored as JSON text.
type SQLiteStore struct {
	db      *sql.DB
	session string
}

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(ctx context.Context, path, session string) (*SQLiteStore, error) {
	if session == "" {
		session = DefaultSession
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening filter database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening filter database: %w", err)
	}
	if err := migrateSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, session: session}, nil
}

// migrateSchema brings db up to the latest embedded schema version.
// The migrator is not closed because that would close db.
func migrateSchema(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("loading filter schema migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("preparing filter schema migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("preparing filter schema migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrating filter schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) (Criteria, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT criteria FROM filter_sessions WHERE session = ?`, s.session).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Criteria{}, ErrNoState
	}
	if err != nil {
		return Criteria{}, fmt.Errorf("loading filter criteria: %w", err)
	}
	var c Criteria
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Criteria{}, fmt.Errorf("decoding filter criteria: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) Save(ctx context.Context, c Criteria) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding filter criteria: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO filter_sessions (session, criteria, updated_at) VALUES (?, ?, ?)
ON CONFLICT(session) DO UPDATE SET criteria = excluded.criteria, updated_at = excluded.updated_at`,
		s.session, string(data), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("saving filter criteria: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM filter_sessions WHERE session = ?`, s.session); err != nil {
		return fmt.Errorf("clearing filter criteria: %w", err)
	}
	return nil
}
