// Package modulestore is a SQL-backed registry for compiled modules,
// generalizing the file-based load path of spec §3 ("compiled modules
// may be loaded directly from a binary file… or from a registry") to a
// shared backend multiple hosts can read from.
package modulestore

import (
	"bytes"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/loaf-lang/loaf/internal/bytecode"
)

// Store loads and saves compiled bytecode.Module values against a SQL
// backend chosen by the DSN scheme. A module is identified by name and
// stored as its encoded §4.8 binary form, so loading it back is just a
// row fetch followed by bytecode.Decode — no schema-level modeling of
// instructions or constants.
type Store struct {
	db     *sql.DB
	driver string
	mu     sync.Mutex
}

// Open parses the DSN's scheme to pick a driver, connects, and ensures
// the modules table exists.
//
// Supported schemes: "mysql://", "postgres://"/"postgresql://",
// "sqlserver://", and a bare filesystem path (or "sqlite://") for
// sqlite3.
func Open(dsn string) (*Store, error) {
	driver, dataSource, err := resolveDriver(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dataSource)
	if err != nil {
		return nil, fmt.Errorf("modulestore: open %s: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("modulestore: ping %s: %w", driver, err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func resolveDriver(dsn string) (driver, dataSource string, err error) {
	switch {
	case strings.HasPrefix(dsn, "mysql://"):
		return "mysql", strings.TrimPrefix(dsn, "mysql://"), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn, nil
	case strings.HasPrefix(dsn, "sqlserver://"):
		return "sqlserver", dsn, nil
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(dsn, "sqlite://"), nil
	default:
		// Bare path: treat as a sqlite3 file, matching the teacher's
		// "database is the file path" fallback for sqlite DSNs.
		return "sqlite3", dsn, nil
	}
}

func (s *Store) ensureSchema() error {
	ddl := `CREATE TABLE IF NOT EXISTS modules (
		name TEXT PRIMARY KEY,
		body BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`
	if s.driver == "postgres" {
		ddl = `CREATE TABLE IF NOT EXISTS modules (
			name TEXT PRIMARY KEY,
			body BYTEA NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`
	}
	_, err := s.db.Exec(ddl)
	if err != nil {
		return fmt.Errorf("modulestore: create schema: %w", err)
	}
	return nil
}

// Save encodes m per §4.8 and upserts it under its own name.
func (s *Store) Save(m *bytecode.Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	if err := bytecode.Encode(&buf, m); err != nil {
		return fmt.Errorf("modulestore: encode %s: %w", m.Name, err)
	}

	query := s.upsertQuery()
	_, err := s.db.Exec(query, m.Name, buf.Bytes(), time.Now())
	if err != nil {
		return fmt.Errorf("modulestore: save %s: %w", m.Name, err)
	}
	return nil
}

func (s *Store) upsertQuery() string {
	switch s.driver {
	case "postgres":
		return `INSERT INTO modules (name, body, updated_at) VALUES ($1, $2, $3)
			ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`
	case "mysql":
		return `INSERT INTO modules (name, body, updated_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE body = VALUES(body), updated_at = VALUES(updated_at)`
	default:
		return `INSERT OR REPLACE INTO modules (name, body, updated_at) VALUES (?, ?, ?)`
	}
}

// Load fetches and decodes the named module.
func (s *Store) Load(name string) (*bytecode.Module, error) {
	query := "SELECT body FROM modules WHERE name = ?"
	if s.driver == "postgres" {
		query = "SELECT body FROM modules WHERE name = $1"
	}

	var body []byte
	if err := s.db.QueryRow(query, name).Scan(&body); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("modulestore: no module named %q", name)
		}
		return nil, fmt.Errorf("modulestore: load %s: %w", name, err)
	}

	m, err := bytecode.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("modulestore: decode %s: %w", name, err)
	}
	return m, nil
}

// List returns the names of every module currently stored.
func (s *Store) List() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM modules ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("modulestore: list: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}
