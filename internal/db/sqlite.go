package db

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the registry of loaded index files. The indexes themselves live in
// the CAS; a row only records where a source came from and what it held.
type DB struct {
	conn *sql.DB
}

func New(dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	// If an existing file isn't SQLite, delete it.
	if info, err := os.Stat(dbPath); err == nil && info.Size() >= 4 {
		f, err := os.Open(dbPath)
		if err == nil {
			header := make([]byte, 4)
			n, _ := f.Read(header)
			f.Close()
			if n >= 4 && string(header) != "SQLi" {
				log.Printf("Removing non-SQLite database file at %s", dbPath)
				os.Remove(dbPath)
			}
		}
	}

	dsn := "file:" + dbPath + "?_txlock=immediate&_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	d := &DB{conn: conn}
	if err := d.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return d, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sources (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			path TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			loaded_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS source_crates (
			source_id INTEGER NOT NULL REFERENCES sources(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			name TEXT NOT NULL,
			items INTEGER NOT NULL,
			PRIMARY KEY (source_id, position)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_source_crates_name ON source_crates (name)`,
	}

	for _, q := range queries {
		if _, err := db.conn.Exec(q); err != nil {
			return fmt.Errorf("executing %q: %w", q, err)
		}
	}
	return nil
}

// --- Source operations ---

type SourceCrate struct {
	Name  string
	Items int
}

type Source struct {
	ID          int
	Name        string
	Path        string
	ContentHash string
	LoadedAt    time.Time
	Crates      []SourceCrate
}

// UpsertSource records a loaded index file. Reloading a known name keeps its
// registration order and replaces its crate list.
func (db *DB) UpsertSource(name, path, contentHash string, crates []SourceCrate) (*Source, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO sources (name, path, content_hash) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET path = excluded.path, content_hash = excluded.content_hash, loaded_at = CURRENT_TIMESTAMP`,
		name, path, contentHash,
	); err != nil {
		return nil, fmt.Errorf("upserting source: %w", err)
	}

	var s Source
	err = tx.QueryRow(
		`SELECT id, name, path, content_hash, loaded_at FROM sources WHERE name = ?`, name,
	).Scan(&s.ID, &s.Name, &s.Path, &s.ContentHash, &s.LoadedAt)
	if err != nil {
		return nil, fmt.Errorf("reading source: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM source_crates WHERE source_id = ?`, s.ID); err != nil {
		return nil, fmt.Errorf("clearing crates: %w", err)
	}
	for i, c := range crates {
		if _, err := tx.Exec(
			`INSERT INTO source_crates (source_id, position, name, items) VALUES (?, ?, ?, ?)`,
			s.ID, i, c.Name, c.Items,
		); err != nil {
			return nil, fmt.Errorf("inserting crate %s: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing source: %w", err)
	}
	s.Crates = append([]SourceCrate{}, crates...)
	return &s, nil
}

func (db *DB) GetSource(name string) (*Source, error) {
	var s Source
	err := db.conn.QueryRow(
		`SELECT id, name, path, content_hash, loaded_at FROM sources WHERE name = ?`, name,
	).Scan(&s.ID, &s.Name, &s.Path, &s.ContentHash, &s.LoadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.Crates, err = db.sourceCrates(s.ID); err != nil {
		return nil, err
	}
	return &s, nil
}

// SourceByPath returns the source loaded from path, or nil.
func (db *DB) SourceByPath(path string) (*Source, error) {
	var name string
	err := db.conn.QueryRow(`SELECT name FROM sources WHERE path = ? ORDER BY id LIMIT 1`, path).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return db.GetSource(name)
}

// SourceName picks the registry name for the file at path. A file that is
// already registered keeps its name. Otherwise the base name is used,
// then parent/base, then parent/base#N, whichever is free first.
func (db *DB) SourceName(path string) (string, error) {
	src, err := db.SourceByPath(path)
	if err != nil {
		return "", err
	}
	if src != nil {
		return src.Name, nil
	}

	base := filepath.Base(path)
	qualified := filepath.Base(filepath.Dir(path)) + "/" + base
	for i := 0; ; i++ {
		name := base
		switch {
		case i == 1:
			name = qualified
		case i > 1:
			name = qualified + "#" + strconv.Itoa(i)
		}
		taken, err := db.GetSource(name)
		if err != nil {
			return "", err
		}
		if taken == nil {
			return name, nil
		}
	}
}

// ListSources returns every source in registration order.
func (db *DB) ListSources() ([]Source, error) {
	rows, err := db.conn.Query(`SELECT id, name, path, content_hash, loaded_at FROM sources ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Name, &s.Path, &s.ContentHash, &s.LoadedAt); err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range sources {
		if sources[i].Crates, err = db.sourceCrates(sources[i].ID); err != nil {
			return nil, err
		}
	}
	return sources, nil
}

func (db *DB) sourceCrates(sourceID int) ([]SourceCrate, error) {
	rows, err := db.conn.Query(
		`SELECT name, items FROM source_crates WHERE source_id = ? ORDER BY position`, sourceID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing crates: %w", err)
	}
	defer rows.Close()

	crates := []SourceCrate{}
	for rows.Next() {
		var c SourceCrate
		if err := rows.Scan(&c.Name, &c.Items); err != nil {
			return nil, err
		}
		crates = append(crates, c)
	}
	return crates, rows.Err()
}

// DeleteSource removes a source and reports whether it existed.
func (db *DB) DeleteSource(name string) (bool, error) {
	result, err := db.conn.Exec(`DELETE FROM sources WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("deleting source: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SourcesForCrate lists the names of sources that provide a crate.
func (db *DB) SourcesForCrate(crate string) ([]string, error) {
	rows, err := db.conn.Query(
		`SELECT s.name FROM sources s JOIN source_crates c ON c.source_id = s.id
		 WHERE c.name = ? ORDER BY s.id`, crate,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}
