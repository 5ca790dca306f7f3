// Package catalog persists CREATE FUNCTION statements in SQLite so they can
// be registered again in a later process. Only statement text and the
// serialized definition are stored; every process compiles afresh.
package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cryguy/adhesive"

	// Pure-Go SQLite driver for database/sql.
	_ "github.com/glebarez/sqlite"
)

// ErrNotFound is returned when no function has the requested name.
var ErrNotFound = errors.New("function not found in catalog")

// ErrExists is returned by Put when the name is taken and replace is false.
var ErrExists = errors.New("function already exists in catalog")

const schema = `CREATE TABLE IF NOT EXISTS functions (
	name       TEXT PRIMARY KEY,
	statement  TEXT NOT NULL,
	definition TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// Entry is one stored function.
type Entry struct {
	Name       string
	Statement  string
	Definition adhesive.FunctionDefinition
	UpdatedAt  time.Time
}

// Catalog is a SQLite-backed function store.
type Catalog struct {
	db *sql.DB
}

// Open opens (or creates) the catalog file at path.
func Open(path string) (*Catalog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating catalog directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog %q: %w", path, err)
	}
	_, _ = db.Exec("PRAGMA journal_mode=WAL")
	return initCatalog(db)
}

// OpenMemory creates an in-memory catalog for testing.
func OpenMemory() (*Catalog, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening in-memory catalog: %w", err)
	}
	// Each connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	return initCatalog(db)
}

func initCatalog(db *sql.DB) (*Catalog, error) {
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating catalog schema: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close closes the underlying database connection.
func (c *Catalog) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Put stores a function. An existing entry is overwritten only when
// replace is set.
func (c *Catalog) Put(name, statement string, def adhesive.FunctionDefinition, replace bool) error {
	encoded, err := adhesive.MarshalDefinition(def)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()

	query := `INSERT INTO functions (name, statement, definition, updated_at) VALUES (?, ?, ?, ?)`
	if replace {
		query += ` ON CONFLICT(name) DO UPDATE SET statement = excluded.statement,
			definition = excluded.definition, updated_at = excluded.updated_at`
	} else {
		var n int
		if err := c.db.QueryRow(`SELECT COUNT(*) FROM functions WHERE name = ?`, name).Scan(&n); err != nil {
			return fmt.Errorf("checking %s: %w", name, err)
		}
		if n > 0 {
			return fmt.Errorf("%s: %w", name, ErrExists)
		}
	}

	if _, err := c.db.Exec(query, name, statement, string(encoded), now); err != nil {
		return fmt.Errorf("storing %s: %w", name, err)
	}
	return nil
}

// Get returns the function stored under name.
func (c *Catalog) Get(name string) (*Entry, error) {
	row := c.db.QueryRow(`SELECT name, statement, definition, updated_at FROM functions WHERE name = ?`, name)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return e, err
}

// List returns every stored function ordered by name.
func (c *Catalog) List() ([]*Entry, error) {
	rows, err := c.db.Query(`SELECT name, statement, definition, updated_at FROM functions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing functions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing functions: %w", err)
	}
	return entries, nil
}

// Delete removes a stored function.
func (c *Catalog) Delete(name string) error {
	res, err := c.db.Exec(`DELETE FROM functions WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var (
		e       Entry
		encoded string
		updated int64
	)
	if err := s.Scan(&e.Name, &e.Statement, &encoded, &updated); err != nil {
		return nil, err
	}
	def, err := adhesive.UnmarshalDefinition([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("function %s: %w", e.Name, err)
	}
	e.Definition = def
	e.UpdatedAt = time.UnixMilli(updated)
	return &e, nil
}
