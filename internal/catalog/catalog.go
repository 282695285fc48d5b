// Package catalog persists collection and index metadata in a SQLite
// database next to the data files. The catalog is the authority on the
// temporal flag: the flag is written once at collection creation and never
// updated.
package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kartikbazzad/chronodb/internal/errors"
	"github.com/kartikbazzad/chronodb/internal/logger"
	"github.com/kartikbazzad/chronodb/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
	name       TEXT PRIMARY KEY,
	temporal   INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS indexes (
	collection   TEXT NOT NULL,
	name         TEXT NOT NULL,
	spec         TEXT NOT NULL,
	is_unique    INTEGER NOT NULL,
	expire_after INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (collection, name),
	FOREIGN KEY (collection) REFERENCES collections(name) ON DELETE CASCADE
);
`

// Catalog is the metadata store.
type Catalog struct {
	db     *sql.DB
	logger *logger.Logger
}

// Open creates or opens the catalog database at path.
func Open(path string, log *logger.Logger) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrFileOpen, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrFileOpen, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", errors.ErrFileOpen, err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: %v", errors.ErrFileOpen, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", errors.ErrFileWrite, err)
	}

	return &Catalog{db: db, logger: log}, nil
}

func (c *Catalog) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// CreateCollection records a new collection. The temporal flag becomes
// immutable once written: re-creating an existing collection fails with
// ErrCollectionExists regardless of the flag.
func (c *Catalog) CreateCollection(meta types.CollectionMetadata) error {
	res, err := c.db.Exec(
		"INSERT OR IGNORE INTO collections (name, temporal, created_at) VALUES (?, ?, ?)",
		meta.Name, boolToInt(meta.Temporal), meta.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrFileWrite, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrFileWrite, err)
	}
	if n == 0 {
		return errors.ErrCollectionExists
	}
	return nil
}

// GetCollection looks up one collection's metadata.
func (c *Catalog) GetCollection(name string) (types.CollectionMetadata, error) {
	var meta types.CollectionMetadata
	var temporal int
	var created int64
	err := c.db.QueryRow(
		"SELECT name, temporal, created_at FROM collections WHERE name = ?", name,
	).Scan(&meta.Name, &temporal, &created)
	if err == sql.ErrNoRows {
		return types.CollectionMetadata{}, errors.ErrCollectionNotFound
	}
	if err != nil {
		return types.CollectionMetadata{}, fmt.Errorf("%w: %v", errors.ErrFileRead, err)
	}
	meta.Temporal = temporal != 0
	meta.CreatedAt = time.Unix(created, 0)
	return meta, nil
}

// ListCollections returns all collection metadata, ordered by name.
func (c *Catalog) ListCollections() ([]types.CollectionMetadata, error) {
	rows, err := c.db.Query("SELECT name, temporal, created_at FROM collections ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrFileRead, err)
	}
	defer rows.Close()

	var out []types.CollectionMetadata
	for rows.Next() {
		var meta types.CollectionMetadata
		var temporal int
		var created int64
		if err := rows.Scan(&meta.Name, &temporal, &created); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrFileRead, err)
		}
		meta.Temporal = temporal != 0
		meta.CreatedAt = time.Unix(created, 0)
		out = append(out, meta)
	}
	return out, rows.Err()
}

// DropCollection removes a collection and its index definitions.
func (c *Catalog) DropCollection(name string) error {
	res, err := c.db.Exec("DELETE FROM collections WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrFileWrite, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrFileWrite, err)
	}
	if n == 0 {
		return errors.ErrCollectionNotFound
	}
	return nil
}

// PutIndex records an index definition. Spec is the shaped key spec as
// JSON; re-putting the same (collection, name) replaces the row so the
// shaped form can be refreshed.
func (c *Catalog) PutIndex(meta types.IndexMetadata) error {
	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO indexes (collection, name, spec, is_unique, expire_after) VALUES (?, ?, ?, ?, ?)",
		meta.Collection, meta.Name, meta.Spec, boolToInt(meta.Unique), meta.ExpireAfter,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrFileWrite, err)
	}
	return nil
}

// ListIndexes returns the index definitions for one collection.
func (c *Catalog) ListIndexes(collection string) ([]types.IndexMetadata, error) {
	rows, err := c.db.Query(
		"SELECT collection, name, spec, is_unique, expire_after FROM indexes WHERE collection = ? ORDER BY name",
		collection,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrFileRead, err)
	}
	defer rows.Close()

	var out []types.IndexMetadata
	for rows.Next() {
		var meta types.IndexMetadata
		var unique int
		if err := rows.Scan(&meta.Collection, &meta.Name, &meta.Spec, &unique, &meta.ExpireAfter); err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrFileRead, err)
		}
		meta.Unique = unique != 0
		out = append(out, meta)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
