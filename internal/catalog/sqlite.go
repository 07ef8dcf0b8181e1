package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteCatalog keeps tiles in a single tiles table.
type SQLiteCatalog struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at dbPath. ":memory:" gives a
// private in-memory database.
func OpenSQLite(dbPath string) (*SQLiteCatalog, error) {
	if dbPath == "" {
		return nil, errors.New("empty sqlite path")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	c := &SQLiteCatalog{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return c, nil
}

func (c *SQLiteCatalog) migrate() error {
	_, err := c.db.Exec(`
	CREATE TABLE IF NOT EXISTS tiles (
		layer TEXT NOT NULL,
		zoom INTEGER NOT NULL,
		col INTEGER NOT NULL,
		row INTEGER NOT NULL,
		data BLOB NOT NULL,
		PRIMARY KEY (layer, zoom, col, row)
	);`)
	return err
}

func (c *SQLiteCatalog) Get(ctx context.Context, layer string, zoom, col, row int) ([]byte, error) {
	if err := validKey(layer, zoom, col, row); err != nil {
		return nil, err
	}
	var data []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT data FROM tiles WHERE layer = ? AND zoom = ? AND col = ? AND row = ?`,
		layer, zoom, col, row).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%d/%d/%d", ErrTileNotFound, layer, zoom, col, row)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tile: %w", err)
	}
	return data, nil
}

func (c *SQLiteCatalog) Put(ctx context.Context, layer string, zoom, col, row int, data []byte) error {
	if err := validKey(layer, zoom, col, row); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tiles (layer, zoom, col, row, data) VALUES (?, ?, ?, ?, ?)`,
		layer, zoom, col, row, data)
	if err != nil {
		return fmt.Errorf("failed to store tile: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (c *SQLiteCatalog) Close() error {
	return c.db.Close()
}
