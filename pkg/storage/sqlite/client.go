// Package sqlite provides a SQLite implementation of the meme store.
//
// SQLite is a lightweight, file-based database suitable for local development
// and single-host agents. Tag sets and embeddings are stored as JSON strings
// in TEXT fields. Deletion is a soft delete: rows are marked invalid and kept
// for diagnostics, matching the behaviour of the other backends.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/muika-lab/memekeeper/pkg/storage"
)

// Client implements storage.Store using SQLite as the backend.
type Client struct {
	// db is the SQLite database connection.
	db *sql.DB

	// tableName is the name of the table storing meme records.
	tableName string
}

// Config contains configuration for creating a SQLite meme store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// TableName is the name of the table to use. Defaults to "memes".
	TableName string
}

// NewClient creates a new SQLite meme store client.
//
// Parameters:
//   - cfg: Configuration containing the database path and table name
//
// Returns:
//   - *Client: The SQLite client instance
//   - error: Error if database connection or table creation fails
func NewClient(cfg *Config) (*Client, error) {
	tableName := cfg.TableName
	if tableName == "" {
		tableName = "memes"
	}

	// Create parent directory if it doesn't exist
	dbDir := filepath.Dir(cfg.DBPath)
	if dbDir != "" && dbDir != "." {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("NewSQLiteClient: failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewSQLiteClient: %w", err)
	}

	client := &Client{
		db:        db,
		tableName: tableName,
	}

	if err := client.initTables(context.Background()); err != nil {
		return nil, err
	}

	return client, nil
}

// initTables initializes the database table structure.
func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY,
			blob_ref TEXT NOT NULL,
			hash TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			tags TEXT NOT NULL DEFAULT '[]',
			embedding TEXT,
			valid INTEGER NOT NULL DEFAULT 1,
			use_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_used_at DATETIME
		)
	`, c.tableName)

	_, err := c.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	indexQuery := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_valid_hash ON %s(valid, hash)
	`, c.tableName, c.tableName)
	_, err = c.db.ExecContext(ctx, indexQuery)
	if err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	return nil
}

// Insert inserts a meme record into the SQLite database.
func (c *Client) Insert(ctx context.Context, meme *storage.Meme) error {
	query := fmt.Sprintf(`
		INSERT INTO %s
		(id, blob_ref, hash, description, tags, embedding, valid, use_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.tableName)

	tagsJSON, embeddingJSON, err := encodeJSONFields(meme)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	createdAt := meme.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = c.db.ExecContext(ctx, query,
		meme.ID,
		meme.BlobRef,
		meme.Hash,
		meme.Description,
		tagsJSON,
		embeddingJSON,
		boolToInt(meme.Valid),
		meme.UseCount,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	return nil
}

// Get retrieves a valid meme by ID.
func (c *Client) Get(ctx context.Context, id int64) (*storage.Meme, error) {
	query := fmt.Sprintf(`
		SELECT id, blob_ref, hash, description, tags, embedding, valid,
		       use_count, created_at, last_used_at
		FROM %s
		WHERE id = ? AND valid = 1
	`, c.tableName)

	row := c.db.QueryRowContext(ctx, query, id)

	meme, err := scanMeme(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	return meme, nil
}

// GetAll retrieves valid memes ordered most-recent-first.
func (c *Client) GetAll(ctx context.Context, limit int) ([]*storage.Meme, error) {
	query := fmt.Sprintf(`
		SELECT id, blob_ref, hash, description, tags, embedding, valid,
		       use_count, created_at, last_used_at
		FROM %s
		WHERE valid = 1
		ORDER BY created_at DESC, id DESC
	`, c.tableName)

	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("GetAll: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memes []*storage.Meme
	for rows.Next() {
		meme, err := scanMeme(rows)
		if err != nil {
			return nil, fmt.Errorf("GetAll: %w", err)
		}
		memes = append(memes, meme)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetAll: %w", err)
	}

	return memes, nil
}

// Count returns the number of valid memes.
func (c *Client) Count(ctx context.Context) (int, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE valid = 1", c.tableName)

	var count int
	if err := c.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}

	return count, nil
}

// Delete marks a meme invalid. The row is kept for diagnostics.
func (c *Client) Delete(ctx context.Context, id int64) error {
	query := fmt.Sprintf("UPDATE %s SET valid = 0 WHERE id = ? AND valid = 1", c.tableName)

	result, err := c.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// EvictOldest marks the oldest valid meme invalid and returns its ID.
//
// The eviction order is smallest created_at first, ties broken by smallest
// ID, so the outcome is deterministic for a given store state.
func (c *Client) EvictOldest(ctx context.Context) (int64, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET valid = 0
		WHERE id = (
			SELECT id FROM %s
			WHERE valid = 1
			ORDER BY created_at ASC, id ASC
			LIMIT 1
		) AND valid = 1
		RETURNING id
	`, c.tableName, c.tableName)

	var id int64
	err := c.db.QueryRowContext(ctx, query).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("EvictOldest: %w", err)
	}

	return id, nil
}

// FindByHash returns the valid meme with the given content hash.
func (c *Client) FindByHash(ctx context.Context, hash string) (*storage.Meme, error) {
	query := fmt.Sprintf(`
		SELECT id, blob_ref, hash, description, tags, embedding, valid,
		       use_count, created_at, last_used_at
		FROM %s
		WHERE hash = ? AND valid = 1
		ORDER BY id ASC
		LIMIT 1
	`, c.tableName)

	row := c.db.QueryRowContext(ctx, query, hash)

	meme, err := scanMeme(row)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("FindByHash: %w", err)
	}

	return meme, nil
}

// Touch increments UseCount and sets LastUsedAt for a meme.
func (c *Client) Touch(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`
		UPDATE %s SET use_count = use_count + 1, last_used_at = ?
		WHERE id = ? AND valid = 1
	`, c.tableName)

	result, err := c.db.ExecContext(ctx, query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("Touch: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("Touch: %w", err)
	}
	if rowsAffected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}
