// Package mysql provides a MySQL implementation of the meme store.
//
// Tag sets and embeddings are stored in JSON columns. Deletion is a soft
// delete: rows are marked invalid and kept for diagnostics. MySQL has no
// UPDATE ... RETURNING, so eviction runs as a select-then-update transaction.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/muika-lab/memekeeper/pkg/storage"
)

// Client implements storage.Store using MySQL as the backend.
type Client struct {
	db        *sql.DB
	tableName string
}

// Config contains MySQL configuration.
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	TableName string
}

// NewClient creates a new MySQL meme store client.
func NewClient(cfg *Config) (*Client, error) {
	tableName := cfg.TableName
	if tableName == "" {
		tableName = "memes"
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("NewMySQLClient: %w", err)
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

// initTables initializes the database table.
func (c *Client) initTables(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id BIGINT PRIMARY KEY,
			blob_ref TEXT NOT NULL,
			hash VARCHAR(64) NOT NULL,
			description TEXT NOT NULL,
			tags JSON NOT NULL,
			embedding JSON,
			valid TINYINT(1) NOT NULL DEFAULT 1,
			use_count INT NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_used_at DATETIME,
			INDEX idx_valid_hash (valid, hash)
		)
	`, c.tableName)

	_, err := c.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("initTables: %w", err)
	}

	return nil
}

// Insert inserts a meme record.
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
		meme.Valid,
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

// Delete marks a meme invalid.
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
// ID. MySQL lacks UPDATE ... RETURNING, so the select and the update run in
// one transaction with a row lock.
func (c *Client) EvictOldest(ctx context.Context) (int64, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("EvictOldest: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	selectQuery := fmt.Sprintf(`
		SELECT id FROM %s
		WHERE valid = 1
		ORDER BY created_at ASC, id ASC
		LIMIT 1
		FOR UPDATE
	`, c.tableName)

	var id int64
	err = tx.QueryRowContext(ctx, selectQuery).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("EvictOldest: %w", err)
	}

	updateQuery := fmt.Sprintf("UPDATE %s SET valid = 0 WHERE id = ?", c.tableName)
	if _, err := tx.ExecContext(ctx, updateQuery, id); err != nil {
		return 0, fmt.Errorf("EvictOldest: %w", err)
	}

	if err := tx.Commit(); err != nil {
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

// encodeJSONFields encodes the tag set and embedding as JSON values.
func encodeJSONFields(meme *storage.Meme) (string, interface{}, error) {
	tags := meme.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return "", nil, err
	}

	var embeddingJSON interface{}
	if meme.Embedding != nil {
		data, err := json.Marshal(meme.Embedding)
		if err != nil {
			return "", nil, err
		}
		embeddingJSON = string(data)
	}

	return string(tagsJSON), embeddingJSON, nil
}

// scanMeme scans a meme record from a database row or rows.
func scanMeme(scanner interface{}) (*storage.Meme, error) {
	var meme storage.Meme
	var tagsStr string
	var embeddingStr sql.NullString
	var lastUsedAt sql.NullTime

	var err error
	switch s := scanner.(type) {
	case *sql.Row:
		err = s.Scan(
			&meme.ID,
			&meme.BlobRef,
			&meme.Hash,
			&meme.Description,
			&tagsStr,
			&embeddingStr,
			&meme.Valid,
			&meme.UseCount,
			&meme.CreatedAt,
			&lastUsedAt,
		)
	case *sql.Rows:
		err = s.Scan(
			&meme.ID,
			&meme.BlobRef,
			&meme.Hash,
			&meme.Description,
			&tagsStr,
			&embeddingStr,
			&meme.Valid,
			&meme.UseCount,
			&meme.CreatedAt,
			&lastUsedAt,
		)
	default:
		return nil, fmt.Errorf("unsupported scanner type")
	}

	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tagsStr), &meme.Tags); err != nil {
		return nil, fmt.Errorf("parse tags: %w", err)
	}

	if embeddingStr.Valid && embeddingStr.String != "" {
		if err := json.Unmarshal([]byte(embeddingStr.String), &meme.Embedding); err != nil {
			return nil, fmt.Errorf("parse embedding: %w", err)
		}
	}

	if lastUsedAt.Valid {
		meme.LastUsedAt = &lastUsedAt.Time
	}

	return &meme, nil
}
