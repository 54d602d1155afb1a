package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/muika-lab/memekeeper/pkg/storage"
)

// encodeJSONFields encodes the tag set and embedding as JSON strings.
//
// A nil embedding is stored as SQL NULL rather than the JSON literal "null".
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
	var valid int
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
			&valid,
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
			&valid,
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

	meme.Valid = valid != 0
	if lastUsedAt.Valid {
		meme.LastUsedAt = &lastUsedAt.Time
	}

	return &meme, nil
}

// boolToInt converts a bool to the 0/1 representation stored in SQLite.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
