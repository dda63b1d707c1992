package segment

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the reference Store backed by a local SQLite database. The
// surrounding platform keeps chunked document segments in a table of this
// shape after parsing.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the segment database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening segment database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating segment schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS segments (
		id TEXT PRIMARY KEY,
		asset_id TEXT NOT NULL DEFAULT '',
		page_start INTEGER NOT NULL DEFAULT 0,
		page_end INTEGER NOT NULL DEFAULT 0,
		heading_path TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT ''
	)`)
	return err
}

// Put inserts or replaces one segment. Used by seed tooling and tests.
func (s *SQLiteStore) Put(ctx context.Context, seg Segment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO segments (id, asset_id, page_start, page_end, heading_path, content)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		seg.ID, seg.AssetID, seg.PageStart, seg.PageEnd, seg.HeadingPath, seg.Content,
	)
	if err != nil {
		return fmt.Errorf("storing segment %s: %w", seg.ID, err)
	}
	return nil
}

// GetBatch resolves all given ids with one query. Missing ids are simply
// absent from the result map; the caller decides how to represent them.
func (s *SQLiteStore) GetBatch(ctx context.Context, ids []string) (map[string]Segment, error) {
	result := make(map[string]Segment, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, asset_id, page_start, page_end, heading_path, content
		 FROM segments WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying segments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var seg Segment
		if err := rows.Scan(&seg.ID, &seg.AssetID, &seg.PageStart, &seg.PageEnd, &seg.HeadingPath, &seg.Content); err != nil {
			return nil, fmt.Errorf("scanning segment row: %w", err)
		}
		result[seg.ID] = seg
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating segment rows: %w", err)
	}

	return result, nil
}
