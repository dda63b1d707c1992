package results

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tenderops/bid-reviewer/internal/review"
)

// SQLiteSink stores review items in a local SQLite database, one transaction
// per run batch.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the results database at path.
func OpenSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening results database: %w", err)
	}

	s := &SQLiteSink{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating results schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

func (s *SQLiteSink) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS review_items (
			id TEXT PRIMARY KEY,
			review_run_id TEXT NOT NULL,
			dimension TEXT NOT NULL,
			requirement_id TEXT NOT NULL,
			matched_response_id TEXT,
			status TEXT NOT NULL,
			rule_trace TEXT,
			computed_trace TEXT,
			evidence TEXT,
			severity TEXT,
			is_hard INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_review_items_run ON review_items(review_run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_review_items_requirement ON review_items(requirement_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveBatch persists all items in one transaction. A failure rolls back the
// whole batch; a run is committed entirely or not at all.
func (s *SQLiteSink) SaveBatch(ctx context.Context, items []review.ReviewItem) error {
	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning results transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO review_items
		 (id, review_run_id, dimension, requirement_id, matched_response_id,
		  status, rule_trace, computed_trace, evidence, severity, is_hard, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing results insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, item := range items {
		computedJSON := ""
		if item.ComputedTrace != nil {
			data, err := json.Marshal(item.ComputedTrace)
			if err != nil {
				return fmt.Errorf("encoding computed trace for %s: %w", item.ID, err)
			}
			computedJSON = string(data)
		}

		evidenceJSON, err := json.Marshal(item.Evidence)
		if err != nil {
			return fmt.Errorf("encoding evidence for %s: %w", item.ID, err)
		}

		hard := 0
		if item.IsHard {
			hard = 1
		}

		if _, err := stmt.ExecContext(ctx,
			item.ID, item.ReviewRunID, item.Dimension, item.RequirementID,
			item.MatchedResponseID, string(item.Status), item.RuleTrace,
			computedJSON, string(evidenceJSON), string(item.Severity), hard, now,
		); err != nil {
			return fmt.Errorf("inserting review item %s: %w", item.ID, err)
		}
	}

	return tx.Commit()
}

// ListRun returns all items committed under one run id, for auditing.
func (s *SQLiteSink) ListRun(ctx context.Context, runID string) ([]review.ReviewItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, review_run_id, dimension, requirement_id, matched_response_id,
		        status, rule_trace, computed_trace, evidence, severity, is_hard
		 FROM review_items WHERE review_run_id = ? ORDER BY requirement_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying run %s: %w", runID, err)
	}
	defer rows.Close()

	var items []review.ReviewItem
	for rows.Next() {
		var (
			item         review.ReviewItem
			matched      sql.NullString
			status       string
			severity     string
			computedJSON string
			evidenceJSON string
			hard         int
		)
		if err := rows.Scan(&item.ID, &item.ReviewRunID, &item.Dimension, &item.RequirementID,
			&matched, &status, &item.RuleTrace, &computedJSON, &evidenceJSON, &severity, &hard); err != nil {
			return nil, fmt.Errorf("scanning review item: %w", err)
		}

		item.MatchedResponseID = matched.String
		item.Status = review.Status(status)
		item.Severity = review.Severity(severity)
		item.IsHard = hard == 1

		if computedJSON != "" {
			var trace review.ComputedTrace
			if err := json.Unmarshal([]byte(computedJSON), &trace); err != nil {
				return nil, fmt.Errorf("decoding computed trace for %s: %w", item.ID, err)
			}
			item.ComputedTrace = &trace
		}
		if evidenceJSON != "" {
			if err := json.Unmarshal([]byte(evidenceJSON), &item.Evidence); err != nil {
				return nil, fmt.Errorf("decoding evidence for %s: %w", item.ID, err)
			}
		}

		items = append(items, item)
	}
	return items, rows.Err()
}

// Runs returns the distinct run ids in commit order, newest last.
func (s *SQLiteSink) Runs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT review_run_id FROM review_items GROUP BY review_run_id ORDER BY MIN(created_at)`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning run id: %w", err)
		}
		runs = append(runs, id)
	}
	return runs, rows.Err()
}
