package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Situation is reference data describing the clinical context of a
// report. At most one per report.
type Situation struct {
	ID          string `json:"id"`
	GroupID     string `json:"group_id,omitempty"`
	BucketID    string `json:"bucket_id,omitempty"`
	Code        string `json:"code"`
	Description string `json:"description,omitempty"`
}

const situationCols = `id, group_id, bucket_id, code, description`

// SituationsByIDs returns the situations whose id is in ids. Missing
// ids are simply absent from the result; that is the caller's signal
// for "no situation", not an error.
func (db *DB) SituationsByIDs(
	ctx context.Context, ids []string,
) ([]Situation, error) {
	ids = dedupe(ids)
	var out []Situation
	err := queryChunked(ids, func(chunk []string) error {
		ph, args := inPlaceholders(chunk)
		rows, err := db.reader.QueryContext(ctx,
			`SELECT `+situationCols+` FROM situations
			 WHERE id IN `+ph, args...)
		if err != nil {
			return fmt.Errorf("querying situations: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var s Situation
			if err := rows.Scan(
				&s.ID, &s.GroupID, &s.BucketID, &s.Code, &s.Description,
			); err != nil {
				return fmt.Errorf("scanning situation: %w", err)
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertSituation creates or replaces a situation row. Situations are
// reference data, so replace semantics are fine.
func (db *DB) InsertSituation(s Situation) error {
	return db.Update(func(tx *sql.Tx) error {
		return InsertSituationTx(tx, s)
	})
}

// InsertSituationTx creates or replaces a situation row inside an
// existing transaction. The conflict clause updates in place so rows
// referenced by existing reports survive a re-import.
func InsertSituationTx(tx *sql.Tx, s Situation) error {
	_, err := tx.Exec(
		`INSERT INTO situations
		     (id, group_id, bucket_id, code, description)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     group_id = excluded.group_id,
		     bucket_id = excluded.bucket_id,
		     code = excluded.code,
		     description = excluded.description`,
		s.ID, s.GroupID, s.BucketID, s.Code, s.Description,
	)
	if err != nil {
		return fmt.Errorf("inserting situation %s: %w", s.ID, err)
	}
	return nil
}

// refByIDs is the shared fetch for the two-column (id, text)
// reference tables (questions, options).
func (db *DB) refByIDs(
	ctx context.Context, table string, ids []string,
) (map[string]string, error) {
	ids = dedupe(ids)
	out := make(map[string]string, len(ids))
	err := queryChunked(ids, func(chunk []string) error {
		ph, args := inPlaceholders(chunk)
		rows, err := db.reader.QueryContext(ctx,
			`SELECT id, text FROM `+table+` WHERE id IN `+ph, args...)
		if err != nil {
			return fmt.Errorf("querying %s: %w", table, err)
		}
		defer rows.Close()

		for rows.Next() {
			var id, text string
			if err := rows.Scan(&id, &text); err != nil {
				return fmt.Errorf("scanning %s: %w",
					strings.TrimSuffix(table, "s"), err)
			}
			out[id] = text
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
