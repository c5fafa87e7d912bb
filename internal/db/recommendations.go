package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Recommendation is an answered question attached to a lab report.
// Rows are unique per (report, question); re-assignment overwrites.
type Recommendation struct {
	LabReportID      string `json:"lab_report_id"`
	QuestionID       string `json:"question_id"`
	SelectedOptionID string `json:"selected_option_id"`
	AssignedBy       string `json:"assigned_by,omitempty"`
}

// RecommendationsForReports returns all recommendations for the given
// report ids in one batched fetch.
func (db *DB) RecommendationsForReports(
	ctx context.Context, reportIDs []string,
) ([]Recommendation, error) {
	reportIDs = dedupe(reportIDs)
	var out []Recommendation
	err := queryChunked(reportIDs, func(chunk []string) error {
		ph, args := inPlaceholders(chunk)
		rows, err := db.reader.QueryContext(ctx,
			`SELECT lab_report_id, question_id, selected_option_id,
			        assigned_by
			 FROM recommendations
			 WHERE lab_report_id IN `+ph+`
			 ORDER BY lab_report_id, question_id`, args...)
		if err != nil {
			return fmt.Errorf("querying recommendations: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var r Recommendation
			if err := rows.Scan(
				&r.LabReportID, &r.QuestionID,
				&r.SelectedOptionID, &r.AssignedBy,
			); err != nil {
				return fmt.Errorf("scanning recommendation: %w", err)
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpsertRecommendation inserts or replaces the recommendation for
// (report, question). The conflict key guarantees at most one row per
// question per report.
func (db *DB) UpsertRecommendation(r Recommendation) error {
	return db.Update(func(tx *sql.Tx) error {
		return UpsertRecommendationTx(tx, r)
	})
}

// UpsertRecommendationTx is UpsertRecommendation inside an existing
// transaction.
func UpsertRecommendationTx(tx *sql.Tx, r Recommendation) error {
	_, err := tx.Exec(
		`INSERT INTO recommendations
		     (lab_report_id, question_id, selected_option_id,
		      assigned_by)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(lab_report_id, question_id) DO UPDATE SET
		     selected_option_id = excluded.selected_option_id,
		     assigned_by = excluded.assigned_by`,
		r.LabReportID, r.QuestionID, r.SelectedOptionID, r.AssignedBy,
	)
	if err != nil {
		return fmt.Errorf("upserting recommendation %s/%s: %w",
			r.LabReportID, r.QuestionID, err)
	}
	return nil
}

// QuestionsByIDs resolves question display text by id set.
func (db *DB) QuestionsByIDs(
	ctx context.Context, ids []string,
) (map[string]string, error) {
	return db.refByIDs(ctx, "questions", ids)
}

// OptionsByIDs resolves option display text by id set.
func (db *DB) OptionsByIDs(
	ctx context.Context, ids []string,
) (map[string]string, error) {
	return db.refByIDs(ctx, "options", ids)
}

// InsertQuestion creates or replaces a question row.
func (db *DB) InsertQuestion(id, text string) error {
	return db.Update(func(tx *sql.Tx) error {
		return InsertQuestionTx(tx, id, text)
	})
}

// InsertOption creates or replaces an option row.
func (db *DB) InsertOption(id, text string) error {
	return db.Update(func(tx *sql.Tx) error {
		return InsertOptionTx(tx, id, text)
	})
}

// InsertQuestionTx creates or replaces a question row inside an
// existing transaction.
func InsertQuestionTx(tx *sql.Tx, id, text string) error {
	return insertRefTx(tx, "questions", id, text)
}

// InsertOptionTx creates or replaces an option row inside an existing
// transaction.
func InsertOptionTx(tx *sql.Tx, id, text string) error {
	return insertRefTx(tx, "options", id, text)
}

func insertRefTx(tx *sql.Tx, table, id, text string) error {
	_, err := tx.Exec(
		`INSERT INTO `+table+` (id, text) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET text = excluded.text`,
		id, text,
	)
	if err != nil {
		return fmt.Errorf("inserting into %s: %w", table, err)
	}
	return nil
}
