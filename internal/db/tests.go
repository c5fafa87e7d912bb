package db

import (
	"context"
	"database/sql"
	"fmt"
)

// TestLink is the bridge row mapping a lab report to one of its test
// results.
type TestLink struct {
	LabReportID  string `json:"lab_report_id"`
	TestResultID string `json:"test_result_id"`
}

// TestResult is a single measured value. TestTypeID references the
// test_types reference table and may be unset for legacy rows.
type TestResult struct {
	ID         string  `json:"id"`
	Value      float64 `json:"value"`
	TestDate   string  `json:"test_date,omitempty"`
	TestTypeID *string `json:"test_type_id,omitempty"`
}

// TestType is reference data used for display naming and ordering.
type TestType struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name,omitempty"`
	Unit string `json:"unit,omitempty"`
}

// TestLinksForReports returns the bridge rows for the given report
// ids in one batched fetch.
func (db *DB) TestLinksForReports(
	ctx context.Context, reportIDs []string,
) ([]TestLink, error) {
	reportIDs = dedupe(reportIDs)
	var out []TestLink
	err := queryChunked(reportIDs, func(chunk []string) error {
		ph, args := inPlaceholders(chunk)
		rows, err := db.reader.QueryContext(ctx,
			`SELECT lab_report_id, test_result_id
			 FROM lab_report_tests
			 WHERE lab_report_id IN `+ph, args...)
		if err != nil {
			return fmt.Errorf("querying test links: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var l TestLink
			if err := rows.Scan(&l.LabReportID, &l.TestResultID); err != nil {
				return fmt.Errorf("scanning test link: %w", err)
			}
			out = append(out, l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// TestResultsByIDs returns the test results whose id is in ids.
func (db *DB) TestResultsByIDs(
	ctx context.Context, ids []string,
) ([]TestResult, error) {
	ids = dedupe(ids)
	var out []TestResult
	err := queryChunked(ids, func(chunk []string) error {
		ph, args := inPlaceholders(chunk)
		rows, err := db.reader.QueryContext(ctx,
			`SELECT id, value, test_date, test_type_id
			 FROM test_results WHERE id IN `+ph, args...)
		if err != nil {
			return fmt.Errorf("querying test results: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var r TestResult
			if err := rows.Scan(
				&r.ID, &r.Value, &r.TestDate, &r.TestTypeID,
			); err != nil {
				return fmt.Errorf("scanning test result: %w", err)
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

// TestTypesByIDs returns the test types whose id is in ids.
func (db *DB) TestTypesByIDs(
	ctx context.Context, ids []string,
) ([]TestType, error) {
	ids = dedupe(ids)
	var out []TestType
	err := queryChunked(ids, func(chunk []string) error {
		ph, args := inPlaceholders(chunk)
		rows, err := db.reader.QueryContext(ctx,
			`SELECT id, code, name, unit
			 FROM test_types WHERE id IN `+ph, args...)
		if err != nil {
			return fmt.Errorf("querying test types: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var t TestType
			if err := rows.Scan(&t.ID, &t.Code, &t.Name, &t.Unit); err != nil {
				return fmt.Errorf("scanning test type: %w", err)
			}
			out = append(out, t)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertTestType creates or replaces a test type row.
func (db *DB) InsertTestType(t TestType) error {
	return db.Update(func(tx *sql.Tx) error {
		return InsertTestTypeTx(tx, t)
	})
}

// InsertTestTypeTx creates or replaces a test type row inside an
// existing transaction. The conflict clause updates in place so rows
// referenced by existing results survive a re-import.
func InsertTestTypeTx(tx *sql.Tx, t TestType) error {
	_, err := tx.Exec(
		`INSERT INTO test_types (id, code, name, unit)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     code = excluded.code,
		     name = excluded.name,
		     unit = excluded.unit`,
		t.ID, t.Code, t.Name, t.Unit,
	)
	if err != nil {
		return fmt.Errorf("inserting test type %s: %w", t.ID, err)
	}
	return nil
}

// InsertTestResult creates a test result row and links it to a report.
func (db *DB) InsertTestResult(reportID string, r TestResult) error {
	return db.Update(func(tx *sql.Tx) error {
		return InsertTestResultTx(tx, reportID, r)
	})
}

// InsertTestResultTx creates a test result row and its report link
// inside an existing transaction.
func InsertTestResultTx(tx *sql.Tx, reportID string, r TestResult) error {
	if _, err := tx.Exec(
		`INSERT INTO test_results (id, value, test_date, test_type_id)
		 VALUES (?, ?, ?, ?)`,
		r.ID, r.Value, r.TestDate, r.TestTypeID,
	); err != nil {
		return fmt.Errorf("inserting test result %s: %w", r.ID, err)
	}
	if _, err := tx.Exec(
		`INSERT INTO lab_report_tests (lab_report_id, test_result_id)
		 VALUES (?, ?)`,
		reportID, r.ID,
	); err != nil {
		return fmt.Errorf("linking test result %s: %w", r.ID, err)
	}
	return nil
}
