package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// LabReport is the root record of a patient visit. SituationID is a
// nullable to-one reference resolved by the visit package.
type LabReport struct {
	ID          string  `json:"id"`
	PatientID   string  `json:"patient_id"`
	DoctorID    string  `json:"doctor_id"`
	ReportDate  string  `json:"report_date"`
	SituationID *string `json:"situation_id,omitempty"`
	Notes       string  `json:"notes,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

const reportCols = `id, patient_id, doctor_id, report_date,
	situation_id, notes, created_at`

func scanReportRow(rs rowScanner) (LabReport, error) {
	var r LabReport
	err := rs.Scan(
		&r.ID, &r.PatientID, &r.DoctorID, &r.ReportDate,
		&r.SituationID, &r.Notes, &r.CreatedAt,
	)
	return r, err
}

// ReportFilter narrows ListReports. Zero values mean "no filter".
type ReportFilter struct {
	PatientID string
	DoctorID  string
}

// GetReport returns a single lab report, or ErrNotFound.
func (db *DB) GetReport(ctx context.Context, id string) (LabReport, error) {
	row := db.reader.QueryRowContext(ctx,
		`SELECT `+reportCols+` FROM lab_reports WHERE id = ?`, id)
	r, err := scanReportRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return LabReport{}, ErrNotFound
	}
	if err != nil {
		return LabReport{}, fmt.Errorf("fetching report %s: %w", id, err)
	}
	return r, nil
}

// ListReports returns lab reports matching the filter, newest report
// date first. Callers that need a different presentation order must
// re-sort; the visit assembler reapplies its own ordering regardless.
func (db *DB) ListReports(
	ctx context.Context, f ReportFilter,
) ([]LabReport, error) {
	query := `SELECT ` + reportCols + ` FROM lab_reports`
	var preds []string
	var args []any
	if f.PatientID != "" {
		preds = append(preds, "patient_id = ?")
		args = append(args, f.PatientID)
	}
	if f.DoctorID != "" {
		preds = append(preds, "doctor_id = ?")
		args = append(args, f.DoctorID)
	}
	for i, p := range preds {
		if i == 0 {
			query += " WHERE " + p
		} else {
			query += " AND " + p
		}
	}
	query += ` ORDER BY report_date DESC, id`

	rows, err := db.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	var out []LabReport
	for rows.Next() {
		r, err := scanReportRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertReport creates a lab report row.
func (db *DB) InsertReport(r LabReport) error {
	return db.Update(func(tx *sql.Tx) error {
		return InsertReportTx(tx, r)
	})
}

// InsertReportTx creates a lab report row inside an existing
// transaction.
func InsertReportTx(tx *sql.Tx, r LabReport) error {
	_, err := tx.Exec(
		`INSERT INTO lab_reports
		     (id, patient_id, doctor_id, report_date,
		      situation_id, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, COALESCE(NULLIF(?, ''),
		     strftime('%Y-%m-%dT%H:%M:%fZ', 'now')))`,
		r.ID, r.PatientID, r.DoctorID, r.ReportDate,
		r.SituationID, r.Notes, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting report %s: %w", r.ID, err)
	}
	return nil
}
