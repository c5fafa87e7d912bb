package db

import (
	"context"
	"fmt"
)

// Stats holds whole-database row counts for the stats endpoint.
type Stats struct {
	DoctorCount       int `json:"doctor_count"`
	PatientCount      int `json:"patient_count"`
	ReportCount       int `json:"report_count"`
	PrescriptionCount int `json:"prescription_count"`
}

// GetStats returns row counts per core table.
func (db *DB) GetStats(ctx context.Context) (Stats, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM doctors),
			(SELECT COUNT(*) FROM patients),
			(SELECT COUNT(*) FROM lab_reports),
			(SELECT COUNT(*) FROM prescriptions)`

	var s Stats
	err := db.reader.QueryRowContext(ctx, query).Scan(
		&s.DoctorCount,
		&s.PatientCount,
		&s.ReportCount,
		&s.PrescriptionCount,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("fetching stats: %w", err)
	}
	return s, nil
}
