package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Patient represents a row in the patients table. DoctorID is the
// owning doctor; access checks compare it against the caller.
type Patient struct {
	ID        string `json:"id"`
	DoctorID  string `json:"doctor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at"`
}

const patientCols = `id, doctor_id, name, created_at`

func scanPatientRow(rs rowScanner) (Patient, error) {
	var p Patient
	err := rs.Scan(&p.ID, &p.DoctorID, &p.Name, &p.CreatedAt)
	return p, err
}

// GetPatient returns a single patient, or ErrNotFound.
func (db *DB) GetPatient(ctx context.Context, id string) (Patient, error) {
	row := db.reader.QueryRowContext(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = ?`, id)
	p, err := scanPatientRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Patient{}, ErrNotFound
	}
	if err != nil {
		return Patient{}, fmt.Errorf("fetching patient %s: %w", id, err)
	}
	return p, nil
}

// ListPatients returns patients, optionally scoped to one doctor
// (doctorID == "" means all), ordered by creation time.
func (db *DB) ListPatients(
	ctx context.Context, doctorID string,
) ([]Patient, error) {
	query := `SELECT ` + patientCols + ` FROM patients`
	var args []any
	if doctorID != "" {
		query += ` WHERE doctor_id = ?`
		args = append(args, doctorID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := db.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing patients: %w", err)
	}
	defer rows.Close()

	var out []Patient
	for rows.Next() {
		p, err := scanPatientRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning patient: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertPatient creates a patient row.
func (db *DB) InsertPatient(p Patient) error {
	return db.Update(func(tx *sql.Tx) error {
		return InsertPatientTx(tx, p)
	})
}

// InsertPatientTx creates a patient row inside an existing
// transaction.
func InsertPatientTx(tx *sql.Tx, p Patient) error {
	_, err := tx.Exec(
		`INSERT INTO patients (id, doctor_id, name, created_at)
		 VALUES (?, ?, ?, COALESCE(NULLIF(?, ''),
		     strftime('%Y-%m-%dT%H:%M:%fZ', 'now')))`,
		p.ID, p.DoctorID, p.Name, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting patient %s: %w", p.ID, err)
	}
	return nil
}
