package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Doctor represents a row in the doctors table.
type Doctor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

const doctorCols = `id, name, email, active, created_at`

func scanDoctorRow(rs rowScanner) (Doctor, error) {
	var d Doctor
	err := rs.Scan(&d.ID, &d.Name, &d.Email, &d.Active, &d.CreatedAt)
	return d, err
}

// GetDoctor returns a single doctor, or ErrNotFound.
func (db *DB) GetDoctor(ctx context.Context, id string) (Doctor, error) {
	row := db.reader.QueryRowContext(ctx,
		`SELECT `+doctorCols+` FROM doctors WHERE id = ?`, id)
	d, err := scanDoctorRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Doctor{}, ErrNotFound
	}
	if err != nil {
		return Doctor{}, fmt.Errorf("fetching doctor %s: %w", id, err)
	}
	return d, nil
}

// ListDoctors returns all doctors ordered by name.
func (db *DB) ListDoctors(ctx context.Context) ([]Doctor, error) {
	rows, err := db.reader.QueryContext(ctx,
		`SELECT `+doctorCols+` FROM doctors ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("listing doctors: %w", err)
	}
	defer rows.Close()

	var out []Doctor
	for rows.Next() {
		d, err := scanDoctorRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning doctor: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// InsertDoctor creates a doctor row.
func (db *DB) InsertDoctor(d Doctor) error {
	return db.Update(func(tx *sql.Tx) error {
		return InsertDoctorTx(tx, d)
	})
}

// InsertDoctorTx creates a doctor row inside an existing transaction.
func InsertDoctorTx(tx *sql.Tx, d Doctor) error {
	_, err := tx.Exec(
		`INSERT INTO doctors (id, name, email, active, created_at)
		 VALUES (?, ?, ?, ?, COALESCE(NULLIF(?, ''),
		     strftime('%Y-%m-%dT%H:%M:%fZ', 'now')))`,
		d.ID, d.Name, d.Email, d.Active, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting doctor %s: %w", d.ID, err)
	}
	return nil
}
