package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNonPositiveDosage is returned when a prescription carries a
	// dosage of zero or less. Such values mean "not prescribed" and
	// are never persisted.
	ErrNonPositiveDosage = errors.New("dosage must be positive")

	// ErrAlreadyOutdated is returned when outdating a prescription
	// whose outdate metadata is already set. The metadata is written
	// once and never changed afterwards.
	ErrAlreadyOutdated = errors.New("prescription already outdated")
)

// Prescription is a medication assigned on a lab report. The current
// set for a report is the subset with IsOutdated == false; outdating
// is a logical delete.
type Prescription struct {
	ID               string  `json:"id"`
	LabReportID      string  `json:"lab_report_id"`
	MedicationTypeID string  `json:"medication_type_id"`
	Dosage           float64 `json:"dosage"`
	IsOutdated       bool    `json:"is_outdated"`
	OutdatedAt       *string `json:"outdated_at,omitempty"`
	OutdatedReason   *string `json:"outdated_reason,omitempty"`
	OutdatedBy       *string `json:"outdated_by,omitempty"`
	CreatedAt        string  `json:"created_at"`
}

// MedicationType is reference data for prescriptions.
type MedicationType struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Unit      string `json:"unit,omitempty"`
	GroupName string `json:"group_name,omitempty"`
}

// PrescriptionView selects which slice of a report's prescriptions to
// return.
type PrescriptionView string

const (
	ViewActive   PrescriptionView = "active"
	ViewOutdated PrescriptionView = "outdated"
	ViewAll      PrescriptionView = "all"
)

const prescriptionCols = `id, lab_report_id, medication_type_id,
	dosage, is_outdated, outdated_at, outdated_reason, outdated_by,
	created_at`

func scanPrescriptionRow(rs rowScanner) (Prescription, error) {
	var p Prescription
	err := rs.Scan(
		&p.ID, &p.LabReportID, &p.MedicationTypeID,
		&p.Dosage, &p.IsOutdated,
		&p.OutdatedAt, &p.OutdatedReason, &p.OutdatedBy,
		&p.CreatedAt,
	)
	return p, err
}

// PrescriptionsForReport returns a report's prescriptions under the
// given view. Active and outdated views partition the full set.
func (db *DB) PrescriptionsForReport(
	ctx context.Context, reportID string, view PrescriptionView,
) ([]Prescription, error) {
	query := `SELECT ` + prescriptionCols + `
		FROM prescriptions WHERE lab_report_id = ?`
	switch view {
	case ViewActive:
		query += ` AND is_outdated = 0`
	case ViewOutdated:
		query += ` AND is_outdated = 1`
	case ViewAll, "":
	default:
		return nil, fmt.Errorf("unknown prescription view %q", view)
	}
	query += ` ORDER BY created_at, id`

	rows, err := db.reader.QueryContext(ctx, query, reportID)
	if err != nil {
		return nil, fmt.Errorf("querying prescriptions: %w", err)
	}
	defer rows.Close()

	var out []Prescription
	for rows.Next() {
		p, err := scanPrescriptionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning prescription: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListPrescriptions returns all prescriptions, optionally scoped to
// one doctor via the owning report.
func (db *DB) ListPrescriptions(
	ctx context.Context, doctorID string,
) ([]Prescription, error) {
	query := `SELECT p.id, p.lab_report_id, p.medication_type_id,
		p.dosage, p.is_outdated, p.outdated_at, p.outdated_reason,
		p.outdated_by, p.created_at
		FROM prescriptions p`
	var args []any
	if doctorID != "" {
		query += ` JOIN lab_reports r ON r.id = p.lab_report_id
			WHERE r.doctor_id = ?`
		args = append(args, doctorID)
	}
	query += ` ORDER BY p.created_at, p.id`

	rows, err := db.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing prescriptions: %w", err)
	}
	defer rows.Close()

	var out []Prescription
	for rows.Next() {
		p, err := scanPrescriptionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning prescription: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// NewPrescription is the input to ReplacePrescriptions.
type NewPrescription struct {
	MedicationTypeID string  `json:"medication_type_id"`
	Dosage           float64 `json:"dosage"`
}

// ReplacePrescriptions replaces the active prescription set of a
// report with the given entries, in one transaction. Outdated rows
// are history and survive the replace. Any non-positive dosage
// rejects the whole batch before a row is touched.
func (db *DB) ReplacePrescriptions(
	reportID string, entries []NewPrescription,
) ([]Prescription, error) {
	var inserted []Prescription
	err := db.Update(func(tx *sql.Tx) error {
		var err error
		inserted, err = ReplacePrescriptionsTx(tx, reportID, entries)
		return err
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// ReplacePrescriptionsTx is ReplacePrescriptions inside an existing
// transaction.
func ReplacePrescriptionsTx(
	tx *sql.Tx, reportID string, entries []NewPrescription,
) ([]Prescription, error) {
	for _, e := range entries {
		if e.Dosage <= 0 {
			return nil, fmt.Errorf("%w: medication type %s",
				ErrNonPositiveDosage, e.MedicationTypeID)
		}
	}

	if _, err := tx.Exec(
		`DELETE FROM prescriptions
		 WHERE lab_report_id = ? AND is_outdated = 0`,
		reportID,
	); err != nil {
		return nil, fmt.Errorf("clearing prescriptions: %w", err)
	}

	inserted := make([]Prescription, 0, len(entries))
	for _, e := range entries {
		p := Prescription{
			ID:               uuid.NewString(),
			LabReportID:      reportID,
			MedicationTypeID: e.MedicationTypeID,
			Dosage:           e.Dosage,
		}
		row := tx.QueryRow(
			`INSERT INTO prescriptions
			     (id, lab_report_id, medication_type_id, dosage)
			 VALUES (?, ?, ?, ?)
			 RETURNING created_at`,
			p.ID, p.LabReportID, p.MedicationTypeID, p.Dosage,
		)
		if err := row.Scan(&p.CreatedAt); err != nil {
			return nil, fmt.Errorf("inserting prescription: %w", err)
		}
		inserted = append(inserted, p)
	}
	return inserted, nil
}

// OutdatePrescription marks a prescription as outdated with the given
// reason and actor. The row itself stays; its metadata is set exactly
// once.
func (db *DB) OutdatePrescription(
	id, reason, by, at string,
) error {
	return db.Update(func(tx *sql.Tx) error {
		var outdated bool
		err := tx.QueryRow(
			`SELECT is_outdated FROM prescriptions WHERE id = ?`, id,
		).Scan(&outdated)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("fetching prescription %s: %w", id, err)
		}
		if outdated {
			return ErrAlreadyOutdated
		}
		if _, err := tx.Exec(
			`UPDATE prescriptions
			 SET is_outdated = 1, outdated_at = ?,
			     outdated_reason = ?, outdated_by = ?
			 WHERE id = ?`,
			at, reason, by, id,
		); err != nil {
			return fmt.Errorf("outdating prescription %s: %w", id, err)
		}
		return nil
	})
}

// MedicationTypesByIDs returns the medication types whose id is in ids.
func (db *DB) MedicationTypesByIDs(
	ctx context.Context, ids []string,
) ([]MedicationType, error) {
	ids = dedupe(ids)
	var out []MedicationType
	err := queryChunked(ids, func(chunk []string) error {
		ph, args := inPlaceholders(chunk)
		rows, err := db.reader.QueryContext(ctx,
			`SELECT id, name, unit, group_name
			 FROM medication_types WHERE id IN `+ph, args...)
		if err != nil {
			return fmt.Errorf("querying medication types: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var m MedicationType
			if err := rows.Scan(&m.ID, &m.Name, &m.Unit, &m.GroupName); err != nil {
				return fmt.Errorf("scanning medication type: %w", err)
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InsertMedicationType creates or replaces a medication type row.
func (db *DB) InsertMedicationType(m MedicationType) error {
	return db.Update(func(tx *sql.Tx) error {
		return InsertMedicationTypeTx(tx, m)
	})
}

// InsertMedicationTypeTx creates or replaces a medication type row
// inside an existing transaction. The conflict clause updates in
// place so rows referenced by existing prescriptions survive a
// re-import.
func InsertMedicationTypeTx(tx *sql.Tx, m MedicationType) error {
	_, err := tx.Exec(
		`INSERT INTO medication_types
		     (id, name, unit, group_name)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     name = excluded.name,
		     unit = excluded.unit,
		     group_name = excluded.group_name`,
		m.ID, m.Name, m.Unit, m.GroupName,
	)
	if err != nil {
		return fmt.Errorf("inserting medication type %s: %w", m.ID, err)
	}
	return nil
}
