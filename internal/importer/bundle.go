// Package importer loads clinical bundle files into the store. A
// bundle is one JSON document carrying a patient, their lab reports,
// and the reference data those reports mention. Bundles come from
// upstream exports dropped into a directory; the watcher re-imports
// them as they change.
package importer

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/tidwall/gjson"

	"github.com/renalview/renalview/internal/db"
)

// Importer writes parsed bundles into the store.
type Importer struct {
	db *db.DB
}

// New creates an Importer over the given store.
func New(database *db.DB) *Importer {
	return &Importer{db: database}
}

// ImportDir imports every .json file directly under dir. A bad file
// is skipped with a logged reason; the pass continues. Returns the
// number of bundles imported.
func (im *Importer) ImportDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading bundle dir: %w", err)
	}

	imported := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := im.ImportFile(path); err != nil {
			log.Printf("importer: skipping %s: %v", e.Name(), err)
			continue
		}
		imported++
	}
	return imported, nil
}

// ImportFile imports a single bundle file. The whole bundle commits
// in one transaction: a bundle that fails partway leaves no rows
// behind, so a corrected redrop starts from a clean slate.
func (im *Importer) ImportFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading bundle: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("bundle %s: not valid JSON", filepath.Base(path))
	}
	root := gjson.ParseBytes(data)

	doctor := root.Get("doctor")
	patient := root.Get("patient")
	if !doctor.Exists() || !patient.Exists() {
		return fmt.Errorf("bundle missing doctor or patient")
	}

	return im.db.Update(func(tx *sql.Tx) error {
		return importBundleTx(tx, root)
	})
}

func importBundleTx(tx *sql.Tx, root gjson.Result) error {
	doctor := root.Get("doctor")
	patient := root.Get("patient")

	doctorID := idOrNew(doctor.Get("id"))
	if err := db.InsertDoctorTx(tx, db.Doctor{
		ID:     doctorID,
		Name:   doctor.Get("name").String(),
		Email:  doctor.Get("email").String(),
		Active: doctorBool(doctor.Get("active")),
	}); err != nil && !isConstraint(err) {
		return err
	}

	patientID := idOrNew(patient.Get("id"))
	if err := db.InsertPatientTx(tx, db.Patient{
		ID:       patientID,
		DoctorID: doctorID,
		Name:     patient.Get("name").String(),
	}); err != nil && !isConstraint(err) {
		return err
	}

	if err := importReferenceTx(tx, root); err != nil {
		return err
	}

	var firstErr error
	root.Get("reports").ForEach(func(_, rep gjson.Result) bool {
		if err := importReportTx(tx, patientID, doctorID, rep); err != nil {
			firstErr = err
			return false
		}
		return true
	})
	return firstErr
}

// importReferenceTx loads the bundle's reference rows. All reference
// inserts are replace-semantics, so re-importing a bundle refreshes
// them in place.
func importReferenceTx(tx *sql.Tx, root gjson.Result) error {
	var firstErr error
	stop := func(err error) bool {
		if err != nil {
			firstErr = err
			return false
		}
		return true
	}

	root.Get("situations").ForEach(func(_, s gjson.Result) bool {
		return stop(db.InsertSituationTx(tx, db.Situation{
			ID:          idOrNew(s.Get("id")),
			GroupID:     s.Get("group_id").String(),
			BucketID:    s.Get("bucket_id").String(),
			Code:        s.Get("code").String(),
			Description: s.Get("description").String(),
		}))
	})
	if firstErr != nil {
		return firstErr
	}

	root.Get("questions").ForEach(func(_, q gjson.Result) bool {
		return stop(db.InsertQuestionTx(tx,
			q.Get("id").String(), q.Get("text").String()))
	})
	if firstErr != nil {
		return firstErr
	}

	root.Get("options").ForEach(func(_, o gjson.Result) bool {
		return stop(db.InsertOptionTx(tx,
			o.Get("id").String(), o.Get("text").String()))
	})
	if firstErr != nil {
		return firstErr
	}

	root.Get("test_types").ForEach(func(_, t gjson.Result) bool {
		return stop(db.InsertTestTypeTx(tx, db.TestType{
			ID:   idOrNew(t.Get("id")),
			Code: t.Get("code").String(),
			Name: t.Get("name").String(),
			Unit: t.Get("unit").String(),
		}))
	})
	if firstErr != nil {
		return firstErr
	}

	root.Get("medication_types").ForEach(func(_, m gjson.Result) bool {
		return stop(db.InsertMedicationTypeTx(tx, db.MedicationType{
			ID:        idOrNew(m.Get("id")),
			Name:      m.Get("name").String(),
			Unit:      m.Get("unit").String(),
			GroupName: m.Get("group_name").String(),
		}))
	})
	return firstErr
}

// importReportTx imports one report and its children. A report that
// already exists keeps its row; the children are still processed so
// a redropped bundle refreshes recommendations, test results, and
// the active prescription set.
func importReportTx(
	tx *sql.Tx, patientID, doctorID string, rep gjson.Result,
) error {
	reportID := idOrNew(rep.Get("id"))
	r := db.LabReport{
		ID:         reportID,
		PatientID:  patientID,
		DoctorID:   doctorID,
		ReportDate: rep.Get("report_date").String(),
		Notes:      rep.Get("notes").String(),
	}
	if r.ReportDate == "" {
		return fmt.Errorf("report %s: missing report_date", reportID)
	}
	if sid := rep.Get("situation_id"); sid.Exists() && sid.String() != "" {
		s := sid.String()
		r.SituationID = &s
	}
	if err := db.InsertReportTx(tx, r); err != nil && !isConstraint(err) {
		return err
	}

	var firstErr error
	rep.Get("recommendations").ForEach(func(_, rec gjson.Result) bool {
		err := db.UpsertRecommendationTx(tx, db.Recommendation{
			LabReportID:      reportID,
			QuestionID:       rec.Get("question_id").String(),
			SelectedOptionID: rec.Get("selected_option_id").String(),
			AssignedBy:       rec.Get("assigned_by").String(),
		})
		if err != nil {
			firstErr = err
			return false
		}
		return true
	})
	if firstErr != nil {
		return firstErr
	}

	rep.Get("test_results").ForEach(func(_, tr gjson.Result) bool {
		result := db.TestResult{
			ID:       idOrNew(tr.Get("id")),
			Value:    tr.Get("value").Float(),
			TestDate: tr.Get("test_date").String(),
		}
		if tid := tr.Get("test_type_id"); tid.Exists() && tid.String() != "" {
			s := tid.String()
			result.TestTypeID = &s
		}
		err := db.InsertTestResultTx(tx, reportID, result)
		if err != nil && !isConstraint(err) {
			firstErr = err
			return false
		}
		return true
	})
	if firstErr != nil {
		return firstErr
	}

	var prescriptions []db.NewPrescription
	rep.Get("prescriptions").ForEach(func(_, p gjson.Result) bool {
		prescriptions = append(prescriptions, db.NewPrescription{
			MedicationTypeID: p.Get("medication_type_id").String(),
			Dosage:           p.Get("dosage").Float(),
		})
		return true
	})
	if len(prescriptions) > 0 {
		if _, err := db.ReplacePrescriptionsTx(
			tx, reportID, prescriptions,
		); err != nil {
			return fmt.Errorf("report %s: %w", reportID, err)
		}
	}
	return nil
}

// idOrNew returns the bundle-supplied id, or a fresh uuid when the
// field is absent.
func idOrNew(r gjson.Result) string {
	if r.Exists() && r.String() != "" {
		return r.String()
	}
	return uuid.NewString()
}

func doctorBool(r gjson.Result) bool {
	if !r.Exists() {
		return true
	}
	return r.Bool()
}

// isConstraint reports whether err is a uniqueness violation, which
// on re-import means the row is already present. Foreign-key and
// check violations are real errors and fail the bundle.
func isConstraint(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) || se.Code != sqlite3.ErrConstraint {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		se.ExtendedCode == sqlite3.ErrConstraintUnique
}
