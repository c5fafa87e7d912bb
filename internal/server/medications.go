package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/renalview/renalview/internal/db"
	"github.com/renalview/renalview/internal/timeutil"
)

// authorizeReport resolves the {id} path value to a report the
// caller may touch. On failure it writes the response and returns
// false.
func (s *Server) authorizeReport(
	w http.ResponseWriter, r *http.Request, id Identity,
) (db.LabReport, bool) {
	reportID := r.PathValue("id")
	if reportID == "" {
		writeError(w, http.StatusBadRequest, "report id is required")
		return db.LabReport{}, false
	}

	report, err := s.db.GetReport(r.Context(), reportID)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "report not found")
		return db.LabReport{}, false
	}
	if err != nil {
		if !handleContextError(w, err) {
			log.Printf("fetching report %s: %v", reportID, err)
			writeError(w, http.StatusInternalServerError,
				"internal server error")
		}
		return db.LabReport{}, false
	}

	if !id.IsAdmin() && report.DoctorID != id.ID {
		writeError(w, http.StatusForbidden,
			"report belongs to a different doctor")
		return db.LabReport{}, false
	}
	return report, true
}

func (s *Server) handleListMedications(
	w http.ResponseWriter, r *http.Request, id Identity,
) {
	report, ok := s.authorizeReport(w, r, id)
	if !ok {
		return
	}

	view := db.PrescriptionView(r.URL.Query().Get("view"))
	if view == "" {
		view = db.ViewActive
	}
	switch view {
	case db.ViewActive, db.ViewOutdated, db.ViewAll:
	default:
		writeError(w, http.StatusBadRequest,
			"view must be active, outdated, or all")
		return
	}

	rows, err := s.db.PrescriptionsForReport(r.Context(), report.ID, view)
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		log.Printf("listing medications: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}

	// Name enrichment is secondary; a failed lookup degrades to
	// bare type ids rather than failing the listing.
	typeIDs := make([]string, len(rows))
	for i, p := range rows {
		typeIDs[i] = p.MedicationTypeID
	}
	types := make(map[string]db.MedicationType)
	typeRows, err := s.db.MedicationTypesByIDs(r.Context(), typeIDs)
	if err != nil {
		log.Printf("resolving medication types: %v", err)
	} else {
		for _, t := range typeRows {
			types[t.ID] = t
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"report_id":        report.ID,
		"view":             view,
		"medication_types": types,
		"prescriptions":    rows,
	})
}

func (s *Server) handleReplacePrescriptions(
	w http.ResponseWriter, r *http.Request, id Identity,
) {
	if !id.CanWrite() {
		writeError(w, http.StatusForbidden,
			"caller may not modify prescriptions")
		return
	}
	report, ok := s.authorizeReport(w, r, id)
	if !ok {
		return
	}

	var body struct {
		Prescriptions []db.NewPrescription `json:"prescriptions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest,
			"invalid request body: "+err.Error())
		return
	}

	inserted, err := s.db.ReplacePrescriptions(
		report.ID, body.Prescriptions)
	if errors.Is(err, db.ErrNonPositiveDosage) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Printf("replacing prescriptions: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"report_id":     report.ID,
		"prescriptions": inserted,
	})
}

func (s *Server) handleOutdatePrescription(
	w http.ResponseWriter, r *http.Request, id Identity,
) {
	if !id.CanWrite() {
		writeError(w, http.StatusForbidden,
			"caller may not modify prescriptions")
		return
	}
	if _, ok := s.authorizeReport(w, r, id); !ok {
		return
	}
	prescriptionID := r.PathValue("pid")
	if prescriptionID == "" {
		writeError(w, http.StatusBadRequest,
			"prescription id is required")
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest,
			"invalid request body: "+err.Error())
		return
	}
	if body.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason is required")
		return
	}

	err := s.db.OutdatePrescription(
		prescriptionID, body.Reason, id.ID, timeutil.Format(s.now()))
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, "prescription not found")
	case errors.Is(err, db.ErrAlreadyOutdated):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		log.Printf("outdating prescription: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
	default:
		writeJSON(w, http.StatusOK, map[string]string{
			"prescription_id": prescriptionID,
			"status":          "outdated",
		})
	}
}
