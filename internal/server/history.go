package server

import (
	"errors"
	"log"
	"net/http"

	"github.com/renalview/renalview/internal/db"
	"github.com/renalview/renalview/internal/visit"
)

func (s *Server) handlePatientHistory(
	w http.ResponseWriter, r *http.Request, id Identity,
) {
	patientID := r.PathValue("id")
	if patientID == "" {
		writeError(w, http.StatusBadRequest, "patient id is required")
		return
	}

	patient, err := s.db.GetPatient(r.Context(), patientID)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "patient not found")
		return
	}
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		log.Printf("history: fetching patient: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}

	// Ownership is terminal for the whole request; a partial
	// history is never returned. The 403 reveals nothing beyond
	// the id the caller already supplied.
	if !id.IsAdmin() && patient.DoctorID != id.ID {
		writeError(w, http.StatusForbidden,
			"patient belongs to a different doctor")
		return
	}

	reports, err := s.db.ListReports(
		r.Context(), db.ReportFilter{PatientID: patientID})
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		log.Printf("history: fetching reports: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}

	visits := s.assembler.Assemble(r.Context(), reports)
	writeJSON(w, http.StatusOK, visit.History{
		Patient: patient,
		Visits:  visits,
	})
}
