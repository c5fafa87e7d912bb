package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/renalview/renalview/internal/db"
)

func (s *Server) handleUpsertRecommendation(
	w http.ResponseWriter, r *http.Request, id Identity,
) {
	if !id.CanWrite() {
		writeError(w, http.StatusForbidden,
			"caller may not assign recommendations")
		return
	}
	report, ok := s.authorizeReport(w, r, id)
	if !ok {
		return
	}

	var body struct {
		QuestionID       string `json:"question_id"`
		SelectedOptionID string `json:"selected_option_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest,
			"invalid request body: "+err.Error())
		return
	}
	if body.QuestionID == "" {
		writeError(w, http.StatusBadRequest, "question_id is required")
		return
	}
	if body.SelectedOptionID == "" {
		writeError(w, http.StatusBadRequest,
			"selected_option_id is required")
		return
	}

	rec := db.Recommendation{
		LabReportID:      report.ID,
		QuestionID:       body.QuestionID,
		SelectedOptionID: body.SelectedOptionID,
		AssignedBy:       id.ID,
	}
	if err := s.db.UpsertRecommendation(rec); err != nil {
		log.Printf("upserting recommendation: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
