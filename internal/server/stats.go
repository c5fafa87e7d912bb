package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/renalview/renalview/internal/db"
	"github.com/renalview/renalview/internal/stats"
)

// dashboardSnapshot holds the four collections the dashboard
// aggregates over. The fetches are mutually independent, so they run
// concurrently and join before aggregation.
type dashboardSnapshot struct {
	doctors       []db.Doctor
	patients      []db.Patient
	reports       []db.LabReport
	prescriptions []db.Prescription
}

// fetchSnapshot loads the dashboard collections scoped to doctorID
// ("" means all). Any fetch failure is terminal: these are root
// collections, not secondary enrichment.
func (s *Server) fetchSnapshot(
	ctx context.Context, doctorID string,
) (dashboardSnapshot, error) {
	var (
		wg   sync.WaitGroup
		snap dashboardSnapshot
		errs [4]error
	)
	wg.Add(4)
	go func() {
		defer wg.Done()
		snap.doctors, errs[0] = s.fetchDoctors(ctx, doctorID)
	}()
	go func() {
		defer wg.Done()
		snap.patients, errs[1] = s.db.ListPatients(ctx, doctorID)
	}()
	go func() {
		defer wg.Done()
		snap.reports, errs[2] = s.db.ListReports(
			ctx, db.ReportFilter{DoctorID: doctorID})
	}()
	go func() {
		defer wg.Done()
		snap.prescriptions, errs[3] = s.db.ListPrescriptions(ctx, doctorID)
	}()
	wg.Wait()

	return snap, errors.Join(errs[:]...)
}

// fetchDoctors returns the full roster, or just the caller's own row
// for doctor-scoped requests. A scoped caller unknown to the roster
// gets an empty list, not an error; the rest of their dashboard is
// empty too.
func (s *Server) fetchDoctors(
	ctx context.Context, doctorID string,
) ([]db.Doctor, error) {
	if doctorID == "" {
		return s.db.ListDoctors(ctx)
	}
	doc, err := s.db.GetDoctor(ctx, doctorID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []db.Doctor{doc}, nil
}

func (s *Server) handleDashboard(
	w http.ResponseWriter, r *http.Request, id Identity,
) {
	snap, err := s.fetchSnapshot(r.Context(), scopeDoctor(id))
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		log.Printf("dashboard error: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}

	writeJSON(w, http.StatusOK, stats.BuildDashboard(stats.DashboardInput{
		Doctors:       snap.doctors,
		Patients:      snap.patients,
		Reports:       snap.reports,
		Prescriptions: snap.prescriptions,
		Now:           s.now(),
	}))
}

func (s *Server) handleDoctorBreakdown(
	w http.ResponseWriter, r *http.Request, id Identity,
) {
	if !id.IsAdmin() {
		writeError(w, http.StatusForbidden,
			"doctor breakdown requires the admin role")
		return
	}

	snap, err := s.fetchSnapshot(r.Context(), "")
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		log.Printf("doctor breakdown error: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"doctors": stats.BuildDoctorBreakdown(
			snap.doctors, snap.patients, snap.reports, s.now(),
		),
	})
}
