package stats

import (
	"time"

	"github.com/renalview/renalview/internal/db"
	"github.com/renalview/renalview/internal/timeutil"
)

// DoctorBreakdown is one per-doctor entry of the dashboard.
type DoctorBreakdown struct {
	DoctorID      string `json:"doctor_id"`
	Name          string `json:"name"`
	Active        bool   `json:"active"`
	PatientCount  int    `json:"patient_count"`
	ReportCount   int    `json:"report_count"`
	RecentReports int    `json:"recent_reports"`
}

// BuildDoctorBreakdown cross-references patients and reports against
// the doctor list by doctor_id. Every doctor gets an entry, including
// those with zero owned rows; dropping idle doctors would make the
// breakdown lie about the roster.
func BuildDoctorBreakdown(
	doctors []db.Doctor,
	patients []db.Patient,
	reports []db.LabReport,
	now time.Time,
) []DoctorBreakdown {
	if len(doctors) == 0 {
		return nil
	}

	patientCounts := make(map[string]int)
	for _, p := range patients {
		patientCounts[p.DoctorID]++
	}

	reportCounts := make(map[string]int)
	recentCounts := make(map[string]int)
	recent := withinWindow(
		func(r db.LabReport) string { return r.ReportDate },
		timeutil.MonthWindow, now,
	)
	for _, r := range reports {
		reportCounts[r.DoctorID]++
		if recent(r) {
			recentCounts[r.DoctorID]++
		}
	}

	out := make([]DoctorBreakdown, 0, len(doctors))
	for _, d := range doctors {
		out = append(out, DoctorBreakdown{
			DoctorID:      d.ID,
			Name:          d.Name,
			Active:        d.Active,
			PatientCount:  patientCounts[d.ID],
			ReportCount:   reportCounts[d.ID],
			RecentReports: recentCounts[d.ID],
		})
	}
	return out
}
