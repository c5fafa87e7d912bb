// Package stats computes windowed operational statistics over
// already-fetched row collections. Everything here is a pure
// in-memory transform; the package never touches the store.
package stats

import (
	"time"

	"github.com/renalview/renalview/internal/db"
	"github.com/renalview/renalview/internal/timeutil"
)

// CountWhere returns the number of rows matching pred.
func CountWhere[T any](rows []T, pred func(T) bool) int {
	n := 0
	for _, r := range rows {
		if pred(r) {
			n++
		}
	}
	return n
}

// DistinctKeys returns the set of distinct keys referenced by rows,
// optionally pre-filtered by pred (nil means all rows). A parent
// referenced by many qualifying rows appears once; callers use the
// set size as an "active parent" count, so set semantics, not a
// running counter, are the whole point.
func DistinctKeys[T any, K comparable](
	rows []T, key func(T) K, pred func(T) bool,
) map[K]struct{} {
	out := make(map[K]struct{})
	for _, r := range rows {
		if pred != nil && !pred(r) {
			continue
		}
		out[key(r)] = struct{}{}
	}
	return out
}

// FollowupGap returns the number of parents with at least one
// historical row but none within the recent window:
// len(all) - len(recent). Callers must build recent as a
// window-filtered subset of the same source collection as all;
// the subset relationship is what keeps the gap non-negative.
func FollowupGap[K comparable](all, recent map[K]struct{}) int {
	return len(all) - len(recent)
}

// withinWindow returns a predicate classifying a row timestamp
// against the trailing window ending at now.
func withinWindow[T any](
	ts func(T) string, days int, now time.Time,
) func(T) bool {
	return func(r T) bool {
		t, ok := timeutil.Parse(ts(r))
		if !ok {
			return false
		}
		return timeutil.WithinWindow(t, days, now)
	}
}

// DashboardInput is the snapshot of fetched collections the
// dashboard aggregates over. The caller scopes the collections
// (all rows for admins, one doctor's rows otherwise) before calling.
type DashboardInput struct {
	Doctors       []db.Doctor
	Patients      []db.Patient
	Reports       []db.LabReport
	Prescriptions []db.Prescription
	Now           time.Time
}

// Dashboard is the flat statistics response.
type Dashboard struct {
	TotalDoctors     int `json:"total_doctors"`
	TotalPatients    int `json:"total_patients"`
	TotalReports     int `json:"total_reports"`
	ReportsThisWeek  int `json:"reports_this_week"`
	ReportsThisMonth int `json:"reports_this_month"`

	// ActiveDoctors counts doctors with report activity in the last
	// 30 days. FlagActiveDoctors counts the active column instead.
	// The two notions are intentionally kept apart; collapsing them
	// hides doctors who are flagged active but have stopped filing
	// reports.
	ActiveDoctors     int `json:"active_doctors"`
	FlagActiveDoctors int `json:"flag_active_doctors"`
	InactiveDoctors   int `json:"inactive_doctors"`

	ActivePatients int `json:"active_patients"`
	FollowupGap    int `json:"followup_gap"`

	ActivePrescriptions   int `json:"active_prescriptions"`
	OutdatedPrescriptions int `json:"outdated_prescriptions"`

	Doctors []DoctorBreakdown `json:"doctors,omitempty"`
}

// BuildDashboard aggregates the snapshot into a Dashboard.
func BuildDashboard(in DashboardInput) Dashboard {
	reportDate := func(r db.LabReport) string { return r.ReportDate }
	reportDoctor := func(r db.LabReport) string { return r.DoctorID }
	reportPatient := func(r db.LabReport) string { return r.PatientID }

	weekly := withinWindow(reportDate, timeutil.WeekWindow, in.Now)
	monthly := withinWindow(reportDate, timeutil.MonthWindow, in.Now)
	followup := withinWindow(reportDate, timeutil.FollowupWindow, in.Now)

	// Recent sets are filtered views of the same report collection
	// as the all-time sets, so recent is a subset of all and the
	// follow-up gap cannot go negative.
	allPatients := DistinctKeys(in.Reports, reportPatient, nil)
	recentPatients := DistinctKeys(in.Reports, reportPatient, followup)

	d := Dashboard{
		TotalDoctors:     len(in.Doctors),
		TotalPatients:    len(in.Patients),
		TotalReports:     len(in.Reports),
		ReportsThisWeek:  CountWhere(in.Reports, weekly),
		ReportsThisMonth: CountWhere(in.Reports, monthly),

		ActiveDoctors: len(DistinctKeys(in.Reports, reportDoctor, monthly)),
		FlagActiveDoctors: CountWhere(in.Doctors,
			func(d db.Doctor) bool { return d.Active }),
		InactiveDoctors: CountWhere(in.Doctors,
			func(d db.Doctor) bool { return !d.Active }),

		ActivePatients: len(DistinctKeys(in.Reports, reportPatient, monthly)),
		FollowupGap:    FollowupGap(allPatients, recentPatients),

		ActivePrescriptions: CountWhere(in.Prescriptions,
			func(p db.Prescription) bool { return !p.IsOutdated }),
		OutdatedPrescriptions: CountWhere(in.Prescriptions,
			func(p db.Prescription) bool { return p.IsOutdated }),
	}
	d.Doctors = BuildDoctorBreakdown(
		in.Doctors, in.Patients, in.Reports, in.Now,
	)
	return d
}
