package stats

import (
	"testing"
	"time"

	"github.com/renalview/renalview/internal/db"
)

var now = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

// daysAgo returns an RFC3339 timestamp n days before now.
func daysAgo(n int) string {
	return now.AddDate(0, 0, -n).Format(time.RFC3339)
}

func report(id, patientID, doctorID, date string) db.LabReport {
	return db.LabReport{
		ID: id, PatientID: patientID, DoctorID: doctorID,
		ReportDate: date,
	}
}

func TestDistinctKeys(t *testing.T) {
	reports := []db.LabReport{
		report("r1", "p1", "docA", daysAgo(1)),
		report("r2", "p1", "docA", daysAgo(2)),
		report("r3", "p2", "docB", daysAgo(3)),
	}
	key := func(r db.LabReport) string { return r.PatientID }

	t.Run("empty collection yields empty set", func(t *testing.T) {
		got := DistinctKeys(nil, key, nil)
		if len(got) != 0 {
			t.Errorf("got %d keys, want 0", len(got))
		}
	})

	t.Run("size never exceeds collection length", func(t *testing.T) {
		got := DistinctKeys(reports, key, nil)
		if len(got) > len(reports) {
			t.Errorf("set size %d exceeds %d rows", len(got), len(reports))
		}
		if len(got) != 2 {
			t.Errorf("got %d distinct patients, want 2", len(got))
		}
	})

	t.Run("predicate filters before collecting", func(t *testing.T) {
		got := DistinctKeys(reports, key, func(r db.LabReport) bool {
			return r.ID != "r3"
		})
		if len(got) != 1 {
			t.Errorf("got %d keys, want 1", len(got))
		}
	})
}

func TestFollowupGapNonNegative(t *testing.T) {
	// recent built as a window-filtered view of the same source as
	// all, so recent ⊆ all and the gap stays >= 0.
	reports := []db.LabReport{
		report("r1", "p1", "docA", daysAgo(10)),
		report("r2", "p2", "docA", daysAgo(90)),
		report("r3", "p3", "docB", daysAgo(70)),
	}
	key := func(r db.LabReport) string { return r.PatientID }
	recentPred := withinWindow(
		func(r db.LabReport) string { return r.ReportDate }, 60, now,
	)

	all := DistinctKeys(reports, key, nil)
	recent := DistinctKeys(reports, key, recentPred)

	gap := FollowupGap(all, recent)
	if gap < 0 {
		t.Fatalf("gap = %d, must never be negative", gap)
	}
	if gap != 2 {
		t.Errorf("gap = %d, want 2 (p2 and p3 overdue)", gap)
	}
}

func TestActiveDoctorsSetSemantics(t *testing.T) {
	// Two qualifying reports for A still count A once; B's only
	// report is outside the 30-day window.
	in := DashboardInput{
		Reports: []db.LabReport{
			report("r1", "p1", "A", daysAgo(5)),
			report("r2", "p2", "A", daysAgo(10)),
			report("r3", "p3", "B", daysAgo(40)),
		},
		Now: now,
	}
	d := BuildDashboard(in)
	if d.ActiveDoctors != 1 {
		t.Errorf("ActiveDoctors = %d, want 1", d.ActiveDoctors)
	}
}

func TestBuildDashboard(t *testing.T) {
	doctors := []db.Doctor{
		{ID: "A", Name: "Dr A", Active: true},
		{ID: "B", Name: "Dr B", Active: false},
	}
	patients := []db.Patient{
		{ID: "p1", DoctorID: "A"},
		{ID: "p2", DoctorID: "A"},
		{ID: "p3", DoctorID: "B"},
	}
	reports := []db.LabReport{
		report("r1", "p1", "A", daysAgo(2)),
		report("r2", "p1", "A", daysAgo(20)),
		report("r3", "p2", "A", daysAgo(70)),
	}
	prescriptions := []db.Prescription{
		{ID: "x1", Dosage: 5},
		{ID: "x2", Dosage: 3, IsOutdated: true},
	}

	d := BuildDashboard(DashboardInput{
		Doctors: doctors, Patients: patients,
		Reports: reports, Prescriptions: prescriptions,
		Now: now,
	})

	if d.TotalDoctors != 2 || d.TotalPatients != 3 || d.TotalReports != 3 {
		t.Errorf("totals = %d/%d/%d, want 2/3/3",
			d.TotalDoctors, d.TotalPatients, d.TotalReports)
	}
	if d.ReportsThisWeek != 1 {
		t.Errorf("ReportsThisWeek = %d, want 1", d.ReportsThisWeek)
	}
	if d.ReportsThisMonth != 2 {
		t.Errorf("ReportsThisMonth = %d, want 2", d.ReportsThisMonth)
	}
	if d.ActivePatients != 1 {
		t.Errorf("ActivePatients = %d, want 1 (only p1 in 30d)", d.ActivePatients)
	}
	// p1 reported within 60d, p2's only report is 70d old.
	if d.FollowupGap != 1 {
		t.Errorf("FollowupGap = %d, want 1", d.FollowupGap)
	}
	// Report-activity and flag-based doctor metrics stay separate.
	if d.ActiveDoctors != 1 {
		t.Errorf("ActiveDoctors = %d, want 1", d.ActiveDoctors)
	}
	if d.FlagActiveDoctors != 1 || d.InactiveDoctors != 1 {
		t.Errorf("flag metrics = %d/%d, want 1/1",
			d.FlagActiveDoctors, d.InactiveDoctors)
	}
	if d.ActivePrescriptions != 1 || d.OutdatedPrescriptions != 1 {
		t.Errorf("prescription partition = %d/%d, want 1/1",
			d.ActivePrescriptions, d.OutdatedPrescriptions)
	}
}

func TestBuildDoctorBreakdown(t *testing.T) {
	doctors := []db.Doctor{
		{ID: "A", Name: "Dr A", Active: true},
		{ID: "idle", Name: "Dr Idle", Active: true},
	}
	patients := []db.Patient{{ID: "p1", DoctorID: "A"}}
	reports := []db.LabReport{
		report("r1", "p1", "A", daysAgo(3)),
		report("r2", "p1", "A", daysAgo(45)),
	}

	got := BuildDoctorBreakdown(doctors, patients, reports, now)
	if len(got) != 2 {
		t.Fatalf("got %d entries, want one per doctor", len(got))
	}

	a := got[0]
	if a.DoctorID != "A" || a.PatientCount != 1 ||
		a.ReportCount != 2 || a.RecentReports != 1 {
		t.Errorf("entry A = %+v", a)
	}

	// Zero-activity doctors must still be listed.
	idle := got[1]
	if idle.DoctorID != "idle" || idle.PatientCount != 0 ||
		idle.ReportCount != 0 || idle.RecentReports != 0 {
		t.Errorf("idle entry = %+v, want zero counts, present", idle)
	}
}
