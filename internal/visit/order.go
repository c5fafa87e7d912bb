package visit

import "sort"

// resultPriority is the clinical display order for test-type codes.
// Codes on this list sort by position; anything else sorts after the
// whole list, alphabetically by code. This is a presentation
// contract, reapplied on every assembly regardless of store order.
var resultPriority = []string{
	"PTH",
	"Ca",
	"Albumin",
	"CorrectedCa",
	"Phos",
	"Echo",
	"Radiograph",
}

var priorityRank = func() map[string]int {
	m := make(map[string]int, len(resultPriority))
	for i, code := range resultPriority {
		m[code] = i
	}
	return m
}()

// resultCode returns the sortable code of a test result, or "" when
// the type is unresolved. Untyped results sort with the unlisted
// codes.
func resultCode(r TestResult) string {
	if r.Type == nil {
		return ""
	}
	return r.Type.Code
}

// sortResults orders test results by the two-tier policy: listed
// codes by priority position, unlisted codes after all listed ones
// in alphabetical order. Ties break on test date then id so the
// order is stable across fetches.
func sortResults(rs []TestResult) {
	sort.SliceStable(rs, func(i, j int) bool {
		ci, cj := resultCode(rs[i]), resultCode(rs[j])
		ri, iOK := priorityRank[ci]
		rj, jOK := priorityRank[cj]
		switch {
		case iOK && jOK:
			if ri != rj {
				return ri < rj
			}
		case iOK:
			return true
		case jOK:
			return false
		default:
			if ci != cj {
				return ci < cj
			}
		}
		if rs[i].TestDate != rs[j].TestDate {
			return rs[i].TestDate < rs[j].TestDate
		}
		return rs[i].ID < rs[j].ID
	})
}

// sortVisits orders visits newest report date first, breaking ties on
// report id. Applied after assembly even though the store already
// orders its fetch; the history order is a contract of this package,
// not of the store.
func sortVisits(vs []Visit) {
	sort.SliceStable(vs, func(i, j int) bool {
		if vs[i].ReportDate != vs[j].ReportDate {
			return vs[i].ReportDate > vs[j].ReportDate
		}
		return vs[i].ReportID < vs[j].ReportID
	})
}
