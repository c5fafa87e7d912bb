// Package visit reconstructs a patient's chronological visit history.
// Each lab report fans out across three relation chains (situation,
// recommendations, test results); the assembler resolves every chain
// with batched id-set fetches and merges the results into one ordered
// visit record per report.
package visit

import (
	"context"

	"github.com/renalview/renalview/internal/db"
)

// Source is the read capability the assembler consumes. *db.DB
// satisfies it; tests substitute stubs.
type Source interface {
	SituationsByIDs(ctx context.Context, ids []string) ([]db.Situation, error)
	RecommendationsForReports(ctx context.Context, reportIDs []string) ([]db.Recommendation, error)
	QuestionsByIDs(ctx context.Context, ids []string) (map[string]string, error)
	OptionsByIDs(ctx context.Context, ids []string) (map[string]string, error)
	TestLinksForReports(ctx context.Context, reportIDs []string) ([]db.TestLink, error)
	TestResultsByIDs(ctx context.Context, ids []string) ([]db.TestResult, error)
	TestTypesByIDs(ctx context.Context, ids []string) ([]db.TestType, error)
}

// Visit is the assembled, enriched representation of one lab report.
// Optional sub-resolutions that could not be completed are absent,
// never an error.
type Visit struct {
	ReportID        string           `json:"report_id"`
	ReportDate      string           `json:"report_date"`
	DoctorID        string           `json:"doctor_id"`
	Notes           string           `json:"notes,omitempty"`
	Situation       *db.Situation    `json:"situation,omitempty"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	TestResults     []TestResult     `json:"test_results,omitempty"`
}

// Recommendation is an enriched (question, selected option) pair.
// Question and Option stay nil when the reference row is missing;
// the record itself is always emitted.
type Recommendation struct {
	QuestionID       string  `json:"question_id"`
	Question         *string `json:"question,omitempty"`
	SelectedOptionID string  `json:"selected_option_id"`
	Option           *string `json:"option,omitempty"`
	AssignedBy       string  `json:"assigned_by,omitempty"`
}

// TestResult is an enriched measured value. Type is nil when the
// test type could not be resolved.
type TestResult struct {
	ID       string       `json:"id"`
	Value    float64      `json:"value"`
	TestDate string       `json:"test_date,omitempty"`
	Type     *db.TestType `json:"type,omitempty"`
}

// History is the visit-history response for one patient.
type History struct {
	Patient db.Patient `json:"patient"`
	Visits  []Visit    `json:"visits"`
}

// indexByID builds an id -> row lookup map. Later duplicates win,
// which is harmless for primary-keyed rows.
func indexByID[T any](rows []T, id func(T) string) map[string]T {
	m := make(map[string]T, len(rows))
	for _, r := range rows {
		m[id(r)] = r
	}
	return m
}

// lookup normalizes a to-one relation: the id's row as a pointer, or
// nil when the id is nil/empty or the row was not fetched. All
// to-one resolution goes through here so "bare object vs singleton
// collection" store shapes collapse to one rule.
func lookup[T any](m map[string]T, id *string) *T {
	if id == nil || *id == "" {
		return nil
	}
	row, ok := m[*id]
	if !ok {
		return nil
	}
	return &row
}
