package visit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renalview/renalview/internal/db"
)

// stubSource serves canned rows, honoring the requested id sets the
// way the real store does. Individual fetches can be failed to
// exercise degradation.
type stubSource struct {
	situations []db.Situation
	recs       []db.Recommendation
	questions  map[string]string
	options    map[string]string
	links      []db.TestLink
	results    []db.TestResult
	types      []db.TestType

	failSituations bool
	failRecs       bool
	failQuestions  bool
	failOptions    bool
	failLinks      bool
	failResults    bool
	failTypes      bool
}

var errStub = errors.New("store unavailable")

func idSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func (s *stubSource) SituationsByIDs(
	_ context.Context, ids []string,
) ([]db.Situation, error) {
	if s.failSituations {
		return nil, errStub
	}
	want := idSet(ids)
	var out []db.Situation
	for _, row := range s.situations {
		if want[row.ID] {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *stubSource) RecommendationsForReports(
	_ context.Context, reportIDs []string,
) ([]db.Recommendation, error) {
	if s.failRecs {
		return nil, errStub
	}
	want := idSet(reportIDs)
	var out []db.Recommendation
	for _, row := range s.recs {
		if want[row.LabReportID] {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *stubSource) QuestionsByIDs(
	_ context.Context, ids []string,
) (map[string]string, error) {
	if s.failQuestions {
		return nil, errStub
	}
	return filterRef(s.questions, ids), nil
}

func (s *stubSource) OptionsByIDs(
	_ context.Context, ids []string,
) (map[string]string, error) {
	if s.failOptions {
		return nil, errStub
	}
	return filterRef(s.options, ids), nil
}

func filterRef(all map[string]string, ids []string) map[string]string {
	out := make(map[string]string)
	for _, id := range ids {
		if text, ok := all[id]; ok {
			out[id] = text
		}
	}
	return out
}

func (s *stubSource) TestLinksForReports(
	_ context.Context, reportIDs []string,
) ([]db.TestLink, error) {
	if s.failLinks {
		return nil, errStub
	}
	want := idSet(reportIDs)
	var out []db.TestLink
	for _, row := range s.links {
		if want[row.LabReportID] {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *stubSource) TestResultsByIDs(
	_ context.Context, ids []string,
) ([]db.TestResult, error) {
	if s.failResults {
		return nil, errStub
	}
	want := idSet(ids)
	var out []db.TestResult
	for _, row := range s.results {
		if want[row.ID] {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *stubSource) TestTypesByIDs(
	_ context.Context, ids []string,
) ([]db.TestType, error) {
	if s.failTypes {
		return nil, errStub
	}
	want := idSet(ids)
	var out []db.TestType
	for _, row := range s.types {
		if want[row.ID] {
			out = append(out, row)
		}
	}
	return out, nil
}

func strPtr(s string) *string { return &s }

func report(id, date string) db.LabReport {
	return db.LabReport{
		ID: id, PatientID: "p1", DoctorID: "doc1", ReportDate: date,
	}
}

// typed builds a TestResult whose type carries the given code.
func typed(id, code string) TestResult {
	if code == "" {
		return TestResult{ID: id}
	}
	return TestResult{
		ID:   id,
		Type: &db.TestType{ID: "t-" + id, Code: code},
	}
}

func codes(rs []TestResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = resultCode(r)
	}
	return out
}

func TestSortResultsPriorityOrder(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "listed codes sort by priority position",
			in:   []string{"Phos", "Ca", "Albumin"},
			want: []string{"Ca", "Albumin", "Phos"},
		},
		{
			name: "unlisted code sorts after all listed",
			in:   []string{"PTH", "ZZZ", "Ca"},
			want: []string{"PTH", "Ca", "ZZZ"},
		},
		{
			name: "unlisted codes alphabetical among themselves",
			in:   []string{"ZZZ", "AAA", "Echo"},
			want: []string{"Echo", "AAA", "ZZZ"},
		},
		{
			name: "untyped results sort with unlisted",
			in:   []string{"", "Ca"},
			want: []string{"Ca", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := make([]TestResult, len(tt.in))
			for i, code := range tt.in {
				rs[i] = typed(string(rune('a'+i)), code)
			}
			sortResults(rs)
			assert.Equal(t, tt.want, codes(rs))
		})
	}
}

func TestSortResultsIdempotent(t *testing.T) {
	rs := []TestResult{
		typed("a", "Phos"), typed("b", "ZZZ"), typed("c", "Ca"),
		typed("d", "Ca"), typed("e", ""),
	}
	sortResults(rs)
	once := append([]TestResult(nil), rs...)
	sortResults(rs)
	if diff := cmp.Diff(once, rs); diff != "" {
		t.Errorf("second sort changed order (-first +second):\n%s", diff)
	}
}

func TestAssembleVisitOrdering(t *testing.T) {
	src := &stubSource{}
	a := NewAssembler(src)

	visits := a.Assemble(context.Background(), []db.LabReport{
		report("jan", "2024-01-01T00:00:00Z"),
		report("mar", "2024-03-01T00:00:00Z"),
		report("feb", "2024-02-01T00:00:00Z"),
	})

	require.Len(t, visits, 3)
	got := []string{visits[0].ReportID, visits[1].ReportID, visits[2].ReportID}
	assert.Equal(t, []string{"mar", "feb", "jan"}, got)
}

func TestAssembleEnrichment(t *testing.T) {
	src := &stubSource{
		situations: []db.Situation{
			{ID: "s1", Code: "dialysis", Description: "on dialysis"},
		},
		recs: []db.Recommendation{
			{LabReportID: "r1", QuestionID: "q1",
				SelectedOptionID: "o1", AssignedBy: "doc1"},
		},
		questions: map[string]string{"q1": "Adjust binder?"},
		options:   map[string]string{"o1": "Increase dose"},
		links: []db.TestLink{
			{LabReportID: "r1", TestResultID: "tr1"},
			{LabReportID: "r1", TestResultID: "tr2"},
		},
		results: []db.TestResult{
			{ID: "tr1", Value: 9.1, TestTypeID: strPtr("tt-ca")},
			{ID: "tr2", Value: 412, TestTypeID: strPtr("tt-pth")},
		},
		types: []db.TestType{
			{ID: "tt-ca", Code: "Ca", Unit: "mg/dL"},
			{ID: "tt-pth", Code: "PTH", Unit: "pg/mL"},
		},
	}
	a := NewAssembler(src)

	r := report("r1", "2024-03-01T00:00:00Z")
	r.SituationID = strPtr("s1")
	visits := a.Assemble(context.Background(), []db.LabReport{r})
	require.Len(t, visits, 1)
	v := visits[0]

	require.NotNil(t, v.Situation)
	assert.Equal(t, "dialysis", v.Situation.Code)

	require.Len(t, v.Recommendations, 1)
	rec := v.Recommendations[0]
	require.NotNil(t, rec.Question)
	require.NotNil(t, rec.Option)
	assert.Equal(t, "Adjust binder?", *rec.Question)
	assert.Equal(t, "Increase dose", *rec.Option)

	// PTH outranks Ca in the display order.
	require.Len(t, v.TestResults, 2)
	assert.Equal(t, []string{"PTH", "Ca"}, codes(v.TestResults))
}

func TestAssembleMissingQuestionKeepsRecommendation(t *testing.T) {
	src := &stubSource{
		recs: []db.Recommendation{
			{LabReportID: "r1", QuestionID: "ghost",
				SelectedOptionID: "o1"},
		},
		options: map[string]string{"o1": "Yes"},
	}
	a := NewAssembler(src)

	visits := a.Assemble(context.Background(), []db.LabReport{
		report("r1", "2024-01-01T00:00:00Z"),
	})
	require.Len(t, visits, 1)
	require.Len(t, visits[0].Recommendations, 1,
		"unresolved question must not drop the recommendation")

	rec := visits[0].Recommendations[0]
	assert.Nil(t, rec.Question)
	require.NotNil(t, rec.Option)
	assert.Equal(t, "Yes", *rec.Option)
}

func TestAssembleDegradation(t *testing.T) {
	base := func() *stubSource {
		return &stubSource{
			situations: []db.Situation{{ID: "s1", Code: "dialysis"}},
			recs: []db.Recommendation{
				{LabReportID: "r1", QuestionID: "q1", SelectedOptionID: "o1"},
			},
			questions: map[string]string{"q1": "Q"},
			options:   map[string]string{"o1": "O"},
			links:     []db.TestLink{{LabReportID: "r1", TestResultID: "tr1"}},
			results: []db.TestResult{
				{ID: "tr1", Value: 1, TestTypeID: strPtr("tt1")},
			},
			types: []db.TestType{{ID: "tt1", Code: "Ca"}},
		}
	}
	rootReport := func() db.LabReport {
		r := report("r1", "2024-01-01T00:00:00Z")
		r.SituationID = strPtr("s1")
		return r
	}

	t.Run("failed situation hop degrades to absent", func(t *testing.T) {
		src := base()
		src.failSituations = true
		visits := NewAssembler(src).Assemble(
			context.Background(), []db.LabReport{rootReport()})
		require.Len(t, visits, 1)
		assert.Nil(t, visits[0].Situation)
		assert.Len(t, visits[0].Recommendations, 1,
			"other chains must be unaffected")
		assert.Len(t, visits[0].TestResults, 1)
	})

	t.Run("failed recommendation hop degrades to empty", func(t *testing.T) {
		src := base()
		src.failRecs = true
		visits := NewAssembler(src).Assemble(
			context.Background(), []db.LabReport{rootReport()})
		require.Len(t, visits, 1)
		assert.Empty(t, visits[0].Recommendations)
		assert.NotNil(t, visits[0].Situation)
	})

	t.Run("failed question lookup keeps records untexted", func(t *testing.T) {
		src := base()
		src.failQuestions = true
		visits := NewAssembler(src).Assemble(
			context.Background(), []db.LabReport{rootReport()})
		require.Len(t, visits, 1)
		require.Len(t, visits[0].Recommendations, 1)
		assert.Nil(t, visits[0].Recommendations[0].Question)
		assert.NotNil(t, visits[0].Recommendations[0].Option)
	})

	t.Run("failed type hop keeps untyped results", func(t *testing.T) {
		src := base()
		src.failTypes = true
		visits := NewAssembler(src).Assemble(
			context.Background(), []db.LabReport{rootReport()})
		require.Len(t, visits, 1)
		require.Len(t, visits[0].TestResults, 1)
		assert.Nil(t, visits[0].TestResults[0].Type)
	})

	t.Run("failed link hop degrades results to empty", func(t *testing.T) {
		src := base()
		src.failLinks = true
		visits := NewAssembler(src).Assemble(
			context.Background(), []db.LabReport{rootReport()})
		require.Len(t, visits, 1)
		assert.Empty(t, visits[0].TestResults)
	})
}

func TestAssembleDanglingBridgeRow(t *testing.T) {
	src := &stubSource{
		links: []db.TestLink{
			{LabReportID: "r1", TestResultID: "tr1"},
			{LabReportID: "r1", TestResultID: "ghost"},
		},
		results: []db.TestResult{{ID: "tr1", Value: 2.1}},
	}
	visits := NewAssembler(src).Assemble(
		context.Background(), []db.LabReport{
			report("r1", "2024-01-01T00:00:00Z"),
		})
	require.Len(t, visits, 1)
	require.Len(t, visits[0].TestResults, 1,
		"dangling bridge rows resolve to absent, not an error")
	assert.Equal(t, "tr1", visits[0].TestResults[0].ID)
}

func TestAssembleEmptyBatch(t *testing.T) {
	visits := NewAssembler(&stubSource{}).Assemble(
		context.Background(), nil)
	assert.Nil(t, visits)
}

func TestLookupNormalization(t *testing.T) {
	m := map[string]db.Situation{"s1": {ID: "s1", Code: "dialysis"}}

	assert.Nil(t, lookup(m, nil), "nil id resolves to absent")
	assert.Nil(t, lookup(m, strPtr("")), "empty id resolves to absent")
	assert.Nil(t, lookup(m, strPtr("ghost")), "unfetched id resolves to absent")
	got := lookup(m, strPtr("s1"))
	require.NotNil(t, got)
	assert.Equal(t, "dialysis", got.Code)
}
