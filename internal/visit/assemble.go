package visit

import (
	"context"
	"log"
	"sync"

	"github.com/renalview/renalview/internal/db"
)

// Assembler builds visit histories from a Source.
type Assembler struct {
	src Source
}

// NewAssembler creates an Assembler over the given source.
func NewAssembler(src Source) *Assembler {
	return &Assembler{src: src}
}

// Assemble enriches a batch of root reports into visits, most recent
// report date first. The three relation chains are independent and
// fetch concurrently; the merge below the WaitGroup is the barrier.
// A failed chain degrades to an absent field for every report rather
// than failing the batch: reference data is secondary to the visit's
// existence.
func (a *Assembler) Assemble(
	ctx context.Context, reports []db.LabReport,
) []Visit {
	if len(reports) == 0 {
		return nil
	}

	reportIDs := make([]string, len(reports))
	var situationIDs []string
	for i, r := range reports {
		reportIDs[i] = r.ID
		if r.SituationID != nil {
			situationIDs = append(situationIDs, *r.SituationID)
		}
	}

	var (
		wg         sync.WaitGroup
		situations map[string]db.Situation
		recs       map[string][]Recommendation
		results    map[string][]TestResult
	)
	wg.Add(3)
	go func() {
		defer wg.Done()
		situations = a.fetchSituations(ctx, situationIDs)
	}()
	go func() {
		defer wg.Done()
		recs = a.fetchRecommendations(ctx, reportIDs)
	}()
	go func() {
		defer wg.Done()
		results = a.fetchTestResults(ctx, reportIDs)
	}()
	wg.Wait()

	visits := make([]Visit, 0, len(reports))
	for _, r := range reports {
		v := Visit{
			ReportID:        r.ID,
			ReportDate:      r.ReportDate,
			DoctorID:        r.DoctorID,
			Notes:           r.Notes,
			Situation:       lookup(situations, r.SituationID),
			Recommendations: recs[r.ID],
			TestResults:     results[r.ID],
		}
		sortResults(v.TestResults)
		visits = append(visits, v)
	}
	sortVisits(visits)
	return visits
}

// fetchSituations resolves the single-hop, nullable report→situation
// relation into an id lookup map.
func (a *Assembler) fetchSituations(
	ctx context.Context, ids []string,
) map[string]db.Situation {
	if len(ids) == 0 {
		return nil
	}
	rows, err := a.src.SituationsByIDs(ctx, ids)
	if err != nil {
		log.Printf("visit: resolving situations: %v", err)
		return nil
	}
	return indexByID(rows, func(s db.Situation) string { return s.ID })
}

// fetchRecommendations resolves report→recommendation, then fans the
// question and option lookups out concurrently: the two are siblings
// over the same batch, not sequential hops.
func (a *Assembler) fetchRecommendations(
	ctx context.Context, reportIDs []string,
) map[string][]Recommendation {
	rows, err := a.src.RecommendationsForReports(ctx, reportIDs)
	if err != nil {
		log.Printf("visit: resolving recommendations: %v", err)
		return nil
	}
	if len(rows) == 0 {
		return nil
	}

	questionIDs := make([]string, len(rows))
	optionIDs := make([]string, len(rows))
	for i, r := range rows {
		questionIDs[i] = r.QuestionID
		optionIDs[i] = r.SelectedOptionID
	}

	var (
		wg        sync.WaitGroup
		questions map[string]string
		options   map[string]string
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		var err error
		questions, err = a.src.QuestionsByIDs(ctx, questionIDs)
		if err != nil {
			log.Printf("visit: resolving questions: %v", err)
			questions = nil
		}
	}()
	go func() {
		defer wg.Done()
		var err error
		options, err = a.src.OptionsByIDs(ctx, optionIDs)
		if err != nil {
			log.Printf("visit: resolving options: %v", err)
			options = nil
		}
	}()
	wg.Wait()

	out := make(map[string][]Recommendation)
	for _, r := range rows {
		// A broken question or option reference leaves that field
		// absent; the recommendation itself is never dropped.
		rec := Recommendation{
			QuestionID:       r.QuestionID,
			Question:         lookup(questions, &r.QuestionID),
			SelectedOptionID: r.SelectedOptionID,
			Option:           lookup(options, &r.SelectedOptionID),
			AssignedBy:       r.AssignedBy,
		}
		out[r.LabReportID] = append(out[r.LabReportID], rec)
	}
	return out
}

// fetchTestResults walks the three-hop bridge chain: report→link→
// result→type. Each hop feeds the next, so the hops are strictly
// sequential; a failure at any hop degrades from that hop onward.
func (a *Assembler) fetchTestResults(
	ctx context.Context, reportIDs []string,
) map[string][]TestResult {
	links, err := a.src.TestLinksForReports(ctx, reportIDs)
	if err != nil {
		log.Printf("visit: resolving test links: %v", err)
		return nil
	}
	if len(links) == 0 {
		return nil
	}

	resultIDs := make([]string, len(links))
	for i, l := range links {
		resultIDs[i] = l.TestResultID
	}
	rows, err := a.src.TestResultsByIDs(ctx, resultIDs)
	if err != nil {
		log.Printf("visit: resolving test results: %v", err)
		return nil
	}

	var typeIDs []string
	for _, r := range rows {
		if r.TestTypeID != nil {
			typeIDs = append(typeIDs, *r.TestTypeID)
		}
	}
	var types map[string]db.TestType
	if len(typeIDs) > 0 {
		typeRows, err := a.src.TestTypesByIDs(ctx, typeIDs)
		if err != nil {
			// Type enrichment is the last hop; results still come
			// back, just untyped.
			log.Printf("visit: resolving test types: %v", err)
		} else {
			types = indexByID(typeRows,
				func(t db.TestType) string { return t.ID })
		}
	}

	byID := indexByID(rows, func(r db.TestResult) string { return r.ID })
	out := make(map[string][]TestResult)
	for _, l := range links {
		r, ok := byID[l.TestResultID]
		if !ok {
			continue // dangling bridge row
		}
		out[l.LabReportID] = append(out[l.LabReportID], TestResult{
			ID:       r.ID,
			Value:    r.Value,
			TestDate: r.TestDate,
			Type:     lookup(types, r.TestTypeID),
		})
	}
	return out
}
