package services

import (
	"sort"
	"time"

	"hut-availability/models"
	"hut-availability/utils"
)

const topHuts = 5

// InsightService summarises runner results
type InsightService struct {
	logger *utils.Logger
}

// NewInsightService creates a new InsightService
func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

// Generate computes the run summary from per-hut results
func (s *InsightService) Generate(runID string, started time.Time, results []HutResult) *models.RunSummary {
	summary := &models.RunSummary{
		RunID:   runID,
		Started: started,
		Runtime: time.Since(started),
	}

	if len(results) == 0 {
		s.logger.Warn("No huts to summarise")
		return summary
	}

	var ranked []models.HutAvailability
	for _, res := range results {
		if res.Skipped {
			summary.Skipped++
			continue
		}
		if res.Err != nil {
			summary.Errors++
		}
		if res.SaveErr != nil {
			summary.SaveErrors++
		}
		if res.Outcome == nil {
			continue
		}
		summary.HutsChecked++

		o := res.Outcome
		switch o.Kind {
		case models.OutcomeNotInSystem:
			summary.NotInSystem++
			continue
		case models.OutcomeSuccess:
			summary.Succeeded++
		case models.OutcomePartialFailure:
			summary.Partial++
		}
		if o.Aborted {
			summary.Aborted++
		}

		avail := models.HutAvailability{Hut: res.Hut}
		dates := make(map[time.Time]bool)
		summary.Records += len(o.Records)
		for _, r := range o.NumericRecords() {
			summary.NumericRecords++
			avail.FreePlaces += r.Places
			if r.Places > 0 {
				dates[r.Date] = true
			}
		}
		avail.DatesWithPlaces = len(dates)
		summary.TotalFreePlaces += avail.FreePlaces
		if avail.FreePlaces > 0 {
			ranked = append(ranked, avail)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].FreePlaces != ranked[j].FreePlaces {
			return ranked[i].FreePlaces > ranked[j].FreePlaces
		}
		return ranked[i].Hut.ID < ranked[j].Hut.ID
	})
	summary.TopHuts = ranked[:min(topHuts, len(ranked))]

	return summary
}
