package services

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hut-availability/models"
	"hut-availability/utils"
)

func TestInsightServiceGenerate(t *testing.T) {
	results := []HutResult{
		{Hut: models.Hut{ID: 1, Name: "Alpha"}, Outcome: &models.ProbeOutcome{HutID: 1, Kind: models.OutcomeSuccess, Records: []models.AvailabilityRecord{
			{Date: day(1), RoomType: "lager", Places: 4},
			{Date: day(2), RoomType: "lager", Places: 0},
			{Date: day(3), RoomType: "lager", Status: "ausgebucht"},
		}}},
		{Hut: models.Hut{ID: 2}, Outcome: &models.ProbeOutcome{HutID: 2, Kind: models.OutcomeNotInSystem}},
		{Hut: models.Hut{ID: 3}, Skipped: true},
		{Hut: models.Hut{ID: 4}, Outcome: &models.ProbeOutcome{HutID: 4, Kind: models.OutcomePartialFailure, Aborted: true, Records: []models.AvailabilityRecord{
			{Date: day(1), RoomType: "zimmer", Places: 9},
			{Date: day(1), RoomType: "lager", Places: 1},
		}}, Err: errors.New("tab crashed"), SaveErr: errors.New("db down")},
		{Hut: models.Hut{ID: 5}, Outcome: &models.ProbeOutcome{HutID: 5, Kind: models.OutcomeSuccess}},
	}

	started := time.Now().Add(-time.Minute)
	s := NewInsightService(utils.NopLogger()).Generate("run-1", started, results)

	require.Equal(t, "run-1", s.RunID)
	require.GreaterOrEqual(t, s.Runtime, time.Minute)
	require.Equal(t, 4, s.HutsChecked)
	require.Equal(t, 1, s.Skipped)
	require.Equal(t, 1, s.NotInSystem)
	require.Equal(t, 2, s.Succeeded)
	require.Equal(t, 1, s.Partial)
	require.Equal(t, 1, s.Aborted)
	require.Equal(t, 1, s.Errors)
	require.Equal(t, 1, s.SaveErrors)
	require.Equal(t, 5, s.Records)
	require.Equal(t, 4, s.NumericRecords)
	require.Equal(t, 14, s.TotalFreePlaces)
	require.Equal(t, []models.HutAvailability{
		{Hut: models.Hut{ID: 4}, FreePlaces: 10, DatesWithPlaces: 1},
		{Hut: models.Hut{ID: 1, Name: "Alpha"}, FreePlaces: 4, DatesWithPlaces: 1},
	}, s.TopHuts)
}

func TestInsightServiceEmpty(t *testing.T) {
	s := NewInsightService(utils.NopLogger()).Generate("run-2", time.Now(), nil)
	require.Zero(t, s.HutsChecked)
	require.Empty(t, s.TopHuts)
}

func TestPrintRunReport(t *testing.T) {
	var buf bytes.Buffer
	PrintRunReport(&buf, &models.RunSummary{
		RunID:       "run-3",
		HutsChecked: 2,
		TopHuts:     []models.HutAvailability{{Hut: models.Hut{ID: 7, Name: "Rifugio Gastaldi"}, FreePlaces: 30, DatesWithPlaces: 5}},
	})
	out := buf.String()
	require.Contains(t, out, "run-3")
	require.Contains(t, out, "Huts checked")
	require.Contains(t, out, "hut 7 (Rifugio Gastaldi)")
}

func TestPrintOutcome(t *testing.T) {
	var buf bytes.Buffer
	PrintOutcome(&buf, models.Hut{ID: 12}, &models.ProbeOutcome{
		HutID: 12,
		Kind:  models.OutcomePartialFailure,
		Records: []models.AvailabilityRecord{
			{Date: day(1), RoomType: "lager", Places: 3},
			{Date: day(2), Status: "Chiuso"},
		},
		UnresolvedWindows: []models.CalendarWindow{{Start: day(3), End: day(6)}},
	})
	out := buf.String()
	require.Contains(t, out, "01.07.2025")
	require.Contains(t, out, "Chiuso")
	require.Contains(t, out, "03.07.2025 - 06.07.2025")
}
