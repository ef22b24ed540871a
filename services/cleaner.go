package services

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"hut-availability/models"
	"hut-availability/utils"
)

// MatrixBuilder collects probe records and normalises them into hut × date
// matrices. It is a RecordSink so it can sit next to the database writer.
type MatrixBuilder struct {
	mu      sync.Mutex
	records map[int][]models.AvailabilityRecord
	logger  *utils.Logger
}

// NewMatrixBuilder creates an empty MatrixBuilder
func NewMatrixBuilder(logger *utils.Logger) *MatrixBuilder {
	return &MatrixBuilder{records: make(map[int][]models.AvailabilityRecord), logger: logger}
}

// SaveRecords replaces whatever was collected for hutID
func (b *MatrixBuilder) SaveRecords(_ context.Context, hutID int, records []models.AvailabilityRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records[hutID] = append([]models.AvailabilityRecord(nil), records...)
	return nil
}

func (b *MatrixBuilder) Close() error { return nil }

// PlacesMatrix sums the free places of every room type per hut and date over
// [start, end). Dates that only carry text count as 0.
func (b *MatrixBuilder) PlacesMatrix(start, end time.Time) *models.AvailabilityMatrix {
	return b.build(start, end, placesCell)
}

// TextMatrix keeps the verbatim cell values, one "room: value" per room type
func (b *MatrixBuilder) TextMatrix(start, end time.Time) *models.AvailabilityMatrix {
	return b.build(start, end, textCell)
}

func (b *MatrixBuilder) build(start, end time.Time, cell func([]models.AvailabilityRecord) string) *models.AvailabilityMatrix {
	b.mu.Lock()
	defer b.mu.Unlock()

	dates := models.CalendarWindow{Start: models.Day(start), End: models.Day(end)}.Dates()
	column := make(map[time.Time]int, len(dates))
	for i, d := range dates {
		column[d] = i
	}

	hutIDs := make([]int, 0, len(b.records))
	for id := range b.records {
		hutIDs = append(hutIDs, id)
	}
	sort.Ints(hutIDs)

	m := &models.AvailabilityMatrix{Dates: dates}
	for _, id := range hutIDs {
		byDate := make([][]models.AvailabilityRecord, len(dates))
		for _, r := range b.records[id] {
			if i, ok := column[r.Date]; ok {
				byDate[i] = append(byDate[i], r)
			}
		}
		row := models.MatrixRow{HutID: id, Cells: make([]string, len(dates))}
		for i, recs := range byDate {
			if len(recs) > 0 {
				row.Cells[i] = cell(recs)
			}
		}
		m.Rows = append(m.Rows, row)
	}

	b.logger.Debug("Built matrix of %d huts x %d dates", len(m.Rows), len(dates))
	return m
}

func placesCell(recs []models.AvailabilityRecord) string {
	total := 0
	for _, r := range recs {
		if r.HasPlaces() {
			total += r.Places
		}
	}
	return strconv.Itoa(total)
}

func textCell(recs []models.AvailabilityRecord) string {
	sorted := append([]models.AvailabilityRecord(nil), recs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RoomType < sorted[j].RoomType })

	parts := make([]string, 0, len(sorted))
	for _, r := range sorted {
		if r.RoomType == "" {
			parts = append(parts, r.Value())
			continue
		}
		parts = append(parts, r.RoomType+": "+r.Value())
	}
	return strings.Join(parts, " | ")
}
