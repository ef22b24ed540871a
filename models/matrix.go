package models

import "time"

// AvailabilityMatrix is a hut × date grid of report cells
type AvailabilityMatrix struct {
	Dates []time.Time
	Rows  []MatrixRow
}

// MatrixRow holds one hut's cells, aligned with AvailabilityMatrix.Dates.
// An empty cell means the date was never probed.
type MatrixRow struct {
	HutID int
	Cells []string
}
