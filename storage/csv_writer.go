package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"hut-availability/models"
	"hut-availability/utils"
)

// CSVWriter writes an availability matrix to a CSV file
type CSVWriter struct {
	filePath string
	logger   *utils.Logger
}

// NewCSVWriter creates a new CSVWriter
func NewCSVWriter(filePath string, logger *utils.Logger) *CSVWriter {
	return &CSVWriter{filePath: filePath, logger: logger}
}

// Path returns the file the writer targets
func (w *CSVWriter) Path() string {
	return w.filePath
}

// WriteMatrix writes one row per hut and one column per date
func (w *CSVWriter) WriteMatrix(m *models.AvailabilityMatrix) (err error) {
	dir := filepath.Dir(w.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(w.filePath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close CSV file: %w", cerr)
		}
	}()

	writer := csv.NewWriter(file)

	header := make([]string, 0, len(m.Dates)+1)
	header = append(header, "hut_id")
	for _, d := range m.Dates {
		header = append(header, models.FormatDate(d))
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, row := range m.Rows {
		record := make([]string, 0, len(row.Cells)+1)
		record = append(record, strconv.Itoa(row.HutID))
		record = append(record, row.Cells...)
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row for hut %d: %w", row.HutID, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush CSV: %w", err)
	}

	w.logger.Info("Availability matrix written to: %s (%d huts x %d dates)", w.filePath, len(m.Rows), len(m.Dates))
	return nil
}
