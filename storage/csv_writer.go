package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"yclients-scraper/models"
	"yclients-scraper/utils"
)

// CSVWriter handles exporting slot records to CSV
type CSVWriter struct {
	dir    string
	logger *utils.Logger
}

// NewCSVWriter creates a new CSVWriter rooted at the given export directory
func NewCSVWriter(dir string, logger *utils.Logger) *CSVWriter {
	return &CSVWriter{dir: dir, logger: logger}
}

// WriteSlots streams slot records as CSV to any writer (used by the /export
// endpoint to respond without touching disk)
func (w *CSVWriter) WriteSlots(out io.Writer, records []models.SlotRecord) error {
	writer := csv.NewWriter(out)
	defer writer.Flush()

	header := []string{
		"url_id", "venue_name", "date", "time", "price", "currency",
		"duration", "court_type", "service_name", "provider", "seat_number",
		"time_category", "review_count", "prepayment_required", "extracted_at",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, r := range records {
		row := []string{
			strconv.FormatInt(r.SourceID, 10),
			r.VenueName,
			r.Date.Format("2006-01-02"),
			r.Time,
			strconv.Itoa(r.Price),
			r.Currency,
			strconv.Itoa(r.Duration),
			r.CourtType,
			r.ServiceName,
			r.Provider,
			r.SeatNumber,
			r.TimeCategory,
			strconv.Itoa(r.ReviewCount),
			strconv.FormatBool(r.Prepayment),
			r.ExtractedAt.Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			w.logger.Error("Failed to write CSV row for %q: %v", r.ServiceName, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// ExportFile writes slot records to a timestamped file under the export dir
func (w *CSVWriter) ExportFile(records []models.SlotRecord) (string, error) {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	path := filepath.Join(w.dir, fmt.Sprintf("booking_slots_%s.csv", time.Now().Format("20060102_150405")))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	if err := w.WriteSlots(file, records); err != nil {
		return "", err
	}

	w.logger.Info("Slots exported to: %s (%d rows)", path, len(records))
	return path, nil
}
