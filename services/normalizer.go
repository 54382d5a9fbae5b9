package services

import (
	"fmt"
	"time"

	"yclients-scraper/models"
	"yclients-scraper/scraper/yclients"
	"yclients-scraper/utils"
)

// plausibleDurations bounds duration values to the booking increments the
// venues actually offer; anything else is a parse artifact.
var plausibleDurations = map[int]bool{
	30: true, 45: true, 60: true, 90: true,
	120: true, 150: true, 180: true, 240: true,
}

// ValidationError explains why a candidate slot was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Normalizer validates candidate slots against record invariants and derives
// the implied fields (court type, time-of-day bucket).
type Normalizer struct {
	rules  *CategoryRules
	logger *utils.Logger
}

// NewNormalizer creates a new Normalizer
func NewNormalizer(rules *CategoryRules, logger *utils.Logger) *Normalizer {
	return &Normalizer{rules: rules, logger: logger}
}

// Normalize promotes a candidate to a SlotRecord or rejects it with a
// *ValidationError. A rejection drops the one candidate; the caller keeps
// processing its siblings.
func (n *Normalizer) Normalize(raw models.RawSlot, now time.Time) (models.SlotRecord, error) {
	date, err := yclients.ParseDate(raw.RawDate, now)
	if err != nil {
		return models.SlotRecord{}, &ValidationError{Field: "date", Reason: err.Error()}
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if date.Before(today) {
		// Sources keep listing slots that already passed
		return models.SlotRecord{}, &ValidationError{Field: "date", Reason: fmt.Sprintf("%s is in the past", raw.RawDate)}
	}

	if raw.Price < 0 {
		return models.SlotRecord{}, &ValidationError{Field: "price", Reason: fmt.Sprintf("negative amount %d", raw.Price)}
	}
	if raw.Price == 0 && !raw.Free {
		return models.SlotRecord{}, &ValidationError{Field: "price", Reason: "zero amount without free tag"}
	}

	if raw.Duration <= 0 {
		return models.SlotRecord{}, &ValidationError{Field: "duration", Reason: "unknown duration"}
	}
	if !plausibleDurations[raw.Duration] {
		return models.SlotRecord{}, &ValidationError{Field: "duration", Reason: fmt.Sprintf("%d minutes is not a bookable increment", raw.Duration)}
	}

	minutes, err := yclients.ClockMinutes(raw.RawTime)
	if err != nil {
		return models.SlotRecord{}, &ValidationError{Field: "time", Reason: err.Error()}
	}

	record := models.SlotRecord{
		SourceID:     raw.SourceID,
		VenueName:    raw.VenueName,
		Date:         date,
		Time:         raw.RawTime,
		Price:        raw.Price,
		Currency:     raw.Currency,
		Duration:     raw.Duration,
		CourtType:    n.rules.Match(raw.VenueName, raw.ServiceName),
		ServiceName:  raw.ServiceName,
		Provider:     raw.Provider,
		SeatNumber:   raw.SeatNumber,
		TimeCategory: timeCategory(minutes),
		ReviewCount:  raw.ReviewCount,
		Prepayment:   raw.Prepayment,
		ExtractedAt:  raw.ExtractedAt,
	}
	return record, nil
}

// timeCategory buckets minutes past midnight: before 12:00 is morning,
// 12:00 through 18:00 is day, after 18:00 is evening.
func timeCategory(minutes int) string {
	switch {
	case minutes < 12*60:
		return models.TimeMorning
	case minutes <= 18*60:
		return models.TimeDay
	default:
		return models.TimeEvening
	}
}
