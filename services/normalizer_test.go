package services

import (
	"errors"
	"testing"
	"time"

	"yclients-scraper/models"
	"yclients-scraper/utils"
)

var testNow = time.Date(2025, time.August, 20, 15, 0, 0, 0, time.UTC)

func validRaw() models.RawSlot {
	return models.RawSlot{
		SourceID:    1,
		SourceURL:   "https://yclients.com/company/b918666/",
		VenueName:   "Padel A33",
		ServiceName: "Padel Court 60 мин",
		RawDate:     "2025-08-21",
		RawTime:     "10:00",
		Price:       2500,
		Currency:    "₽",
		Duration:    60,
		ExtractedAt: testNow,
	}
}

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	rules, err := LoadCategoryRules("")
	if err != nil {
		t.Fatalf("LoadCategoryRules: %v", err)
	}
	return NewNormalizer(rules, utils.NewLogger())
}

func TestNormalizeAccepted(t *testing.T) {
	n := newTestNormalizer(t)

	record, err := n.Normalize(validRaw(), testNow)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if record.Date.Format("2006-01-02") != "2025-08-21" {
		t.Errorf("date = %s", record.Date)
	}
	if record.Time != "10:00" {
		t.Errorf("time = %s", record.Time)
	}
	if record.Price != 2500 || record.Duration != 60 {
		t.Errorf("price/duration = %d/%d", record.Price, record.Duration)
	}
	if record.CourtType != "PADEL" {
		t.Errorf("court type = %s, want PADEL", record.CourtType)
	}
	if record.TimeCategory != models.TimeMorning {
		t.Errorf("time category = %s, want %s", record.TimeCategory, models.TimeMorning)
	}
}

func TestNormalizeRejections(t *testing.T) {
	n := newTestNormalizer(t)

	tests := []struct {
		name   string
		mutate func(*models.RawSlot)
		field  string
	}{
		{"past date", func(r *models.RawSlot) { r.RawDate = "2025-08-19" }, "date"},
		{"unparsable date", func(r *models.RawSlot) { r.RawDate = "скоро" }, "date"},
		{"negative price", func(r *models.RawSlot) { r.Price = -100 }, "price"},
		{"zero price without free tag", func(r *models.RawSlot) { r.Price = 0 }, "price"},
		{"unknown duration", func(r *models.RawSlot) { r.Duration = 0 }, "duration"},
		{"implausible duration", func(r *models.RawSlot) { r.Duration = 77 }, "duration"},
		{"bad time", func(r *models.RawSlot) { r.RawTime = "25:99" }, "time"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			tt.mutate(&raw)

			_, err := n.Normalize(raw, testNow)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if verr.Field != tt.field {
				t.Errorf("rejected field = %s, want %s", verr.Field, tt.field)
			}
		})
	}
}

func TestNormalizeTodayIsAccepted(t *testing.T) {
	n := newTestNormalizer(t)
	raw := validRaw()
	raw.RawDate = testNow.Format("2006-01-02")

	if _, err := n.Normalize(raw, testNow); err != nil {
		t.Fatalf("slot dated today must be accepted: %v", err)
	}
}

func TestNormalizeFreeSlot(t *testing.T) {
	n := newTestNormalizer(t)
	raw := validRaw()
	raw.Price = 0
	raw.Free = true

	record, err := n.Normalize(raw, testNow)
	if err != nil {
		t.Fatalf("free slot must be accepted: %v", err)
	}
	if record.Price != 0 {
		t.Errorf("price = %d, want 0", record.Price)
	}
}

func TestTimeCategoryBuckets(t *testing.T) {
	n := newTestNormalizer(t)

	tests := []struct {
		clock string
		want  string
	}{
		{"09:00", models.TimeMorning},
		{"11:59", models.TimeMorning},
		{"12:00", models.TimeDay},
		{"17:30", models.TimeDay},
		{"18:00", models.TimeDay},
		{"18:01", models.TimeEvening},
		{"22:00", models.TimeEvening},
	}

	for _, tt := range tests {
		raw := validRaw()
		raw.RawTime = tt.clock

		record, err := n.Normalize(raw, testNow)
		if err != nil {
			t.Fatalf("Normalize(%s): %v", tt.clock, err)
		}
		if record.TimeCategory != tt.want {
			t.Errorf("time %s bucketed as %s, want %s", tt.clock, record.TimeCategory, tt.want)
		}
	}
}

func TestCourtTypeDerivation(t *testing.T) {
	n := newTestNormalizer(t)

	tests := []struct {
		venue   string
		service string
		want    string
	}{
		{"Padel A33", "Padel Court 60 мин", "PADEL"},
		{"ТК Ракетлон", "Аренда теннисного корта", "TENNIS"},
		{"Спортзал", "Сквош 60 мин", "SQUASH"},
		{"Нагатинская", "Аренда зала", models.CourtTypeUnknown},
	}

	for _, tt := range tests {
		raw := validRaw()
		raw.VenueName = tt.venue
		raw.ServiceName = tt.service

		record, err := n.Normalize(raw, testNow)
		if err != nil {
			t.Fatalf("Normalize(%s): %v", tt.service, err)
		}
		if record.CourtType != tt.want {
			t.Errorf("category for %q/%q = %s, want %s", tt.venue, tt.service, record.CourtType, tt.want)
		}
	}
}
