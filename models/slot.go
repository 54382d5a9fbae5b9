package models

import "time"

// Source statuses as stored in the urls table.
const (
	SourceActive   = "active"
	SourceInactive = "inactive"
)

// Time-of-day buckets derived from the slot time.
const (
	TimeMorning = "MORNING"
	TimeDay     = "DAY"
	TimeEvening = "EVENING"
)

// CourtTypeUnknown is assigned when no category keyword matches.
const CourtTypeUnknown = "GENERAL"

// SourceConfig is one configured booking page to scrape periodically.
type SourceConfig struct {
	ID        int64     `json:"id"`
	URL       string    `json:"url"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the source should be included in scheduled cycles.
func (s SourceConfig) Active() bool {
	return s.Status == SourceActive
}

// RawSlot represents one candidate booking slot extracted from page markup,
// before validation. Raw* fields hold the text exactly as it appeared.
type RawSlot struct {
	SourceID    int64
	SourceURL   string
	VenueName   string
	ServiceName string
	RawDate     string // e.g. "2025-08-24", "24.08.2025", "24 августа"
	RawTime     string // e.g. "10:00"
	Price       int    // parsed amount; currency stripped during extraction
	Currency    string // e.g. "₽"
	Free        bool   // price text was explicitly tagged free
	Duration    int    // minutes; 0 when no duration pattern matched
	Provider    string
	SeatNumber  string
	ReviewCount int
	Prepayment  bool
	ExtractedAt time.Time
}

// SlotRecord is a validated, normalized booking slot ready for storage.
//
// The natural key is (SourceID, Date, Time, ServiceName, Provider): repeated
// extraction of the same slot updates the stored row in place.
type SlotRecord struct {
	ID           int64     `json:"id"`
	SourceID     int64     `json:"url_id"`
	VenueName    string    `json:"venue_name"`
	Date         time.Time `json:"date"`
	Time         string    `json:"time"` // "HH:MM", venue-local
	Price        int       `json:"price"`
	Currency     string    `json:"currency"`
	Duration     int       `json:"duration"` // minutes
	CourtType    string    `json:"court_type"`
	ServiceName  string    `json:"service_name"`
	Provider     string    `json:"provider"`
	SeatNumber   string    `json:"seat_number"`
	TimeCategory string    `json:"time_category"`
	ReviewCount  int       `json:"review_count"`
	Prepayment   bool      `json:"prepayment_required"`
	ExtractedAt  time.Time `json:"extracted_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NaturalKey returns the dedup key used for upserts and in-batch filtering.
func (r SlotRecord) NaturalKey() string {
	return r.Date.Format("2006-01-02") + "|" + r.Time + "|" + r.ServiceName + "|" + r.Provider
}

// RunOutcome summarizes one pipeline cycle for a single source. It is kept
// in memory for the status endpoint only, never persisted.
type RunOutcome struct {
	SourceID    int64     `json:"url_id"`
	SourceURL   string    `json:"url"`
	Extracted   int       `json:"extracted"`
	Accepted    int       `json:"accepted"`
	Rejected    int       `json:"rejected"`
	Written     int       `json:"written"`
	WriteFailed int       `json:"write_failed"`
	Stage       string    `json:"failed_stage,omitempty"` // fetch|parse|write when Err is set
	Err         string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// AnalyticsReport holds aggregates computed over the stored dataset.
type AnalyticsReport struct {
	TotalSlots     int            `json:"total_slots"`
	TotalSources   int            `json:"total_sources"`
	AveragePrice   float64        `json:"average_price"`
	MinPrice       int            `json:"min_price"`
	MaxPrice       int            `json:"max_price"`
	SlotsByVenue   map[string]int `json:"slots_by_venue"`
	SlotsByCourt   map[string]int `json:"slots_by_court_type"`
	SlotsByTimeCat map[string]int `json:"slots_by_time_category"`
	SlotsByDate    map[string]int `json:"slots_by_date"`
}

// AddSourceRequest is the payload for registering a new source URL.
type AddSourceRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// TriggerRequest is the payload for an on-demand parse of one source.
type TriggerRequest struct {
	SourceID int64 `json:"url_id"`
}
