package storage

import (
	"context"
	"fmt"
	"time"

	"yclients-scraper/models"
)

// StoreError marks a write/read failure in the backing store (permission,
// constraint violation, connectivity). It is reported per batch and never
// crashes the scheduler.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("store %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }

// WriteResult counts per-record outcomes of one upsert batch. Each record is
// its own unit of work: a failed record is counted and skipped, the rest of
// the batch still lands.
type WriteResult struct {
	Written int
	Failed  int
}

// SlotFilter narrows QuerySlots results. Zero values mean "no constraint".
type SlotFilter struct {
	SourceID  int64
	Venue     string
	CourtType string
	DateFrom  time.Time
	DateTo    time.Time
	Limit     int
}

// SlotStore persists validated slot records keyed by their natural key.
type SlotStore interface {
	// UpsertSlots inserts new rows and refreshes existing ones in place.
	// The returned error is non-nil only when the whole batch was
	// unreachable (e.g. lost connection).
	UpsertSlots(ctx context.Context, records []models.SlotRecord) (WriteResult, error)
	QuerySlots(ctx context.Context, filter SlotFilter) ([]models.SlotRecord, error)
	CountSlots(ctx context.Context) (int, error)
}

// SourceRegistry owns the set of configured booking pages. The pipeline only
// ever reads the active ones; mutation happens through the API.
type SourceRegistry interface {
	AddSource(ctx context.Context, url, name string) (models.SourceConfig, error)
	ListSources(ctx context.Context) ([]models.SourceConfig, error)
	ListActiveSources(ctx context.Context) ([]models.SourceConfig, error)
	UpdateSourceStatus(ctx context.Context, id int64, status string) error
	RemoveSource(ctx context.Context, id int64) (bool, error)
}

// Store is the full persistence surface the application wires together.
type Store interface {
	SlotStore
	SourceRegistry
	Close() error
}
