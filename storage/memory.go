package storage

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"yclients-scraper/models"
)

// MemoryStore is an in-memory Store used in tests and for DB-less runs
// (DATABASE_URL unset). All methods are safe for concurrent use and keep
// the same upsert-by-natural-key semantics as the Postgres store.
type MemoryStore struct {
	mu           sync.RWMutex
	sources      map[int64]models.SourceConfig
	slots        map[string]models.SlotRecord // keyed by source id + natural key
	nextSourceID int64
	nextSlotID   int64
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sources: make(map[int64]models.SourceConfig),
		slots:   make(map[string]models.SlotRecord),
	}
}

func slotKey(r models.SlotRecord) string {
	return strconv.FormatInt(r.SourceID, 10) + "|" + r.NaturalKey()
}

// UpsertSlots inserts or refreshes each record by natural key
func (s *MemoryStore) UpsertSlots(_ context.Context, records []models.SlotRecord) (WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var result WriteResult
	for _, r := range records {
		key := slotKey(r)
		if existing, ok := s.slots[key]; ok {
			r.ID = existing.ID
			r.CreatedAt = existing.CreatedAt
		} else {
			s.nextSlotID++
			r.ID = s.nextSlotID
			r.CreatedAt = now
		}
		r.UpdatedAt = now
		s.slots[key] = r
		result.Written++
	}
	return result, nil
}

// QuerySlots returns stored records matching the filter, date order
func (s *MemoryStore) QuerySlots(_ context.Context, filter SlotFilter) ([]models.SlotRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []models.SlotRecord
	for _, r := range s.slots {
		if filter.SourceID != 0 && r.SourceID != filter.SourceID {
			continue
		}
		if filter.Venue != "" && r.VenueName != filter.Venue {
			continue
		}
		if filter.CourtType != "" && r.CourtType != filter.CourtType {
			continue
		}
		if !filter.DateFrom.IsZero() && r.Date.Before(filter.DateFrom) {
			continue
		}
		if !filter.DateTo.IsZero() && r.Date.After(filter.DateTo) {
			continue
		}
		records = append(records, r)
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].Date.Equal(records[j].Date) {
			return records[i].Date.Before(records[j].Date)
		}
		if records[i].Time != records[j].Time {
			return records[i].Time < records[j].Time
		}
		return records[i].ID < records[j].ID
	})

	if filter.Limit > 0 && len(records) > filter.Limit {
		records = records[:filter.Limit]
	}
	return records, nil
}

// CountSlots returns the total number of stored slot rows
func (s *MemoryStore) CountSlots(context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots), nil
}

// AddSource registers a URL; re-adding an existing URL returns the same row
func (s *MemoryStore) AddSource(_ context.Context, url, name string) (models.SourceConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, src := range s.sources {
		if src.URL == url {
			src.UpdatedAt = time.Now()
			s.sources[src.ID] = src
			return src, nil
		}
	}

	s.nextSourceID++
	now := time.Now()
	src := models.SourceConfig{
		ID:        s.nextSourceID,
		URL:       url,
		Name:      name,
		Status:    models.SourceActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sources[src.ID] = src
	return src, nil
}

// ListSources returns every configured source
func (s *MemoryStore) ListSources(context.Context) ([]models.SourceConfig, error) {
	return s.listSources(false), nil
}

// ListActiveSources returns only active sources
func (s *MemoryStore) ListActiveSources(context.Context) ([]models.SourceConfig, error) {
	return s.listSources(true), nil
}

func (s *MemoryStore) listSources(activeOnly bool) []models.SourceConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sources []models.SourceConfig
	for _, src := range s.sources {
		if activeOnly && !src.Active() {
			continue
		}
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].ID < sources[j].ID })
	return sources
}

// UpdateSourceStatus flips a source between active and inactive
func (s *MemoryStore) UpdateSourceStatus(_ context.Context, id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.sources[id]
	if !ok {
		return &StoreError{Op: "update source", Err: errNotFound(id)}
	}
	src.Status = status
	src.UpdatedAt = time.Now()
	s.sources[id] = src
	return nil
}

// RemoveSource deletes a source and all of its slots
func (s *MemoryStore) RemoveSource(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sources[id]; !ok {
		return false, nil
	}
	delete(s.sources, id)
	for key, r := range s.slots {
		if r.SourceID == id {
			delete(s.slots, key)
		}
	}
	return true, nil
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error { return nil }

type errNotFound int64

func (e errNotFound) Error() string {
	return "source " + strconv.FormatInt(int64(e), 10) + " not found"
}
