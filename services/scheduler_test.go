package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"yclients-scraper/config"
	"yclients-scraper/models"
	"yclients-scraper/scraper/yclients"
	"yclients-scraper/storage"
	"yclients-scraper/utils"
)

type stubFetcher struct {
	mu    sync.Mutex
	calls int
	pages map[string][]byte
	err   error
	block chan struct{} // when set, Fetch waits on it before returning
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.pages[url], nil
}

func (f *stubFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func threeSlotPage(t *testing.T) []byte {
	t.Helper()
	now := time.Now()
	page := `<html><body><h1>Padel A33</h1>`
	for i, s := range []struct {
		price, duration string
	}{
		{"2500 ₽", "60 мин"},
		{"3750 ₽", "1 ч 30 мин"},
		{"5000 ₽", "2 ч"},
	} {
		date := now.AddDate(0, 0, i+1).Format("2006-01-02")
		clock := fmt.Sprintf("%02d:00", 10+2*i)
		page += fmt.Sprintf(`
<div class="record__service">
  <div class="service-title">Padel Court %s</div>
  <div class="service-price">%s</div>
  <div class="service-duration">%s</div>
  <div class="time-slot" data-date="%s">%s</div>
</div>`, s.duration, s.price, s.duration, date, clock)
	}
	page += `</body></html>`
	return []byte(page)
}

func newTestScheduler(t *testing.T, store storage.Store, fetcher Fetcher) *Scheduler {
	t.Helper()
	cfg := &config.Config{
		ParseIntervalSec: 600,
		MaxConcurrency:   2,
		ShutdownGraceSec: 5,
	}
	logger := utils.NewLogger()
	rules, err := LoadCategoryRules("")
	if err != nil {
		t.Fatal(err)
	}
	return NewScheduler(cfg, store, fetcher, yclients.NewExtractor(logger), NewNormalizer(rules, logger), nil, logger)
}

func sourceStatusOf(t *testing.T, s *Scheduler, id int64) SourceStatus {
	t.Helper()
	statuses, err := s.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, st := range statuses {
		if st.Source.ID == id {
			return st
		}
	}
	t.Fatalf("source %d not in status", id)
	return SourceStatus{}
}

func TestPipelineEndToEndAndIdempotent(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	src, _ := store.AddSource(ctx, "https://yclients.com/company/b918666/record-type", "Padel A33")

	fetcher := &stubFetcher{pages: map[string][]byte{src.URL: threeSlotPage(t)}}
	sched := newTestScheduler(t, store, fetcher)

	started, err := sched.TriggerSource(ctx, src.ID)
	if err != nil || !started {
		t.Fatalf("TriggerSource = (%v, %v)", started, err)
	}
	sched.Drain()

	status := sourceStatusOf(t, sched, src.ID)
	if status.State != StateIdle {
		t.Errorf("state = %s, want %s", status.State, StateIdle)
	}
	out := status.LastOutcome
	if out == nil {
		t.Fatal("no outcome recorded")
	}
	if out.Extracted != 3 || out.Accepted != 3 || out.Rejected != 0 || out.Written != 3 {
		t.Fatalf("outcome = %+v", out)
	}

	slots, err := store.QuerySlots(ctx, storage.SlotFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 3 {
		t.Fatalf("stored %d slots, want 3", len(slots))
	}

	wantPrices := []int{2500, 3750, 5000}
	wantDurations := []int{60, 90, 120}
	today := time.Now()
	for i, slot := range slots {
		if slot.Price != wantPrices[i] || slot.Duration != wantDurations[i] {
			t.Errorf("slot %d = price %d duration %d", i, slot.Price, slot.Duration)
		}
		if slot.CourtType != "PADEL" {
			t.Errorf("slot %d court type = %s", i, slot.CourtType)
		}
		if slot.Date.Before(time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)) {
			t.Errorf("slot %d stored with past date %s", i, slot.Date)
		}
	}
	firstUpdated := slots[0].UpdatedAt

	// Second pass over byte-identical markup: no new rows, timestamps move.
	time.Sleep(10 * time.Millisecond)
	started, err = sched.TriggerSource(ctx, src.ID)
	if err != nil || !started {
		t.Fatalf("second TriggerSource = (%v, %v)", started, err)
	}
	sched.Drain()

	slots, _ = store.QuerySlots(ctx, storage.SlotFilter{})
	if len(slots) != 3 {
		t.Fatalf("after rerun stored %d slots, want 3", len(slots))
	}
	if !slots[0].UpdatedAt.After(firstUpdated) {
		t.Error("updated_at did not advance on rerun")
	}
}

func TestTriggeredRunOutlivesCallerContext(t *testing.T) {
	store := storage.NewMemoryStore()
	src, _ := store.AddSource(context.Background(), "https://yclients.com/company/b918666/record-type", "Padel A33")

	release := make(chan struct{})
	fetcher := &stubFetcher{
		pages: map[string][]byte{src.URL: threeSlotPage(t)},
		block: release,
	}
	sched := newTestScheduler(t, store, fetcher)

	// An HTTP request context dies as soon as the handler returns 202;
	// a run still mid-fetch at that point must not die with it.
	ctx, cancel := context.WithCancel(context.Background())
	started, err := sched.TriggerSource(ctx, src.ID)
	if err != nil || !started {
		t.Fatalf("TriggerSource = (%v, %v)", started, err)
	}

	deadline := time.After(2 * time.Second)
	for fetcher.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("run never reached the fetcher")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
	close(release)
	sched.Drain()

	status := sourceStatusOf(t, sched, src.ID)
	if status.State != StateIdle {
		t.Errorf("state = %s, want %s", status.State, StateIdle)
	}
	if status.LastOutcome == nil || status.LastOutcome.Written != 3 {
		t.Fatalf("outcome = %+v, want 3 written", status.LastOutcome)
	}
	if n, _ := store.CountSlots(context.Background()); n != 3 {
		t.Errorf("stored %d slots, want 3", n)
	}
}

func TestSingleFlightPerSource(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	a, _ := store.AddSource(ctx, "https://yclients.com/company/b918666/a", "")
	b, _ := store.AddSource(ctx, "https://yclients.com/company/b861100/b", "")

	release := make(chan struct{})
	fetcher := &stubFetcher{
		pages: map[string][]byte{a.URL: threeSlotPage(t), b.URL: threeSlotPage(t)},
		block: release,
	}
	sched := newTestScheduler(t, store, fetcher)

	started, err := sched.TriggerSource(ctx, a.ID)
	if err != nil || !started {
		t.Fatalf("first trigger = (%v, %v)", started, err)
	}

	// Wait until the run is actually inside Fetch
	deadline := time.After(2 * time.Second)
	for fetcher.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("run never reached the fetcher")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if st := sourceStatusOf(t, sched, a.ID); st.State != StateRunning {
		t.Fatalf("state = %s, want %s", st.State, StateRunning)
	}

	// Same source: rejected. Other source: proceeds independently.
	if started, _ := sched.TriggerSource(ctx, a.ID); started {
		t.Error("concurrent trigger for a running source must be a no-op")
	}
	if started, err := sched.TriggerSource(ctx, b.ID); err != nil || !started {
		t.Errorf("trigger for another source = (%v, %v)", started, err)
	}

	close(release)
	sched.Drain()

	if st := sourceStatusOf(t, sched, a.ID); st.State != StateIdle {
		t.Errorf("state after run = %s, want %s", st.State, StateIdle)
	}

	// Once idle again, a new trigger is accepted
	if started, err := sched.TriggerSource(ctx, a.ID); err != nil || !started {
		t.Errorf("trigger after completion = (%v, %v)", started, err)
	}
	sched.Drain()
}

func TestFetchFailureMarksSourceFailed(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	src, _ := store.AddSource(ctx, "https://unreachable.invalid/", "")

	fetcher := &stubFetcher{err: &yclients.FetchError{URL: src.URL, Status: 404, Err: fmt.Errorf("client error")}}
	sched := newTestScheduler(t, store, fetcher)

	if started, err := sched.TriggerSource(ctx, src.ID); err != nil || !started {
		t.Fatalf("TriggerSource = (%v, %v)", started, err)
	}
	sched.Drain()

	status := sourceStatusOf(t, sched, src.ID)
	if status.State != StateFailed {
		t.Errorf("state = %s, want %s", status.State, StateFailed)
	}
	if status.LastOutcome == nil || status.LastOutcome.Stage != "fetch" {
		t.Errorf("outcome = %+v", status.LastOutcome)
	}

	// Failed is not terminal: the source stays eligible
	if started, err := sched.TriggerSource(ctx, src.ID); err != nil || !started {
		t.Errorf("trigger after failure = (%v, %v)", started, err)
	}
	sched.Drain()
}

type failingStore struct {
	storage.Store
	failWrites bool
}

func (s *failingStore) UpsertSlots(ctx context.Context, records []models.SlotRecord) (storage.WriteResult, error) {
	if s.failWrites {
		return storage.WriteResult{Failed: len(records)}, &storage.StoreError{Op: "upsert", Err: fmt.Errorf("permission denied")}
	}
	return s.Store.UpsertSlots(ctx, records)
}

func TestWriteFailureIsContained(t *testing.T) {
	store := &failingStore{Store: storage.NewMemoryStore(), failWrites: true}
	ctx := context.Background()
	src, _ := store.AddSource(ctx, "https://yclients.com/company/b918666/x", "")

	fetcher := &stubFetcher{pages: map[string][]byte{src.URL: threeSlotPage(t)}}
	sched := newTestScheduler(t, store, fetcher)

	if started, err := sched.TriggerSource(ctx, src.ID); err != nil || !started {
		t.Fatalf("TriggerSource = (%v, %v)", started, err)
	}
	sched.Drain()

	status := sourceStatusOf(t, sched, src.ID)
	// A store outage loses one write batch, not the source's standing
	if status.State != StateIdle {
		t.Errorf("state = %s, want %s", status.State, StateIdle)
	}
	out := status.LastOutcome
	if out == nil || out.Stage != "write" || out.WriteFailed != 3 {
		t.Errorf("outcome = %+v", out)
	}
}

func TestRunCycleSkipsInactiveSources(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	active, _ := store.AddSource(ctx, "https://yclients.com/company/b918666/on", "")
	inactive, _ := store.AddSource(ctx, "https://yclients.com/company/b861100/off", "")
	if err := store.UpdateSourceStatus(ctx, inactive.ID, models.SourceInactive); err != nil {
		t.Fatal(err)
	}

	fetcher := &stubFetcher{pages: map[string][]byte{
		active.URL:   threeSlotPage(t),
		inactive.URL: threeSlotPage(t),
	}}
	sched := newTestScheduler(t, store, fetcher)

	sched.runCycle(ctx)
	sched.Drain()

	if fetcher.callCount() != 1 {
		t.Errorf("fetch calls = %d, want 1 (inactive source must be skipped)", fetcher.callCount())
	}

	slots, _ := store.QuerySlots(ctx, storage.SlotFilter{SourceID: inactive.ID})
	if len(slots) != 0 {
		t.Errorf("inactive source produced %d slots", len(slots))
	}
}

func TestTriggerAllScope(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	a, _ := store.AddSource(ctx, "https://yclients.com/company/b918666/a", "")
	b, _ := store.AddSource(ctx, "https://yclients.com/company/b861100/b", "")
	store.UpdateSourceStatus(ctx, b.ID, models.SourceInactive)

	fetcher := &stubFetcher{pages: map[string][]byte{a.URL: threeSlotPage(t), b.URL: threeSlotPage(t)}}
	sched := newTestScheduler(t, store, fetcher)

	started, err := sched.TriggerAll(ctx, true)
	if err != nil || started != 1 {
		t.Fatalf("TriggerAll(active) = (%d, %v), want 1", started, err)
	}
	sched.Drain()

	started, err = sched.TriggerAll(ctx, false)
	if err != nil || started != 2 {
		t.Fatalf("TriggerAll(all) = (%d, %v), want 2", started, err)
	}
	sched.Drain()
}

func TestTriggerUnknownSource(t *testing.T) {
	sched := newTestScheduler(t, storage.NewMemoryStore(), &stubFetcher{})
	if _, err := sched.TriggerSource(context.Background(), 42); err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestInBatchDuplicatesCollapse(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	src, _ := store.AddSource(ctx, "https://yclients.com/company/b918666/dup", "")

	date := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	page := []byte(fmt.Sprintf(`<html><body>
<div class="record__service">
  <div class="service-title">Padel Court 60 мин</div>
  <div class="service-price">2500 ₽</div>
  <div class="time-slot" data-date="%s">10:00</div>
  <div class="time-slot" data-date="%s">10:00</div>
</div>
</body></html>`, date, date))

	fetcher := &stubFetcher{pages: map[string][]byte{src.URL: page}}
	sched := newTestScheduler(t, store, fetcher)

	sched.TriggerSource(ctx, src.ID)
	sched.Drain()

	out := sourceStatusOf(t, sched, src.ID).LastOutcome
	if out.Extracted != 2 || out.Accepted != 1 {
		t.Errorf("outcome = %+v, want extracted 2 accepted 1", out)
	}
	slots, _ := store.QuerySlots(ctx, storage.SlotFilter{})
	if len(slots) != 1 {
		t.Errorf("stored %d slots, want 1", len(slots))
	}
}
