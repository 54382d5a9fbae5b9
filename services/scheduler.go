package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"yclients-scraper/config"
	"yclients-scraper/metrics"
	"yclients-scraper/models"
	"yclients-scraper/scraper/yclients"
	"yclients-scraper/storage"
	"yclients-scraper/utils"
)

// Per-source scheduler states. Failed marks a source whose last cycle died
// at the fetch stage (unreachable host, bad URL); it is not terminal and the
// source stays eligible for the next tick.
const (
	StateIdle    = "IDLE"
	StateRunning = "RUNNING"
	StateFailed  = "FAILED"
)

// Fetcher retrieves raw markup for one source URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Extractor parses raw markup into candidate slots.
type Extractor interface {
	Extract(source models.SourceConfig, markup []byte) ([]models.RawSlot, error)
}

// SourceStatus is the externally visible state of one source.
type SourceStatus struct {
	Source      models.SourceConfig `json:"source"`
	State       string              `json:"state"`
	LastOutcome *models.RunOutcome  `json:"last_outcome,omitempty"`
}

type sourceState struct {
	state   string
	outcome *models.RunOutcome
}

// Scheduler drives the fetch→extract→normalize→write pipeline: a fixed
// interval timer starts a cycle over all active sources, on-demand triggers
// start a cycle for one source, and a per-source single-flight rule keeps
// the two from ever overlapping for the same source.
type Scheduler struct {
	store      storage.Store
	fetcher    Fetcher
	extractor  Extractor
	normalizer *Normalizer
	metrics    *metrics.Metrics
	logger     *utils.Logger

	interval time.Duration
	grace    time.Duration
	sem      *semaphore.Weighted

	// Launched runs live on runCtx, not on the caller's context: an HTTP
	// request context dies as soon as the 202 is written, and the shutdown
	// signal must not abort fetches before the grace period has passed.
	runCtx   context.Context
	stopRuns context.CancelFunc

	mu     sync.Mutex
	states map[int64]*sourceState

	wg sync.WaitGroup
}

// NewScheduler wires the pipeline components together
func NewScheduler(cfg *config.Config, store storage.Store, fetcher Fetcher, extractor Extractor, normalizer *Normalizer, m *metrics.Metrics, logger *utils.Logger) *Scheduler {
	concurrency := cfg.MaxConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	runCtx, stopRuns := context.WithCancel(context.Background())
	return &Scheduler{
		store:      store,
		fetcher:    fetcher,
		extractor:  extractor,
		normalizer: normalizer,
		metrics:    m,
		logger:     logger,
		interval:   time.Duration(cfg.ParseIntervalSec) * time.Second,
		grace:      time.Duration(cfg.ShutdownGraceSec) * time.Second,
		sem:        semaphore.NewWeighted(int64(concurrency)),
		runCtx:     runCtx,
		stopRuns:   stopRuns,
		states:     make(map[int64]*sourceState),
	}
}

// Start begins the scheduled loop: one cycle immediately, then one per
// interval. It blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Scheduler started (interval: %s)", s.interval)

	s.runCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopping...")
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// Drain waits for in-flight source runs to finish, up to the configured
// grace period. Runs still going after that get their context cancelled;
// their pending writes never happen, and each upsert is indivisible, so no
// record is left half-written.
func (s *Scheduler) Drain() {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.logger.Info("All in-flight runs finished")
	case <-time.After(s.grace):
		s.logger.Warn("Grace period (%s) elapsed, cancelling in-flight runs", s.grace)
		s.stopRuns()
	}
}

// runCycle fans out one run per active source, bounded by the concurrency
// semaphore. A source already running is skipped, not queued.
func (s *Scheduler) runCycle(ctx context.Context) {
	sources, err := s.store.ListActiveSources(ctx)
	if err != nil {
		s.logger.Error("Cannot list active sources: %v", err)
		return
	}
	if len(sources) == 0 {
		s.logger.Warn("No active sources configured")
		return
	}

	s.logger.Info("Cycle starting: %d active source(s)", len(sources))
	for _, src := range sources {
		s.launch(src)
	}
}

// TriggerSource starts an on-demand run for one source. It returns false
// without error when the source is already running (single-flight). ctx
// scopes only the registry lookup; the run itself outlives the caller.
func (s *Scheduler) TriggerSource(ctx context.Context, id int64) (bool, error) {
	sources, err := s.store.ListSources(ctx)
	if err != nil {
		return false, err
	}
	for _, src := range sources {
		if src.ID == id {
			return s.launch(src), nil
		}
	}
	return false, fmt.Errorf("source %d not found", id)
}

// TriggerAll starts on-demand runs for every source, or only the active
// ones. It returns the number of runs actually started.
func (s *Scheduler) TriggerAll(ctx context.Context, activeOnly bool) (int, error) {
	var (
		sources []models.SourceConfig
		err     error
	)
	if activeOnly {
		sources, err = s.store.ListActiveSources(ctx)
	} else {
		sources, err = s.store.ListSources(ctx)
	}
	if err != nil {
		return 0, err
	}

	started := 0
	for _, src := range sources {
		if s.launch(src) {
			started++
		}
	}
	return started, nil
}

// Status reports every known source with its current state and last outcome.
func (s *Scheduler) Status(ctx context.Context) ([]SourceStatus, error) {
	sources, err := s.store.ListSources(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]SourceStatus, 0, len(sources))
	for _, src := range sources {
		status := SourceStatus{Source: src, State: StateIdle}
		if st, ok := s.states[src.ID]; ok {
			status.State = st.state
			status.LastOutcome = st.outcome
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// launch atomically moves the source from Idle/Failed to Running and spawns
// its pipeline run on the scheduler's own context. Returns false when the
// source is already Running.
func (s *Scheduler) launch(src models.SourceConfig) bool {
	if !s.tryStart(src.ID) {
		s.logger.Debug("Source %d (%s) already running, trigger ignored", src.ID, src.URL)
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if err := s.sem.Acquire(s.runCtx, 1); err != nil {
			// Shutting down before the run ever started
			s.finish(src.ID, nil, false)
			return
		}
		defer s.sem.Release(1)

		outcome, failed := s.runSource(s.runCtx, src)
		s.finish(src.ID, &outcome, failed)
	}()
	return true
}

func (s *Scheduler) tryStart(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.states[id]
	if !ok {
		st = &sourceState{state: StateIdle}
		s.states[id] = st
	}
	if st.state == StateRunning {
		return false
	}
	st.state = StateRunning
	if s.metrics != nil {
		s.metrics.SourcesRunning.Inc()
	}
	return true
}

func (s *Scheduler) finish(id int64, outcome *models.RunOutcome, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.states[id]
	if st == nil {
		return
	}
	if failed {
		st.state = StateFailed
	} else {
		st.state = StateIdle
	}
	if outcome != nil {
		st.outcome = outcome
	}
	if s.metrics != nil {
		s.metrics.SourcesRunning.Dec()
	}
}

// runSource executes one strictly sequential fetch→extract→normalize→write
// pass for a single source. Every failure is contained here: the returned
// outcome carries it to the status surface and nothing propagates further.
func (s *Scheduler) runSource(ctx context.Context, src models.SourceConfig) (models.RunOutcome, bool) {
	outcome := models.RunOutcome{
		SourceID:  src.ID,
		SourceURL: src.URL,
		StartedAt: time.Now(),
	}
	defer func() {
		outcome.FinishedAt = time.Now()
		if s.metrics != nil {
			s.metrics.CycleDuration.Observe(outcome.FinishedAt.Sub(outcome.StartedAt).Seconds())
		}
	}()

	label := strconv.FormatInt(src.ID, 10)

	markup, err := s.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		outcome.Stage = "fetch"
		outcome.Err = err.Error()
		s.logger.Error("Fetch failed for %s: %v", src.URL, err)
		if s.metrics != nil {
			kind := "transient"
			var fe *yclients.FetchError
			if errors.As(err, &fe) && !fe.Transient {
				kind = "permanent"
			}
			s.metrics.FetchFailures.WithLabelValues(kind).Inc()
		}
		return outcome, true
	}

	candidates, err := s.extractor.Extract(src, markup)
	if err != nil {
		outcome.Stage = "parse"
		outcome.Err = err.Error()
		s.logger.Error("Extraction failed for %s: %v", src.URL, err)
		return outcome, false
	}
	outcome.Extracted = len(candidates)

	tracker := utils.NewKeyTracker()
	now := time.Now()
	accepted := make([]models.SlotRecord, 0, len(candidates))
	for _, raw := range candidates {
		record, err := s.normalizer.Normalize(raw, now)
		if err != nil {
			outcome.Rejected++
			s.logger.Debug("Rejected slot from %s: %v", src.URL, err)
			continue
		}
		if !tracker.Add(record.NaturalKey()) {
			// Same slot listed twice on the page
			continue
		}
		accepted = append(accepted, record)
	}
	outcome.Accepted = len(accepted)

	if s.metrics != nil {
		s.metrics.SlotsExtracted.WithLabelValues(label).Add(float64(outcome.Extracted))
		s.metrics.SlotsAccepted.WithLabelValues(label).Add(float64(outcome.Accepted))
		s.metrics.SlotsRejected.WithLabelValues(label).Add(float64(outcome.Rejected))
	}

	result, err := s.store.UpsertSlots(ctx, accepted)
	outcome.Written = result.Written
	outcome.WriteFailed = result.Failed
	if err != nil {
		outcome.Stage = "write"
		outcome.Err = err.Error()
		s.logger.Error("Write failed for %s: %v", src.URL, err)
	}
	if s.metrics != nil && (result.Failed > 0 || err != nil) {
		s.metrics.WriteFailures.Add(float64(result.Failed))
	}

	s.logger.Info("Source %s: extracted=%d accepted=%d rejected=%d written=%d failed=%d",
		src.URL, outcome.Extracted, outcome.Accepted, outcome.Rejected, outcome.Written, outcome.WriteFailed)
	return outcome, false
}
