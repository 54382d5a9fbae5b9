package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"yclients-scraper/metrics"
	"yclients-scraper/models"
	"yclients-scraper/services"
	"yclients-scraper/storage"
	"yclients-scraper/utils"
)

// Server exposes the status/trigger/query surface around the pipeline.
// Everything except the banner and /metrics requires the API key.
type Server struct {
	store     storage.Store
	scheduler *services.Scheduler
	analytics *services.AnalyticsService
	csv       *storage.CSVWriter
	apiKey    string
	logger    *utils.Logger
	mux       *http.ServeMux
}

// New wires up routes and returns a ready-to-use Server
func New(store storage.Store, scheduler *services.Scheduler, analytics *services.AnalyticsService, csv *storage.CSVWriter, apiKey string, logger *utils.Logger) *Server {
	s := &Server{
		store:     store,
		scheduler: scheduler,
		analytics: analytics,
		csv:       csv,
		apiKey:    apiKey,
		logger:    logger,
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP makes Server satisfy the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.Handle("GET /metrics", metrics.Handler())

	s.mux.HandleFunc("GET /status", s.withKey(s.handleStatus))

	s.mux.HandleFunc("GET /urls", s.withKey(s.handleListSources))
	s.mux.HandleFunc("POST /urls", s.withKey(s.handleAddSource))
	s.mux.HandleFunc("PUT /urls/{id}", s.withKey(s.handleUpdateSource))
	s.mux.HandleFunc("DELETE /urls/{id}", s.withKey(s.handleRemoveSource))

	s.mux.HandleFunc("GET /data", s.withKey(s.handleData))
	s.mux.HandleFunc("GET /export", s.withKey(s.handleExport))
	s.mux.HandleFunc("GET /analytics", s.withKey(s.handleAnalytics))

	s.mux.HandleFunc("POST /parse", s.withKey(s.handleParse))
	s.mux.HandleFunc("POST /parse/all", s.withKey(s.handleParseAll))
}

// withKey guards a handler with the access key, accepted either as an
// X-API-Key header or an api_key query parameter
func (s *Server) withKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}
		if key != s.apiKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid or missing API key"})
			return
		}
		next(w, r)
	}
}

// ---------- Handlers ----------

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "yclients-scraper",
		"status":  "ok",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.scheduler.Status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	total, err := s.store.CountSlots(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_slots": total,
		"sources":     statuses,
	})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, sources)
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var req models.AddSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url is required"})
		return
	}

	src, err := s.store.AddSource(r.Context(), req.URL, req.Name)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	s.logger.Info("Source added: id=%d url=%s", src.ID, src.URL)
	writeJSON(w, http.StatusCreated, src)
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid source id"})
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if req.Status != models.SourceActive && req.Status != models.SourceInactive {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "status must be active or inactive"})
		return
	}

	if err := s.store.UpdateSourceStatus(r.Context(), id, req.Status); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "source updated"})
}

func (s *Server) handleRemoveSource(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid source id"})
		return
	}

	removed, err := s.store.RemoveSource(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !removed {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "source not found"})
		return
	}
	s.logger.Info("Source removed: id=%d", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "source removed"})
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	slots, err := s.store.QuerySlots(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if slots == nil {
		slots = []models.SlotRecord{}
	}
	writeJSON(w, http.StatusOK, slots)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	slots, err := s.store.QuerySlots(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="booking_slots.csv"`)
	if err := s.csv.WriteSlots(w, slots); err != nil {
		s.logger.Error("CSV export failed: %v", err)
	}
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	report, err := s.analytics.Generate(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req models.TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SourceID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "url_id is required"})
		return
	}

	started, err := s.scheduler.TriggerSource(r.Context(), req.SourceID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if !started {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "source is already running"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": "parse started"})
}

func (s *Server) handleParseAll(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("scope") != "all"

	started, err := s.scheduler.TriggerAll(r.Context(), activeOnly)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"message": "parse started",
		"started": started,
	})
}

// ---------- Helpers ----------

func filterFromQuery(r *http.Request) (storage.SlotFilter, error) {
	filter := storage.SlotFilter{Limit: 100}
	q := r.URL.Query()

	if v := q.Get("url_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, err
		}
		filter.SourceID = id
	}
	filter.Venue = q.Get("venue")
	filter.CourtType = q.Get("court_type")
	if v := q.Get("date_from"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return filter, err
		}
		filter.DateFrom = d
	}
	if v := q.Get("date_to"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return filter, err
		}
		filter.DateTo = d
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
