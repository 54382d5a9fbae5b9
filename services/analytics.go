package services

import (
	"context"

	"yclients-scraper/models"
	"yclients-scraper/storage"
	"yclients-scraper/utils"
)

// AnalyticsService computes aggregates over the stored slot dataset
type AnalyticsService struct {
	store  storage.Store
	logger *utils.Logger
}

// NewAnalyticsService creates a new AnalyticsService
func NewAnalyticsService(store storage.Store, logger *utils.Logger) *AnalyticsService {
	return &AnalyticsService{store: store, logger: logger}
}

// Generate builds the report served by the /analytics endpoint
func (s *AnalyticsService) Generate(ctx context.Context) (*models.AnalyticsReport, error) {
	slots, err := s.store.QuerySlots(ctx, storage.SlotFilter{})
	if err != nil {
		return nil, err
	}
	sources, err := s.store.ListSources(ctx)
	if err != nil {
		return nil, err
	}

	report := &models.AnalyticsReport{
		TotalSources:   len(sources),
		SlotsByVenue:   make(map[string]int),
		SlotsByCourt:   make(map[string]int),
		SlotsByTimeCat: make(map[string]int),
		SlotsByDate:    make(map[string]int),
	}

	if len(slots) == 0 {
		s.logger.Warn("No slots stored yet, analytics report is empty")
		return report, nil
	}

	var totalPrice int
	report.MinPrice = slots[0].Price
	report.MaxPrice = slots[0].Price

	for _, slot := range slots {
		report.TotalSlots++
		totalPrice += slot.Price

		if slot.Price < report.MinPrice {
			report.MinPrice = slot.Price
		}
		if slot.Price > report.MaxPrice {
			report.MaxPrice = slot.Price
		}

		if slot.VenueName != "" {
			report.SlotsByVenue[slot.VenueName]++
		}
		report.SlotsByCourt[slot.CourtType]++
		report.SlotsByTimeCat[slot.TimeCategory]++
		report.SlotsByDate[slot.Date.Format("2006-01-02")]++
	}

	report.AveragePrice = float64(totalPrice) / float64(report.TotalSlots)
	return report, nil
}
