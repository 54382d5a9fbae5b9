package yclients

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"yclients-scraper/models"
	"yclients-scraper/utils"
)

// Selector lists, most specific first. The widget markup shifted between
// ui-kit custom elements and plain classed divs over time, so both shapes
// are recognized.
const (
	serviceBlockSelector = "ui-kit-simple-cell, .record__service, .service-item"
	serviceNameSelector  = "ui-kit-headline, .service-title"
	servicePriceSelector = "ui-kit-title, .service-price"
	serviceMetaSelector  = "ui-kit-body, .service-duration"
	providerSelector     = "ui-kit-subtitle, .service-provider"
	slotSelector         = ".time-slot, [data-time]"
	reviewsSelector      = ".reviews-count, [data-reviews]"
)

// Known venue codes embedded in booking URLs. Pages reached through
// redirects often lack a usable heading, so the URL is the more reliable
// venue signal.
var venuesByURLCode = map[string]string{
	"n1165596": "Нагатинская",
	"n1308467": "Корты-Сетки",
	"b861100":  "Padel Friends",
	"b1009933": "ТК Ракетлон",
	"b918666":  "Padel A33",
}

// Extractor parses raw booking-page markup into candidate slot records.
// It is schema-aware, not heuristic: blocks that do not carry the expected
// structure are skipped one at a time and never abort the page.
type Extractor struct {
	logger *utils.Logger
}

// NewExtractor creates a new Extractor
func NewExtractor(logger *utils.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract walks the service blocks of one fetched page and returns every
// candidate slot it can decompose. The result is complete for this byte
// slice; re-extracting requires a fresh fetch.
func (e *Extractor) Extract(source models.SourceConfig, markup []byte) ([]models.RawSlot, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse markup for %s: %w", source.URL, err)
	}

	venue := e.venueName(doc, source)
	extractedAt := time.Now()

	var candidates []models.RawSlot
	doc.Find(serviceBlockSelector).Each(func(i int, block *goquery.Selection) {
		slots, err := e.extractBlock(source, venue, extractedAt, block)
		if err != nil {
			e.logger.Debug("Skipping service block %d on %s: %v", i, source.URL, err)
			return
		}
		candidates = append(candidates, slots...)
	})

	e.logger.Info("Extracted %d candidate slots from %s", len(candidates), source.URL)
	return candidates, nil
}

// extractBlock decomposes one bookable-service block into its offered slots.
func (e *Extractor) extractBlock(source models.SourceConfig, venue string, extractedAt time.Time, block *goquery.Selection) ([]models.RawSlot, error) {
	serviceName := strings.TrimSpace(block.Find(serviceNameSelector).First().Text())
	if serviceName == "" {
		return nil, fmt.Errorf("no service name")
	}

	blockPriceText := strings.TrimSpace(block.Find(servicePriceSelector).First().Text())
	metaText := strings.TrimSpace(block.Find(serviceMetaSelector).First().Text())

	// Duration usually lives in the meta line ("1 ч 30 мин"); some venues
	// put it in the service name instead ("Padel Court 60 мин").
	duration := ParseDuration(metaText)
	if duration == 0 {
		duration = ParseDuration(serviceName)
	}

	provider := strings.TrimSpace(block.Find(providerSelector).First().Text())
	reviewCount := parseReviewCount(block.Find(reviewsSelector).First().Text())
	prepayment := hasPrepaymentMarker(block.Text())

	var slots []models.RawSlot
	block.Find(slotSelector).Each(func(j int, slot *goquery.Selection) {
		raw, err := e.extractSlot(source, venue, serviceName, blockPriceText, slot)
		if err != nil {
			e.logger.Debug("Skipping slot %d of %q on %s: %v", j, serviceName, source.URL, err)
			return
		}
		raw.Duration = duration
		raw.Provider = provider
		raw.ReviewCount = reviewCount
		raw.Prepayment = prepayment
		raw.ExtractedAt = extractedAt
		slots = append(slots, raw)
	})

	if len(slots) == 0 {
		return nil, fmt.Errorf("no parsable slots")
	}
	return slots, nil
}

// extractSlot reads one date/time offer. Date may sit on the slot element
// itself or on an enclosing calendar group; price may be overridden per
// slot, otherwise the block-level price applies.
func (e *Extractor) extractSlot(source models.SourceConfig, venue, serviceName, blockPriceText string, slot *goquery.Selection) (models.RawSlot, error) {
	rawDate, ok := slot.Attr("data-date")
	if !ok || strings.TrimSpace(rawDate) == "" {
		rawDate, _ = slot.Closest("[data-date]").Attr("data-date")
	}
	if strings.TrimSpace(rawDate) == "" {
		return models.RawSlot{}, fmt.Errorf("no date")
	}
	if _, err := ParseDate(rawDate, time.Now()); err != nil {
		return models.RawSlot{}, err
	}

	rawTime, ok := slot.Attr("data-time")
	if !ok || strings.TrimSpace(rawTime) == "" {
		rawTime = slot.Text()
	}
	clock, err := ParseClock(rawTime)
	if err != nil {
		return models.RawSlot{}, err
	}

	priceText := blockPriceText
	if own, ok := slot.Attr("data-price"); ok && strings.TrimSpace(own) != "" {
		priceText = own
	}
	amount, currency, free, err := ParsePrice(priceText)
	if err != nil {
		return models.RawSlot{}, err
	}

	seat, _ := slot.Attr("data-seat")
	if seat == "" {
		seat, _ = slot.Closest("[data-seat]").Attr("data-seat")
	}

	return models.RawSlot{
		SourceID:    source.ID,
		SourceURL:   source.URL,
		VenueName:   venue,
		ServiceName: serviceName,
		RawDate:     strings.TrimSpace(rawDate),
		RawTime:     clock,
		Price:       amount,
		Currency:    currency,
		Free:        free,
		SeatNumber:  seat,
	}, nil
}

// venueName resolves the display name of the booking location: configured
// name first, then known URL codes, then the page heading.
func (e *Extractor) venueName(doc *goquery.Document, source models.SourceConfig) string {
	if source.Name != "" {
		return source.Name
	}
	for code, name := range venuesByURLCode {
		if strings.Contains(source.URL, code) {
			return name
		}
	}
	if heading := strings.TrimSpace(doc.Find("h1").First().Text()); heading != "" {
		return heading
	}
	return "Unknown Venue"
}
