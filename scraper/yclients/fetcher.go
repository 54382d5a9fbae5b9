package yclients

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"yclients-scraper/config"
	"yclients-scraper/utils"
)

// FetchError classifies an HTTP failure so the caller knows whether the
// attempt was retried internally.
type FetchError struct {
	URL       string
	Status    int // 0 when no response was received
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: %s failure (HTTP %d): %v", e.URL, kind, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s failure: %v", e.URL, kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher retrieves raw booking-page markup over plain HTTP. Transient
// failures (timeouts, connection errors, 5xx) are retried with backoff;
// 4xx and malformed URLs fail immediately.
type Fetcher struct {
	client      *http.Client
	maxRetries  int
	rateLimiter *utils.RateLimiter
	logger      *utils.Logger
}

// NewFetcher creates a Fetcher from application config
func NewFetcher(cfg *config.Config, logger *utils.Logger) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: time.Duration(cfg.FetchTimeoutSec) * time.Second,
		},
		maxRetries:  cfg.MaxRetries,
		rateLimiter: utils.NewRateLimiter(cfg.RateLimitDelay),
		logger:      logger,
	}
}

// Fetch downloads one booking page and returns its raw markup bytes.
// The returned error, if any, is a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	u, err := url.ParseRequestURI(pageURL)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}

	var body []byte
	err = utils.RetryWithBackoff(f.maxRetries, func() error {
		f.rateLimiter.Wait(u.Host)
		b, err := f.fetchOnce(ctx, pageURL)
		if err != nil {
			var fe *FetchError
			if errors.As(err, &fe) && !fe.Transient {
				return &utils.Permanent{Err: err}
			}
			return err
		}
		body = b
		return nil
	}, f.logger)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, fe
		}
		return nil, &FetchError{URL: pageURL, Transient: true, Err: err}
	}
	return body, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Err: err}
	}

	// Booking pages serve reduced markup to obvious bots
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ru-RU,ru;q=0.9,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		// Timeouts and connection failures are worth another attempt
		return nil, &FetchError{URL: pageURL, Transient: true, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return nil, &FetchError{URL: pageURL, Status: resp.StatusCode, Transient: true,
			Err: fmt.Errorf("server error")}
	case resp.StatusCode >= 400:
		return nil, &FetchError{URL: pageURL, Status: resp.StatusCode,
			Err: fmt.Errorf("client error")}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: pageURL, Status: resp.StatusCode, Transient: true, Err: err}
	}
	return body, nil
}
