package yclients

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	amountRegex   = regexp.MustCompile(`\d+`)
	thousandSep   = regexp.MustCompile(`(\d)[\s,\x{00A0}]+(\d)`)
	hourRegex     = regexp.MustCompile(`(\d+)\s*ч`)
	minuteRegex   = regexp.MustCompile(`(\d+)\s*мин`)
	clockRegex    = regexp.MustCompile(`(\d{1,2}):(\d{2})`)
	numericDate   = regexp.MustCompile(`^(\d{1,2})\.(\d{1,2})\.(\d{4})$`)
	russianDate   = regexp.MustCompile(`(\d{1,2})\s+([а-яА-Я]+)`)
	reviewsRegex  = regexp.MustCompile(`\d+`)
	freeMarkers   = []string{"бесплатно", "free"}
	prepayMarkers = []string{"предоплата", "prepayment"}
)

// Russian month name prefixes in genitive form, as they appear in the
// booking calendar ("5 августа").
var russianMonths = map[string]time.Month{
	"январ":   time.January,
	"феврал":  time.February,
	"март":    time.March,
	"апрел":   time.April,
	"мая":     time.May,
	"май":     time.May,
	"июн":     time.June,
	"июл":     time.July,
	"август":  time.August,
	"сентябр": time.September,
	"октябр":  time.October,
	"ноябр":   time.November,
	"декабр":  time.December,
}

// ParsePrice turns raw price text like "5 000 ₽", "6,000 ₽" or "2500 руб"
// into an integer amount plus currency tag. Text explicitly tagged free
// yields amount 0 with free=true. Text with no digits is an error.
func ParsePrice(raw string) (amount int, currency string, free bool, err error) {
	cleaned := strings.TrimSpace(raw)
	lower := strings.ToLower(cleaned)
	for _, marker := range freeMarkers {
		if strings.Contains(lower, marker) {
			return 0, "₽", true, nil
		}
	}
	if cleaned == "" {
		return 0, "", false, fmt.Errorf("empty price text")
	}

	// Collapse thousand separators: "5 000" / "6,000" -> "5000" / "6000"
	for {
		collapsed := thousandSep.ReplaceAllString(cleaned, "$1$2")
		if collapsed == cleaned {
			break
		}
		cleaned = collapsed
	}

	// A bare clock value ("15:00") sometimes leaks into price cells
	if clockRegex.MatchString(cleaned) && !strings.ContainsAny(cleaned, "₽") && !strings.Contains(lower, "руб") {
		return 0, "", false, fmt.Errorf("price text %q looks like a time value", raw)
	}

	digits := amountRegex.FindString(cleaned)
	if digits == "" {
		return 0, "", false, fmt.Errorf("no digits in price text %q", raw)
	}
	amount, err = strconv.Atoi(digits)
	if err != nil {
		return 0, "", false, fmt.Errorf("parse price %q: %w", raw, err)
	}

	currency = "₽"
	if strings.Contains(lower, "руб") {
		currency = "руб"
	}
	return amount, currency, false, nil
}

// ParseDuration extracts a duration in minutes from service text like
// "1 ч 30 мин", "90 мин" or "Padel Court 60 мин". It returns 0 when no
// duration pattern matches; acceptance is decided later by the normalizer.
func ParseDuration(raw string) int {
	total := 0
	if m := hourRegex.FindStringSubmatch(raw); m != nil {
		if h, err := strconv.Atoi(m[1]); err == nil {
			total += h * 60
		}
	}
	if m := minuteRegex.FindStringSubmatch(raw); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			total += n
		}
	}
	return total
}

// ParseDate parses slot date text against the formats the booking pages use:
// ISO "2006-01-02", numeric "02.01.2006" and Russian "5 августа" (the
// calendar omits the year, so the current one is assumed).
func ParseDate(raw string, now time.Time) (time.Time, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return time.Time{}, fmt.Errorf("empty date text")
	}

	if d, err := time.Parse("2006-01-02", text); err == nil {
		return d, nil
	}
	if m := numericDate.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if month >= 1 && month <= 12 {
			return validDay(year, time.Month(month), day)
		}
		return time.Time{}, fmt.Errorf("bad month in date %q", raw)
	}
	if m := russianDate.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[1])
		name := strings.ToLower(m[2])
		for prefix, month := range russianMonths {
			if strings.HasPrefix(name, prefix) {
				d, err := validDay(now.Year(), month, day)
				if err != nil {
					return time.Time{}, err
				}
				// The calendar omits the year. A date more than half a year
				// behind now is next year's (December scrape of a January
				// slot), not a stale listing.
				if d.Before(now.AddDate(0, -6, 0)) {
					return validDay(now.Year()+1, month, day)
				}
				return d, nil
			}
		}
		return time.Time{}, fmt.Errorf("unknown month in date %q", raw)
	}
	return time.Time{}, fmt.Errorf("unrecognized date text %q", raw)
}

func validDay(year int, month time.Month, day int) (time.Time, error) {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if d.Day() != day {
		return time.Time{}, fmt.Errorf("day %d out of range for %s", day, month)
	}
	return d, nil
}

// ParseClock normalizes time-of-day text to "HH:MM".
func ParseClock(raw string) (string, error) {
	m := clockRegex.FindStringSubmatch(raw)
	if m == nil {
		return "", fmt.Errorf("unrecognized time text %q", raw)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return "", fmt.Errorf("time %q out of range", raw)
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

// ClockMinutes converts a normalized "HH:MM" value to minutes past midnight.
func ClockMinutes(clock string) (int, error) {
	m := clockRegex.FindStringSubmatch(clock)
	if m == nil {
		return 0, fmt.Errorf("bad clock value %q", clock)
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return 0, fmt.Errorf("clock value %q out of range", clock)
	}
	return hour*60 + minute, nil
}

func parseReviewCount(raw string) int {
	digits := reviewsRegex.FindString(raw)
	if digits == "" {
		return 0
	}
	n, _ := strconv.Atoi(digits)
	return n
}

func hasPrepaymentMarker(raw string) bool {
	lower := strings.ToLower(raw)
	for _, marker := range prepayMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
