package flow

import (
	"errors"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // reference timezone must resolve on hosts without zoneinfo

	"github.com/venuefarm/bookingbot/internal/models"
)

// DefaultTimezone is the reference timezone for "today" in past-date checks.
const DefaultTimezone = "Asia/Kolkata"

// DateLayouts are the accepted booking date formats, tried in order.
var DateLayouts = []string{
	models.DateLayout, // 2006-01-02
	"02-01-2006",
	"02/01/2006",
	"2 Jan 2006",
	"2 January 2006",
}

var (
	// ErrInvalidDate is returned for text that is not a real calendar day.
	ErrInvalidDate = errors.New("invalid date")
	// ErrPastDate is returned for a day before today in the reference timezone.
	ErrPastDate = errors.New("date is in the past")
)

// normalizeInput trims and lowercases a message for command matching.
func normalizeInput(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// ParseMenuIndex interprets text as a numeric menu choice in [lo, hi].
// Only plain base-10 digits are accepted; signs, spaces inside the number
// and trailing characters make the input invalid.
func ParseMenuIndex(text string, lo, hi int) (int, bool) {
	s := normalizeInput(text)
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	if n < lo || n > hi {
		return 0, false
	}
	return n, true
}

// ParseDate parses text as a calendar day in loc. Times of day are not accepted.
func ParseDate(text string, loc *time.Location) (time.Time, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return time.Time{}, ErrInvalidDate
	}
	for _, layout := range DateLayouts {
		if d, err := time.ParseInLocation(layout, s, loc); err == nil {
			return d, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// startOfDay returns midnight of t's calendar day in loc.
func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// ParseBookingDate parses text and rejects days before today.
// now is converted to loc before taking its calendar day; today itself is accepted.
func ParseBookingDate(text string, now time.Time, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(text, loc)
	if err != nil {
		return time.Time{}, err
	}
	if d.Before(startOfDay(now, loc)) {
		return d, ErrPastDate
	}
	return d, nil
}
