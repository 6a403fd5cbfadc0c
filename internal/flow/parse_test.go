package flow

import (
	"errors"
	"testing"
	"time"
)

func TestParseMenuIndex(t *testing.T) {
	tests := []struct {
		in     string
		lo, hi int
		want   int
		ok     bool
	}{
		{"1", 1, 5, 1, true},
		{" 5 ", 1, 5, 5, true},
		{"05", 1, 5, 5, true},
		{"0", 0, 4, 0, true},
		{"0", 1, 5, 0, false},
		{"6", 1, 5, 0, false},
		{"-1", 0, 5, 0, false},
		{"+1", 1, 5, 0, false},
		{"1.", 1, 5, 0, false},
		{"1 2", 1, 5, 0, false},
		{"one", 1, 5, 0, false},
		{"", 1, 5, 0, false},
		{"99999999999999999999999", 0, 5, 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseMenuIndex(tt.in, tt.lo, tt.hi)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseMenuIndex(%q, %d, %d) = %d, %v; want %d, %v", tt.in, tt.lo, tt.hi, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseDate(t *testing.T) {
	loc := mustLocation(t)
	valid := map[string]string{
		"2099-12-31":       "2099-12-31",
		" 31-12-2099 ":     "2099-12-31",
		"31/12/2099":       "2099-12-31",
		"5 Mar 2030":       "2030-03-05",
		"5 march 2030":     "2030-03-05",
		"29 February 2028": "2028-02-29",
	}
	for in, want := range valid {
		d, err := ParseDate(in, loc)
		if err != nil {
			t.Errorf("ParseDate(%q) unexpected error: %v", in, err)
			continue
		}
		if got := d.Format("2006-01-02"); got != want {
			t.Errorf("ParseDate(%q) = %s, want %s", in, got, want)
		}
	}

	for _, in := range []string{"not-a-date", "", "2025-02-30", "2027-02-29", "31-31-2030", "2030-01-01T10:00:00Z", "tomorrow"} {
		if _, err := ParseDate(in, loc); !errors.Is(err, ErrInvalidDate) {
			t.Errorf("ParseDate(%q) expected ErrInvalidDate, got %v", in, err)
		}
	}
}

func TestParseBookingDateReferenceTimezone(t *testing.T) {
	loc := mustLocation(t)
	// 20:00 UTC on 2030-06-10 is already 2030-06-11 in Kolkata.
	now := time.Date(2030, 6, 10, 20, 0, 0, 0, time.UTC)

	if _, err := ParseBookingDate("2030-06-10", now, loc); !errors.Is(err, ErrPastDate) {
		t.Fatalf("expected ErrPastDate for the UTC day, got %v", err)
	}
	if _, err := ParseBookingDate("2030-06-11", now, loc); err != nil {
		t.Fatalf("today in the reference timezone must be accepted: %v", err)
	}
	if _, err := ParseBookingDate("2020-01-01", now, loc); !errors.Is(err, ErrPastDate) {
		t.Fatalf("expected ErrPastDate, got %v", err)
	}
	if _, err := ParseBookingDate("not-a-date", now, loc); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}
}

func mustLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(DefaultTimezone)
	if err != nil {
		t.Fatalf("load %s: %v", DefaultTimezone, err)
	}
	return loc
}
