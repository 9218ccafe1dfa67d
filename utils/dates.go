package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

const DateFormat = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date")

// ParseDate parses a YYYY-MM-DD calendar date sent by a client.
func ParseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(strings.TrimSpace(s))
	if err != nil || !d.IsValid() {
		return civil.Date{}, fmt.Errorf("%w: %q (expected %s)", ErrInvalidDate, s, DateFormat)
	}
	return d, nil
}

// ParseOptionalDate returns fallback when s is empty.
func ParseOptionalDate(s string, fallback civil.Date) (civil.Date, error) {
	if strings.TrimSpace(s) == "" {
		return fallback, nil
	}
	return ParseDate(s)
}

// Today is the calendar date at instant now as seen from loc.
func Today(loc *time.Location, now time.Time) civil.Date {
	if loc == nil {
		loc = time.UTC
	}
	return civil.DateOf(now.In(loc))
}

func Weekday(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}

// MinDate and MaxDate clamp query windows.
func MinDate(a, b civil.Date) civil.Date {
	if a.Before(b) {
		return a
	}
	return b
}

func MaxDate(a, b civil.Date) civil.Date {
	if a.After(b) {
		return a
	}
	return b
}

// MonthBounds returns the first and last day of the given month.
func MonthBounds(year int, month time.Month) (civil.Date, civil.Date) {
	first := civil.Date{Year: year, Month: month, Day: 1}
	last := civil.DateOf(first.In(time.UTC).AddDate(0, 1, -1))
	return first, last
}
