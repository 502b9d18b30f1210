package domain

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used for due dates and capacity keys.
const DateLayout = "2006-01-02"

func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate truncates t to its calendar date in t's location.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

func AddDays(date string, days int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return FormatDate(t.AddDate(0, 0, days)), nil
}

// AddMonths keeps the day of month, clamping to the last day of shorter months
// (2024-01-31 + 1 month = 2024-02-29).
func AddMonths(date string, months int) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	y, m, d := t.Date()
	first := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).AddDate(0, months, 0)
	last := first.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return FormatDate(time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC)), nil
}

// DaysBetween returns the whole calendar days from a to b (negative when b is before a).
func DaysBetween(a, b string) (int, error) {
	ta, err := ParseDate(a)
	if err != nil {
		return 0, err
	}
	tb, err := ParseDate(b)
	if err != nil {
		return 0, err
	}
	return int(tb.Sub(ta).Hours() / 24), nil
}
