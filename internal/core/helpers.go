package core

import (
	"time"
)

// DefaultPageSize is the entry and audit list page size when none is given.
const DefaultPageSize = 50

// dateOnly returns midnight UTC of the given day.
func dateOnly(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses an ISO date (YYYY-MM-DD) into midnight UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// yesNo renders a flag the way the spreadsheet shows it.
func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// pageLimit applies the default page size to non-positive limits.
func pageLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	return limit
}
