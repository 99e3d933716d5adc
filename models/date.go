package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// DateLayout is the wire format for calendar dates
const DateLayout = "2006-01-02"

// NewDate builds a calendar date at UTC midnight
func NewDate(year int, month time.Month, day int) datatypes.Date {
	return datatypes.Date(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf truncates t to its calendar date in t's own location
func DateOf(t time.Time) datatypes.Date {
	return NewDate(t.Date())
}

// ParseDate parses a YYYY-MM-DD string
func ParseDate(s string) (datatypes.Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return datatypes.Date{}, fmt.Errorf("invalid date %q: expected %s", s, DateLayout)
	}
	return DateOf(t), nil
}

// AddDays moves d by n calendar days
func AddDays(d datatypes.Date, n int) datatypes.Date {
	return DateOf(time.Time(d).AddDate(0, 0, n))
}

// FormatDate renders d as YYYY-MM-DD
func FormatDate(d datatypes.Date) string {
	return time.Time(d).Format(DateLayout)
}

// SameDate compares calendar dates ignoring location
func SameDate(a, b datatypes.Date) bool {
	return FormatDate(a) == FormatDate(b)
}
