package timehelper

import (
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// GetTodaysDateString returns today's date in loc as 'YYYY-MM-DD'.
func GetTodaysDateString(now time.Time, loc *time.Location) string {
	return now.In(loc).Format(DateLayout)
}

// SortKey joins a date and clock time into a key that sorts chronologically.
func SortKey(date, clock string) string {
	return date + " " + clock
}

// ParseLocal reads a date and an optional clock time as a wall-clock instant in loc.
func ParseLocal(date, clock string, loc *time.Location) (time.Time, error) {
	if clock == "" {
		return time.ParseInLocation(DateLayout, date, loc)
	}
	t, err := time.ParseInLocation(DateLayout+" "+ClockLayout, SortKey(date, clock), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date/time %q %q: %w", date, clock, err)
	}
	return t, nil
}
