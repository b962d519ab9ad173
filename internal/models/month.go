package models

import (
	"time"

	appErrors "github.com/mauriciomholiveira/cobranca-api/pkg/errors"
)

// MonthRefLayout is the billing period token format (mes_ref).
const MonthRefLayout = "2006-01"

// ParseMonthRef validates a YYYY-MM billing period token.
func ParseMonthRef(raw string) (string, error) {
	t, err := time.Parse(MonthRefLayout, raw)
	if err != nil {
		return "", appErrors.Clone(appErrors.ErrInvalidMonthRef, "")
	}
	return t.Format(MonthRefLayout), nil
}

// CurrentMonthRef returns the token for the current calendar month.
func CurrentMonthRef() string {
	return time.Now().UTC().Format(MonthRefLayout)
}

// MonthRefOf formats a timestamp as a billing period token.
func MonthRefOf(t time.Time) string {
	return t.UTC().Format(MonthRefLayout)
}

// DueDateFor computes the due date for a billing period, clamping the
// configured day to the month's length (a day-31 client still gets a valid
// date in February).
func DueDateFor(monthRef string, day int) (time.Time, error) {
	start, err := time.Parse(MonthRefLayout, monthRef)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrInvalidMonthRef, "")
	}
	if day < 1 {
		day = 1
	}
	lastDay := start.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(start.Year(), start.Month(), day, 0, 0, 0, 0, time.UTC), nil
}
