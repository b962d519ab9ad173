package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMonthRef(t *testing.T) {
	got, err := ParseMonthRef("2026-08")
	require.NoError(t, err)
	assert.Equal(t, "2026-08", got)

	for _, raw := range []string{"", "08/2026", "2026-13", "2026-8", "2026-08-01"} {
		_, err := ParseMonthRef(raw)
		assert.Error(t, err, "expected %q to be rejected", raw)
	}
}

func TestMonthRefOf(t *testing.T) {
	ts := time.Date(2026, time.February, 28, 23, 30, 0, 0, time.FixedZone("BRT", -3*3600))
	// 23:30 BRT is already March in UTC.
	assert.Equal(t, "2026-03", MonthRefOf(ts))
}

func TestDueDateForClampsToMonthEnd(t *testing.T) {
	cases := []struct {
		monthRef string
		day      int
		want     time.Time
	}{
		{"2026-08", 10, time.Date(2026, time.August, 10, 0, 0, 0, 0, time.UTC)},
		{"2026-02", 31, time.Date(2026, time.February, 28, 0, 0, 0, 0, time.UTC)},
		{"2028-02", 30, time.Date(2028, time.February, 29, 0, 0, 0, 0, time.UTC)},
		{"2026-04", 31, time.Date(2026, time.April, 30, 0, 0, 0, 0, time.UTC)},
		{"2026-08", 0, time.Date(2026, time.August, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got, err := DueDateFor(tc.monthRef, tc.day)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "monthRef=%s day=%d", tc.monthRef, tc.day)
	}

	_, err := DueDateFor("bogus", 10)
	assert.Error(t, err)
}
