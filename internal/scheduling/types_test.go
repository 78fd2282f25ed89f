package scheduling

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIntervalMidnightRollover(t *testing.T) {
	d := civil.Date{Year: 2025, Month: time.October, Day: 3}
	rec := AvailabilityRecord{
		UTCDate:      d,
		UTCStartTime: civil.Time{Hour: 16},
		UTCEndTime:   civil.Time{},
	}

	start, end := rec.Interval()
	assert.True(t, start.Equal(time.Date(2025, 10, 3, 16, 0, 0, 0, time.UTC)))
	assert.True(t, end.Equal(time.Date(2025, 10, 4, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 8*time.Hour, rec.Duration())
}

func TestIntervalEndBeforeStartStillEndsAtNextMidnight(t *testing.T) {
	rec := AvailabilityRecord{
		UTCDate:      civil.Date{Year: 2025, Month: time.December, Day: 31},
		UTCStartTime: civil.Time{Hour: 22},
		UTCEndTime:   civil.Time{Hour: 2},
	}
	start, end := rec.Interval()
	assert.True(t, end.After(start))
	assert.True(t, end.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestIntervalOrdinary(t *testing.T) {
	rec := AvailabilityRecord{
		UTCDate:      civil.Date{Year: 2025, Month: time.October, Day: 4},
		UTCStartTime: civil.Time{Hour: 0},
		UTCEndTime:   civil.Time{Hour: 1},
	}
	assert.Equal(t, time.Hour, rec.Duration())
}

func TestOverlapsHalfOpen(t *testing.T) {
	at := func(h, m int) time.Time { return time.Date(2025, 10, 3, h, m, 0, 0, time.UTC) }
	cases := []struct {
		name       string
		aStart     time.Time
		aEnd       time.Time
		bStart     time.Time
		bEnd       time.Time
		overlapped bool
	}{
		{"touching end to start", at(14, 0), at(14, 30), at(14, 30), at(15, 0), false},
		{"touching start to end", at(14, 30), at(15, 0), at(14, 0), at(14, 30), false},
		{"partial", at(14, 0), at(14, 30), at(14, 15), at(14, 45), true},
		{"contained", at(13, 0), at(16, 0), at(14, 0), at(14, 30), true},
		{"identical", at(14, 0), at(14, 30), at(14, 0), at(14, 30), true},
		{"disjoint", at(9, 0), at(10, 0), at(11, 0), at(12, 0), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.overlapped, Overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd))
			assert.Equal(t, tc.overlapped, Overlaps(tc.bStart, tc.bEnd, tc.aStart, tc.aEnd), "overlap must be symmetric")
		})
	}
}

func TestPreferenceWindows(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	at := func(h, m int) time.Time { return time.Date(2025, 10, 3, h, m, 0, 0, loc) }

	assert.True(t, PreferenceMorning.Matches(at(6, 0)))
	assert.True(t, PreferenceMorning.Matches(at(11, 59)))
	assert.False(t, PreferenceMorning.Matches(at(12, 0)))
	assert.True(t, PreferenceAfternoon.Matches(at(12, 0)))
	assert.False(t, PreferenceAfternoon.Matches(at(17, 0)))
	assert.True(t, PreferenceEvening.Matches(at(17, 0)))
	assert.False(t, PreferenceEvening.Matches(at(21, 0)))
	assert.True(t, PreferenceAny.Matches(at(3, 0)))
	assert.True(t, TimePreference("brunch").Matches(at(3, 0)))
}

func TestParseAvailabilityType(t *testing.T) {
	typ, err := ParseAvailabilityType("surgery_block")
	require.NoError(t, err)
	assert.Equal(t, AvailabilitySurgeryBlock, typ)
	assert.False(t, typ.Bookable())

	typ, err = ParseAvailabilityType("")
	require.NoError(t, err)
	assert.Equal(t, AvailabilityAvailable, typ)
	assert.True(t, AvailabilityEmergencyOnly.Bookable())

	_, err = ParseAvailabilityType("LUNCH")
	assert.Error(t, err)
}

func TestOperatingHoursBounds(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	d := civil.Date{Year: 2025, Month: time.October, Day: 3}

	open, close := OperatingHours{Open: civil.Time{Hour: 8}, Close: civil.Time{Hour: 18}}.Bounds(d, loc)
	assert.True(t, open.Equal(time.Date(2025, 10, 3, 15, 0, 0, 0, time.UTC)))
	assert.True(t, close.Equal(time.Date(2025, 10, 4, 1, 0, 0, 0, time.UTC)))

	open, close = OperatingHours{Open: civil.Time{Hour: 18}, Close: civil.Time{}}.Bounds(d, loc)
	assert.True(t, open.Equal(time.Date(2025, 10, 4, 1, 0, 0, 0, time.UTC)))
	assert.True(t, close.Equal(time.Date(2025, 10, 4, 7, 0, 0, 0, time.UTC)))
}
