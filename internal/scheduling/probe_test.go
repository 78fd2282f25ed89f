package scheduling

import (
	"fmt"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vetcare-scheduling/internal/timezone"
)

// touchedUTCDates walks the local day minute by minute and collects the UTC
// date of every instant.
func touchedUTCDates(d civil.Date, loc *time.Location) map[civil.Date]struct{} {
	start := timezone.StartOfDay(d, loc)
	end := timezone.StartOfDay(d.AddDays(1), loc)
	touched := make(map[civil.Date]struct{})
	for t := start; t.Before(end); t = t.Add(time.Minute) {
		touched[civil.DateOf(t.UTC())] = struct{}{}
	}
	return touched
}

func assertProbeCoversDay(t *testing.T, d civil.Date, loc *time.Location) {
	t.Helper()
	touched := touchedUTCDates(d, loc)
	probed := candidateUTCDates(d, loc)
	for utcDate := range touched {
		if !containsDate(probed, utcDate) {
			t.Fatalf("%s in %s: probe %v misses UTC date %s", d, loc, probed, utcDate)
		}
	}
	if len(probed) != len(touched) {
		t.Fatalf("%s in %s: probe %v includes dates the day never touches", d, loc, probed)
	}
}

func TestProbeCoversEveryQuarterHourOffset(t *testing.T) {
	dates := []civil.Date{
		{Year: 2024, Month: time.February, Day: 29},
		{Year: 2025, Month: time.January, Day: 1},
		{Year: 2025, Month: time.March, Day: 9},
		{Year: 2025, Month: time.October, Day: 3},
		{Year: 2025, Month: time.December, Day: 31},
	}
	for minutes := -12 * 60; minutes <= 14*60; minutes += 15 {
		loc := time.FixedZone(fmt.Sprintf("offset%+d", minutes), minutes*60)
		for _, d := range dates {
			assertProbeCoversDay(t, d, loc)
		}
	}
}

func TestProbeCoversRealZonesAllYear(t *testing.T) {
	zones := []string{
		"America/Los_Angeles",
		"Pacific/Kiritimati",
		"Pacific/Pago_Pago",
		"Asia/Kathmandu",
		"Australia/Lord_Howe",
		"America/Santiago",
		"America/St_Johns",
		"Pacific/Chatham",
		"Europe/London",
	}
	first := civil.Date{Year: 2025, Month: time.January, Day: 1}
	for _, name := range zones {
		loc, err := timezone.Load(name)
		require.NoError(t, err)
		for d := first; d.Year == 2025; d = d.AddDays(1) {
			assertProbeCoversDay(t, d, loc)
		}
	}
}

func TestCandidateUTCDates(t *testing.T) {
	d := civil.Date{Year: 2025, Month: time.October, Day: 3}

	got, err := CandidateUTCDates(d, "America/Los_Angeles")
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{d, d.AddDays(1)}, got)

	got, err = CandidateUTCDates(d, "Pacific/Kiritimati")
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{d.AddDays(-1), d}, got)

	got, err = CandidateUTCDates(d, "UTC")
	require.NoError(t, err)
	assert.Equal(t, []civil.Date{d}, got)

	_, err = CandidateUTCDates(d, "Mars/Olympus_Mons")
	assert.ErrorIs(t, err, timezone.ErrInvalidTimezone)
}
