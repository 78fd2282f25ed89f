package phoneparse

import (
	"bytes"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vetcare-scheduling/internal/observability/metrics"
	"github.com/wolfman30/vetcare-scheduling/internal/scheduling"
	"github.com/wolfman30/vetcare-scheduling/pkg/logging"
)

// Friday, October 3 2025, mid-morning in Los Angeles.
func fixedParser(t *testing.T, opts ...Option) *Parser {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	clock := func() time.Time { return time.Date(2025, 10, 3, 10, 0, 0, 0, loc) }
	return New(loc, logging.Default(), append([]Option{WithClock(clock)}, opts...)...)
}

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func TestParseDate(t *testing.T) {
	p := fixedParser(t)
	cases := []struct {
		input string
		want  civil.Date
		form  DateForm
	}{
		{"tomorrow", date(2025, time.October, 4), FormRelative},
		{"Tomorrow, please", date(2025, time.October, 4), FormRelative},
		{"today", date(2025, time.October, 3), FormRelative},
		{"tonight", date(2025, time.October, 3), FormRelative},
		{"the day after tomorrow", date(2025, time.October, 5), FormRelative},
		{"next week", date(2025, time.October, 10), FormRelative},
		{"2025-10-15", date(2025, time.October, 15), FormISO},
		{"10/15", date(2025, time.October, 15), FormNumeric},
		{"10-15", date(2025, time.October, 15), FormNumeric},
		{"3/1", date(2026, time.March, 1), FormNumeric},
		{"12/25/25", date(2025, time.December, 25), FormNumeric},
		{"September 14", date(2026, time.September, 14), FormMonthName},
		{"Oct 14th", date(2025, time.October, 14), FormMonthName},
		{"sept 2nd", date(2026, time.September, 2), FormMonthName},
		{"14 October", date(2025, time.October, 14), FormMonthName},
		{"the 20th of november", date(2025, time.November, 20), FormMonthName},
		{"October 3", date(2025, time.October, 3), FormMonthName},
		{"friday", date(2025, time.October, 3), FormWeekday},
		{"this friday", date(2025, time.October, 3), FormWeekday},
		{"next friday", date(2025, time.October, 10), FormWeekday},
		{"Monday", date(2025, time.October, 6), FormWeekday},
		{"next tuesday", date(2025, time.October, 7), FormWeekday},
		{"on thurs", date(2025, time.October, 9), FormWeekday},
		{"saturday", date(2025, time.October, 4), FormWeekday},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got := p.ParseDate(tc.input)
			assert.Equal(t, tc.want, got.Date)
			assert.Equal(t, tc.form, got.Form)
			assert.False(t, got.Defaulted)
			assert.Equal(t, tc.input, got.Input)
		})
	}
}

func TestParseDateDefaultsToTomorrowAndSaysSo(t *testing.T) {
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	var buf bytes.Buffer
	reg := prometheus.NewRegistry()
	p := New(loc, logging.NewWithWriter(&buf, "info"),
		WithClock(func() time.Time { return time.Date(2025, 10, 3, 10, 0, 0, 0, loc) }),
		WithMetrics(metrics.NewSchedulingMetrics(reg)),
	)

	for _, input := range []string{"whenever works", "", "2/30", "the thirty-second"} {
		got := p.ParseDate(input)
		assert.True(t, got.Defaulted, input)
		assert.Equal(t, FormDefault, got.Form, input)
		assert.Equal(t, date(2025, time.October, 4), got.Date, input)
	}
	assert.Contains(t, buf.String(), "defaulting to tomorrow")
	assert.Contains(t, buf.String(), `"level":"WARN"`)

	families, err := reg.Gather()
	require.NoError(t, err)
	var defaults float64
	for _, fam := range families {
		if fam.GetName() == "vetcare_voice_date_defaults_total" {
			defaults = fam.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, 4.0, defaults)
}

func TestParseDateUsesPracticeZone(t *testing.T) {
	// 05:30 UTC on Oct 4 is still Oct 3 in Los Angeles.
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	p := New(loc, nil, WithClock(func() time.Time { return time.Date(2025, 10, 4, 5, 30, 0, 0, time.UTC) }))
	assert.Equal(t, date(2025, time.October, 4), p.ParseDate("tomorrow").Date)
	assert.Equal(t, date(2025, time.October, 3), p.Today())
}

func TestParseDateLeapDay(t *testing.T) {
	loc := time.UTC
	p := New(loc, nil, WithClock(func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, loc) }))
	got := p.ParseDate("2/29")
	assert.True(t, got.Defaulted, "neither 2025 nor 2026 has Feb 29")

	p = New(loc, nil, WithClock(func() time.Time { return time.Date(2027, 1, 10, 0, 0, 0, 0, loc) }))
	got = p.ParseDate("2/29")
	assert.Equal(t, date(2028, time.February, 29), got.Date)
}

func TestParseTime(t *testing.T) {
	cases := []struct {
		input string
		want  civil.Time
	}{
		{"2:30 PM", civil.Time{Hour: 14, Minute: 30}},
		{"2:30pm", civil.Time{Hour: 14, Minute: 30}},
		{"230pm", civil.Time{Hour: 14, Minute: 30}},
		{"2 p.m.", civil.Time{Hour: 14}},
		{"2pm", civil.Time{Hour: 14}},
		{"9 AM", civil.Time{Hour: 9}},
		{"9:45 a.m.", civil.Time{Hour: 9, Minute: 45}},
		{"1030am", civil.Time{Hour: 10, Minute: 30}},
		{"see you at 3p", civil.Time{Hour: 15}},
		{"10:30 a vet visit", civil.Time{Hour: 10, Minute: 30}},
		{"8:15 p vet visit", civil.Time{Hour: 8, Minute: 15}},
		{"12 pm", civil.Time{Hour: 12}},
		{"12:15 am", civil.Time{Minute: 15}},
		{"around 4 in the afternoon", civil.Time{Hour: 16}},
		{"10 in the morning", civil.Time{Hour: 10}},
		{"7 o'clock in the evening", civil.Time{Hour: 19}},
		{"14:30", civil.Time{Hour: 14, Minute: 30}},
		{"08:05:30", civil.Time{Hour: 8, Minute: 5, Second: 30}},
		{"noon", civil.Time{Hour: 12}},
		{"at noon tomorrow", civil.Time{Hour: 12}},
		{"Midnight", civil.Time{}},
	}
	for _, tc := range cases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseTime(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseTimeNeverGuesses(t *testing.T) {
	for _, input := range []string{"garbage", "", "sometime", "13 pm", "at 3", "25:00", "9 a vet visit", "2 pets"} {
		_, err := ParseTime(input)
		assert.ErrorIs(t, err, ErrTimeParseFailed, input)
	}
}

func TestClassifyTimePreference(t *testing.T) {
	cases := map[string]scheduling.TimePreference{
		"morning works best":        scheduling.PreferenceMorning,
		"early if possible":         scheduling.PreferenceMorning,
		"sometime in the afternoon": scheduling.PreferenceAfternoon,
		"after lunch":               scheduling.PreferenceAfternoon,
		"Evening, after work":       scheduling.PreferenceEvening,
		"anytime":                   scheduling.PreferenceAny,
		"morning or afternoon":      scheduling.PreferenceAny,
		"I don't know":              scheduling.PreferenceAny,
		"":                          scheduling.PreferenceAny,
	}
	for input, want := range cases {
		assert.Equal(t, want, ClassifyTimePreference(input), input)
	}
}
