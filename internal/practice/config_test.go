package practice

import (
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vetcare-scheduling/internal/scheduling"
)

func TestHoursOnPrecedence(t *testing.T) {
	cfg := DefaultConfig(uuid.New(), "America/Los_Angeles")
	cfg.Closures = []string{"2025-12-25"}
	cfg.HoursOverrides = map[string]DayHours{
		"2025-12-24": {Open: "08:00", Close: "12:00"},
		"2025-12-28": {Open: "10:00", Close: "14:00"}, // a Sunday
	}

	friday := civil.Date{Year: 2025, Month: time.October, Day: 3}
	hours, err := cfg.HoursOn(friday)
	require.NoError(t, err)
	require.NotNil(t, hours)
	assert.Equal(t, scheduling.OperatingHours{Open: civil.Time{Hour: 8}, Close: civil.Time{Hour: 18}}, *hours)

	hours, err = cfg.HoursOn(civil.Date{Year: 2025, Month: time.October, Day: 4})
	require.NoError(t, err)
	assert.Equal(t, civil.Time{Hour: 13}, hours.Close, "saturday half day")

	hours, err = cfg.HoursOn(civil.Date{Year: 2025, Month: time.October, Day: 5})
	require.NoError(t, err)
	assert.Nil(t, hours, "sunday closed")

	hours, err = cfg.HoursOn(civil.Date{Year: 2025, Month: time.December, Day: 25})
	require.NoError(t, err)
	assert.Nil(t, hours, "closure")

	hours, err = cfg.HoursOn(civil.Date{Year: 2025, Month: time.December, Day: 24})
	require.NoError(t, err)
	assert.Equal(t, civil.Time{Hour: 12}, hours.Close)

	hours, err = cfg.HoursOn(civil.Date{Year: 2025, Month: time.December, Day: 28})
	require.NoError(t, err)
	require.NotNil(t, hours, "override opens a normally closed day")
	assert.Equal(t, civil.Time{Hour: 10}, hours.Open)
}

func TestHoursOnWithoutWeeklyScheduleIsAllDay(t *testing.T) {
	cfg := &Config{PracticeID: uuid.New(), Timezone: "UTC"}
	hours, err := cfg.HoursOn(civil.Date{Year: 2025, Month: time.October, Day: 5})
	require.NoError(t, err)
	require.NotNil(t, hours)
	assert.Equal(t, scheduling.OperatingHours{}, *hours)
}

func TestValidate(t *testing.T) {
	good := DefaultConfig(uuid.New(), "America/Los_Angeles")
	require.NoError(t, good.Validate())

	cases := map[string]func(c *Config){
		"missing id":     func(c *Config) { c.PracticeID = uuid.Nil },
		"bad timezone":   func(c *Config) { c.Timezone = "Pacific/Atlantis" },
		"empty timezone": func(c *Config) { c.Timezone = "" },
		"bad hours":      func(c *Config) { c.BusinessHours.Sunday = &DayHours{Open: "9am", Close: "5pm"} },
		"bad closure":    func(c *Config) { c.Closures = []string{"12/25"} },
		"bad override":   func(c *Config) { c.HoursOverrides = map[string]DayHours{"2025-12-24": {Open: "25:00", Close: "12:00"}} },
		"negative slot":  func(c *Config) { c.SlotDurationMinutes = -5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig(uuid.New(), "America/Los_Angeles")
			mutate(cfg)
			err := cfg.Validate()
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestErrNotFoundMatchesScheduling(t *testing.T) {
	assert.ErrorIs(t, ErrNotFound, scheduling.ErrNotFound)
}
