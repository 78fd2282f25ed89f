package scheduling

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/vetcare-scheduling/internal/timezone"
)

func TestSplitLocalBlock(t *testing.T) {
	cases := []struct {
		name  string
		tz    string
		start civil.Time
		end   civil.Time
		want  []AvailabilityRecord
	}{
		{
			name:  "pacific workday crosses UTC midnight",
			tz:    "America/Los_Angeles",
			start: civil.Time{Hour: 9},
			end:   civil.Time{Hour: 18},
			want: []AvailabilityRecord{
				{UTCDate: oct3, UTCStartTime: civil.Time{Hour: 16}, UTCEndTime: civil.Time{}, IsActive: true},
				{UTCDate: oct4, UTCStartTime: civil.Time{}, UTCEndTime: civil.Time{Hour: 1}, IsActive: true},
			},
		},
		{
			name:  "pacific morning stays on one UTC date",
			tz:    "America/Los_Angeles",
			start: civil.Time{Hour: 8},
			end:   civil.Time{Hour: 12},
			want: []AvailabilityRecord{
				{UTCDate: oct3, UTCStartTime: civil.Time{Hour: 15}, UTCEndTime: civil.Time{Hour: 19}, IsActive: true},
			},
		},
		{
			name:  "tokyo morning starts on previous UTC date",
			tz:    "Asia/Tokyo",
			start: civil.Time{Hour: 8},
			end:   civil.Time{Hour: 17},
			want: []AvailabilityRecord{
				{UTCDate: oct3.AddDays(-1), UTCStartTime: civil.Time{Hour: 23}, UTCEndTime: civil.Time{}, IsActive: true},
				{UTCDate: oct3, UTCStartTime: civil.Time{}, UTCEndTime: civil.Time{Hour: 8}, IsActive: true},
			},
		},
		{
			name:  "end of day",
			tz:    "UTC",
			start: civil.Time{Hour: 20},
			end:   civil.Time{},
			want: []AvailabilityRecord{
				{UTCDate: oct3, UTCStartTime: civil.Time{Hour: 20}, UTCEndTime: civil.Time{}, IsActive: true},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			loc := mustLoad(t, tc.tz)
			got, err := SplitLocalBlock(oct3, tc.start, tc.end, loc)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSplitLocalBlockPreservesDuration(t *testing.T) {
	for _, name := range propertyZones {
		loc := mustLoad(t, name)
		segs, err := SplitLocalBlock(oct3, civil.Time{Hour: 6}, civil.Time{Hour: 22, Minute: 30}, loc)
		require.NoError(t, err)
		var total time.Duration
		for i, seg := range segs {
			start, end := seg.Interval()
			total += end.Sub(start)
			assert.Equal(t, oct3, timezone.LocalDate(start, loc), "segment %d in %s", i, name)
		}
		assert.Equal(t, 16*time.Hour+30*time.Minute, total, name)
	}
}

func TestSplitLocalBlockRejectsInvertedBlock(t *testing.T) {
	_, err := SplitLocalBlock(oct3, civil.Time{Hour: 17}, civil.Time{Hour: 9}, time.UTC)
	assert.ErrorIs(t, err, ErrInvalidBlock)
}

func TestCreateBlockThenComputeSlots(t *testing.T) {
	f := newFixture(t)
	writer := NewAvailabilityWriter(f.store, nil)

	segments, err := writer.CreateBlock(context.Background(), BlockRequest{
		VetID:      f.vetID,
		PracticeID: f.practiceID,
		LocalDate:  oct3,
		Start:      civil.Time{Hour: 9},
		End:        civil.Time{Hour: 18},
		Timezone:   "America/Los_Angeles",
	})
	require.NoError(t, err)
	require.Len(t, segments, 2)
	for _, seg := range segments {
		assert.NotEqual(t, uuid.Nil, seg.ID)
		assert.Equal(t, AvailabilityAvailable, seg.Type)
	}

	q := f.query(oct3, "America/Los_Angeles", 60)
	q.Limit = -1
	res, err := f.service.ComputeSlots(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, res.Slots, 9)
	assert.Equal(t, "5:00 PM", res.Slots[8].LocalTime)

	require.NoError(t, writer.Deactivate(context.Background(), f.practiceID, segments[1].ID))
	res, err = f.service.ComputeSlots(context.Background(), q)
	require.NoError(t, err)
	assert.Len(t, res.Slots, 8)

	err = writer.Deactivate(context.Background(), f.practiceID, segments[1].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateBlockValidation(t *testing.T) {
	writer := NewAvailabilityWriter(NewMemoryStore(), nil)
	base := BlockRequest{
		VetID:      uuid.New(),
		PracticeID: uuid.New(),
		LocalDate:  oct3,
		Start:      civil.Time{Hour: 9},
		End:        civil.Time{Hour: 10},
		Timezone:   "America/Los_Angeles",
	}

	bad := base
	bad.Timezone = "Nowhere/Special"
	_, err := writer.CreateBlock(context.Background(), bad)
	assert.ErrorIs(t, err, timezone.ErrInvalidTimezone)

	bad = base
	bad.End = civil.Time{Hour: 8}
	_, err = writer.CreateBlock(context.Background(), bad)
	assert.ErrorIs(t, err, ErrInvalidBlock)

	bad = base
	bad.Type = "NAP"
	_, err = writer.CreateBlock(context.Background(), bad)
	assert.Error(t, err)

	bad = base
	bad.VetID = uuid.Nil
	_, err = writer.CreateBlock(context.Background(), bad)
	assert.Error(t, err)
}
