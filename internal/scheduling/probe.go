package scheduling

import (
	"sort"
	"time"

	"cloud.google.com/go/civil"

	"github.com/wolfman30/vetcare-scheduling/internal/timezone"
)

// Local clock readings whose UTC dates together cover every UTC date a local
// day can overlap, for any offset in [-12:00, +14:00].
var probeClocks = []civil.Time{
	{Hour: 0, Minute: 0},
	{Hour: 12, Minute: 0},
	{Hour: 23, Minute: 59},
}

// CandidateUTCDates returns the distinct UTC dates that localDate in tzName
// overlaps, in ascending order.
func CandidateUTCDates(localDate civil.Date, tzName string) ([]civil.Date, error) {
	loc, err := timezone.Load(tzName)
	if err != nil {
		return nil, err
	}
	return candidateUTCDates(localDate, loc), nil
}

func candidateUTCDates(localDate civil.Date, loc *time.Location) []civil.Date {
	out := make([]civil.Date, 0, len(probeClocks))
	for i, clock := range probeClocks {
		var instant time.Time
		if i == 0 {
			instant = timezone.StartOfDay(localDate, loc)
		} else {
			instant = timezone.CreateLocalDateTimeIn(localDate, clock, loc)
		}
		d := civil.DateOf(instant.UTC())
		if !containsDate(out, d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func containsDate(ds []civil.Date, d civil.Date) bool {
	for _, x := range ds {
		if x == d {
			return true
		}
	}
	return false
}
