// Package phoneparse turns the free-text dates and times a caller speaks
// into civil values in the practice's timezone.
//
// Dates never fail: unparseable input falls back to tomorrow and the result
// says so, so callers can re-prompt instead of booking the wrong day. Times
// are never guessed.
package phoneparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/wolfman30/vetcare-scheduling/internal/observability/metrics"
	"github.com/wolfman30/vetcare-scheduling/internal/scheduling"
	"github.com/wolfman30/vetcare-scheduling/pkg/logging"
)

// ErrTimeParseFailed is returned when a spoken time cannot be understood.
var ErrTimeParseFailed = errors.New("phoneparse: could not parse time")

// DateForm records which rule matched a spoken date.
type DateForm string

const (
	FormRelative  DateForm = "relative"
	FormISO       DateForm = "iso"
	FormNumeric   DateForm = "numeric"
	FormMonthName DateForm = "month_name"
	FormWeekday   DateForm = "weekday"
	FormDefault   DateForm = "default"
)

// DateResult is a parsed date. Defaulted is true when nothing matched and
// Date is tomorrow.
type DateResult struct {
	Date      civil.Date `json:"date"`
	Defaulted bool       `json:"defaulted"`
	Input     string     `json:"input"`
	Form      DateForm   `json:"form"`
}

// Parser resolves relative dates against a clock in one timezone.
type Parser struct {
	loc     *time.Location
	now     func() time.Time
	logger  *logging.Logger
	metrics *metrics.SchedulingMetrics
}

// Option configures a Parser.
type Option func(*Parser)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) {
		if now != nil {
			p.now = now
		}
	}
}

// WithMetrics counts defaulted dates.
func WithMetrics(m *metrics.SchedulingMetrics) Option {
	return func(p *Parser) {
		p.metrics = m
	}
}

// New returns a parser for the practice zone loc.
func New(loc *time.Location, logger *logging.Logger, opts ...Option) *Parser {
	if loc == nil {
		panic("phoneparse: location required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &Parser{loc: loc, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Today is the current local date.
func (p *Parser) Today() civil.Date {
	return civil.DateOf(p.now().In(p.loc))
}

var (
	isoDateRE     = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	numericDateRE = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})(?:[/-](\d{2}|\d{4}))?\b`)
	monthPattern  = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sept?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`
	monthDayRE    = regexp.MustCompile(`\b` + monthPattern + `\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:\s+(\d{4})\b)?`)
	dayMonthRE    = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?` + monthPattern + `\b(?:\s+(\d{4})\b)?`)
	weekdayRE     = regexp.MustCompile(`\b(?:(next|this|on)\s+)?(sun|mon|tue|tues|wed|thu|thur|thurs|fri|sat)(?:day|nesday|sday|rsday|urday)?\b`)
	punctuationRE = regexp.MustCompile(`[,.!?;]+`)
	spacesRE      = regexp.MustCompile(`\s+`)
)

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "tues": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday,
	"fri": time.Friday, "sat": time.Saturday,
}

func normalize(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	s = punctuationRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(spacesRE.ReplaceAllString(s, " "))
}

// ParseDate interprets a spoken date relative to today in the parser's zone.
func (p *Parser) ParseDate(text string) DateResult {
	today := p.Today()
	res := DateResult{Input: text}
	s := normalize(text)

	if d, form, ok := p.match(s, today); ok {
		res.Date = d
		res.Form = form
		return res
	}

	res.Date = today.AddDays(1)
	res.Defaulted = true
	res.Form = FormDefault
	p.metrics.IncDateDefault()
	p.logger.Warn("spoken date not understood; defaulting to tomorrow",
		"input", text,
		"local_date", res.Date.String(),
		"tz", p.loc.String(),
	)
	return res
}

func (p *Parser) match(s string, today civil.Date) (civil.Date, DateForm, bool) {
	if s == "" {
		return civil.Date{}, "", false
	}
	switch {
	case strings.Contains(s, "day after tomorrow"):
		return today.AddDays(2), FormRelative, true
	case strings.Contains(s, "tomorrow"):
		return today.AddDays(1), FormRelative, true
	case strings.Contains(s, "today"), strings.Contains(s, "tonight"), s == "now", strings.Contains(s, "right now"):
		return today, FormRelative, true
	case strings.Contains(s, "next week"):
		return today.AddDays(7), FormRelative, true
	}

	if m := isoDateRE.FindStringSubmatch(s); m != nil {
		if d, ok := buildDate(atoi(m[1]), atoi(m[2]), atoi(m[3])); ok {
			return d, FormISO, true
		}
	}
	if m := numericDateRE.FindStringSubmatch(s); m != nil {
		if d, ok := resolveYear(today, atoi(m[1]), atoi(m[2]), m[3]); ok {
			return d, FormNumeric, true
		}
	}
	if m := monthDayRE.FindStringSubmatch(s); m != nil {
		if d, ok := resolveYear(today, monthNumber(m[1]), atoi(m[2]), m[3]); ok {
			return d, FormMonthName, true
		}
	}
	if m := dayMonthRE.FindStringSubmatch(s); m != nil {
		if d, ok := resolveYear(today, monthNumber(m[2]), atoi(m[1]), m[3]); ok {
			return d, FormMonthName, true
		}
	}
	if m := weekdayRE.FindStringSubmatch(s); m != nil {
		target := weekdays[m[2]]
		current := today.In(time.UTC).Weekday()
		ahead := (int(target) - int(current) + 7) % 7
		if m[1] == "next" && ahead == 0 {
			ahead = 7
		}
		return today.AddDays(ahead), FormWeekday, true
	}
	return civil.Date{}, "", false
}

// resolveYear fills in a missing year with the current one, rolling forward
// when the date has already passed.
func resolveYear(today civil.Date, month, day int, rawYear string) (civil.Date, bool) {
	if rawYear != "" {
		year := atoi(rawYear)
		if len(rawYear) == 2 {
			year += 2000
		}
		return buildDate(year, month, day)
	}
	d, ok := buildDate(today.Year, month, day)
	if !ok {
		// Feb 29 outside a leap year.
		return buildDate(today.Year+1, month, day)
	}
	if d.Before(today) {
		return buildDate(today.Year+1, month, day)
	}
	return d, true
}

func buildDate(year, month, day int) (civil.Date, bool) {
	if month < 1 || month > 12 {
		return civil.Date{}, false
	}
	d := civil.Date{Year: year, Month: time.Month(month), Day: day}
	return d, d.IsValid()
}

func monthNumber(name string) int {
	months := []string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}
	for i, prefix := range months {
		if strings.HasPrefix(name, prefix) {
			return i + 1
		}
	}
	return 0
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

var (
	// A bare "a" or "p" counts only at the very end, so "10 a vet visit" is not 10 AM.
	meridiemRE   = regexp.MustCompile(`\b(\d{1,2})(?::?(\d{2}))?\s*([ap])(?:m\b|$)`)
	dayPartRE    = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(?:o'?clock\s+)?in the (morning|afternoon|evening)\b`)
	noonRE       = regexp.MustCompile(`\b(?:noon|midday)\b`)
	midnightRE   = regexp.MustCompile(`\bmidnight\b`)
	twentyFourRE = regexp.MustCompile(`\b([01]?\d|2[0-3]):([0-5]\d)(?::([0-5]\d))?\b`)
)

// ParseTime interprets a spoken clock time. It never guesses: anything it
// cannot read is ErrTimeParseFailed.
func ParseTime(text string) (civil.Time, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	s = strings.ReplaceAll(s, ".", "")
	s = spacesRE.ReplaceAllString(s, " ")

	switch {
	case noonRE.MatchString(s):
		return civil.Time{Hour: 12}, nil
	case midnightRE.MatchString(s):
		return civil.Time{}, nil
	}

	if m := dayPartRE.FindStringSubmatch(s); m != nil {
		meridiem := "a"
		if m[3] != "morning" {
			meridiem = "p"
		}
		if t, ok := twelveHour(m[1], m[2], meridiem); ok {
			return t, nil
		}
	}
	if m := meridiemRE.FindStringSubmatch(s); m != nil {
		if t, ok := twelveHour(m[1], m[2], m[3]); ok {
			return t, nil
		}
	}
	if m := twentyFourRE.FindStringSubmatch(s); m != nil {
		t := civil.Time{Hour: atoi(m[1]), Minute: atoi(m[2])}
		if m[3] != "" {
			t.Second = atoi(m[3])
		}
		return t, nil
	}
	return civil.Time{}, fmt.Errorf("%w: %q", ErrTimeParseFailed, text)
}

func twelveHour(rawHour, rawMinute, meridiem string) (civil.Time, bool) {
	hour := atoi(rawHour)
	minute := 0
	if rawMinute != "" {
		minute = atoi(rawMinute)
	}
	if hour < 1 || hour > 12 || minute > 59 {
		return civil.Time{}, false
	}
	if hour == 12 {
		hour = 0
	}
	if meridiem == "p" {
		hour += 12
	}
	return civil.Time{Hour: hour, Minute: minute}, true
}

var preferenceKeywords = map[scheduling.TimePreference][]string{
	scheduling.PreferenceMorning:   {"morning", "mornings", "early", "before noon", "before lunch", "first thing"},
	scheduling.PreferenceAfternoon: {"afternoon", "afternoons", "after lunch", "midday", "lunchtime"},
	scheduling.PreferenceEvening:   {"evening", "evenings", "night", "tonight", "after work", "late"},
}

var anyKeywords = []string{"any time", "anytime", "whenever", "doesn't matter", "does not matter", "either", "no preference", "flexible"}

// ClassifyTimePreference maps a caller's phrasing onto a part of the day.
// Unknown or mixed phrasing is PreferenceAny.
func ClassifyTimePreference(text string) scheduling.TimePreference {
	s := " " + normalize(strings.ReplaceAll(text, ".", "")) + " "
	for _, kw := range anyKeywords {
		if strings.Contains(s, " "+kw+" ") {
			return scheduling.PreferenceAny
		}
	}
	var matched []scheduling.TimePreference
	for _, pref := range []scheduling.TimePreference{scheduling.PreferenceMorning, scheduling.PreferenceAfternoon, scheduling.PreferenceEvening} {
		for _, kw := range preferenceKeywords[pref] {
			if strings.Contains(s, " "+kw+" ") {
				matched = append(matched, pref)
				break
			}
		}
	}
	if len(matched) == 1 {
		return matched[0]
	}
	return scheduling.PreferenceAny
}
