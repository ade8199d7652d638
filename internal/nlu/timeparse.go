package nlu

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Daypart defaults.
const (
	morningHour   = 9
	afternoonHour = 14
	eveningHour   = 19
	tonightHour   = 20
)

var (
	relOffsetRe = regexp.MustCompile(`(?i)\bin\s+(\d+)\s+(minute|min|hour|hr|day|week|month)s?\b`)
	clockRe     = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
	clock24Re   = regexp.MustCompile(`\bat\s+(\d{1,2}):(\d{2})\b`)
	daypartRe   = regexp.MustCompile(`(?i)\b(morning|afternoon|evening|night)\b`)
	tomorrowRe  = regexp.MustCompile(`(?i)\btomorrow\b`)
	todayRe     = regexp.MustCompile(`(?i)\btoday\b`)
	tonightRe   = regexp.MustCompile(`(?i)\btonight\b`)
	laterRe     = regexp.MustCompile(`(?i)\blater\b`)
)

// ResolveTime extracts a datetime from free text relative to now.
// Resolution order: relative offsets, "tomorrow" with an optional time
// or daypart, "today"/"tonight", a bare clock time (rolling to tomorrow
// when already past), then the literal "later".
func ResolveTime(text string, now time.Time) (time.Time, bool) {
	if m := relOffsetRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 0 {
			return time.Time{}, false
		}
		switch strings.ToLower(m[2]) {
		case "minute", "min":
			return now.Add(time.Duration(n) * time.Minute), true
		case "hour", "hr":
			return now.Add(time.Duration(n) * time.Hour), true
		case "day":
			return now.AddDate(0, 0, n), true
		case "week":
			return now.AddDate(0, 0, 7*n), true
		case "month":
			return now.AddDate(0, n, 0), true
		}
	}

	if tomorrowRe.MatchString(text) {
		day := now.AddDate(0, 0, 1)
		if h, min, ok := explicitClock(text); ok {
			return at(day, h, min), true
		}
		if h, ok := daypartHour(text); ok {
			return at(day, h, 0), true
		}
		return at(day, morningHour, 0), true
	}

	if tonightRe.MatchString(text) {
		if h, min, ok := explicitClock(text); ok {
			return at(now, h, min), true
		}
		return at(now, tonightHour, 0), true
	}

	if todayRe.MatchString(text) {
		if h, min, ok := explicitClock(text); ok {
			return at(now, h, min), true
		}
		return time.Time{}, false
	}

	if h, min, ok := explicitClock(text); ok {
		t := at(now, h, min)
		if !t.After(now) {
			t = t.AddDate(0, 0, 1)
		}
		return t, true
	}

	if laterRe.MatchString(text) {
		return now.Add(time.Hour), true
	}

	return time.Time{}, false
}

// explicitClock finds an "H:MM am/pm" or 24-hour "at HH:MM" time.
func explicitClock(text string) (hour, minute int, ok bool) {
	if m := clockRe.FindStringSubmatch(text); m != nil {
		h, err := strconv.Atoi(m[1])
		if err != nil || h < 1 || h > 12 {
			return 0, 0, false
		}
		if m[2] != "" {
			minute, err = strconv.Atoi(m[2])
			if err != nil || minute > 59 {
				return 0, 0, false
			}
		}
		if h == 12 {
			h = 0
		}
		if strings.EqualFold(m[3], "pm") {
			h += 12
		}
		return h, minute, true
	}

	if m := clock24Re.FindStringSubmatch(text); m != nil {
		h, err1 := strconv.Atoi(m[1])
		min, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil || h > 23 || min > 59 {
			return 0, 0, false
		}
		return h, min, true
	}

	return 0, 0, false
}

func daypartHour(text string) (int, bool) {
	m := daypartRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	switch strings.ToLower(m[1]) {
	case "morning":
		return morningHour, true
	case "afternoon":
		return afternoonHour, true
	case "evening", "night":
		return eveningHour, true
	}
	return 0, false
}

func at(day time.Time, hour, minute int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, day.Location())
}

// timePhraseRes are the time expressions stripped from subjects so
// "call mom tomorrow at 9am" yields the subject "call mom".
var timePhraseRes = []*regexp.Regexp{
	relOffsetRe,
	regexp.MustCompile(`(?i)\b(?:tomorrow|today|tonight)\b(?:\s+(?:morning|afternoon|evening|night))?`),
	regexp.MustCompile(`(?i)\b(?:at\s+)?\d{1,2}(?::\d{2})?\s*(?:am|pm)\b`),
	regexp.MustCompile(`\bat\s+\d{1,2}:\d{2}\b`),
	regexp.MustCompile(`(?i)\b(?:morning|afternoon|evening|night)\b`),
	regexp.MustCompile(`(?i)\blater\b`),
}

// StripTimePhrases removes recognized time expressions from text,
// collapsing the leftover whitespace.
func StripTimePhrases(text string) string {
	for _, re := range timePhraseRes {
		text = re.ReplaceAllString(text, " ")
	}
	text = strings.Join(strings.Fields(text), " ")
	return strings.TrimRight(strings.TrimSpace(text), " ,.")
}
