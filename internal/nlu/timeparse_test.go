package nlu

import (
	"testing"
	"time"
)

// Wednesday 2026-03-04 10:30 local.
var baseNow = time.Date(2026, 3, 4, 10, 30, 0, 0, time.Local)

func TestResolveRelativeOffsets(t *testing.T) {
	cases := map[string]time.Time{
		"in 10 minutes": baseNow.Add(10 * time.Minute),
		"in 2 hours":    baseNow.Add(2 * time.Hour),
		"in 3 days":     baseNow.AddDate(0, 0, 3),
		"in 1 week":     baseNow.AddDate(0, 0, 7),
		"in 2 months":   baseNow.AddDate(0, 2, 0),
	}
	for text, want := range cases {
		got, ok := ResolveTime(text, baseNow)
		if !ok {
			t.Errorf("ResolveTime(%q) found nothing", text)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ResolveTime(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestResolveTomorrow(t *testing.T) {
	cases := map[string]time.Time{
		"tomorrow":            time.Date(2026, 3, 5, 9, 0, 0, 0, time.Local),
		"tomorrow at 9am":     time.Date(2026, 3, 5, 9, 0, 0, 0, time.Local),
		"tomorrow at 2:30 pm": time.Date(2026, 3, 5, 14, 30, 0, 0, time.Local),
		"tomorrow morning":    time.Date(2026, 3, 5, 9, 0, 0, 0, time.Local),
		"tomorrow afternoon":  time.Date(2026, 3, 5, 14, 0, 0, 0, time.Local),
		"tomorrow evening":    time.Date(2026, 3, 5, 19, 0, 0, 0, time.Local),
		"tomorrow night":      time.Date(2026, 3, 5, 19, 0, 0, 0, time.Local),
	}
	for text, want := range cases {
		got, ok := ResolveTime(text, baseNow)
		if !ok || !got.Equal(want) {
			t.Errorf("ResolveTime(%q) = %v, %v; want %v", text, got, ok, want)
		}
	}
}

func TestResolveTodayAndTonight(t *testing.T) {
	got, ok := ResolveTime("today at 5pm", baseNow)
	want := time.Date(2026, 3, 4, 17, 0, 0, 0, time.Local)
	if !ok || !got.Equal(want) {
		t.Errorf("today at 5pm = %v, %v; want %v", got, ok, want)
	}

	got, ok = ResolveTime("tonight", baseNow)
	want = time.Date(2026, 3, 4, 20, 0, 0, 0, time.Local)
	if !ok || !got.Equal(want) {
		t.Errorf("tonight = %v, %v; want %v", got, ok, want)
	}

	if _, ok := ResolveTime("today", baseNow); ok {
		t.Error("bare today resolved without an explicit time")
	}
}

func TestResolveBareClockRollsForward(t *testing.T) {
	// 11am is still ahead of 10:30, stays today.
	got, ok := ResolveTime("at 11am", baseNow)
	want := time.Date(2026, 3, 4, 11, 0, 0, 0, time.Local)
	if !ok || !got.Equal(want) {
		t.Errorf("11am = %v, %v; want %v", got, ok, want)
	}

	// 9am already passed, rolls to tomorrow.
	got, ok = ResolveTime("at 9am", baseNow)
	want = time.Date(2026, 3, 5, 9, 0, 0, 0, time.Local)
	if !ok || !got.Equal(want) {
		t.Errorf("9am = %v, %v; want %v", got, ok, want)
	}
}

func TestResolveLater(t *testing.T) {
	got, ok := ResolveTime("later", baseNow)
	if !ok || !got.Equal(baseNow.Add(time.Hour)) {
		t.Errorf("later = %v, %v; want now+1h", got, ok)
	}
}

func TestResolveNothing(t *testing.T) {
	if _, ok := ResolveTime("buy milk", baseNow); ok {
		t.Error("resolved a time from text with no time expression")
	}
}

func TestResolvePriorityOffsetBeatsTomorrow(t *testing.T) {
	// Relative offsets outrank the day words.
	got, ok := ResolveTime("in 2 hours tomorrow", baseNow)
	if !ok || !got.Equal(baseNow.Add(2*time.Hour)) {
		t.Errorf("got %v, %v; want now+2h", got, ok)
	}
}

func TestStripTimePhrases(t *testing.T) {
	cases := map[string]string{
		"call mom tomorrow at 9am":     "call mom",
		"water the plants in 2 hours":  "water the plants",
		"submit the report today":      "submit the report",
		"take out the trash tonight":   "take out the trash",
		"check the oven later":         "check the oven",
		"buy milk":                     "buy milk",
		"meet alex tomorrow afternoon": "meet alex",
	}
	for in, want := range cases {
		if got := StripTimePhrases(in); got != want {
			t.Errorf("StripTimePhrases(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTwelveHourEdges(t *testing.T) {
	got, ok := ResolveTime("tomorrow at 12pm", baseNow)
	want := time.Date(2026, 3, 5, 12, 0, 0, 0, time.Local)
	if !ok || !got.Equal(want) {
		t.Errorf("12pm = %v, want noon", got)
	}

	got, ok = ResolveTime("tomorrow at 12am", baseNow)
	want = time.Date(2026, 3, 5, 0, 0, 0, 0, time.Local)
	if !ok || !got.Equal(want) {
		t.Errorf("12am = %v, want midnight", got)
	}
}
