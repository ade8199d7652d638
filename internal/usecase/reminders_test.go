package usecase

import (
	"testing"
	"time"
)

func TestScheduleAtRejectsPast(t *testing.T) {
	rs := NewReminderScheduler(nil, testLogger())
	if _, err := rs.ScheduleAt("too late", time.Now().Add(-time.Minute)); err == nil {
		t.Fatal("expected error for past time")
	}
	if _, err := rs.ScheduleAt("", time.Now().Add(time.Hour)); err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestUpcomingSortedByTime(t *testing.T) {
	rs := NewReminderScheduler(nil, testLogger())
	rs.Start()
	defer rs.Stop()

	later, err := rs.ScheduleAt("later", time.Now().Add(2*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	sooner, err := rs.ScheduleAt("sooner", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}

	up := rs.Upcoming()
	if len(up) != 2 {
		t.Fatalf("Upcoming = %d entries", len(up))
	}
	if up[0].ID != sooner.ID || up[1].ID != later.ID {
		t.Errorf("order = %q, %q", up[0].Message, up[1].Message)
	}
}

func TestCancelReminder(t *testing.T) {
	rs := NewReminderScheduler(nil, testLogger())
	rs.Start()
	defer rs.Stop()

	r, err := rs.ScheduleAt("cancel me", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if err := rs.Cancel(r.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(rs.Upcoming()) != 0 {
		t.Error("reminder still pending after cancel")
	}
	if err := rs.Cancel(r.ID); err == nil {
		t.Error("second cancel should fail")
	}
}

func TestReminderFires(t *testing.T) {
	fired := make(chan Reminder, 1)
	rs := NewReminderScheduler(func(r Reminder) { fired <- r }, testLogger())
	rs.Start()
	defer rs.Stop()

	if _, err := rs.ScheduleAfter("Timer finished", 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	select {
	case r := <-fired:
		if r.Message != "Timer finished" {
			t.Errorf("message = %q", r.Message)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("reminder never fired")
	}

	if len(rs.Upcoming()) != 0 {
		t.Error("fired reminder still listed as pending")
	}
}

func TestScheduleAfterRejectsNonPositive(t *testing.T) {
	rs := NewReminderScheduler(nil, testLogger())
	if _, err := rs.ScheduleAfter("x", 0); err == nil {
		t.Fatal("expected error for zero duration")
	}
}

func TestScheduleWhileStoppedFails(t *testing.T) {
	rs := NewReminderScheduler(nil, testLogger())

	if _, err := rs.ScheduleAt("never fires", time.Now().Add(time.Hour)); err == nil {
		t.Fatal("stopped scheduler accepted a reminder")
	}
	if len(rs.Upcoming()) != 0 {
		t.Error("rejected reminder left pending state")
	}

	rs.Start()
	defer rs.Stop()
	if _, err := rs.ScheduleAt("fires", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("started scheduler rejected a reminder: %v", err)
	}

	rs.Stop()
	if _, err := rs.ScheduleAt("after stop", time.Now().Add(time.Hour)); err == nil {
		t.Error("scheduler accepted a reminder after Stop")
	}
}
