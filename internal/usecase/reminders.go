package usecase

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/robfig/cron/v3"
)

// Reminder is one scheduled one-shot notification.
type Reminder struct {
	ID      string    `json:"id"` // ULID
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// NotifyFunc delivers a fired reminder to the user.
type NotifyFunc func(Reminder)

// ReminderScheduler runs reminders and timers as one-shot cron entries.
type ReminderScheduler struct {
	mu        sync.Mutex
	cron      *cron.Cron
	entries   map[string]cron.EntryID
	reminders map[string]Reminder
	notify    NotifyFunc
	logger    *slog.Logger
	started   bool
}

// NewReminderScheduler creates a stopped scheduler. notify is called
// from the cron goroutine when a reminder fires.
func NewReminderScheduler(notify NotifyFunc, logger *slog.Logger) *ReminderScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReminderScheduler{
		cron:      cron.New(),
		entries:   make(map[string]cron.EntryID),
		reminders: make(map[string]Reminder),
		notify:    notify,
		logger:    logger,
	}
}

// Start begins firing scheduled reminders.
func (rs *ReminderScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.started {
		return
	}
	rs.cron.Start()
	rs.started = true
}

// Stop halts the scheduler and waits for running jobs to finish.
func (rs *ReminderScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if !rs.started {
		return
	}
	<-rs.cron.Stop().Done()
	rs.started = false
}

// ScheduleAt schedules a reminder for a wall-clock time. A stopped
// scheduler refuses the reminder instead of accepting one it will
// never fire.
func (rs *ReminderScheduler) ScheduleAt(message string, at time.Time) (Reminder, error) {
	if message == "" {
		return Reminder{}, fmt.Errorf("reminder message is required")
	}
	if !at.After(time.Now()) {
		return Reminder{}, fmt.Errorf("reminder time %s is in the past", at.Format(time.RFC3339))
	}

	r := Reminder{ID: newReminderID(), Message: message, At: at}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.started {
		return Reminder{}, fmt.Errorf("reminders are disabled")
	}

	entryID := rs.cron.Schedule(&onceSchedule{at: at}, cron.FuncJob(func() {
		rs.fire(r)
	}))
	rs.entries[r.ID] = entryID
	rs.reminders[r.ID] = r

	rs.logger.Info("reminder scheduled", "id", r.ID, "at", at)
	return r, nil
}

// ScheduleAfter schedules a timer that fires after d.
func (rs *ReminderScheduler) ScheduleAfter(message string, d time.Duration) (Reminder, error) {
	if d <= 0 {
		return Reminder{}, fmt.Errorf("timer duration must be positive")
	}
	return rs.ScheduleAt(message, time.Now().Add(d))
}

// Cancel removes a pending reminder by ID.
func (rs *ReminderScheduler) Cancel(id string) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	entryID, ok := rs.entries[id]
	if !ok {
		return fmt.Errorf("reminder %q not found", id)
	}
	rs.cron.Remove(entryID)
	delete(rs.entries, id)
	delete(rs.reminders, id)
	rs.logger.Info("reminder cancelled", "id", id)
	return nil
}

// Upcoming returns pending reminders ordered by fire time.
func (rs *ReminderScheduler) Upcoming() []Reminder {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	out := make([]Reminder, 0, len(rs.reminders))
	for _, r := range rs.reminders {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}

func (rs *ReminderScheduler) fire(r Reminder) {
	rs.mu.Lock()
	entryID, ok := rs.entries[r.ID]
	if ok {
		rs.cron.Remove(entryID)
		delete(rs.entries, r.ID)
		delete(rs.reminders, r.ID)
	}
	notify := rs.notify
	rs.mu.Unlock()

	if !ok {
		return
	}
	rs.logger.Info("reminder fired", "id", r.ID, "message", r.Message)
	if notify != nil {
		notify(r)
	}
}

func newReminderID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// onceSchedule fires once at a fixed time, then never again.
type onceSchedule struct {
	at   time.Time
	done atomic.Bool
}

func (s *onceSchedule) Next(t time.Time) time.Time {
	if s.done.Load() || t.After(s.at) {
		s.done.Store(true)
		return time.Time{}
	}
	s.done.Store(true)
	return s.at
}
