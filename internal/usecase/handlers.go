package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pocketsage/internal/domain"
)

// ToolInvoker is the slice of the tool registry the handlers need.
type ToolInvoker interface {
	Invoke(ctx context.Context, call domain.ToolCall) *domain.ToolResult
}

// ReminderHandler schedules reminders.
type ReminderHandler struct {
	Scheduler *ReminderScheduler
}

func (h *ReminderHandler) Type() domain.IntentType { return domain.IntentReminder }

func (h *ReminderHandler) CanExecute(intent domain.Intent) bool {
	return intent.Entities.Subject != ""
}

func (h *ReminderHandler) Execute(_ context.Context, intent domain.Intent) (*domain.ActionResult, error) {
	at := time.Now().Add(time.Hour)
	if intent.Entities.Datetime != nil {
		at = *intent.Entities.Datetime
	}

	r, err := h.Scheduler.ScheduleAt(intent.Entities.Subject, at)
	if err != nil {
		return nil, err
	}
	return &domain.ActionResult{
		Success: true,
		Message: fmt.Sprintf("Okay, I'll remind you to %s at %s.",
			r.Message, r.At.Format("3:04 PM on Monday, Jan 2")),
		Data: map[string]any{"reminder_id": r.ID},
	}, nil
}

// TimerHandler starts countdown timers.
type TimerHandler struct {
	Scheduler *ReminderScheduler
}

func (h *TimerHandler) Type() domain.IntentType { return domain.IntentTimer }

func (h *TimerHandler) CanExecute(intent domain.Intent) bool {
	return intent.Entities.Duration > 0
}

func (h *TimerHandler) Execute(_ context.Context, intent domain.Intent) (*domain.ActionResult, error) {
	d := intent.Entities.Duration
	r, err := h.Scheduler.ScheduleAfter("Timer finished", d)
	if err != nil {
		return nil, err
	}
	return &domain.ActionResult{
		Success: true,
		Message: fmt.Sprintf("Timer set for %s.", formatDuration(d)),
		Data:    map[string]any{"timer_id": r.ID},
	}, nil
}

// CalendarEventHandler books events by scheduling a reminder at the
// event time.
type CalendarEventHandler struct {
	Scheduler *ReminderScheduler
}

func (h *CalendarEventHandler) Type() domain.IntentType { return domain.IntentCalendarEvent }

func (h *CalendarEventHandler) CanExecute(intent domain.Intent) bool {
	return intent.Entities.Subject != "" && intent.Entities.Datetime != nil
}

func (h *CalendarEventHandler) Execute(_ context.Context, intent domain.Intent) (*domain.ActionResult, error) {
	r, err := h.Scheduler.ScheduleAt("Event: "+intent.Entities.Subject, *intent.Entities.Datetime)
	if err != nil {
		return nil, err
	}
	return &domain.ActionResult{
		Success: true,
		Message: fmt.Sprintf("Scheduled %q for %s.",
			intent.Entities.Subject, r.At.Format("3:04 PM on Monday, Jan 2")),
		Data: map[string]any{"event_id": r.ID},
	}, nil
}

// NoteHandler saves notes through the save_note tool.
type NoteHandler struct {
	Tools ToolInvoker
}

func (h *NoteHandler) Type() domain.IntentType { return domain.IntentNote }

func (h *NoteHandler) CanExecute(intent domain.Intent) bool {
	return strings.TrimSpace(intent.Entities.Body) != ""
}

func (h *NoteHandler) Execute(ctx context.Context, intent domain.Intent) (*domain.ActionResult, error) {
	res := h.Tools.Invoke(ctx, domain.ToolCall{
		Name:   "save_note",
		Params: map[string]any{"body": intent.Entities.Body},
	})
	if !res.Success {
		return &domain.ActionResult{Success: false, Message: res.Error}, nil
	}
	return &domain.ActionResult{Success: true, Message: "Noted."}, nil
}

// DeviceSkillHandler forwards micro-commands straight to the named
// device tool.
type DeviceSkillHandler struct {
	Tools ToolInvoker
}

func (h *DeviceSkillHandler) Type() domain.IntentType { return domain.IntentDeviceSkill }

func (h *DeviceSkillHandler) CanExecute(intent domain.Intent) bool {
	return intent.Entities.SkillID != ""
}

func (h *DeviceSkillHandler) Execute(ctx context.Context, intent domain.Intent) (*domain.ActionResult, error) {
	res := h.Tools.Invoke(ctx, domain.ToolCall{
		Name:   intent.Entities.SkillID,
		Params: intent.Entities.SkillArgs,
	})
	if !res.Success {
		return &domain.ActionResult{Success: false, Message: res.Error}, nil
	}
	msg := res.Formatted
	if msg == "" {
		msg = "Done."
	}
	return &domain.ActionResult{
		Success: true,
		Message: msg,
		Data:    res.Data,
	}, nil
}

// AppLaunchHandler opens applications through the open_application
// tool.
type AppLaunchHandler struct {
	Tools ToolInvoker
}

func (h *AppLaunchHandler) Type() domain.IntentType { return domain.IntentAppLaunch }

func (h *AppLaunchHandler) CanExecute(intent domain.Intent) bool {
	return intent.Entities.AppName != ""
}

func (h *AppLaunchHandler) Execute(ctx context.Context, intent domain.Intent) (*domain.ActionResult, error) {
	res := h.Tools.Invoke(ctx, domain.ToolCall{
		Name:   "open_application",
		Params: map[string]any{"app": intent.Entities.AppName},
	})
	if !res.Success {
		return &domain.ActionResult{Success: false, Message: res.Error}, nil
	}
	return &domain.ActionResult{
		Success: true,
		Message: fmt.Sprintf("Opening %s.", intent.Entities.AppName),
	}, nil
}

// CallHandler prepares outgoing calls. Placing the call is delegated
// to the platform layer via the result payload.
type CallHandler struct{}

func (h *CallHandler) Type() domain.IntentType { return domain.IntentCall }

func (h *CallHandler) CanExecute(intent domain.Intent) bool {
	return intent.Entities.Contact != ""
}

func (h *CallHandler) Execute(_ context.Context, intent domain.Intent) (*domain.ActionResult, error) {
	return &domain.ActionResult{
		Success: true,
		Message: fmt.Sprintf("Calling %s.", intent.Entities.Contact),
		Data:    map[string]any{"contact": intent.Entities.Contact},
	}, nil
}

// MessageHandler prepares outgoing messages for the platform layer.
type MessageHandler struct{}

func (h *MessageHandler) Type() domain.IntentType { return domain.IntentMessage }

func (h *MessageHandler) CanExecute(intent domain.Intent) bool {
	return intent.Entities.Contact != "" && intent.Entities.Body != ""
}

func (h *MessageHandler) Execute(_ context.Context, intent domain.Intent) (*domain.ActionResult, error) {
	return &domain.ActionResult{
		Success: true,
		Message: fmt.Sprintf("Sending to %s: %q.", intent.Entities.Contact, intent.Entities.Body),
		Data: map[string]any{
			"contact": intent.Entities.Contact,
			"body":    intent.Entities.Body,
		},
	}, nil
}

// NavigationHandler prepares routing requests for the platform layer.
type NavigationHandler struct{}

func (h *NavigationHandler) Type() domain.IntentType { return domain.IntentNavigation }

func (h *NavigationHandler) CanExecute(intent domain.Intent) bool {
	return intent.Entities.Location != ""
}

func (h *NavigationHandler) Execute(_ context.Context, intent domain.Intent) (*domain.ActionResult, error) {
	return &domain.ActionResult{
		Success: true,
		Message: fmt.Sprintf("Starting directions to %s.", intent.Entities.Location),
		Data:    map[string]any{"destination": intent.Entities.Location},
	}, nil
}

// SettingHandler prepares settings toggles for the platform layer.
type SettingHandler struct{}

func (h *SettingHandler) Type() domain.IntentType { return domain.IntentSetting }

func (h *SettingHandler) CanExecute(intent domain.Intent) bool {
	return intent.Entities.Setting != ""
}

func (h *SettingHandler) Execute(_ context.Context, intent domain.Intent) (*domain.ActionResult, error) {
	verb := "off"
	if intent.Entities.Enable {
		verb = "on"
	}
	return &domain.ActionResult{
		Success: true,
		Message: fmt.Sprintf("Turning %s %s.", intent.Entities.Setting, verb),
		Data: map[string]any{
			"setting": intent.Entities.Setting,
			"enable":  intent.Entities.Enable,
		},
	}, nil
}

func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int(d/time.Minute), "minute")
	default:
		return plural(int(d/time.Second), "second")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
