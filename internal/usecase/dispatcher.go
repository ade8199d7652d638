package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"pocketsage/internal/domain"
)

// followUpPrompts are the clarifying questions asked when an intent
// arrives without the entities its handler needs.
var followUpPrompts = map[domain.IntentType]string{
	domain.IntentCall:          "Who should I call?",
	domain.IntentMessage:       "Who should I message, and what should it say?",
	domain.IntentReminder:      "What should I remind you about?",
	domain.IntentTimer:         "How long should the timer run?",
	domain.IntentNote:          "What should the note say?",
	domain.IntentNavigation:    "Where do you want to go?",
	domain.IntentAppLaunch:     "Which app should I open?",
	domain.IntentCalendarEvent: "What should I put on the calendar?",
	domain.IntentSetting:       "Which setting should I change?",
	domain.IntentDeviceSkill:   "Which device action do you want?",
}

// Dispatcher routes classified intents to their action handlers. It
// never propagates handler errors or panics; every outcome is an
// ActionResult.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[domain.IntentType]domain.ActionHandler
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher with the built-in pass-through
// handlers for unknown and search intents.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		handlers: make(map[domain.IntentType]domain.ActionHandler),
		logger:   logger,
	}
	d.RegisterHandler(passThroughHandler{typ: domain.IntentUnknown})
	d.RegisterHandler(passThroughHandler{typ: domain.IntentSearch})
	return d
}

// RegisterHandler installs (or replaces) the handler for its intent
// type.
func (d *Dispatcher) RegisterHandler(h domain.ActionHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[h.Type()] = h
}

// CanExecute reports whether a registered handler accepts the intent.
func (d *Dispatcher) CanExecute(intent domain.Intent) bool {
	d.mu.RLock()
	h, ok := d.handlers[intent.Type]
	d.mu.RUnlock()
	return ok && h.CanExecute(intent)
}

// Execute routes the intent to its handler. Unknown types, failed
// preconditions, handler errors, and handler panics all come back as
// failure results, never as errors.
func (d *Dispatcher) Execute(ctx context.Context, intent domain.Intent) (result *domain.ActionResult) {
	d.mu.RLock()
	h, ok := d.handlers[intent.Type]
	d.mu.RUnlock()

	if !ok {
		d.logger.Warn("no handler for intent", "type", intent.Type)
		return &domain.ActionResult{
			Success: false,
			Message: fmt.Sprintf("I don't know how to handle a %q request yet.", intent.Type),
		}
	}

	if !h.CanExecute(intent) {
		followUp := followUpPrompts[intent.Type]
		if followUp == "" {
			followUp = "Could you give me a bit more detail?"
		}
		return &domain.ActionResult{
			Success:  false,
			Message:  "I need more information for that.",
			FollowUp: followUp,
		}
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("action handler panicked", "type", intent.Type, "panic", r)
			result = &domain.ActionResult{
				Success: false,
				Message: "Something went wrong while handling that request.",
			}
		}
	}()

	res, err := h.Execute(ctx, intent)
	if err != nil {
		d.logger.Warn("action handler failed", "type", intent.Type, "error", err)
		return &domain.ActionResult{
			Success: false,
			Message: fmt.Sprintf("I couldn't complete that: %s.", err),
		}
	}
	if res == nil {
		return &domain.ActionResult{Success: true}
	}
	return res
}

// passThroughHandler asks the caller to hand the request to the
// reasoning loop instead of handling it directly.
type passThroughHandler struct {
	typ domain.IntentType
}

func (h passThroughHandler) Type() domain.IntentType            { return h.typ }
func (h passThroughHandler) CanExecute(domain.Intent) bool      { return true }
func (h passThroughHandler) Execute(_ context.Context, _ domain.Intent) (*domain.ActionResult, error) {
	return &domain.ActionResult{
		Success: true,
		Data:    map[string]any{"passToAI": true},
	}, nil
}
