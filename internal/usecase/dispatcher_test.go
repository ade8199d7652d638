package usecase

import (
	"context"
	"strings"
	"testing"

	"pocketsage/internal/domain"
)

// stubHandler is a scriptable ActionHandler.
type stubHandler struct {
	typ     domain.IntentType
	canExec bool
	result  *domain.ActionResult
	err     error
	panics  bool
	calls   int
}

func (h *stubHandler) Type() domain.IntentType       { return h.typ }
func (h *stubHandler) CanExecute(domain.Intent) bool { return h.canExec }

func (h *stubHandler) Execute(_ context.Context, _ domain.Intent) (*domain.ActionResult, error) {
	h.calls++
	if h.panics {
		panic("handler exploded")
	}
	return h.result, h.err
}

func TestExecuteRoutesToHandler(t *testing.T) {
	d := NewDispatcher(testLogger())
	h := &stubHandler{
		typ:     domain.IntentCall,
		canExec: true,
		result:  &domain.ActionResult{Success: true, Message: "Calling mom."},
	}
	d.RegisterHandler(h)

	res := d.Execute(context.Background(), domain.Intent{Type: domain.IntentCall})
	if !res.Success || res.Message != "Calling mom." {
		t.Errorf("result = %+v", res)
	}
	if h.calls != 1 {
		t.Errorf("calls = %d", h.calls)
	}
}

func TestExecuteUnknownHandlerType(t *testing.T) {
	d := NewDispatcher(testLogger())

	res := d.Execute(context.Background(), domain.Intent{Type: domain.IntentNavigation})
	if res.Success {
		t.Error("expected failure for unregistered type")
	}
	if !strings.Contains(res.Message, "navigation") {
		t.Errorf("message %q does not name the type", res.Message)
	}
}

func TestExecutePreconditionFollowUp(t *testing.T) {
	d := NewDispatcher(testLogger())
	d.RegisterHandler(&stubHandler{typ: domain.IntentCall, canExec: false})

	res := d.Execute(context.Background(), domain.Intent{Type: domain.IntentCall})
	if res.Success {
		t.Error("expected failure")
	}
	if res.FollowUp != "Who should I call?" {
		t.Errorf("FollowUp = %q", res.FollowUp)
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	d := NewDispatcher(testLogger())
	d.RegisterHandler(&stubHandler{typ: domain.IntentNote, canExec: true, panics: true})

	res := d.Execute(context.Background(), domain.Intent{Type: domain.IntentNote})
	if res == nil || res.Success {
		t.Errorf("panic not converted to failure: %+v", res)
	}
}

func TestExecuteHandlerError(t *testing.T) {
	d := NewDispatcher(testLogger())
	d.RegisterHandler(&stubHandler{
		typ:     domain.IntentTimer,
		canExec: true,
		err:     context.DeadlineExceeded,
	})

	res := d.Execute(context.Background(), domain.Intent{Type: domain.IntentTimer})
	if res.Success {
		t.Error("expected failure")
	}
}

func TestBuiltInPassThroughHandlers(t *testing.T) {
	d := NewDispatcher(testLogger())

	for _, typ := range []domain.IntentType{domain.IntentUnknown, domain.IntentSearch} {
		res := d.Execute(context.Background(), domain.Intent{Type: typ})
		if !res.Success {
			t.Errorf("%s: expected success", typ)
		}
		if !res.PassToAI() {
			t.Errorf("%s: expected passToAI", typ)
		}
	}
}

func TestCanExecute(t *testing.T) {
	d := NewDispatcher(testLogger())
	d.RegisterHandler(&stubHandler{typ: domain.IntentCall, canExec: true})

	if !d.CanExecute(domain.Intent{Type: domain.IntentCall}) {
		t.Error("CanExecute = false for accepting handler")
	}
	if d.CanExecute(domain.Intent{Type: domain.IntentSetting}) {
		t.Error("CanExecute = true for unregistered type")
	}
}
