package domain

import "context"

// ActionResult is returned by every action handler. FollowUp, when set,
// is a clarifying prompt shown to the user.
type ActionResult struct {
	Success  bool           `json:"success"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
	FollowUp string         `json:"follow_up,omitempty"`
}

// PassToAI reports whether the result asks the caller to hand the
// request to the reasoning loop instead of treating it as terminal.
func (r *ActionResult) PassToAI() bool {
	if r.Data == nil {
		return false
	}
	v, ok := r.Data["passToAI"].(bool)
	return ok && v
}

// ActionHandler executes one intent type. CanExecute is the
// precondition check the dispatcher runs before Execute.
type ActionHandler interface {
	Type() IntentType
	CanExecute(intent Intent) bool
	Execute(ctx context.Context, intent Intent) (*ActionResult, error)
}
