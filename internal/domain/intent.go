package domain

import "time"

// IntentType classifies what a user utterance asks for.
type IntentType string

const (
	IntentReminder      IntentType = "reminder"
	IntentMessage       IntentType = "message"
	IntentNote          IntentType = "note"
	IntentCalendarEvent IntentType = "calendar_event"
	IntentTimer         IntentType = "timer"
	IntentAppLaunch     IntentType = "app_launch"
	IntentCall          IntentType = "call"
	IntentNavigation    IntentType = "navigation"
	IntentSearch        IntentType = "search"
	IntentDeviceSkill   IntentType = "device_skill"
	IntentSetting       IntentType = "setting"
	IntentUnknown       IntentType = "unknown"
)

// Entities is a sparse bag of typed slots extracted from an utterance.
// Zero values mean "not present".
type Entities struct {
	Datetime  *time.Time     `json:"datetime,omitempty"`
	Duration  time.Duration  `json:"duration,omitempty"`
	Contact   string         `json:"contact,omitempty"`
	Subject   string         `json:"subject,omitempty"`
	Body      string         `json:"body,omitempty"`
	AppName   string         `json:"app_name,omitempty"`
	Location  string         `json:"location,omitempty"`
	Query     string         `json:"query,omitempty"`
	SkillID   string         `json:"skill_id,omitempty"`
	SkillArgs map[string]any `json:"skill_args,omitempty"`
	Setting   string         `json:"setting,omitempty"`
	Enable    bool           `json:"enable,omitempty"`
}

// Intent is a structured interpretation of free-text input.
// Immutable once returned by the classifier.
type Intent struct {
	Type       IntentType `json:"type"`
	Confidence float64    `json:"confidence"`
	Raw        string     `json:"raw"`
	Entities   Entities   `json:"entities"`
}

// Actionable reports whether the intent is worth dispatching directly:
// a known type with confidence above 0.5.
func (i Intent) Actionable() bool {
	return i.Type != IntentUnknown && i.Confidence > 0.5
}
