package audit

import (
	"time"
)

// EventType represents the lifecycle step an event records
type EventType string

const (
	// Plugin events
	EventTypePluginLoad        EventType = "plugin.load"
	EventTypePluginStart       EventType = "plugin.start"
	EventTypePluginStop        EventType = "plugin.stop"
	EventTypePluginPostStartup EventType = "plugin.post_startup"
	EventTypePluginClose       EventType = "plugin.close"

	// Session events
	EventTypeSessionStart EventType = "session.start"
	EventTypeSessionStop  EventType = "session.stop"
)

// PluginEventType returns the event type of a registry transition
// ("start", "stop", "post_startup" or "close").
func PluginEventType(transition string) EventType {
	return EventType("plugin." + transition)
}

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
)

// Event represents a single journal entry
type Event struct {
	ID        int64       `json:"id,omitempty" yaml:"id,omitempty"`
	Timestamp time.Time   `json:"timestamp" yaml:"timestamp"`
	EventType EventType   `json:"event_type" yaml:"event_type"`
	Status    EventStatus `json:"status" yaml:"status"`

	// Session is the id of the start session, empty outside of one
	Session string `json:"session,omitempty" yaml:"session,omitempty"`

	Plugin        string `json:"plugin,omitempty" yaml:"plugin,omitempty"`
	PluginVersion string `json:"plugin_version,omitempty" yaml:"plugin_version,omitempty"`
	Kind          string `json:"kind,omitempty" yaml:"kind,omitempty"`
	Path          string `json:"path,omitempty" yaml:"path,omitempty"`

	DurationMS   float64 `json:"duration_ms,omitempty" yaml:"duration_ms,omitempty"`
	Message      string  `json:"message,omitempty" yaml:"message,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

// NewEvent creates an event stamped with the current time.
// The status follows err.
func NewEvent(eventType EventType, err error) *Event {
	event := &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    EventStatusSuccess,
	}
	if err != nil {
		event.Status = EventStatusFailure
		event.ErrorMessage = err.Error()
	}
	return event
}

// WithDuration sets the duration of the step
func (e *Event) WithDuration(d time.Duration) *Event {
	e.DurationMS = float64(d) / float64(time.Millisecond)
	return e
}

// Filter selects journal entries
type Filter struct {
	Plugin    string
	Session   string
	EventType EventType
	Limit     int
}
