package model

// AlertType represents the severity of a monitoring event
type AlertType string

const (
	AlertTypeInfo  AlertType = "info"
	AlertTypeError AlertType = "error"
)

// EventPriority represents the priority of a monitoring event
type EventPriority string

const (
	EventPriorityLow    EventPriority = "low"
	EventPriorityNormal EventPriority = "normal"
)

// Event is a titled monitoring event sent to the backend
type Event struct {
	Title     string        `json:"title"`
	Text      string        `json:"text"`
	Tags      []string      `json:"tags,omitempty"`
	AlertType AlertType     `json:"alert_type"`
	Priority  EventPriority `json:"priority"`
}
