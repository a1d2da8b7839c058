package emitter

import (
	"github.com/t77yq/task-telemetry/internal/model"
	"github.com/t77yq/task-telemetry/internal/tags"
)

// EventEmitter builds monitoring events and hands them to the dispatcher
type EventEmitter struct {
	defaults   *tags.DefaultProvider
	dispatcher Submitter
}

// NewEventEmitter creates a new event emitter
func NewEventEmitter(defaults *tags.DefaultProvider, dispatcher Submitter) *EventEmitter {
	return &EventEmitter{
		defaults:   defaults,
		dispatcher: dispatcher,
	}
}

// SendEvent sends an event. An empty alertType means info and an empty
// priority means normal.
func (e *EventEmitter) SendEvent(title, text string, tagList []string, alertType model.AlertType, priority model.EventPriority) {
	if alertType == "" {
		alertType = model.AlertTypeInfo
	}
	if priority == "" {
		priority = model.EventPriorityNormal
	}

	e.dispatcher.Submit(&model.Emission{
		Kind: model.EmissionEvent,
		Name: title,
		Event: &model.Event{
			Title:     title,
			Text:      text,
			Tags:      tags.Merge(tagList, e.defaults.Tags()),
			AlertType: alertType,
			Priority:  priority,
		},
	})
}
