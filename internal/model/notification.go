package model

import "time"

// Transition identifies a task lifecycle transition signaled by the orchestrator
type Transition string

const (
	TransitionStarted  Transition = "started"
	TransitionFailed   Transition = "failed"
	TransitionDisabled Transition = "disabled"
	TransitionDone     Transition = "done"
)

// Notification is a lifecycle transition as published on the message bus
type Notification struct {
	ID          string          `json:"id"`
	Transition  Transition      `json:"transition"`
	Task        Task            `json:"task"`
	Disable     *DisableContext `json:"disable,omitempty"`
	PublishedAt time.Time       `json:"published_at"`
}
