package lifecycle

import (
	"fmt"

	"github.com/t77yq/task-telemetry/internal/model"
)

// Collector receives task lifecycle transitions from the orchestrator
type Collector interface {
	HandleTaskStarted(task *model.Task)
	HandleTaskFailed(task *model.Task)
	HandleTaskDisabled(task *model.Task, disable model.DisableContext)
	HandleTaskDone(task *model.Task)
}

// NoopCollector ignores every transition
type NoopCollector struct{}

func (NoopCollector) HandleTaskStarted(*model.Task)                        {}
func (NoopCollector) HandleTaskFailed(*model.Task)                         {}
func (NoopCollector) HandleTaskDisabled(*model.Task, model.DisableContext) {}
func (NoopCollector) HandleTaskDone(*model.Task)                           {}

// Route calls the collector method matching the notification's transition.
// A disabled notification without a disable context is routed with a zero one.
func Route(c Collector, n *model.Notification) error {
	switch n.Transition {
	case model.TransitionStarted:
		c.HandleTaskStarted(&n.Task)
	case model.TransitionFailed:
		c.HandleTaskFailed(&n.Task)
	case model.TransitionDisabled:
		var disable model.DisableContext
		if n.Disable != nil {
			disable = *n.Disable
		}
		c.HandleTaskDisabled(&n.Task, disable)
	case model.TransitionDone:
		c.HandleTaskDone(&n.Task)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransition, n.Transition)
	}
	return nil
}
