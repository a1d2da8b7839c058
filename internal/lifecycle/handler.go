package lifecycle

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/t77yq/task-telemetry/internal/model"
	"github.com/t77yq/task-telemetry/internal/tags"
)

const (
	metricTaskStarted   = "task.started"
	metricTaskFailed    = "task.failed"
	metricTaskDisabled  = "task.disabled"
	metricTaskDone      = "task.done"
	metricExecutionTime = "task.execution_time"
)

// MetricSender is the metric side of the emitter layer
type MetricSender interface {
	Increment(name string, tags []string)
	Gauge(name string, value float64, tags []string)
}

// EventSender is the event side of the emitter layer
type EventSender interface {
	SendEvent(title, text string, tags []string, alertType model.AlertType, priority model.EventPriority)
}

// Handler turns task lifecycle transitions into counters, gauges and events.
// It keeps no state between calls and never blocks on the backend.
type Handler struct {
	logger  *zap.Logger
	metrics MetricSender
	events  EventSender
}

var _ Collector = (*Handler)(nil)

// NewHandler creates a new lifecycle handler
func NewHandler(metrics MetricSender, events EventSender, logger *zap.Logger) *Handler {
	return &Handler{
		logger:  logger.Named("lifecycle"),
		metrics: metrics,
		events:  events,
	}
}

// Handle routes a notification to the matching transition handler
func (h *Handler) Handle(n *model.Notification) error {
	return Route(h, n)
}

// HandleTaskStarted reports that a task began execution
func (h *Handler) HandleTaskStarted(task *model.Task) {
	taskTags := tags.TaskTags(task)
	h.metrics.Increment(metricTaskStarted, taskTags)

	h.events.SendEvent(
		"A task has been started!",
		fmt.Sprintf("A task has been started in the pipeline named: %s", task.Family),
		withState(taskTags, model.TaskStateStarted),
		model.AlertTypeInfo,
		model.EventPriorityLow,
	)
}

// HandleTaskFailed reports that a task raised an error
func (h *Handler) HandleTaskFailed(task *model.Task) {
	taskTags := tags.TaskTags(task)
	h.metrics.Increment(metricTaskFailed, taskTags)

	h.events.SendEvent(
		"A task has failed!",
		fmt.Sprintf("A task has failed in the pipeline named: %s", task.Family),
		withState(taskTags, model.TaskStateFailed),
		model.AlertTypeError,
		model.EventPriorityNormal,
	)
}

// HandleTaskDisabled reports that a task crossed its failure threshold and is
// suppressed for the persist period
func (h *Handler) HandleTaskDisabled(task *model.Task, disable model.DisableContext) {
	taskTags := tags.TaskTags(task)
	h.metrics.Increment(metricTaskDisabled, taskTags)

	h.events.SendEvent(
		"A task has been disabled!",
		fmt.Sprintf("A task has been disabled in the pipeline named: %s. "+
			"The task has failed %d times in the last %d seconds, so it is being disabled for %d seconds.",
			task.Family, task.RetryCount, disable.DisableWindow, disable.DisablePersist),
		withState(taskTags, model.TaskStateDisabled),
		model.AlertTypeError,
		model.EventPriorityNormal,
	)
}

// HandleTaskDone reports a successful completion along with its execution time.
// Nothing is emitted for a task that was never seen starting, or whose
// update time is missing.
func (h *Handler) HandleTaskDone(task *model.Task) {
	// Negative values under clock skew are reported as-is.
	elapsed, ok := task.Elapsed()
	if !ok {
		if task.StartedAt != nil {
			h.logger.Warn("Task has a start time but no update time, skipping done telemetry",
				zap.String("task_family", task.Family))
			return
		}
		h.logger.Debug("Task has no start time, skipping done telemetry",
			zap.String("task_family", task.Family))
		return
	}

	taskTags := tags.TaskTags(task)
	h.metrics.Increment(metricTaskDone, taskTags)
	h.metrics.Gauge(metricExecutionTime, elapsed.Seconds(), taskTags)

	h.events.SendEvent(
		"A task has completed!",
		fmt.Sprintf("A task has completed in the pipeline named: %s", task.Family),
		withState(taskTags, model.TaskStateDone),
		model.AlertTypeInfo,
		model.EventPriorityLow,
	)
}

func withState(taskTags []string, state model.TaskState) []string {
	out := make([]string, 0, len(taskTags)+1)
	out = append(out, taskTags...)
	return append(out, tags.StateTag(state))
}
