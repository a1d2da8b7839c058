package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/task-telemetry/internal/emitter"
	"github.com/t77yq/task-telemetry/internal/model"
	"github.com/t77yq/task-telemetry/internal/tags"
	"github.com/t77yq/task-telemetry/internal/testutil"
)

type testBridge struct {
	handler    *Handler
	dispatcher *emitter.Dispatcher
	backend    *testutil.RecordingBackend
}

func newTestBridge(t *testing.T, namespace, eventTags, environment string) *testBridge {
	t.Helper()

	logger := zaptest.NewLogger(t)
	rec := testutil.NewRecordingBackend()
	d := emitter.NewDispatcher(rec, emitter.DispatcherConfig{QueueSize: 64, Workers: 1}, logger)
	require.NoError(t, d.Start(context.Background()))
	t.Cleanup(d.Stop)

	defaults := tags.NewDefaultProvider(eventTags, environment)
	h := NewHandler(
		emitter.NewMetricEmitter(namespace, defaults, d),
		emitter.NewEventEmitter(defaults, d),
		logger,
	)
	return &testBridge{handler: h, dispatcher: d, backend: rec}
}

// flush waits until every queued emission reached the backend
func (b *testBridge) flush() {
	b.dispatcher.Stop()
}

func unix(sec int64) *time.Time {
	ts := time.Unix(sec, 0)
	return &ts
}

func testTask() *model.Task {
	return &model.Task{
		Family: "IngestLogs",
		Params: map[string]string{"date": "2024-01-01", "bucket": "raw"},
	}
}

func TestHandleTaskStarted(t *testing.T) {
	b := newTestBridge(t, "luigi", "team:data", "prod")

	b.handler.HandleTaskStarted(testTask())
	b.flush()

	counts := b.backend.Counts()
	require.Len(t, counts, 1)
	assert.Equal(t, "luigi.task.started", counts[0].Name)
	assert.Equal(t, 1.0, counts[0].Value)
	assert.Equal(t, []string{"task_name:IngestLogs", "bucket:raw", "date:2024-01-01", "team:data", "env=prod"}, counts[0].Tags)

	events := b.backend.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "A task has been started!", events[0].Title)
	assert.Contains(t, events[0].Text, "IngestLogs")
	assert.Equal(t, model.AlertTypeInfo, events[0].AlertType)
	assert.Equal(t, model.EventPriorityLow, events[0].Priority)
	assert.Equal(t, []string{
		"task_name:IngestLogs", "bucket:raw", "date:2024-01-01",
		"task_state:STARTED",
		"team:data", "env=prod",
	}, events[0].Tags)
}

func TestHandleTaskFailed(t *testing.T) {
	b := newTestBridge(t, "luigi", "", "")

	b.handler.HandleTaskFailed(testTask())
	b.flush()

	counts := b.backend.Counts()
	require.Len(t, counts, 1)
	assert.Equal(t, "luigi.task.failed", counts[0].Name)

	events := b.backend.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "A task has failed!", events[0].Title)
	assert.Equal(t, model.AlertTypeError, events[0].AlertType)
	assert.Equal(t, model.EventPriorityNormal, events[0].Priority)
	assert.Equal(t, "task_state:FAILED", events[0].Tags[len(events[0].Tags)-1])
}

func TestHandleTaskDisabled(t *testing.T) {
	b := newTestBridge(t, "luigi", "", "")

	task := testTask()
	task.RetryCount = 3
	b.handler.HandleTaskDisabled(task, model.DisableContext{DisableWindow: 600, DisablePersist: 3600})
	b.flush()

	counts := b.backend.Counts()
	require.Len(t, counts, 1)
	assert.Equal(t, "luigi.task.disabled", counts[0].Name)

	events := b.backend.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "A task has been disabled!", events[0].Title)
	assert.Contains(t, events[0].Text, "3")
	assert.Contains(t, events[0].Text, "600")
	assert.Contains(t, events[0].Text, "3600")
	assert.Equal(t,
		"A task has been disabled in the pipeline named: IngestLogs. "+
			"The task has failed 3 times in the last 600 seconds, so it is being disabled for 3600 seconds.",
		events[0].Text)
	assert.Contains(t, events[0].Tags, "task_state:DISABLED")
	assert.Equal(t, model.AlertTypeError, events[0].AlertType)
	assert.Equal(t, model.EventPriorityNormal, events[0].Priority)
}

func TestHandleTaskDone(t *testing.T) {
	b := newTestBridge(t, "luigi", "", "")

	task := testTask()
	task.StartedAt = unix(100)
	task.UpdatedAt = *unix(142)
	b.handler.HandleTaskDone(task)
	b.flush()

	counts := b.backend.Counts()
	require.Len(t, counts, 1)
	assert.Equal(t, "luigi.task.done", counts[0].Name)

	gauges := b.backend.Gauges()
	require.Len(t, gauges, 1)
	assert.Equal(t, "luigi.task.execution_time", gauges[0].Name)
	assert.Equal(t, 42.0, gauges[0].Value)
	assert.Equal(t, []string{"task_name:IngestLogs", "bucket:raw", "date:2024-01-01"}, gauges[0].Tags)

	events := b.backend.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "A task has completed!", events[0].Title)
	assert.Equal(t, model.AlertTypeInfo, events[0].AlertType)
	assert.Equal(t, model.EventPriorityLow, events[0].Priority)
	assert.Contains(t, events[0].Tags, "task_state:DONE")
}

func TestHandleTaskDoneWithoutStart(t *testing.T) {
	b := newTestBridge(t, "luigi", "a", "prod")

	task := testTask()
	task.UpdatedAt = *unix(142)
	b.handler.HandleTaskDone(task)
	b.flush()

	assert.Equal(t, 0, b.backend.Total())
}

func TestHandleTaskDoneWithoutUpdateTime(t *testing.T) {
	b := newTestBridge(t, "luigi", "a", "prod")

	task := testTask()
	task.StartedAt = unix(100)
	b.handler.HandleTaskDone(task)
	b.flush()

	assert.Equal(t, 0, b.backend.Total())
	assert.Empty(t, b.backend.Gauges())
}

func TestHandleTaskDoneNegativeElapsed(t *testing.T) {
	b := newTestBridge(t, "luigi", "", "")

	task := testTask()
	task.StartedAt = unix(150)
	task.UpdatedAt = *unix(142)
	b.handler.HandleTaskDone(task)
	b.flush()

	gauges := b.backend.Gauges()
	require.Len(t, gauges, 1)
	assert.Equal(t, -8.0, gauges[0].Value)
}

func TestNamespaceOnlyChangesPrefix(t *testing.T) {
	run := func(namespace string) *testutil.RecordingBackend {
		b := newTestBridge(t, namespace, "x", "")
		task := testTask()
		task.StartedAt = unix(100)
		task.UpdatedAt = *unix(142)

		b.handler.HandleTaskStarted(task)
		b.handler.HandleTaskFailed(task)
		b.handler.HandleTaskDisabled(task, model.DisableContext{DisableWindow: 1, DisablePersist: 2})
		b.handler.HandleTaskDone(task)
		b.flush()
		return b.backend
	}

	luigi := run("luigi")
	custom := run("custom")

	require.Equal(t, len(luigi.Counts()), len(custom.Counts()))
	for i, c := range custom.Counts() {
		assert.Equal(t, "custom."+luigi.Counts()[i].Name[len("luigi."):], c.Name)
		assert.Equal(t, luigi.Counts()[i].Value, c.Value)
		assert.Equal(t, luigi.Counts()[i].Tags, c.Tags)
	}
	require.Len(t, custom.Gauges(), 1)
	assert.Equal(t, "custom.task.execution_time", custom.Gauges()[0].Name)
	assert.Equal(t, luigi.Gauges()[0].Value, custom.Gauges()[0].Value)
	assert.Equal(t, luigi.Events(), custom.Events())
}

func TestBackendFailureDoesNotEscape(t *testing.T) {
	tests := []struct {
		name        string
		failEvents  bool
		failMetrics bool
	}{
		{name: "Event Failure", failEvents: true},
		{name: "Increment Failure", failMetrics: true},
		{name: "Both", failEvents: true, failMetrics: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBridge(t, "luigi", "", "")
			b.backend.FailEvents(tt.failEvents)
			b.backend.FailMetrics(tt.failMetrics)

			task := testTask()
			task.StartedAt = unix(1)
			task.UpdatedAt = *unix(2)

			assert.NotPanics(t, func() {
				b.handler.HandleTaskStarted(task)
				b.handler.HandleTaskFailed(task)
				b.handler.HandleTaskDisabled(task, model.DisableContext{})
				b.handler.HandleTaskDone(task)
			})
			b.flush()

			if tt.failEvents {
				assert.Empty(t, b.backend.Events())
			} else {
				assert.Len(t, b.backend.Events(), 4)
			}
			if tt.failMetrics {
				assert.Empty(t, b.backend.Counts())
			} else {
				assert.Len(t, b.backend.Counts(), 4)
			}
		})
	}
}

func TestHandle(t *testing.T) {
	b := newTestBridge(t, "luigi", "", "")

	task := testTask()
	task.StartedAt = unix(10)
	task.UpdatedAt = *unix(20)

	require.NoError(t, b.handler.Handle(&model.Notification{Transition: model.TransitionStarted, Task: *task}))
	require.NoError(t, b.handler.Handle(&model.Notification{Transition: model.TransitionFailed, Task: *task}))
	require.NoError(t, b.handler.Handle(&model.Notification{Transition: model.TransitionDisabled, Task: *task}))
	require.NoError(t, b.handler.Handle(&model.Notification{
		Transition: model.TransitionDisabled,
		Task:       *task,
		Disable:    &model.DisableContext{DisableWindow: 60, DisablePersist: 120},
	}))
	require.NoError(t, b.handler.Handle(&model.Notification{Transition: model.TransitionDone, Task: *task}))

	err := b.handler.Handle(&model.Notification{Transition: "paused", Task: *task})
	require.ErrorIs(t, err, ErrUnknownTransition)
	b.flush()

	var names []string
	for _, c := range b.backend.Counts() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{
		"luigi.task.started",
		"luigi.task.failed",
		"luigi.task.disabled",
		"luigi.task.disabled",
		"luigi.task.done",
	}, names)

	events := b.backend.Events()
	require.Len(t, events, 5)
	assert.Contains(t, events[2].Text, "in the last 0 seconds")
	assert.Contains(t, events[3].Text, "in the last 60 seconds")
	assert.Contains(t, events[3].Text, "disabled for 120 seconds")
}

func TestNoopCollector(t *testing.T) {
	var c Collector = NoopCollector{}
	for _, tr := range []model.Transition{
		model.TransitionStarted, model.TransitionFailed, model.TransitionDisabled, model.TransitionDone,
	} {
		assert.NoError(t, Route(c, &model.Notification{Transition: tr}))
	}
	assert.ErrorIs(t, Route(c, &model.Notification{}), ErrUnknownTransition)
}
