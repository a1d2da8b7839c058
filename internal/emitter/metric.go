package emitter

import (
	"github.com/t77yq/task-telemetry/internal/model"
	"github.com/t77yq/task-telemetry/internal/tags"
)

// MetricEmitter namespaces metric names, appends the default tags and hands
// counters and gauges to the dispatcher
type MetricEmitter struct {
	namespace  string
	defaults   *tags.DefaultProvider
	dispatcher Submitter
}

// NewMetricEmitter creates a new metric emitter
func NewMetricEmitter(namespace string, defaults *tags.DefaultProvider, dispatcher Submitter) *MetricEmitter {
	return &MetricEmitter{
		namespace:  namespace,
		defaults:   defaults,
		dispatcher: dispatcher,
	}
}

// MetricName returns the namespaced metric name
func (m *MetricEmitter) MetricName(name string) string {
	return m.namespace + "." + name
}

// Increment adds one to the named counter
func (m *MetricEmitter) Increment(name string, tagList []string) {
	m.Count(name, 1, tagList)
}

// Count adds amount to the named counter
func (m *MetricEmitter) Count(name string, amount int64, tagList []string) {
	m.dispatcher.Submit(&model.Emission{
		Kind:  model.EmissionCount,
		Name:  m.MetricName(name),
		Value: float64(amount),
		Tags:  tags.Merge(tagList, m.defaults.Tags()),
	})
}

// Gauge records value for the named gauge
func (m *MetricEmitter) Gauge(name string, value float64, tagList []string) {
	m.dispatcher.Submit(&model.Emission{
		Kind:  model.EmissionGauge,
		Name:  m.MetricName(name),
		Value: value,
		Tags:  tags.Merge(tagList, m.defaults.Tags()),
	})
}
