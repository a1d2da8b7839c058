package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/t77yq/task-telemetry/internal/backend"
	"github.com/t77yq/task-telemetry/internal/model"
)

// Metric is a counter or gauge observed by RecordingBackend
type Metric struct {
	Name  string
	Value float64
	Tags  []string
}

// RecordingBackend is a backend.Client that keeps everything it receives.
// Setting FailEvents or FailMetrics makes the matching calls return
// backend.ErrBackendUnavailable.
type RecordingBackend struct {
	mu          sync.Mutex
	events      []model.Event
	counts      []Metric
	gauges      []Metric
	failEvents  bool
	failMetrics bool
}

// NewRecordingBackend creates an empty recording backend
func NewRecordingBackend() *RecordingBackend {
	return &RecordingBackend{}
}

// FailEvents makes CreateEvent fail
func (b *RecordingBackend) FailEvents(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failEvents = fail
}

// FailMetrics makes Increment and Gauge fail
func (b *RecordingBackend) FailMetrics(fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failMetrics = fail
}

func (b *RecordingBackend) CreateEvent(_ context.Context, event *model.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failEvents {
		return fmt.Errorf("%w: simulated event failure", backend.ErrBackendUnavailable)
	}
	b.events = append(b.events, *event)
	return nil
}

func (b *RecordingBackend) Increment(_ context.Context, name string, amount int64, tags []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failMetrics {
		return fmt.Errorf("%w: simulated increment failure", backend.ErrBackendUnavailable)
	}
	b.counts = append(b.counts, Metric{Name: name, Value: float64(amount), Tags: tags})
	return nil
}

func (b *RecordingBackend) Gauge(_ context.Context, name string, value float64, tags []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failMetrics {
		return fmt.Errorf("%w: simulated gauge failure", backend.ErrBackendUnavailable)
	}
	b.gauges = append(b.gauges, Metric{Name: name, Value: value, Tags: tags})
	return nil
}

// Close implements backend.Client.Close
func (b *RecordingBackend) Close() error {
	return nil
}

// Events returns the events received so far
func (b *RecordingBackend) Events() []model.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.Event(nil), b.events...)
}

// Counts returns the counter increments received so far
func (b *RecordingBackend) Counts() []Metric {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Metric(nil), b.counts...)
}

// Gauges returns the gauge values received so far
func (b *RecordingBackend) Gauges() []Metric {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Metric(nil), b.gauges...)
}

// Total returns the number of calls that succeeded
func (b *RecordingBackend) Total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events) + len(b.counts) + len(b.gauges)
}
