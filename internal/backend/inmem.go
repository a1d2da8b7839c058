package backend

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/armon/go-metrics"

	"github.com/t77yq/task-telemetry/internal/model"
)

// inmemMaxEvents bounds the events an Inmem backend keeps
const inmemMaxEvents = 1000

// Inmem keeps metrics in a go-metrics InmemSink and the most recent events in
// memory. It is meant for local runs where no Datadog account is available.
type Inmem struct {
	sink *metrics.InmemSink

	mu        sync.Mutex
	events    []model.Event
	maxEvents int
}

// NewInmem creates an in-memory backend aggregating metrics over interval
// and keeping retain worth of intervals
func NewInmem(interval, retain time.Duration) *Inmem {
	return &Inmem{
		sink:      metrics.NewInmemSink(interval, retain),
		maxEvents: inmemMaxEvents,
	}
}

// Sink returns the underlying InmemSink
func (b *Inmem) Sink() *metrics.InmemSink {
	return b.sink
}

// Events returns a copy of the retained events, oldest first
func (b *Inmem) Events() []model.Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := make([]model.Event, len(b.events))
	copy(events, b.events)
	return events
}

// CreateEvent implements Client.CreateEvent. Once maxEvents are held the
// oldest event is discarded.
func (b *Inmem) CreateEvent(_ context.Context, event *model.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.events) >= b.maxEvents {
		n := copy(b.events, b.events[len(b.events)-b.maxEvents+1:])
		b.events = b.events[:n]
	}
	b.events = append(b.events, *event)
	return nil
}

// Increment implements Client.Increment
func (b *Inmem) Increment(_ context.Context, name string, amount int64, tags []string) error {
	b.sink.IncrCounterWithLabels(strings.Split(name, "."), float32(amount), toLabels(tags))
	return nil
}

// Gauge implements Client.Gauge
func (b *Inmem) Gauge(_ context.Context, name string, value float64, tags []string) error {
	b.sink.SetGaugeWithLabels(strings.Split(name, "."), float32(value), toLabels(tags))
	return nil
}

// Close implements Client.Close
func (b *Inmem) Close() error {
	return nil
}

// toLabels turns "key:value" tags into labels. Bare tags become labels with an
// empty value.
func toLabels(tags []string) []metrics.Label {
	if len(tags) == 0 {
		return nil
	}
	labels := make([]metrics.Label, 0, len(tags))
	for _, tag := range tags {
		name, value, _ := strings.Cut(tag, ":")
		labels = append(labels, metrics.Label{Name: name, Value: value})
	}
	return labels
}
