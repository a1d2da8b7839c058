package backend

import (
	"context"
	"fmt"

	"github.com/DataDog/datadog-go/statsd"
	"go.uber.org/zap"

	"github.com/t77yq/task-telemetry/internal/model"
)

// statsdClient is the subset of *statsd.Client used by DogStatsd
type statsdClient interface {
	Count(name string, value int64, tags []string, rate float64) error
	Gauge(name string, value float64, tags []string, rate float64) error
	Event(e *statsd.Event) error
	Close() error
}

// DogStatsd delivers events and metrics to a local Datadog agent over DogStatsD
type DogStatsd struct {
	logger *zap.Logger
	client statsdClient
}

// NewDogStatsd creates a DogStatsD client for the agent at addr
func NewDogStatsd(addr string, logger *zap.Logger) (*DogStatsd, error) {
	client, err := statsd.New(addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create dogstatsd client: %w", err)
	}
	return newDogStatsd(client, logger), nil
}

func newDogStatsd(client statsdClient, logger *zap.Logger) *DogStatsd {
	return &DogStatsd{
		logger: logger.Named("dogstatsd"),
		client: client,
	}
}

// CreateEvent implements Client.CreateEvent
func (d *DogStatsd) CreateEvent(_ context.Context, event *model.Event) error {
	e := statsd.NewEvent(event.Title, event.Text)
	e.Tags = event.Tags
	e.AlertType = statsd.Info
	if event.AlertType == model.AlertTypeError {
		e.AlertType = statsd.Error
	}
	e.Priority = statsd.Normal
	if event.Priority == model.EventPriorityLow {
		e.Priority = statsd.Low
	}

	if err := d.client.Event(e); err != nil {
		return fmt.Errorf("%w: failed to send event: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Increment implements Client.Increment
func (d *DogStatsd) Increment(_ context.Context, name string, amount int64, tags []string) error {
	if err := d.client.Count(name, amount, tags, 1); err != nil {
		return fmt.Errorf("%w: failed to send count %s: %v", ErrBackendUnavailable, name, err)
	}
	return nil
}

// Gauge implements Client.Gauge
func (d *DogStatsd) Gauge(_ context.Context, name string, value float64, tags []string) error {
	if err := d.client.Gauge(name, value, tags, 1); err != nil {
		return fmt.Errorf("%w: failed to send gauge %s: %v", ErrBackendUnavailable, name, err)
	}
	return nil
}

// Close flushes buffered metrics and closes the socket
func (d *DogStatsd) Close() error {
	d.logger.Debug("Closing dogstatsd client")
	return d.client.Close()
}
