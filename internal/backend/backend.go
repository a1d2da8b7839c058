package backend

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/task-telemetry/internal/config"
	"github.com/t77yq/task-telemetry/internal/model"
)

// Client is the transport to the observability backend. Metric names and tags
// arrive fully composed; implementations only deliver them.
type Client interface {
	// CreateEvent sends a discrete event
	CreateEvent(ctx context.Context, event *model.Event) error

	// Increment adds amount to a counter
	Increment(ctx context.Context, name string, amount int64, tags []string) error

	// Gauge records the current value of a gauge
	Gauge(ctx context.Context, name string, value float64, tags []string) error

	// Close releases the transport
	Close() error
}

// New builds the client selected by cfg.Backend.Kind
func New(cfg config.Config, logger *zap.Logger) (Client, error) {
	switch cfg.Backend.Kind {
	case config.BackendAPI:
		return NewAPI(APIConfig{
			BaseURL:  cfg.Backend.APIURL,
			APIKey:   cfg.APIKey,
			AppKey:   cfg.AppKey,
			Timeout:  cfg.Backend.Timeout,
			RetryMax: cfg.Backend.RetryMax,
		}, logger), nil
	case config.BackendDogStatsd:
		return NewDogStatsd(cfg.Backend.StatsdAddr, logger)
	case config.BackendInmem:
		return NewInmem(10*time.Second, time.Minute), nil
	case config.BackendNone:
		return Noop{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend kind %q", config.ErrConfiguration, cfg.Backend.Kind)
	}
}

// Noop discards everything
type Noop struct{}

func (Noop) CreateEvent(context.Context, *model.Event) error          { return nil }
func (Noop) Increment(context.Context, string, int64, []string) error { return nil }
func (Noop) Gauge(context.Context, string, float64, []string) error   { return nil }
func (Noop) Close() error                                             { return nil }
