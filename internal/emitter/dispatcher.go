package emitter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/t77yq/task-telemetry/internal/backend"
	"github.com/t77yq/task-telemetry/internal/model"
)

// Submitter accepts emissions without blocking
type Submitter interface {
	Submit(emission *model.Emission) bool
}

// Journal records the outcome of every delivered emission
type Journal interface {
	Record(ctx context.Context, emission *model.Emission, sendErr error) error
}

// DispatcherConfig configures the dispatcher
type DispatcherConfig struct {
	QueueSize int
	Workers   int
	Journal   Journal
}

// Dispatcher moves backend calls off the caller's goroutine. Emissions are
// queued in a bounded buffer and dropped when it is full. Backend failures are
// logged and dropped here; they never reach the code that emitted them.
type Dispatcher struct {
	logger  *zap.Logger
	client  backend.Client
	journal Journal
	workers int
	queue   chan *model.Emission

	mu      sync.RWMutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(client backend.Client, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	return &Dispatcher{
		logger:  logger.Named("dispatcher"),
		client:  client,
		journal: cfg.Journal,
		workers: cfg.Workers,
		queue:   make(chan *model.Emission, cfg.QueueSize),
	}
}

// Start starts the dispatch workers. Cancelling ctx does not abort delivery of
// queued emissions; Stop drains them.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return fmt.Errorf("dispatcher already stopped")
	}
	if d.started {
		return nil
	}
	d.started = true

	ctx = context.WithoutCancel(ctx)
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}

	d.logger.Info("Dispatcher started", zap.Int("workers", d.workers), zap.Int("queue_size", cap(d.queue)))
	return nil
}

// Stop stops accepting emissions, delivers what is queued and waits for the
// workers to exit
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	started := d.started
	close(d.queue)
	d.mu.Unlock()

	if !started {
		// Nothing will drain the queue; account for what is left.
		for e := range d.queue {
			emissionsTotal.WithLabelValues(string(e.Kind), outcomeDropped).Inc()
		}
		queueDepth.Set(0)
	}

	d.wg.Wait()
	d.logger.Info("Dispatcher stopped")
}

// Submit queues an emission. It never blocks and reports whether the emission
// was accepted.
func (d *Dispatcher) Submit(emission *model.Emission) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.stopped {
		emissionsTotal.WithLabelValues(string(emission.Kind), outcomeDropped).Inc()
		d.logger.Debug("Dispatcher stopped, dropping emission",
			zap.String("kind", string(emission.Kind)),
			zap.String("name", emission.Name))
		return false
	}

	select {
	case d.queue <- emission:
		queueDepth.Set(float64(len(d.queue)))
		return true
	default:
		emissionsTotal.WithLabelValues(string(emission.Kind), outcomeDropped).Inc()
		d.logger.Warn("Dispatch queue full, dropping emission",
			zap.String("kind", string(emission.Kind)),
			zap.String("name", emission.Name))
		return false
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for emission := range d.queue {
		queueDepth.Set(float64(len(d.queue)))
		d.deliver(ctx, emission)
	}
}

// deliver sends one emission and swallows whatever the backend does
func (d *Dispatcher) deliver(ctx context.Context, emission *model.Emission) {
	err := d.send(ctx, emission)

	fields := []zap.Field{
		zap.String("kind", string(emission.Kind)),
		zap.String("name", emission.Name),
	}
	switch {
	case err == nil:
		emissionsTotal.WithLabelValues(string(emission.Kind), outcomeSent).Inc()
	case errors.Is(err, backend.ErrBackendUnavailable):
		emissionsTotal.WithLabelValues(string(emission.Kind), outcomeFailed).Inc()
		d.logger.Warn("Backend unavailable, dropping emission", append(fields, zap.Error(err))...)
	default:
		emissionsTotal.WithLabelValues(string(emission.Kind), outcomeFailed).Inc()
		d.logger.Error("Failed to deliver emission", append(fields, zap.Error(err))...)
	}

	if d.journal != nil {
		if jerr := d.journal.Record(ctx, emission, err); jerr != nil {
			d.logger.Error("Failed to record emission", append(fields, zap.Error(jerr))...)
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, emission *model.Emission) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("backend call panicked: %v", r)
		}
	}()

	switch emission.Kind {
	case model.EmissionEvent:
		if emission.Event == nil {
			return fmt.Errorf("event emission without event")
		}
		return d.client.CreateEvent(ctx, emission.Event)
	case model.EmissionCount:
		return d.client.Increment(ctx, emission.Name, int64(emission.Value), emission.Tags)
	case model.EmissionGauge:
		return d.client.Gauge(ctx, emission.Name, emission.Value, emission.Tags)
	default:
		return fmt.Errorf("unknown emission kind %q", emission.Kind)
	}
}
