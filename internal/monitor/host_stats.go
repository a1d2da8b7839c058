package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

const (
	metricHostCPU    = "host.cpu_percent"
	metricHostMemory = "host.memory_percent"
)

// GaugeSender records gauges under the bridge's namespace and default tags
type GaugeSender interface {
	Gauge(name string, value float64, tags []string)
}

// HostStatsReporter periodically reports CPU and memory usage of the host
// running the bridge
type HostStatsReporter struct {
	logger   *zap.Logger
	metrics  GaugeSender
	interval time.Duration
	tags     []string
	stop     chan struct{}
	stopOnce sync.Once

	cpuPercent func() (float64, error)
	memPercent func() (float64, error)
}

// NewHostStatsReporter creates a new host stats reporter
func NewHostStatsReporter(metrics GaugeSender, interval time.Duration, logger *zap.Logger) *HostStatsReporter {
	logger = logger.Named("host-stats")

	var tags []string
	if info, err := host.Info(); err != nil {
		logger.Warn("Failed to get host info", zap.Error(err))
	} else {
		tags = []string{"host:" + info.Hostname}
	}

	return &HostStatsReporter{
		logger:     logger,
		metrics:    metrics,
		interval:   interval,
		tags:       tags,
		stop:       make(chan struct{}),
		cpuPercent: cpuPercent,
		memPercent: memPercent,
	}
}

func cpuPercent() (float64, error) {
	// A zero interval compares against the previous call.
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, fmt.Errorf("no cpu usage reported")
	}
	return percents[0], nil
}

func memPercent() (float64, error) {
	info, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return info.UsedPercent, nil
}

// Start starts the reporting loop
func (r *HostStatsReporter) Start(ctx context.Context) error {
	if r.interval <= 0 {
		return fmt.Errorf("invalid host stats interval %s", r.interval)
	}

	r.logger.Info("Starting host stats reporter", zap.Duration("interval", r.interval))
	go r.reportLoop(ctx)
	return nil
}

// Stop stops the reporting loop
func (r *HostStatsReporter) Stop() {
	r.stopOnce.Do(func() {
		r.logger.Info("Stopping host stats reporter")
		close(r.stop)
	})
}

func (r *HostStatsReporter) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.report()
		}
	}
}

// report sends one sample of each gauge. A failed probe skips only its gauge.
func (r *HostStatsReporter) report() {
	if value, err := r.cpuPercent(); err != nil {
		r.logger.Error("Failed to get CPU usage", zap.Error(err))
	} else {
		r.metrics.Gauge(metricHostCPU, value, r.tags)
	}

	if value, err := r.memPercent(); err != nil {
		r.logger.Error("Failed to get memory usage", zap.Error(err))
	} else {
		r.metrics.Gauge(metricHostMemory, value, r.tags)
	}
}
