package emitter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSent    = "sent"
	outcomeFailed  = "failed"
	outcomeDropped = "dropped"
)

var (
	emissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "task_telemetry",
		Subsystem: "dispatch",
		Name:      "emissions_total",
		Help:      "Emissions handled by the dispatcher, labelled by kind and outcome.",
	}, []string{"kind", "outcome"})

	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "task_telemetry",
		Subsystem: "dispatch",
		Name:      "queue_depth",
		Help:      "Emissions waiting for a dispatch worker.",
	})
)
