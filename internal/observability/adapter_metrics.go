package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// AdapterCollector exposes executor and control-plane metrics. It satisfies
// the adapter's MetricsRecorder interface.
type AdapterCollector struct {
	gatherer prometheus.Gatherer

	Commands        *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	ActiveSessions  prometheus.Gauge
	EngineInterval  prometheus.Gauge
	EngineUp        prometheus.Gauge
	QueueDepth      prometheus.Gauge
	NiOutcomes      *prometheus.CounterVec
	OdcpiRequests   *prometheus.CounterVec
	Reports         *prometheus.CounterVec
}

// NewAdapterCollector registers adapter metrics against the provided registerer.
func NewAdapterCollector(reg prometheus.Registerer) (*AdapterCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &AdapterCollector{gatherer: gathererFor(reg)}

	var err error
	c.Commands, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gnss_adapter_commands_total",
		Help: "Commands applied by the executor, labeled by command and result.",
	}, []string{"command", "result"}), "gnss_adapter_commands_total")
	if err != nil {
		return nil, err
	}

	c.CommandDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gnss_adapter_command_duration_seconds",
		Help:    "Time from submit to completion of a command.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"command"}), "gnss_adapter_command_duration_seconds")
	if err != nil {
		return nil, err
	}

	c.ActiveSessions, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gnss_adapter_active_sessions",
		Help: "Number of registered client tracking sessions.",
	}), "gnss_adapter_active_sessions")
	if err != nil {
		return nil, err
	}

	c.EngineInterval, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gnss_adapter_engine_session_interval_seconds",
		Help: "Interval of the engine session last sent; zero when no session is running.",
	}), "gnss_adapter_engine_session_interval_seconds")
	if err != nil {
		return nil, err
	}

	c.EngineUp, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gnss_adapter_engine_up",
		Help: "1 while the positioning engine is reachable.",
	}), "gnss_adapter_engine_up")
	if err != nil {
		return nil, err
	}

	c.QueueDepth, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gnss_adapter_queue_depth",
		Help: "Items waiting in the executor queue.",
	}), "gnss_adapter_queue_depth")
	if err != nil {
		return nil, err
	}

	c.NiOutcomes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gnss_adapter_ni_outcomes_total",
		Help: "Finished NI authorization sessions, labeled by kind and outcome.",
	}, []string{"kind", "outcome"}), "gnss_adapter_ni_outcomes_total")
	if err != nil {
		return nil, err
	}

	c.OdcpiRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gnss_adapter_odcpi_requests_total",
		Help: "ODCPI request outcomes.",
	}, []string{"outcome"}), "gnss_adapter_odcpi_requests_total")
	if err != nil {
		return nil, err
	}

	c.Reports, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gnss_adapter_reports_delivered_total",
		Help: "Reports delivered to client callbacks, labeled by report kind.",
	}, []string{"report"}), "gnss_adapter_reports_delivered_total")
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *AdapterCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObserveCommand records one finished command.
func (c *AdapterCollector) ObserveCommand(command, result string, d time.Duration) {
	if c == nil {
		return
	}
	c.Commands.WithLabelValues(command, result).Inc()
	c.CommandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// SetActiveSessions updates the registered session gauge.
func (c *AdapterCollector) SetActiveSessions(n int) {
	if c == nil {
		return
	}
	c.ActiveSessions.Set(float64(n))
}

// SetEngineSession records the interval of the engine session last sent.
func (c *AdapterCollector) SetEngineSession(active bool, interval time.Duration) {
	if c == nil {
		return
	}
	if !active {
		interval = 0
	}
	c.EngineInterval.Set(interval.Seconds())
}

// SetEngineUp flips the engine reachability gauge.
func (c *AdapterCollector) SetEngineUp(up bool) {
	if c == nil {
		return
	}
	if up {
		c.EngineUp.Set(1)
		return
	}
	c.EngineUp.Set(0)
}

// SetQueueDepth updates the executor queue gauge.
func (c *AdapterCollector) SetQueueDepth(n int) {
	if c == nil {
		return
	}
	c.QueueDepth.Set(float64(n))
}

// NiOutcome counts one finished NI session.
func (c *AdapterCollector) NiOutcome(kind, outcome string) {
	if c == nil {
		return
	}
	c.NiOutcomes.WithLabelValues(kind, outcome).Inc()
}

// OdcpiOutcome counts one ODCPI request transition.
func (c *AdapterCollector) OdcpiOutcome(outcome string) {
	if c == nil {
		return
	}
	c.OdcpiRequests.WithLabelValues(outcome).Inc()
}

// ReportDelivered counts one report handed to a client callback.
func (c *AdapterCollector) ReportDelivered(report string) {
	if c == nil {
		return
	}
	c.Reports.WithLabelValues(report).Inc()
}
