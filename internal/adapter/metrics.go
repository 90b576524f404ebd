package adapter

import "time"

// MetricsRecorder receives executor measurements. It is satisfied by
// observability.AdapterCollector.
type MetricsRecorder interface {
	ObserveCommand(command, result string, d time.Duration)
	SetActiveSessions(n int)
	SetEngineSession(active bool, interval time.Duration)
	SetEngineUp(up bool)
	SetQueueDepth(n int)
	NiOutcome(kind, outcome string)
	OdcpiOutcome(outcome string)
	ReportDelivered(report string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveCommand(string, string, time.Duration) {}
func (noopMetrics) SetActiveSessions(int)                        {}
func (noopMetrics) SetEngineSession(bool, time.Duration)         {}
func (noopMetrics) SetEngineUp(bool)                             {}
func (noopMetrics) SetQueueDepth(int)                            {}
func (noopMetrics) NiOutcome(string, string)                     {}
func (noopMetrics) OdcpiOutcome(string)                          {}
func (noopMetrics) ReportDelivered(string)                       {}
