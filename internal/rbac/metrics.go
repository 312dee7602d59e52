package rbac

import "time"

// MetricsRecorder receives operational measurements. observability.Metrics implements it.
type MetricsRecorder interface {
	ObserveDecision(allowed bool, reason string)
	ObserveMutation(operation, outcome string)
	ObserveLockWait(d time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveDecision(bool, string)  {}
func (noopMetrics) ObserveMutation(string, string) {}
func (noopMetrics) ObserveLockWait(time.Duration)  {}
