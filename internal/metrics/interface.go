package metrics

import "time"

// Recorder is the subset of metrics the scanning engine reports into.
// Tests can pass an isolated NewPrometheusMetrics instance.
type Recorder interface {
	IncrementScansTotal(state string)
	RecordScanDuration(state string, duration time.Duration)
	IncActiveScans()
	DecActiveScans()
	IncrementOSGuesses(family string)
	IncrementPortsProbed(result string)
	IncrementProbeFailures(kind string)
}

// Ensure that PrometheusMetrics implements Recorder.
var _ Recorder = (*PrometheusMetrics)(nil)
