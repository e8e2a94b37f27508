// Package instrument times device operations and hands the results to
// pluggable recorders. Recording never affects the measured call.
package instrument

import (
	"time"
)

// Common operation names.
const (
	OpInitialize = "initialize"
	OpUpdate     = "update"
	OpShutdown   = "shutdown"
)

// Measurement is one timed device operation.
type Measurement struct {
	Device  string
	Op      string
	Elapsed time.Duration
	Err     error
	At      time.Time
}

// Recorder consumes measurements. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(m Measurement)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(m Measurement)

// Record implements Recorder.
func (f RecorderFunc) Record(m Measurement) { f(m) }

// Measure runs fn, records its elapsed time and returns fn's error along
// with the elapsed duration. A nil or panicking recorder is ignored.
func Measure(rec Recorder, device, op string, fn func() error) (time.Duration, error) {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	record(rec, Measurement{Device: device, Op: op, Elapsed: elapsed, Err: err, At: start})
	return elapsed, err
}

func record(rec Recorder, m Measurement) {
	if rec == nil {
		return
	}
	defer func() { _ = recover() }()
	rec.Record(m)
}

type multi []Recorder

func (m multi) Record(meas Measurement) {
	for _, rec := range m {
		record(rec, meas)
	}
}

// Multi fans a measurement out to every non-nil recorder. A panic in one
// recorder does not prevent the others from running.
func Multi(recs ...Recorder) Recorder {
	out := make(multi, 0, len(recs))
	for _, rec := range recs {
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out
}

// Milliseconds renders d as fractional milliseconds for logs and metrics.
func Milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
