package instrument

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/alexisbeaulieu97/keyglow/internal/logger"
)

// MeasurementName is the InfluxDB measurement timings are written to.
const MeasurementName = "device_timing"

const (
	defaultConnectTimeout = 10 * time.Second
	defaultBatchSize      = 100
	defaultFlushInterval  = time.Second
)

var (
	// ErrInfluxDisabled is returned by ConnectInflux when disabled in config.
	ErrInfluxDisabled = errors.New("instrument: influxdb disabled")
	// ErrInfluxUnavailable indicates the server did not answer the ping.
	ErrInfluxUnavailable = errors.New("instrument: influxdb unavailable")
)

// InfluxOptions selects the server and bucket timings are written to.
type InfluxOptions struct {
	Enabled       bool
	URL           string
	Token         string
	Org           string
	Bucket        string
	BatchSize     uint
	FlushInterval time.Duration
}

// PointWriter is the subset of the influx write API the recorder uses.
type PointWriter interface {
	WritePoint(point *write.Point)
}

// InfluxRecorder writes measurements as points. Writes are non-blocking
// and batched by the client.
type InfluxRecorder struct {
	writer PointWriter
	close  func()
}

// NewInfluxRecorder wraps an existing writer.
func NewInfluxRecorder(w PointWriter) *InfluxRecorder {
	return &InfluxRecorder{writer: w}
}

// ConnectInflux creates a client, verifies the server with a ping and
// returns a recorder backed by the non-blocking write API. Asynchronous
// write failures are logged.
func ConnectInflux(ctx context.Context, opts InfluxOptions, log *logger.Logger) (*InfluxRecorder, error) {
	if !opts.Enabled {
		return nil, ErrInfluxDisabled
	}

	batch := opts.BatchSize
	if batch == 0 {
		batch = defaultBatchSize
	}
	flush := opts.FlushInterval
	if flush <= 0 {
		flush = defaultFlushInterval
	}

	client := influxdb2.NewClientWithOptions(
		opts.URL,
		opts.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(batch).
			SetFlushInterval(uint(flush/time.Millisecond)),
	)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(pingCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrInfluxUnavailable, err)
	}
	if !healthy {
		client.Close()
		return nil, ErrInfluxUnavailable
	}

	writeAPI := client.WriteAPI(opts.Org, opts.Bucket)
	go func() {
		for err := range writeAPI.Errors() {
			log.WarnErr(err, "influxdb write failed")
		}
	}()

	return &InfluxRecorder{
		writer: writeAPI,
		close: func() {
			writeAPI.Flush()
			client.Close()
		},
	}, nil
}

// Record implements Recorder.
func (r *InfluxRecorder) Record(m Measurement) {
	if r == nil || r.writer == nil {
		return
	}

	ok := "true"
	if m.Err != nil {
		ok = "false"
	}
	at := m.At
	if at.IsZero() {
		at = time.Now()
	}

	r.writer.WritePoint(write.NewPoint(
		MeasurementName,
		map[string]string{
			"device": m.Device,
			"op":     m.Op,
			"ok":     ok,
		},
		map[string]interface{}{
			"duration_ms": Milliseconds(m.Elapsed),
		},
		at,
	))
}

// Close flushes pending points and releases the client.
func (r *InfluxRecorder) Close() {
	if r == nil || r.close == nil {
		return
	}
	r.close()
}
