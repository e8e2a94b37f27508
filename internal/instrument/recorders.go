package instrument

import (
	"sort"
	"sync"
	"time"

	"github.com/alexisbeaulieu97/keyglow/internal/logger"
)

// LogRecorder writes each measurement as a debug entry, or a warning when
// the operation failed.
type LogRecorder struct {
	log *logger.Logger
}

// NewLogRecorder returns a recorder writing to log.
func NewLogRecorder(log *logger.Logger) *LogRecorder {
	return &LogRecorder{log: log}
}

// Record implements Recorder.
func (r *LogRecorder) Record(m Measurement) {
	entry := r.log.WithDevice(m.Device).WithDuration(m.Elapsed).WithFields(map[string]any{"op": m.Op})
	if m.Err != nil {
		entry.WarnErr(m.Err, "device operation failed")
		return
	}
	entry.Debug("device operation completed")
}

// Stats aggregates the measurements of one device operation.
type Stats struct {
	Device   string        `json:"device"`
	Op       string        `json:"op"`
	Count    int64         `json:"count"`
	Failures int64         `json:"failures"`
	Last     time.Duration `json:"last"`
	Max      time.Duration `json:"max"`
	Total    time.Duration `json:"total"`
	LastAt   time.Time     `json:"last_at"`
}

// Average returns the mean elapsed time.
func (s Stats) Average() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

type statsKey struct{ device, op string }

// StatsRecorder keeps running totals in memory.
type StatsRecorder struct {
	mu    sync.RWMutex
	stats map[statsKey]*Stats
}

// NewStatsRecorder returns an empty StatsRecorder.
func NewStatsRecorder() *StatsRecorder {
	return &StatsRecorder{stats: make(map[statsKey]*Stats)}
}

// Record implements Recorder.
func (r *StatsRecorder) Record(m Measurement) {
	key := statsKey{m.Device, m.Op}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stats[key]
	if !ok {
		s = &Stats{Device: m.Device, Op: m.Op}
		r.stats[key] = s
	}
	s.Count++
	if m.Err != nil {
		s.Failures++
	}
	s.Last = m.Elapsed
	s.Total += m.Elapsed
	if m.Elapsed > s.Max {
		s.Max = m.Elapsed
	}
	s.LastAt = m.At
}

// Get returns the stats for one device operation.
func (r *StatsRecorder) Get(device, op string) (Stats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stats[statsKey{device, op}]
	if !ok {
		return Stats{}, false
	}
	return *s, true
}

// All returns a copy of every entry sorted by device then operation.
func (r *StatsRecorder) All() []Stats {
	r.mu.RLock()
	out := make([]Stats, 0, len(r.stats))
	for _, s := range r.stats {
		out = append(out, *s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Device != out[j].Device {
			return out[i].Device < out[j].Device
		}
		return out[i].Op < out[j].Op
	})
	return out
}
