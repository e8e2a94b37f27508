// Package scheduler fans color frames out to devices. Every device is owned
// by its own worker goroutine, so a slow or hung backend never delays the
// others. Vendor calls run under scheduler-enforced timeouts and repeated
// failures take a device out of rotation until it is re-enabled.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alexisbeaulieu97/keyglow/internal/color"
	"github.com/alexisbeaulieu97/keyglow/internal/device"
	"github.com/alexisbeaulieu97/keyglow/internal/instrument"
	"github.com/alexisbeaulieu97/keyglow/internal/logger"
	"github.com/alexisbeaulieu97/keyglow/internal/model"
)

const (
	DefaultUpdateTimeout        = 250 * time.Millisecond
	DefaultInitTimeout          = 5 * time.Second
	DefaultShutdownTimeout      = 2 * time.Second
	DefaultMaxConsecutiveErrors = 3
)

var (
	// ErrStopped is returned once Stop has been called.
	ErrStopped = errors.New("scheduler stopped")
	// ErrStarted is returned when adding devices after Start.
	ErrStarted = errors.New("scheduler already started")
	// ErrUnknownDevice is returned for names the scheduler does not manage.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrUnavailable is returned when enabling a device that failed to load.
	ErrUnavailable = errors.New("device unavailable")
)

// Frame is one unit of work for the scheduler.
type Frame struct {
	Colors color.KeyColorMap
	Forced bool
}

// StateChange describes a lifecycle transition of one device.
type StateChange struct {
	Device string
	From   device.State
	To     device.State
	Err    error
}

// Options tunes the scheduler.
type Options struct {
	UpdateTimeout        time.Duration
	InitTimeout          time.Duration
	ShutdownTimeout      time.Duration
	MaxConsecutiveErrors int

	Recorder instrument.Recorder
	Logger   *logger.Logger

	// OnStateChange is called from worker goroutines after every transition.
	OnStateChange func(StateChange)
}

func (o Options) withDefaults() Options {
	if o.UpdateTimeout <= 0 {
		o.UpdateTimeout = DefaultUpdateTimeout
	}
	if o.InitTimeout <= 0 {
		o.InitTimeout = DefaultInitTimeout
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = DefaultShutdownTimeout
	}
	if o.MaxConsecutiveErrors <= 0 {
		o.MaxConsecutiveErrors = DefaultMaxConsecutiveErrors
	}
	return o
}

// Scheduler owns the live device set.
type Scheduler struct {
	opts Options
	log  *logger.Logger

	mu      sync.RWMutex
	workers map[string]*worker
	order   []string
	failed  map[string]model.DeviceStatus
	started bool
	stopped bool

	mapping atomic.Pointer[model.DeviceMappingConfig]

	callCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a scheduler with no devices.
func New(opts Options) *Scheduler {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		opts:    opts,
		log:     opts.Logger,
		workers: make(map[string]*worker),
		failed:  make(map[string]model.DeviceStatus),
		callCtx: ctx,
		cancel:  cancel,
	}
}

// Add hands a device to the scheduler. Devices must be added before Start.
func (s *Scheduler) Add(d device.Device, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrStarted
	}
	name := d.Name()
	if _, exists := s.workers[name]; exists {
		return fmt.Errorf("device %q already scheduled", name)
	}
	if _, exists := s.failed[name]; exists {
		return fmt.Errorf("device %q already scheduled", name)
	}

	s.workers[name] = newWorker(s, d, enabled)
	s.order = append(s.order, name)
	return nil
}

// AddUnavailable lists a device that could not be constructed. It appears in
// snapshots as disabled with err but never receives frames.
func (s *Scheduler) AddUnavailable(name, info string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.workers[name]; exists {
		return
	}
	if _, exists := s.failed[name]; !exists {
		s.order = append(s.order, name)
	}
	status := model.DeviceStatus{Name: name, Info: info, State: string(device.StateDisabled)}
	if err != nil {
		status.LastError = err.Error()
	}
	s.failed[name] = status
}

// Start launches one worker per device and initializes every enabled device
// concurrently. It returns once every initial handshake has completed or
// timed out. Initialization failures disable the device and are not returned.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.started {
		s.mu.Unlock()
		return ErrStarted
	}
	s.started = true
	workers := s.workersLocked()
	s.mu.Unlock()

	for _, w := range workers {
		s.wg.Add(1)
		go func(w *worker) {
			defer s.wg.Done()
			w.loop()
		}(w)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		g.Go(func() error {
			err := w.do(gctx, func() {
				if w.enabled {
					_ = w.initialize()
				} else {
					w.setState(device.StateDisabled, nil)
				}
			})
			if errors.Is(err, ErrStopped) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// Dispatch offers a frame to every device without waiting for any of them.
// A device still busy with an earlier frame keeps only the newest one.
func (s *Scheduler) Dispatch(colors color.KeyColorMap, forced bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		return ErrStopped
	}

	frame := Frame{Colors: colors.Clone(), Forced: forced}
	for _, name := range s.order {
		if w, ok := s.workers[name]; ok {
			w.offer(frame)
		}
	}
	return nil
}

// Run dispatches frames from the channel until it closes or ctx is done.
func (s *Scheduler) Run(ctx context.Context, frames <-chan Frame) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			if err := s.Dispatch(f.Colors, f.Forced); err != nil {
				return err
			}
		}
	}
}

// Enable re-admits a device and initializes it. The last dispatched frame is
// re-applied after a successful handshake.
func (s *Scheduler) Enable(ctx context.Context, name string) error {
	w, err := s.worker(name)
	if err != nil {
		return err
	}

	var initErr error
	if err := w.do(ctx, func() {
		w.setEnabled(true)
		initErr = w.initialize()
	}); err != nil {
		return err
	}
	return initErr
}

// Disable shuts a device down and excludes it from future frames.
func (s *Scheduler) Disable(ctx context.Context, name string) error {
	w, err := s.worker(name)
	if err != nil {
		return err
	}

	var shutdownErr error
	if err := w.do(ctx, func() {
		w.setEnabled(false)
		shutdownErr = w.shutdown()
		w.setState(device.StateDisabled, nil)
	}); err != nil {
		return err
	}
	return shutdownErr
}

// SetMapping replaces the per-device key remap tables.
func (s *Scheduler) SetMapping(m model.DeviceMappingConfig) {
	cp := m.Clone()
	s.mapping.Store(&cp)
}

func (s *Scheduler) mappingFor(name string) model.DeviceLedMap {
	m := s.mapping.Load()
	if m == nil {
		return nil
	}
	return m.For(name)
}

// Snapshot returns a point-in-time copy of every device status in the order
// devices were added.
func (s *Scheduler) Snapshot() model.CurrentDevices {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := model.CurrentDevices{
		GeneratedAt: time.Now().UTC(),
		Devices:     make([]model.DeviceStatus, 0, len(s.order)),
	}
	for _, name := range s.order {
		if w, ok := s.workers[name]; ok {
			out.Devices = append(out.Devices, w.status())
			continue
		}
		out.Devices = append(out.Devices, s.failed[name])
	}
	return out
}

// Names returns every managed device name in insertion order.
func (s *Scheduler) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Stop refuses further frames, aborts in-flight vendor calls, shuts every
// device down and waits for the workers to exit. Shutdown errors are joined.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	started := s.started
	workers := s.workersLocked()
	s.mu.Unlock()

	s.cancel()
	if !started {
		return nil
	}

	var (
		errMu sync.Mutex
		errs  []error
		g     errgroup.Group
	)
	for _, w := range workers {
		g.Go(func() error {
			if err := w.stop(ctx); err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	return errors.Join(errs...)
}

func (s *Scheduler) worker(name string) (*worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		return nil, ErrStopped
	}
	if w, ok := s.workers[name]; ok {
		if !s.started {
			return nil, fmt.Errorf("%s: scheduler not started", name)
		}
		return w, nil
	}
	if _, ok := s.failed[name]; ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnavailable)
	}
	return nil, fmt.Errorf("%s: %w", name, ErrUnknownDevice)
}

func (s *Scheduler) workersLocked() []*worker {
	out := make([]*worker, 0, len(s.workers))
	for _, name := range s.order {
		if w, ok := s.workers[name]; ok {
			out = append(out, w)
		}
	}
	return out
}
