package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alexisbeaulieu97/keyglow/internal/device"
	"github.com/alexisbeaulieu97/keyglow/internal/instrument"
	"github.com/alexisbeaulieu97/keyglow/internal/logger"
	"github.com/alexisbeaulieu97/keyglow/internal/model"
	kgerrors "github.com/alexisbeaulieu97/keyglow/pkg/errors"
)

var (
	errCallTimeout = errors.New("vendor call timed out")
	errCallBusy    = fmt.Errorf("%w: previous call still running", errCallTimeout)
	errInitFalse   = errors.New("device reported initialization failure")
)

// worker owns one device. Fields below the loop marker are only touched by
// the worker goroutine.
type worker struct {
	s    *Scheduler
	dev  device.Device
	name string
	log  *logger.Logger

	signal chan struct{}
	cmds   chan func()
	exited chan struct{}

	mu      sync.Mutex
	pending *Frame
	last    *Frame
	stat    model.DeviceStatus
	state   device.State

	// loop
	enabled     bool
	initialized bool
	failures    int
	quitting    bool
	inflight    chan struct{}
}

func newWorker(s *Scheduler, d device.Device, enabled bool) *worker {
	name := d.Name()
	return &worker{
		s:       s,
		dev:     d,
		name:    name,
		log:     s.log.WithDevice(name),
		signal:  make(chan struct{}, 1),
		cmds:    make(chan func()),
		exited:  make(chan struct{}),
		enabled: enabled,
		state:   device.StateUninitialized,
		stat:    model.DeviceStatus{Name: name, Info: safeInfo(d), Enabled: enabled},
	}
}

func (w *worker) loop() {
	defer close(w.exited)
	for {
		select {
		case cmd := <-w.cmds:
			cmd()
		case <-w.signal:
			if f, ok := w.take(); ok {
				w.apply(f)
			}
		}
		if w.quitting {
			return
		}
	}
}

// do runs fn on the worker goroutine and waits for it to finish.
func (w *worker) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	cmd := func() {
		defer close(done)
		fn()
	}

	select {
	case w.cmds <- cmd:
	case <-w.exited:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *worker) stop(ctx context.Context) error {
	var shutdownErr error
	err := w.do(ctx, func() {
		shutdownErr = w.shutdown()
		w.quitting = true
	})
	if errors.Is(err, ErrStopped) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", w.name, err)
	}
	return shutdownErr
}

func (w *worker) offer(f Frame) {
	w.mu.Lock()
	if w.pending != nil {
		w.stat.FramesSkipped++
		f.Forced = f.Forced || w.pending.Forced
	}
	w.pending = &f
	w.last = &f
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *worker) take() (Frame, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending == nil {
		return Frame{}, false
	}
	f := *w.pending
	w.pending = nil
	return f, true
}

func (w *worker) apply(f Frame) {
	if !w.enabled || !w.currentState().Active() {
		w.mu.Lock()
		w.stat.FramesSkipped++
		w.mu.Unlock()
		return
	}

	colors := f.Colors
	if table := w.s.mappingFor(w.name); len(table) > 0 {
		colors = colors.Remap(table)
	}

	w.setState(device.StateUpdating, nil)

	var applied bool
	elapsed, err := instrument.Measure(w.s.opts.Recorder, w.name, instrument.OpUpdate, func() error {
		return w.call(w.s.callCtx, w.s.opts.UpdateTimeout, false, func(ctx context.Context) error {
			ok, err := w.dev.Update(ctx, colors, f.Forced)
			applied = ok
			return err
		})
	})

	if err != nil {
		kind := kgerrors.KindUpdate
		if errors.Is(err, errCallTimeout) {
			kind = kgerrors.KindUpdateTimeout
		}
		derr := kgerrors.NewDeviceError(w.name, instrument.OpUpdate, kind, err)
		w.failures++

		w.mu.Lock()
		w.stat.ConsecutiveFailures = w.failures
		w.stat.LastUpdateMs = instrument.Milliseconds(elapsed)
		w.stat.FramesSkipped++
		w.mu.Unlock()

		entry := w.log.WithDuration(elapsed).WithFields(map[string]any{"consecutive_failures": w.failures})
		if w.failures >= w.s.opts.MaxConsecutiveErrors {
			entry.Error(derr, "device disabled after consecutive update failures")
			_ = w.shutdown()
			w.setState(device.StateDisabled, derr)
			return
		}
		entry.WarnErr(derr, "device update failed")
		w.setState(device.StateError, derr)
		return
	}

	w.failures = 0
	w.mu.Lock()
	w.stat.ConsecutiveFailures = 0
	w.stat.LastUpdateMs = instrument.Milliseconds(elapsed)
	if applied {
		w.stat.FramesApplied++
	} else {
		w.stat.FramesSkipped++
	}
	w.mu.Unlock()
	w.setState(device.StateInitialized, nil)
}

func (w *worker) initialize() error {
	if w.initialized && w.currentState().Active() {
		return nil
	}

	w.failures = 0
	w.mu.Lock()
	w.stat.ConsecutiveFailures = 0
	w.mu.Unlock()
	w.setState(device.StateInitializing, nil)

	elapsed, err := instrument.Measure(w.s.opts.Recorder, w.name, instrument.OpInitialize, func() error {
		return w.call(w.s.callCtx, w.s.opts.InitTimeout, false, func(ctx context.Context) error {
			ok, err := w.dev.Initialize(ctx)
			if err == nil && !ok {
				err = errInitFalse
			}
			return err
		})
	})

	w.mu.Lock()
	w.stat.LastInitMs = instrument.Milliseconds(elapsed)
	w.stat.Info = safeInfo(w.dev)
	w.mu.Unlock()

	entry := w.log.WithDuration(elapsed)
	if err != nil {
		derr := kgerrors.NewDeviceError(w.name, instrument.OpInitialize, kgerrors.KindInitialization, err)
		entry.Error(derr, "device initialization failed")
		w.setState(device.StateDisabled, derr)
		return derr
	}

	w.initialized = true
	entry.Info("device initialized")
	w.setState(device.StateInitialized, nil)

	f, ok := w.take()
	if !ok {
		w.mu.Lock()
		if w.last != nil {
			f, ok = *w.last, true
		}
		w.mu.Unlock()
	}
	if ok {
		f.Forced = true
		w.apply(f)
	}
	return nil
}

// shutdown always calls the backend, which must tolerate devices that were
// never initialized.
func (w *worker) shutdown() error {
	wasInitialized := w.initialized
	if wasInitialized {
		w.setState(device.StateShuttingDown, nil)
	}

	elapsed, err := instrument.Measure(w.s.opts.Recorder, w.name, instrument.OpShutdown, func() error {
		return w.call(context.Background(), w.s.opts.ShutdownTimeout, true, func(ctx context.Context) error {
			return w.dev.Shutdown(ctx)
		})
	})
	w.initialized = false
	if wasInitialized {
		w.setState(device.StateUninitialized, nil)
	}

	if err != nil {
		derr := kgerrors.NewDeviceError(w.name, instrument.OpShutdown, kgerrors.KindShutdown, err)
		w.log.WithDuration(elapsed).
			Error(derr, "device shutdown failed")
		return derr
	}
	return nil
}

// call runs fn in its own goroutine bounded by timeout. Panics become
// errors. A call that outlives its timeout keeps the device busy: later calls
// fail immediately with errCallBusy unless waitBusy is set, in which case
// they wait for it within their own timeout.
func (w *worker) call(parent context.Context, timeout time.Duration, waitBusy bool, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	if w.inflight != nil {
		if waitBusy {
			select {
			case <-w.inflight:
			case <-ctx.Done():
			}
		}
		select {
		case <-w.inflight:
			w.inflight = nil
		default:
			return errCallBusy
		}
	}

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- fn(ctx)
	}()

	select {
	case err := <-done:
		return classify(parent, ctx, err)
	case <-ctx.Done():
	}

	select {
	case err := <-done:
		return classify(parent, ctx, err)
	default:
	}

	finished := make(chan struct{})
	go func() {
		<-done
		close(finished)
	}()
	w.inflight = finished

	if parent.Err() != nil {
		return parent.Err()
	}
	return errCallTimeout
}

// classify reports a backend that gave up on its own deadline as a timeout.
func classify(parent, ctx context.Context, err error) error {
	if err != nil && parent.Err() == nil && ctx.Err() != nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", errCallTimeout, err)
	}
	return err
}

func (w *worker) setEnabled(enabled bool) {
	w.enabled = enabled
	w.mu.Lock()
	w.stat.Enabled = enabled
	w.mu.Unlock()
}

func (w *worker) setState(to device.State, err error) {
	w.mu.Lock()
	from := w.state
	w.state = to
	w.stat.Initialized = w.initialized
	if err != nil {
		w.stat.LastError = err.Error()
	} else if to == device.StateInitialized {
		w.stat.LastError = ""
	}
	w.mu.Unlock()

	if from == to && err == nil {
		return
	}
	if hook := w.s.opts.OnStateChange; hook != nil {
		hook(StateChange{Device: w.name, From: from, To: to, Err: err})
	}
}

func (w *worker) currentState() device.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *worker) status() model.DeviceStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := w.stat
	st.State = string(w.state)
	return st
}

func safeInfo(d device.Device) (info string) {
	defer func() {
		if recover() != nil {
			info = ""
		}
	}()
	return d.Info()
}
