package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/alexisbeaulieu97/keyglow/internal/logger"
)

// Socket names created under the runtime directory.
const (
	ControlSocket   = "keyglow-devicemanager"
	InterfaceSocket = "keyglow-interface"
)

// Channel identifies one of the two listening endpoints.
type Channel string

const (
	ChannelControl   Channel = "control"
	ChannelInterface Channel = "interface"
)

// DefaultRequestTimeout bounds the handling of one request.
const DefaultRequestTimeout = 10 * time.Second

var (
	ErrServerClosed = errors.New("ipc: server closed")
	ErrSocketInUse  = errors.New("ipc: socket in use by another process")
)

// SocketPath returns the path of channel ch under dir.
func SocketPath(dir string, ch Channel) string {
	if ch == ChannelInterface {
		return filepath.Join(dir, InterfaceSocket)
	}
	return filepath.Join(dir, ControlSocket)
}

// Options configures a Server.
type Options struct {
	Dir            string
	Version        string
	Backend        Backend
	Logger         *logger.Logger
	RequestTimeout time.Duration
}

type handlerFunc func(ctx context.Context, payload json.RawMessage) (any, error)

// Server serves the control and interface channels over unix sockets.
type Server struct {
	dir     string
	version string
	backend Backend
	log     *logger.Logger
	timeout time.Duration
	routes  map[string]handlerFunc

	mu        sync.Mutex
	listeners map[Channel]net.Listener
	conns     map[net.Conn]struct{}
	closed    bool
	inflight  int
	wg        sync.WaitGroup
}

// NewServer validates opts and prepares the command routes. Nothing is bound
// until Listen.
func NewServer(opts Options) (*Server, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("ipc: socket directory is required")
	}
	if opts.Backend == nil {
		return nil, fmt.Errorf("ipc: backend is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	s := &Server{
		dir:       opts.Dir,
		version:   opts.Version,
		backend:   opts.Backend,
		log:       log.WithFields(map[string]any{"component": "ipc"}),
		timeout:   timeout,
		listeners: make(map[Channel]net.Listener),
		conns:     make(map[net.Conn]struct{}),
	}
	s.routes = s.buildRoutes()
	return s, nil
}

// Listen binds both sockets with mode 0600. Stale socket files left by a
// previous process are removed; a socket that still accepts connections is
// reported as ErrSocketInUse.
func (s *Server) Listen() error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServerClosed
	}

	for _, ch := range []Channel{ChannelControl, ChannelInterface} {
		path := SocketPath(s.dir, ch)
		if err := removeStale(path); err != nil {
			s.closeListenersLocked()
			return err
		}
		ln, err := net.Listen("unix", path)
		if err != nil {
			s.closeListenersLocked()
			return fmt.Errorf("failed to listen on %s: %w", path, err)
		}
		if err := os.Chmod(path, 0o600); err != nil {
			_ = ln.Close()
			s.closeListenersLocked()
			return fmt.Errorf("failed to restrict %s: %w", path, err)
		}
		s.listeners[ch] = ln
		s.log.WithFields(map[string]any{"channel": ch, "path": path}).Info("ipc channel listening")
	}
	return nil
}

func removeStale(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to inspect %s: %w", path, err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}

	conn, err := net.DialTimeout("unix", path, 200*time.Millisecond)
	if err == nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %s", ErrSocketInUse, path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket %s: %w", path, err)
	}
	return nil
}

// Serve accepts connections on both channels until ctx is done or Close is
// called. Listen must have succeeded first.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	if len(s.listeners) == 0 {
		s.mu.Unlock()
		return fmt.Errorf("ipc: Serve called before Listen")
	}
	var accepting sync.WaitGroup
	for ch, ln := range s.listeners {
		accepting.Add(1)
		go func() {
			defer accepting.Done()
			s.acceptLoop(ctx, ch, ln)
		}()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		accepting.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		_ = s.Close()
		<-done
		return nil
	case <-done:
		return nil
	}
}

func (s *Server) acceptLoop(ctx context.Context, ch Channel, ln net.Listener) {
	log := s.log.WithFields(map[string]any{"channel": ch})
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || s.isClosed() {
				return
			}
			log.WarnErr(err, "accept failed")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if !s.track(conn) {
			_ = conn.Close()
			return
		}
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handle(ctx, ch, conn, log)
		}()
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(conn net.Conn) {
	_ = conn.Close()
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// handle serves requests on one connection until the peer disconnects. A
// malformed request fails only itself.
func (s *Server) handle(ctx context.Context, ch Channel, conn net.Conn, log *logger.Logger) {
	log.Debug("client connected")
	for {
		body, err := ReadFrame(conn)
		if err != nil {
			if errors.Is(err, ErrDisconnected) || s.isClosed() {
				log.Debug("client disconnected")
				return
			}
			log.WarnErr(err, "dropping connection")
			if errors.Is(err, ErrMessageTooLarge) {
				_ = WriteMessage(conn, Response{Error: err.Error()})
			}
			return
		}

		s.setInflight(1)
		resp := s.process(ctx, ch, body, log)
		err = WriteMessage(conn, resp)
		s.setInflight(-1)
		if err != nil {
			if !errors.Is(err, ErrDisconnected) {
				log.WarnErr(err, "failed to write response")
			}
			return
		}
	}
}

func (s *Server) setInflight(delta int) {
	s.mu.Lock()
	s.inflight += delta
	s.mu.Unlock()
}

func (s *Server) idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight == 0
}

func (s *Server) process(ctx context.Context, ch Channel, body []byte, log *logger.Logger) Response {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		log.WarnErr(err, "malformed request")
		return Response{Error: fmt.Sprintf("malformed request: %v", err)}
	}

	entry := log.WithFields(map[string]any{"command": req.Command})
	handler, ok := s.routes[req.Command]
	if !ok {
		entry.Warn("unknown command")
		return Response{Error: fmt.Sprintf("unknown command %q", req.Command)}
	}
	if ch == ChannelInterface && !ReadOnly(req.Command) {
		entry.Warn("command rejected on interface channel")
		return Response{Error: fmt.Sprintf("command %q is not allowed on the interface channel", req.Command)}
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	result, err := handler(reqCtx, req.Payload)
	entry = entry.WithDuration(time.Since(start))
	if err != nil {
		entry.WarnErr(err, "command failed")
		return Response{Error: err.Error()}
	}
	entry.Debug("command handled")

	resp := Response{OK: true}
	if result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			entry.Error(err, "failed to encode reply")
			return Response{Error: "failed to encode reply"}
		}
		resp.Payload = raw
	}
	return resp
}

// Shutdown waits for requests already being handled to write their
// replies, then closes the server. Once ctx is done the remaining
// connections are dropped.
func (s *Server) Shutdown(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for !s.idle() {
		select {
		case <-ctx.Done():
			return errors.Join(ctx.Err(), s.Close())
		case <-ticker.C:
		}
	}
	return s.Close()
}

// Close stops accepting, drops open connections, waits for their handlers
// and removes the socket files. It is safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	errs := s.closeListenersLocked()
	for conn := range s.conns {
		_ = conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("ipc server closed")
	return errors.Join(errs...)
}

func (s *Server) closeListenersLocked() []error {
	var errs []error
	for ch, ln := range s.listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		// net.UnixListener unlinks on Close; this covers a failed unlink.
		path := SocketPath(s.dir, ch)
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
		delete(s.listeners, ch)
	}
	return errs
}
