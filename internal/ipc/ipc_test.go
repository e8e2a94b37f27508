package ipc

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/keyglow/internal/color"
	"github.com/alexisbeaulieu97/keyglow/internal/instrument"
	"github.com/alexisbeaulieu97/keyglow/internal/logger"
	"github.com/alexisbeaulieu97/keyglow/internal/model"
	"github.com/alexisbeaulieu97/keyglow/internal/variables"
)

type fakeBackend struct {
	mu        sync.Mutex
	frames    []color.KeyColorMap
	forced    []bool
	vars      map[string]any
	enabled   map[string]bool
	mapping   model.DeviceMappingConfig
	shutdowns int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{vars: map[string]any{}, enabled: map[string]bool{}}
}

func (b *fakeBackend) SetFrame(_ context.Context, frame color.KeyColorMap, forced bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, frame)
	b.forced = append(b.forced, forced)
	return nil
}

func (b *fakeBackend) Devices(context.Context) model.CurrentDevices {
	return model.CurrentDevices{Devices: []model.DeviceStatus{
		{Name: "Virtual Keyboard", State: "initialized", Enabled: true, Initialized: true},
	}}
}

func (b *fakeBackend) Variables(_ context.Context, device string) ([]DeviceVariables, error) {
	if device == "missing" {
		return nil, errors.New("unknown device")
	}
	return []DeviceVariables{{
		Device:    "Virtual Keyboard",
		Variables: []variables.Info{{Name: "send_delay", Kind: variables.KindInt, Default: 32, Value: 32}},
	}}, nil
}

func (b *fakeBackend) SetVariable(_ context.Context, device, name string, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vars[variables.Key(device, name)] = value
	return nil
}

func (b *fakeBackend) ResetVariable(_ context.Context, device, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.vars, variables.Key(device, name))
	return nil
}

func (b *fakeBackend) EnableDevice(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled[name] = true
	return nil
}

func (b *fakeBackend) DisableDevice(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.enabled[name] = false
	return nil
}

func (b *fakeBackend) Mapping(context.Context) model.DeviceMappingConfig {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mapping.Clone()
}

func (b *fakeBackend) SetMapping(_ context.Context, mapping model.DeviceMappingConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mapping = mapping
	return nil
}

func (b *fakeBackend) Stats(context.Context) []instrument.Stats {
	return []instrument.Stats{{Device: "Virtual Keyboard", Op: instrument.OpUpdate, Count: 4, Total: 8 * time.Millisecond}}
}

func (b *fakeBackend) RequestShutdown(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdowns++
	return nil
}

// socketDir stays short; unix socket paths are limited to ~108 bytes.
func socketDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "kgipc")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

func startServer(t *testing.T, backend Backend) (*Server, string) {
	t.Helper()
	dir := socketDir(t)
	srv, err := NewServer(Options{Dir: dir, Version: "test", Backend: backend, Logger: logger.Nop()})
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return srv, dir
}

func dial(t *testing.T, dir string, ch Channel) *Client {
	t.Helper()
	client, err := Dial(context.Background(), dir, ch)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func callCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestFrameRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, Request{Command: CmdPing}))
	require.Equal(t, uint32(buf.Len()-4), binary.BigEndian.Uint32(buf.Bytes()[:4]))

	var req Request
	require.NoError(t, ReadMessage(&buf, &req))
	require.Equal(t, CmdPing, req.Command)

	_, err := ReadFrame(&buf)
	require.ErrorIs(t, err, ErrDisconnected)
}

func TestFrameLimits(t *testing.T) {
	t.Parallel()

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], MaxMessageSize+1)
	_, err := ReadFrame(bytes.NewReader(header[:]))
	require.ErrorIs(t, err, ErrMessageTooLarge)

	require.ErrorIs(t, WriteFrame(&bytes.Buffer{}, make([]byte, MaxMessageSize+1)), ErrMessageTooLarge)

	binary.BigEndian.PutUint32(header[:], 10)
	_, err = ReadFrame(bytes.NewReader(append(header[:], 'x')))
	require.ErrorIs(t, err, ErrDisconnected)
}

func TestControlChannelCommands(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	_, dir := startServer(t, backend)
	client := dial(t, dir, ChannelControl)
	ctx := callCtx(t)

	pong, err := client.Ping(ctx)
	require.NoError(t, err)
	require.Equal(t, "test", pong.Version)

	devices, err := client.Devices(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Virtual Keyboard"}, devices.Names())

	frame := color.KeyColorMap{color.KeyEscape: color.RGB(255, 0, 0)}
	require.NoError(t, client.SetFrame(ctx, frame, true))
	require.NoError(t, client.SetVariable(ctx, "Virtual Keyboard", "send_delay", 50))
	require.NoError(t, client.EnableDevice(ctx, "Virtual Keyboard"))
	require.NoError(t, client.SetMapping(ctx, model.DeviceMappingConfig{
		"Virtual Keyboard": {color.KeyEscape: color.KeyF1},
	}))
	require.NoError(t, client.Shutdown(ctx))

	mapping, err := client.Mapping(ctx)
	require.NoError(t, err)
	require.Equal(t, color.KeyF1, mapping["Virtual Keyboard"][color.KeyEscape])

	vars, err := client.Variables(ctx, "")
	require.NoError(t, err)
	require.Len(t, vars, 1)
	require.Equal(t, "send_delay", vars[0].Variables[0].Name)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Equal(t, []color.KeyColorMap{frame}, backend.frames)
	require.Equal(t, []bool{true}, backend.forced)
	require.EqualValues(t, 50, backend.vars["Virtual Keyboard_send_delay"])
	require.True(t, backend.enabled["Virtual Keyboard"])
	require.Equal(t, 1, backend.shutdowns)
}

func TestInterfaceChannelIsReadOnly(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	_, dir := startServer(t, backend)
	client := dial(t, dir, ChannelInterface)
	ctx := callCtx(t)

	_, err := client.Devices(ctx)
	require.NoError(t, err)
	_, err = client.Mapping(ctx)
	require.NoError(t, err)
	stats, err := client.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, 2*time.Millisecond, stats[0].Average())

	err = client.SetFrame(ctx, color.Fill(color.White), false)
	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	require.Contains(t, remote.Message, "interface channel")

	require.Error(t, client.Shutdown(ctx))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Empty(t, backend.frames)
	require.Zero(t, backend.shutdowns)
}

func TestMalformedRequestFailsOnlyThatMessage(t *testing.T) {
	t.Parallel()

	_, dir := startServer(t, newFakeBackend())
	conn, err := net.Dial("unix", SocketPath(dir, ChannelControl))
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, WriteFrame(conn, []byte("{not json")))
	var resp Response
	require.NoError(t, ReadMessage(conn, &resp))
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "malformed request")

	require.NoError(t, WriteMessage(conn, Request{Command: CmdSetFrame, Payload: json.RawMessage(`{"frame":{},"exec":"rm -rf"}`)}))
	require.NoError(t, ReadMessage(conn, &resp))
	require.False(t, resp.OK)
	require.Contains(t, resp.Error, "invalid payload")

	require.NoError(t, WriteMessage(conn, Request{Command: "Reboot"}))
	require.NoError(t, ReadMessage(conn, &resp))
	require.False(t, resp.OK)

	require.NoError(t, WriteMessage(conn, Request{Command: CmdPing}))
	require.NoError(t, ReadMessage(conn, &resp))
	require.True(t, resp.OK)
}

func TestClientDisconnectKeepsServerRunning(t *testing.T) {
	t.Parallel()

	_, dir := startServer(t, newFakeBackend())

	first, err := Dial(context.Background(), dir, ChannelControl)
	require.NoError(t, err)
	_, err = first.conn.Write([]byte{0, 0, 0, 20, '{'})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second := dial(t, dir, ChannelControl)
	_, err = second.Ping(callCtx(t))
	require.NoError(t, err)
}

func TestSocketsArePrivateAndRemovedOnClose(t *testing.T) {
	t.Parallel()

	dir := socketDir(t)
	srv, err := NewServer(Options{Dir: dir, Backend: newFakeBackend()})
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	for _, ch := range []Channel{ChannelControl, ChannelInterface} {
		info, err := os.Stat(SocketPath(dir, ch))
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())
	_, err = os.Stat(SocketPath(dir, ChannelControl))
	require.ErrorIs(t, err, os.ErrNotExist)
	require.ErrorIs(t, srv.Serve(context.Background()), ErrServerClosed)
}

func TestStaleSocketIsReplaced(t *testing.T) {
	t.Parallel()

	dir := socketDir(t)
	stale, err := net.Listen("unix", SocketPath(dir, ChannelControl))
	require.NoError(t, err)
	stale.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, stale.Close())

	srv, err := NewServer(Options{Dir: dir, Backend: newFakeBackend()})
	require.NoError(t, err)
	require.NoError(t, srv.Listen())
	require.NoError(t, srv.Close())
}

func TestLiveSocketIsNotStolen(t *testing.T) {
	t.Parallel()

	_, dir := startServer(t, newFakeBackend())

	other, err := NewServer(Options{Dir: dir, Backend: newFakeBackend()})
	require.NoError(t, err)
	require.ErrorIs(t, other.Listen(), ErrSocketInUse)
}

type blockingBackend struct {
	*fakeBackend
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBackend) EnableDevice(ctx context.Context, name string) error {
	close(b.entered)
	<-b.release
	return b.fakeBackend.EnableDevice(ctx, name)
}

func TestShutdownLetsInflightRequestReply(t *testing.T) {
	t.Parallel()

	backend := &blockingBackend{
		fakeBackend: newFakeBackend(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	srv, dir := startServer(t, backend)
	client := dial(t, dir, ChannelControl)

	replied := make(chan error, 1)
	go func() { replied <- client.EnableDevice(callCtx(t), "Virtual Keyboard") }()
	<-backend.entered

	stopped := make(chan error, 1)
	go func() { stopped <- srv.Shutdown(callCtx(t)) }()

	select {
	case <-stopped:
		t.Fatal("shutdown returned while a request was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(backend.release)
	require.NoError(t, <-replied)
	require.NoError(t, <-stopped)
}
