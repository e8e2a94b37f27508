package mqttlight

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/keyglow/internal/color"
	"github.com/alexisbeaulieu97/keyglow/internal/device"
	"github.com/alexisbeaulieu97/keyglow/internal/variables"
)

type message struct {
	topic   string
	retain  bool
	payload map[string]any
}

type fakePublisher struct {
	mu         sync.Mutex
	broker     string
	clientID   string
	connectErr error
	publishErr error
	messages   []message
	closed     bool
}

func (p *fakePublisher) Connect(context.Context) error { return p.connectErr }

func (p *fakePublisher) Publish(_ context.Context, topic string, retain bool, payload []byte) error {
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.publishErr != nil {
		return p.publishErr
	}
	p.messages = append(p.messages, message{topic: topic, retain: retain, payload: decoded})
	return nil
}

func (p *fakePublisher) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func newLight(t *testing.T, pub *fakePublisher) (*Device, *variables.Registry) {
	t.Helper()
	d := New(WithDialer(func(broker, clientID string) Publisher {
		pub.broker, pub.clientID = broker, clientID
		return pub
	}))
	reg := variables.New()
	d.RegisterVariables(reg)
	return d, reg
}

func TestPublishesConfiguredKey(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	d, reg := newLight(t, pub)
	require.NoError(t, reg.Set(Name, VarTopic, "home/desk/set"))
	require.NoError(t, reg.Set(Name, VarKey, "ESC"))
	require.NoError(t, reg.Set(Name, VarRetain, true))

	ok, err := d.Initialize(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, defaultBroker, pub.broker)
	require.Equal(t, "tcp://localhost:1883 home/desk/set", d.Info())

	applied, err := d.Update(context.Background(), color.KeyColorMap{color.KeyF1: color.White}, true)
	require.NoError(t, err)
	require.False(t, applied, "frame without the key is ignored")

	applied, err = d.Update(context.Background(), color.KeyColorMap{
		color.KeyEscape: {R: 10, G: 20, B: 30, A: 128},
	}, true)
	require.NoError(t, err)
	require.True(t, applied)

	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]
	require.Equal(t, "home/desk/set", msg.topic)
	require.True(t, msg.retain)
	require.Equal(t, "ON", msg.payload["state"])
	require.Equal(t, map[string]any{"r": 10.0, "g": 20.0, "b": 30.0}, msg.payload["color"])
	require.Equal(t, 128.0, msg.payload["brightness"])
}

func TestBlackSwitchesOff(t *testing.T) {
	t.Parallel()

	raw, err := json.Marshal(Command(color.Black))
	require.NoError(t, err)
	require.JSONEq(t, `{"state":"OFF"}`, string(raw))

	raw, err = json.Marshal(Command(color.Color{R: 255}))
	require.NoError(t, err)
	require.JSONEq(t, `{"state":"OFF"}`, string(raw))
}

func TestThrottleLimitsPublishes(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	d, _ := newLight(t, pub)
	_, err := d.Initialize(context.Background())
	require.NoError(t, err)

	frame := color.KeyColorMap{color.KeyPeripheralLogo: color.RGB(0, 255, 0)}
	first, err := d.Update(context.Background(), frame, false)
	require.NoError(t, err)
	second, err := d.Update(context.Background(), frame, false)
	require.NoError(t, err)

	require.True(t, first)
	require.False(t, second)
	require.Len(t, pub.messages, 1)
}

func TestShutdownSwitchesOffAndCloses(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	d, _ := newLight(t, pub)
	require.NoError(t, d.Shutdown(context.Background()), "shutdown before initialize is a no-op")
	require.Empty(t, pub.messages)

	_, err := d.Initialize(context.Background())
	require.NoError(t, err)
	require.NoError(t, d.Shutdown(context.Background()))
	require.True(t, pub.closed)
	require.Len(t, pub.messages, 1)
	require.Equal(t, "OFF", pub.messages[0].payload["state"])

	_, err = d.Update(context.Background(), color.Fill(color.White), true)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestConnectFailureLeavesDeviceUninitialized(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{connectErr: errors.New("connection refused")}
	d, _ := newLight(t, pub)

	ok, err := d.Initialize(context.Background())
	require.Error(t, err)
	require.False(t, ok)
	require.True(t, pub.closed)

	_, err = d.Update(context.Background(), color.Fill(color.White), true)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestRegisteredInDefaultCatalog(t *testing.T) {
	t.Parallel()

	reg, ok := device.Default().Lookup(Name)
	require.True(t, ok)
	require.True(t, reg.Discoverable)
}

func TestFailedPublishDoesNotThrottleNextFrame(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{publishErr: errors.New("broker gone")}
	d, reg := newLight(t, pub)
	require.NoError(t, reg.Set(Name, VarKey, "ESC"))
	require.NoError(t, reg.Set(Name, device.VarSendDelay, 1000))
	_, err := d.Initialize(context.Background())
	require.NoError(t, err)

	frame := color.KeyColorMap{color.KeyEscape: color.White}
	applied, err := d.Update(context.Background(), frame, false)
	require.Error(t, err)
	require.False(t, applied)

	pub.mu.Lock()
	pub.publishErr = nil
	pub.mu.Unlock()

	applied, err = d.Update(context.Background(), frame, false)
	require.NoError(t, err)
	require.True(t, applied)
	require.Len(t, pub.messages, 1)
}
