// Package mqttlight mirrors one key of the frame onto an MQTT light using the
// Home Assistant JSON light schema.
package mqttlight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/alexisbeaulieu97/keyglow/internal/color"
	"github.com/alexisbeaulieu97/keyglow/internal/device"
	"github.com/alexisbeaulieu97/keyglow/internal/variables"
)

const (
	Name = "MQTT Light"

	VarBroker   = "broker"
	VarTopic    = "topic"
	VarKey      = "key"
	VarClientID = "client_id"
	VarRetain   = "retain"

	defaultBroker    = "tcp://localhost:1883"
	defaultTopic     = "keyglow/light/set"
	defaultClientID  = "keyglow"
	defaultSendDelay = 100
)

var ErrNotInitialized = errors.New("mqtt light not initialized")

func init() {
	device.MustRegister(Name, func() (device.Device, error) {
		return New(), nil
	})
}

// Publisher is the slice of an MQTT client the device needs.
type Publisher interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, retain bool, payload []byte) error
	Close()
}

// Dialer builds a Publisher for a broker URL and client id.
type Dialer func(broker, clientID string) Publisher

// Option configures a Device.
type Option func(*Device)

// WithDialer replaces the paho-backed publisher.
func WithDialer(dial Dialer) Option {
	return func(d *Device) { d.dial = dial }
}

// Device publishes the color of a single key.
type Device struct {
	device.Base

	dial Dialer

	mu    sync.Mutex
	pub   Publisher
	topic string
}

// New creates a disconnected light.
func New(opts ...Option) *Device {
	d := &Device{
		Base: device.Base{DeviceName: Name, SendDelay: defaultSendDelay},
		dial: newPahoPublisher,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RegisterVariables implements device.Device.
func (d *Device) RegisterVariables(reg *variables.Registry) {
	d.Base.RegisterVariables(reg)
	reg.Register(Name, VarBroker, defaultBroker, "Broker URL")
	reg.Register(Name, VarTopic, defaultTopic, "Command topic of the light")
	reg.Register(Name, VarKey, color.KeyPeripheralLogo.String(), "Key whose color drives the light")
	reg.Register(Name, VarClientID, defaultClientID, "MQTT client id")
	reg.Register(Name, VarRetain, false, "Publish retained messages")
}

// Initialize implements device.Device.
func (d *Device) Initialize(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pub != nil {
		return true, nil
	}

	broker := variables.GetOr(d.Vars(), Name, VarBroker, defaultBroker)
	clientID := variables.GetOr(d.Vars(), Name, VarClientID, defaultClientID)
	topic := variables.GetOr(d.Vars(), Name, VarTopic, defaultTopic)
	if topic == "" {
		return false, fmt.Errorf("%s is empty", VarTopic)
	}

	pub := d.dial(broker, clientID)
	if err := pub.Connect(ctx); err != nil {
		pub.Close()
		return false, err
	}
	d.pub = pub
	d.topic = topic
	d.Throttle().Reset()
	d.SetInfo(fmt.Sprintf("%s %s", broker, topic))
	return true, nil
}

// Shutdown implements device.Device. The light is switched off before the
// connection closes.
func (d *Device) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pub == nil {
		return nil
	}
	payload, _ := json.Marshal(lightCommand{State: "OFF"})
	err := d.pub.Publish(ctx, d.topic, d.retain(), payload)
	d.pub.Close()
	d.pub = nil
	return err
}

// Update implements device.Device. Frames that do not carry the configured
// key are ignored.
func (d *Device) Update(ctx context.Context, frame color.KeyColorMap, forced bool) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.pub == nil {
		return false, ErrNotInitialized
	}

	key, err := color.ParseKey(variables.GetOr(d.Vars(), Name, VarKey, color.KeyPeripheralLogo.String()))
	if err != nil {
		return false, fmt.Errorf("%s: %w", VarKey, err)
	}
	c, ok := frame[key]
	if !ok {
		return false, nil
	}
	if !d.Throttle().Allow(forced) {
		return false, nil
	}

	payload, err := json.Marshal(Command(c))
	if err == nil {
		err = d.pub.Publish(ctx, d.topic, d.retain(), payload)
	}
	if err != nil {
		d.Throttle().Reset()
		return false, err
	}
	return true, nil
}

func (d *Device) retain() bool {
	return variables.GetOr(d.Vars(), Name, VarRetain, false)
}

type rgb struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

type lightCommand struct {
	State      string `json:"state"`
	Color      *rgb   `json:"color,omitempty"`
	Brightness *uint8 `json:"brightness,omitempty"`
}

// Command converts a color into a JSON schema light command. Black or fully
// transparent colors switch the light off.
func Command(c color.Color) any {
	if c.A == 0 || (c.R == 0 && c.G == 0 && c.B == 0) {
		return lightCommand{State: "OFF"}
	}
	brightness := c.A
	return lightCommand{
		State:      "ON",
		Color:      &rgb{R: c.R, G: c.G, B: c.B},
		Brightness: &brightness,
	}
}

var _ device.Device = (*Device)(nil)
