package mqttlight

import (
	"context"
	"errors"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	connectTimeout    = 5 * time.Second
	keepAlive         = 30 * time.Second
	disconnectQuiesce = 250 // milliseconds
	qos               = 0
)

var ErrNotConnected = errors.New("mqtt: not connected")

type pahoPublisher struct {
	client pahomqtt.Client
}

func newPahoPublisher(broker, clientID string) Publisher {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)
	opts.SetOrderMatters(false)
	return &pahoPublisher{client: pahomqtt.NewClient(opts)}
}

func (p *pahoPublisher) Connect(ctx context.Context) error {
	if err := wait(ctx, p.client.Connect()); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (p *pahoPublisher) Publish(ctx context.Context, topic string, retain bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	if err := wait(ctx, p.client.Publish(topic, qos, retain, payload)); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

func (p *pahoPublisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(disconnectQuiesce)
	}
}

// wait blocks until the token completes or ctx is done.
func wait(ctx context.Context, token pahomqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
