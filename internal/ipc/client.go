package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/alexisbeaulieu97/keyglow/internal/color"
	"github.com/alexisbeaulieu97/keyglow/internal/instrument"
	"github.com/alexisbeaulieu97/keyglow/internal/model"
)

// RemoteError is a failure reported by the daemon.
type RemoteError struct {
	Command string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Command, e.Message)
}

// Client issues requests over one connection. Calls are serialized.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to channel ch of the daemon whose sockets live in dir.
func Dial(ctx context.Context, dir string, ch Channel) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", SocketPath(dir, ch))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to keyglow daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends cmd with payload and decodes the reply payload into reply when
// reply is non-nil.
func (c *Client) Call(ctx context.Context, cmd string, payload, reply any) error {
	req := Request{Command: cmd}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode %s payload: %w", cmd, err)
		}
		req.Payload = raw
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if err := WriteMessage(c.conn, req); err != nil {
		return ctxErr(ctx, err)
	}
	var resp Response
	if err := ReadMessage(c.conn, &resp); err != nil {
		return ctxErr(ctx, err)
	}
	if !resp.OK {
		return &RemoteError{Command: cmd, Message: resp.Error}
	}
	if reply != nil && len(resp.Payload) > 0 {
		if err := json.Unmarshal(resp.Payload, reply); err != nil {
			return fmt.Errorf("failed to decode %s reply: %w", cmd, err)
		}
	}
	return nil
}

func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Client) Ping(ctx context.Context) (PingReply, error) {
	var reply PingReply
	err := c.Call(ctx, CmdPing, nil, &reply)
	return reply, err
}

func (c *Client) Devices(ctx context.Context) (model.CurrentDevices, error) {
	var reply model.CurrentDevices
	err := c.Call(ctx, CmdGetDevices, nil, &reply)
	return reply, err
}

func (c *Client) Variables(ctx context.Context, device string) ([]DeviceVariables, error) {
	var reply []DeviceVariables
	err := c.Call(ctx, CmdGetVariables, GetVariablesPayload{Device: device}, &reply)
	return reply, err
}

func (c *Client) SetVariable(ctx context.Context, device, name string, value any) error {
	return c.Call(ctx, CmdSetVariable, SetVariablePayload{Device: device, Name: name, Value: value}, nil)
}

func (c *Client) ResetVariable(ctx context.Context, device, name string) error {
	return c.Call(ctx, CmdResetVariable, ResetVariablePayload{Device: device, Name: name}, nil)
}

func (c *Client) EnableDevice(ctx context.Context, device string) error {
	return c.Call(ctx, CmdEnableDevice, DevicePayload{Device: device}, nil)
}

func (c *Client) DisableDevice(ctx context.Context, device string) error {
	return c.Call(ctx, CmdDisableDevice, DevicePayload{Device: device}, nil)
}

func (c *Client) SetFrame(ctx context.Context, frame color.KeyColorMap, forced bool) error {
	return c.Call(ctx, CmdSetFrame, SetFramePayload{Frame: frame, Forced: forced}, nil)
}

func (c *Client) Mapping(ctx context.Context) (model.DeviceMappingConfig, error) {
	var reply MappingPayload
	err := c.Call(ctx, CmdGetMapping, nil, &reply)
	return reply.Mapping, err
}

func (c *Client) SetMapping(ctx context.Context, mapping model.DeviceMappingConfig) error {
	return c.Call(ctx, CmdSetMapping, MappingPayload{Mapping: mapping}, nil)
}

func (c *Client) Stats(ctx context.Context) ([]instrument.Stats, error) {
	var reply []instrument.Stats
	err := c.Call(ctx, CmdGetStats, nil, &reply)
	return reply, err
}

func (c *Client) Shutdown(ctx context.Context) error {
	return c.Call(ctx, CmdShutdown, nil, nil)
}
