package ipc

import (
	"context"
	"time"

	"github.com/alexisbeaulieu97/keyglow/internal/color"
	"github.com/alexisbeaulieu97/keyglow/internal/instrument"
	"github.com/alexisbeaulieu97/keyglow/internal/model"
	"github.com/alexisbeaulieu97/keyglow/internal/variables"
)

// Command names carried in Request.Command.
const (
	CmdSetFrame      = "SetFrame"
	CmdGetDevices    = "GetDevices"
	CmdSetVariable   = "SetVariable"
	CmdShutdown      = "Shutdown"
	CmdGetVariables  = "GetVariables"
	CmdResetVariable = "ResetVariable"
	CmdEnableDevice  = "EnableDevice"
	CmdDisableDevice = "DisableDevice"
	CmdGetMapping    = "GetMapping"
	CmdSetMapping    = "SetMapping"
	CmdPing          = "Ping"
	CmdGetStats      = "GetStats"
)

// readOnly lists the commands served on the interface channel.
var readOnly = map[string]bool{
	CmdGetDevices:   true,
	CmdGetVariables: true,
	CmdGetMapping:   true,
	CmdPing:         true,
	CmdGetStats:     true,
}

// ReadOnly reports whether cmd is accepted on the interface channel.
func ReadOnly(cmd string) bool {
	return readOnly[cmd]
}

type SetFramePayload struct {
	Frame  color.KeyColorMap `json:"frame"`
	Forced bool              `json:"forced,omitempty"`
}

type SetVariablePayload struct {
	Device string `json:"device"`
	Name   string `json:"name"`
	Value  any    `json:"value"`
}

type ResetVariablePayload struct {
	Device string `json:"device"`
	Name   string `json:"name"`
}

// GetVariablesPayload selects one device; an empty Device lists all.
type GetVariablesPayload struct {
	Device string `json:"device,omitempty"`
}

type DevicePayload struct {
	Device string `json:"device"`
}

type MappingPayload struct {
	Mapping model.DeviceMappingConfig `json:"mapping"`
}

// DeviceVariables is the variable listing of one device.
type DeviceVariables struct {
	Device    string           `json:"device"`
	Variables []variables.Info `json:"variables"`
}

type PingReply struct {
	Version string    `json:"version"`
	Time    time.Time `json:"time"`
}

// Backend executes commands on behalf of the server. Errors are returned to
// the client as text only.
type Backend interface {
	SetFrame(ctx context.Context, frame color.KeyColorMap, forced bool) error
	Devices(ctx context.Context) model.CurrentDevices
	Variables(ctx context.Context, device string) ([]DeviceVariables, error)
	SetVariable(ctx context.Context, device, name string, value any) error
	ResetVariable(ctx context.Context, device, name string) error
	EnableDevice(ctx context.Context, name string) error
	DisableDevice(ctx context.Context, name string) error
	Mapping(ctx context.Context) model.DeviceMappingConfig
	SetMapping(ctx context.Context, mapping model.DeviceMappingConfig) error
	Stats(ctx context.Context) []instrument.Stats
	RequestShutdown(ctx context.Context) error
}
