package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"
)

func (s *Server) buildRoutes() map[string]handlerFunc {
	return map[string]handlerFunc{
		CmdPing: func(context.Context, json.RawMessage) (any, error) {
			return PingReply{Version: s.version, Time: time.Now().UTC()}, nil
		},
		CmdGetDevices: func(ctx context.Context, _ json.RawMessage) (any, error) {
			return s.backend.Devices(ctx), nil
		},
		CmdGetMapping: func(ctx context.Context, _ json.RawMessage) (any, error) {
			return MappingPayload{Mapping: s.backend.Mapping(ctx)}, nil
		},
		CmdGetStats: func(ctx context.Context, _ json.RawMessage) (any, error) {
			return s.backend.Stats(ctx), nil
		},
		CmdGetVariables: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var p GetVariablesPayload
			if err := decodePayload(raw, &p); err != nil {
				return nil, err
			}
			return s.backend.Variables(ctx, p.Device)
		},
		CmdSetFrame: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var p SetFramePayload
			if err := decodePayload(raw, &p); err != nil {
				return nil, err
			}
			return nil, s.backend.SetFrame(ctx, p.Frame, p.Forced)
		},
		CmdSetVariable: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var p SetVariablePayload
			if err := decodePayload(raw, &p); err != nil {
				return nil, err
			}
			if p.Device == "" || p.Name == "" {
				return nil, fmt.Errorf("device and name are required")
			}
			return nil, s.backend.SetVariable(ctx, p.Device, p.Name, p.Value)
		},
		CmdResetVariable: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var p ResetVariablePayload
			if err := decodePayload(raw, &p); err != nil {
				return nil, err
			}
			if p.Device == "" || p.Name == "" {
				return nil, fmt.Errorf("device and name are required")
			}
			return nil, s.backend.ResetVariable(ctx, p.Device, p.Name)
		},
		CmdEnableDevice: func(ctx context.Context, raw json.RawMessage) (any, error) {
			name, err := devicePayload(raw)
			if err != nil {
				return nil, err
			}
			return nil, s.backend.EnableDevice(ctx, name)
		},
		CmdDisableDevice: func(ctx context.Context, raw json.RawMessage) (any, error) {
			name, err := devicePayload(raw)
			if err != nil {
				return nil, err
			}
			return nil, s.backend.DisableDevice(ctx, name)
		},
		CmdSetMapping: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var p MappingPayload
			if err := decodePayload(raw, &p); err != nil {
				return nil, err
			}
			return nil, s.backend.SetMapping(ctx, p.Mapping)
		},
		CmdShutdown: func(ctx context.Context, _ json.RawMessage) (any, error) {
			return nil, s.backend.RequestShutdown(ctx)
		},
	}
}

// decodePayload decodes into a plain struct and rejects unknown fields. An
// absent payload leaves v zeroed.
func decodePayload(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

func devicePayload(raw json.RawMessage) (string, error) {
	var p DevicePayload
	if err := decodePayload(raw, &p); err != nil {
		return "", err
	}
	if p.Device == "" {
		return "", fmt.Errorf("device is required")
	}
	return p.Device, nil
}
