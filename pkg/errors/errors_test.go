package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseErrorWrapsUnderlying(t *testing.T) {
	t.Parallel()

	underlying := fmt.Errorf("unexpected token")
	err := NewParseError("devices.yaml", 12, underlying)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.Equal(t, "devices.yaml", parseErr.Path)
	require.Equal(t, 12, parseErr.Line)
	require.True(t, stdErrors.Is(err, underlying))
	require.Contains(t, err.Error(), "devices.yaml:12")
}

func TestValidationErrorIncludesField(t *testing.T) {
	t.Parallel()

	err := NewValidationError("update_timeout", "must be positive", nil)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Equal(t, "update_timeout", validationErr.Field)
	require.Equal(t, "validation error: update_timeout: must be positive", err.Error())
}

func TestDeviceErrorMatchesKind(t *testing.T) {
	t.Parallel()

	underlying := stdErrors.New("usb stalled")
	err := fmt.Errorf("tick: %w", NewDeviceError("Razer", "update", KindUpdateTimeout, underlying))

	require.True(t, stdErrors.Is(err, underlying))
	require.True(t, stdErrors.Is(err, &DeviceError{Kind: KindUpdateTimeout}))
	require.True(t, stdErrors.Is(err, &DeviceError{}))
	require.False(t, stdErrors.Is(err, &DeviceError{Kind: KindInitialization}))

	kind, ok := KindOf(err)
	require.True(t, ok)
	require.Equal(t, KindUpdateTimeout, kind)

	_, ok = KindOf(underlying)
	require.False(t, ok)

	joined := stdErrors.Join(underlying, NewDeviceError("Strip", "initialize", KindInitialization, underlying))
	kind, ok = KindOf(joined)
	require.True(t, ok)
	require.Equal(t, KindInitialization, kind)

	require.Contains(t, err.Error(), "device Razer: update: update_timeout: usb stalled")
}
