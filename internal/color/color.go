package color

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Color is a device-agnostic 8-bit RGBA color.
type Color struct {
	R, G, B, A uint8
}

var (
	Black       = Color{A: 255}
	White       = Color{R: 255, G: 255, B: 255, A: 255}
	Transparent = Color{}
)

// RGB returns an opaque color.
func RGB(r, g, b uint8) Color {
	return Color{R: r, G: g, B: b, A: 255}
}

// Pack encodes the color as A<<24 | R<<16 | G<<8 | B.
func (c Color) Pack() uint32 {
	return uint32(c.A)<<24 | uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// Unpack decodes a value produced by Pack.
func Unpack(v uint32) Color {
	return Color{
		A: uint8(v >> 24),
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
	}
}

// Scale multiplies every channel, alpha included, by s.
func Scale(c Color, s float64) Color {
	return Color{
		R: clamp255(float64(c.R) * s),
		G: clamp255(float64(c.G) * s),
		B: clamp255(float64(c.B) * s),
		A: clamp255(float64(c.A) * s),
	}
}

// Divide divides every channel by s. Division by zero saturates non-zero
// channels to 255 and leaves zero channels at 0.
func Divide(c Color, s float64) Color {
	return Color{
		R: clamp255(float64(c.R) / s),
		G: clamp255(float64(c.G) / s),
		B: clamp255(float64(c.B) / s),
		A: clamp255(float64(c.A) / s),
	}
}

// BlendAlpha scales only the alpha channel by s.
func BlendAlpha(c Color, s float64) Color {
	c.A = clamp255(float64(c.A) * s)
	return c
}

// Blend linearly interpolates from a to b. t is clamped to [0, 1].
func Blend(a, b Color, t float64) Color {
	if t <= 0 || math.IsNaN(t) {
		return a
	}
	if t >= 1 {
		return b
	}
	mix := func(x, y uint8) uint8 {
		return clamp255(float64(x) + (float64(y)-float64(x))*t)
	}
	return Color{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: mix(a.A, b.A)}
}

// CorrectAlpha premultiplies RGB by alpha and returns an opaque color, for
// hardware that has no alpha channel.
func CorrectAlpha(c Color) Color {
	f := float64(c.A) / 255
	return Color{
		R: clamp255(float64(c.R) * f),
		G: clamp255(float64(c.G) * f),
		B: clamp255(float64(c.B) * f),
		A: 255,
	}
}

// String renders #RRGGBB for opaque colors and #RRGGBBAA otherwise.
func (c Color) String() string {
	if c.A == 255 {
		return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02X%02X%02X%02X", c.R, c.G, c.B, c.A)
}

// ParseHex parses "RRGGBB" or "RRGGBBAA", with or without a leading '#'.
func ParseHex(s string) (Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 && len(hex) != 8 {
		return Color{}, fmt.Errorf("invalid color %q: expected RRGGBB or RRGGBBAA", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	if len(hex) == 6 {
		return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
	}
	return Color{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// MarshalText implements encoding.TextMarshaler.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseHex(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func clamp255(v float64) uint8 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}
