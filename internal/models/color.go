package models

import (
	"fmt"
	"strings"

	"github.com/desertthunder/melodyhue/internal/shared"
	"github.com/lucasb-eyer/go-colorful"
)

// DefaultFallback is the color served when nothing is playing (#25d865).
var DefaultFallback = RGB{R: 0x25, G: 0xD8, B: 0x65}

// RGB is an 8-bit per channel color.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// ParseHex parses "#rrggbb" or "rrggbb". Shorthand and alpha forms are rejected.
func ParseHex(s string) (RGB, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(trimmed) != 6 || strings.IndexFunc(trimmed, notHexDigit) >= 0 {
		return RGB{}, fmt.Errorf("%w: %q must have exactly three byte pairs", shared.ErrInvalidColor, s)
	}

	c, err := colorful.Hex("#" + trimmed)
	if err != nil {
		return RGB{}, fmt.Errorf("%w: %v", shared.ErrInvalidColor, err)
	}

	r, g, b := c.RGB255()
	return RGB{R: r, G: g, B: b}, nil
}

func notHexDigit(r rune) bool {
	return !('0' <= r && r <= '9' || 'a' <= r && r <= 'f' || 'A' <= r && r <= 'F')
}

// FromColorful converts a [colorful.Color], clamping out-of-gamut values.
func FromColorful(c colorful.Color) RGB {
	r, g, b := c.Clamped().RGB255()
	return RGB{R: r, G: g, B: b}
}

// Colorful returns the color as a [colorful.Color].
func (c RGB) Colorful() colorful.Color {
	return colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
}

// Hex formats the color as "#rrggbb".
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c RGB) String() string {
	return c.Hex()
}
