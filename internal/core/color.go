package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownColor is returned when a colour name is not part of the palette.
var ErrUnknownColor = errors.New("unknown color")

// Color is the shared colour state of the strip. The set is closed: new
// colours are added here and in the palette, never as arbitrary values.
type Color uint8

const (
	Off Color = iota
	Red
	Green
	Blue
	Yellow
)

// RGB is a single pixel value.
type RGB struct {
	R, G, B uint8
}

// Uint32 packs the value as 0x00RRGGBB.
func (c RGB) Uint32() uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// Hex formats the value as #RRGGBB.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

var palette = [...]struct {
	name string
	rgb  RGB
}{
	Off:    {"off", RGB{}},
	Red:    {"red", RGB{0xFF, 0x00, 0x00}},
	Green:  {"green", RGB{0x00, 0xFF, 0x00}},
	Blue:   {"blue", RGB{0x00, 0x00, 0xFF}},
	Yellow: {"yellow", RGB{0x80, 0x80, 0x00}},
}

// Colors lists every lit colour, in palette order.
func Colors() []Color {
	return []Color{Red, Green, Blue, Yellow}
}

// Valid reports whether c is part of the palette.
func (c Color) Valid() bool {
	return int(c) < len(palette)
}

// RGB returns the pixel value the strip is filled with for c.
func (c Color) RGB() RGB {
	if !c.Valid() {
		return RGB{}
	}
	return palette[c].rgb
}

func (c Color) String() string {
	if !c.Valid() {
		return fmt.Sprintf("color(%d)", uint8(c))
	}
	return palette[c].name
}

// ColorByName matches a wire name exactly: lowercase, no surrounding space.
// Only the four lit colours have wire names.
func ColorByName(name string) (Color, bool) {
	for _, c := range Colors() {
		if palette[c].name == name {
			return c, true
		}
	}
	return Off, false
}

// ParseColor maps a lit colour name to its Color. "off" is rejected: the
// control paths only ever request a colour and rely on toggling to go dark.
func ParseColor(name string) (Color, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, c := range Colors() {
		if palette[c].name == name {
			return c, nil
		}
	}
	return Off, fmt.Errorf("%w: %q", ErrUnknownColor, name)
}

// ParseState is like ParseColor but also accepts "off".
func ParseState(name string) (Color, error) {
	if strings.EqualFold(strings.TrimSpace(name), "off") {
		return Off, nil
	}
	return ParseColor(name)
}
