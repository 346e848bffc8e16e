// Package udp implements the raw two-byte colour protocol.
//
// A datagram is exactly [Magic, code]. Codes map to colours as
// 1=red, 2=yellow, 3=green, 4=blue. Anything else is not a command.
package udp

import (
	"errors"
	"fmt"

	"ledremote/internal/core"
)

// Magic is the fixed first byte of every datagram.
const Magic byte = 74

// DatagramLen is the only accepted datagram length.
const DatagramLen = 2

// DefaultPort is the port the device listens on.
const DefaultPort = 1234

// ErrUnknownColor is returned by Encode for colours without a wire code.
var ErrUnknownColor = errors.New("color has no wire code")

// The mapping is not in palette order; existing senders depend on it.
var codes = map[byte]core.Color{
	1: core.Red,
	2: core.Yellow,
	3: core.Green,
	4: core.Blue,
}

// DropReason says why a datagram was not a command.
type DropReason string

const (
	DropLength DropReason = "length"
	DropMagic  DropReason = "magic"
	DropCode   DropReason = "code"
)

// Decode parses a datagram. When ok is false, reason explains the drop.
func Decode(b []byte) (c core.Color, reason DropReason, ok bool) {
	if len(b) != DatagramLen {
		return core.Off, DropLength, false
	}
	if b[0] != Magic {
		return core.Off, DropMagic, false
	}
	c, ok = codes[b[1]]
	if !ok {
		return core.Off, DropCode, false
	}
	return c, "", true
}

// Encode builds the datagram that toggles c.
func Encode(c core.Color) ([]byte, error) {
	for code, color := range codes {
		if color == c {
			return []byte{Magic, code}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownColor, c)
}
