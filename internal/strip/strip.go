// Package strip holds the addressable LED strip: its pixel buffer, the
// paced output loop and the hardware drivers behind it.
package strip

import "ledremote/internal/core"

// Strip is a fixed-length pixel buffer. The length never changes after New.
type Strip struct {
	pixels []core.RGB
}

// New creates a dark strip of n pixels.
func New(n int) *Strip {
	return &Strip{pixels: make([]core.RGB, n)}
}

// Len returns the number of pixels.
func (s *Strip) Len() int {
	return len(s.pixels)
}

// Fill sets every pixel to c.
func (s *Strip) Fill(c core.RGB) {
	for i := range s.pixels {
		s.pixels[i] = c
	}
}

// Clear blanks the strip.
func (s *Strip) Clear() {
	s.Fill(core.RGB{})
}

// Set changes a single pixel. Out-of-range indexes are ignored.
func (s *Strip) Set(i int, c core.RGB) {
	if i < 0 || i >= len(s.pixels) {
		return
	}
	s.pixels[i] = c
}

// Pixels returns a copy of the buffer.
func (s *Strip) Pixels() []core.RGB {
	out := make([]core.RGB, len(s.pixels))
	copy(out, s.pixels)
	return out
}
