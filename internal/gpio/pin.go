// Package gpio abstracts the digital pins the agent drives: one pulled-up
// button input and two single-colour LEDs.
package gpio

// Input is a digital line. Read reports the raw level, true meaning high.
type Input interface {
	Read() bool
}

// Output is a digital line that can be driven high or low.
type Output interface {
	Write(high bool)
}

// Led is a single-pin LED. On is the desired state; Update applies it.
type Led struct {
	Name string
	Pin  Output
	On   bool
}

// NewLed creates a dark LED on pin.
func NewLed(name string, pin Output) *Led {
	return &Led{Name: name, Pin: pin}
}

// Update drives the pin to match On.
func (l *Led) Update() {
	l.Pin.Write(l.On)
}
