package gpio

import "sync"

// SimPin is an in-memory pin used when no GPIO hardware is present and in
// tests. It is both an Input and an Output.
type SimPin struct {
	mu     sync.Mutex
	level  bool
	writes int
}

// NewSimPin creates a pin at the given level. Pulled-up inputs start high.
func NewSimPin(high bool) *SimPin {
	return &SimPin{level: high}
}

func (p *SimPin) Read() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func (p *SimPin) Write(high bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = high
	p.writes++
}

// Set changes the level seen by Read without counting as a write.
func (p *SimPin) Set(high bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = high
}

// Writes returns how many times Write was called.
func (p *SimPin) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

// SimBackend hands out SimPins and remembers them by number.
type SimBackend struct {
	mu   sync.Mutex
	pins map[int]*SimPin
}

// NewSimBackend creates an empty simulated backend.
func NewSimBackend() *SimBackend {
	return &SimBackend{pins: make(map[int]*SimPin)}
}

// Input returns the simulated pin, pulled up.
func (b *SimBackend) Input(pin int) Input {
	return b.Pin(pin, true)
}

// Output returns the simulated pin, initially low.
func (b *SimBackend) Output(pin int) Output {
	return b.Pin(pin, false)
}

// Pin returns the pin with the given number, creating it at level if new.
func (b *SimBackend) Pin(pin int, level bool) *SimPin {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.pins[pin]
	if !ok {
		p = NewSimPin(level)
		b.pins[pin] = p
	}
	return p
}

func (b *SimBackend) Close() error {
	return nil
}

// Backend is implemented by RpioBackend and SimBackend.
type Backend interface {
	Input(pin int) Input
	Output(pin int) Output
	Close() error
}

var (
	_ Backend = (*RpioBackend)(nil)
	_ Backend = (*SimBackend)(nil)
)
