package core

import "sync"

// State holds the single source of truth for the device: the strip colour
// and the primary LED flag.
type State struct {
	mu      sync.RWMutex
	color   Color
	primary bool
}

// Snapshot is a consistent copy of State for readers outside the agent.
type Snapshot struct {
	Color   Color
	Primary bool
}

// NewState creates a State with the strip off and the primary LED dark.
func NewState() *State {
	return &State{}
}

// Snapshot returns the current state for safe reading.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Color: s.color, Primary: s.primary}
}

// Color returns the current strip colour.
func (s *State) Color() Color {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.color
}

// Toggle switches to c, or back to Off when c is already showing.
// It returns the new colour.
func (s *State) Toggle(c Color) Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.color == c {
		s.color = Off
	} else {
		s.color = c
	}
	return s.color
}

// Set switches to c and reports whether anything changed.
func (s *State) Set(c Color) (Color, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.color == c {
		return s.color, false
	}
	s.color = c
	return s.color, true
}

// TogglePrimary flips the primary LED flag and returns the new value.
func (s *State) TogglePrimary() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.primary = !s.primary
	return s.primary
}
