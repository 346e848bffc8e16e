package core

// CommandType defines what a command does to the colour state.
type CommandType string

const (
	// CmdToggle switches to the colour, or off if it is already showing.
	CmdToggle CommandType = "toggle"
	// CmdSet switches to the colour (Off allowed) and is a no-op when unchanged.
	CmdSet CommandType = "set"
)

// Source identifies the input that produced a command.
type Source string

const (
	SourceButton   Source = "button"
	SourceUDP      Source = "udp"
	SourceWS       Source = "ws"
	SourceMQTT     Source = "mqtt"
	SourceSchedule Source = "schedule"
)

// Command is the envelope for incoming requests to change the colour state.
type Command struct {
	Type   CommandType
	Color  Color
	Source Source
}

// CommandChannel is the single channel the agent listens to for commands.
type CommandChannel chan Command

// Dispatch hands cmd to the channel without blocking. It reports false when
// the channel is full and the command was dropped.
func (ch CommandChannel) Dispatch(cmd Command) bool {
	select {
	case ch <- cmd:
		return true
	default:
		return false
	}
}
