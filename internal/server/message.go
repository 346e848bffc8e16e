package server

import "ledremote/internal/core"

// ActionMessage is an incoming control-channel request, e.g. {"action":"red"}.
type ActionMessage struct {
	Action string `json:"action"`
}

// StatusMessage is sent to every client after each state change, e.g. {"status":"off"}.
type StatusMessage struct {
	Status string `json:"status"`
}

// NewStatusMessage creates the notification for colour c.
func NewStatusMessage(c core.Color) StatusMessage {
	return StatusMessage{Status: c.String()}
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Status  string `json:"status"`
	Primary bool   `json:"primary"`
	Hex     string `json:"hex"`
}
