package domain

import "time"

// Event names shared by the bus, the status hub and the notifier.
const (
	EventStatus         = "status"
	EventDumpDetected   = "dump_detected"
	EventLegFilled      = "leg_filled"
	EventError          = "error"
	EventSessionStopped = "session_stopped"
)

// Bus channels and streams carrying engine events.
const (
	ChannelStatus = "ch:sniper:status"
	ChannelEvent  = "ch:sniper:event"
	StreamEvents  = "stream:sniper:events"
)

// Event is the JSON envelope for engine output leaving the process.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	At        time.Time `json:"at"`
	Data      any       `json:"data,omitempty"`
}

// DumpData is the payload of a dump_detected event.
type DumpData struct {
	Side  string  `json:"side"`
	Drop  float64 `json:"drop"`
	Price float64 `json:"price"`
}

// LegData is the payload of a leg_filled event.
type LegData struct {
	Number int `json:"number"`
	Leg    Leg `json:"leg"`
}

// ErrorData is the payload of an error event.
type ErrorData struct {
	Message string `json:"message"`
}

// StoppedData is the payload of a session_stopped event.
type StoppedData struct {
	Reason StopReason `json:"reason"`
}
