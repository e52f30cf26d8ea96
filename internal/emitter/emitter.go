// Package emitter publishes status events about discovery runs and tasks.
package emitter

import (
	"encoding/json"
	"time"
)

// Event types.
const (
	TypeDiscovery   = "discovery"
	TypeTaskStarted = "task_started"
	TypeTaskDone    = "task_done"
	TypeTaskFailed  = "task_failed"
)

// Event is a status update.
type Event struct {
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	Job        string    `json:"job,omitempty"`
	Unit       string    `json:"unit,omitempty"`
	Board      string    `json:"board,omitempty"`
	Instrument string    `json:"instrument,omitempty"`
	Success    bool      `json:"success,omitempty"`
	Result     float64   `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
	Units      int       `json:"units,omitempty"`
	Queue      int       `json:"queue,omitempty"`
}

// ToJSON encodes the event.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Emitter delivers events.
type Emitter interface {
	Emit(ev Event) error
	Close() error
}

// Noop discards all events. It is used when no broker is configured.
type Noop struct{}

func (Noop) Emit(Event) error { return nil }
func (Noop) Close() error     { return nil }
