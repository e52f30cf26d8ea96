package store

import "time"

// TaskRecord captures the outcome of one job execution.
type TaskRecord struct {
	Job        string    `json:"job"`
	Kind       string    `json:"kind"`
	Unit       string    `json:"unit"`
	Board      string    `json:"board"`
	Instrument string    `json:"instrument,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Attempt    int       `json:"attempt"`
	Success    bool      `json:"success"`
	Duration   string    `json:"duration"`
	QueueTime  string    `json:"queue_time,omitempty"`
	Result     float64   `json:"result,omitempty"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// FlashRecord captures one firmware flash.
type FlashRecord struct {
	Board     string    `json:"board"`
	File      string    `json:"file"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	Duration  string    `json:"duration"`
}

// UnitRecord describes one unit found by discovery.
type UnitRecord struct {
	Board       string   `json:"board"`
	Instrument  string   `json:"instrument,omitempty"`
	Connections []string `json:"connections,omitempty"`
	Tags        []string `json:"tags"`
}

// DiscoveryRecord captures the outcome of a discovery run.
type DiscoveryRecord struct {
	Timestamp   time.Time    `json:"timestamp"`
	Duration    string       `json:"duration"`
	Boards      int          `json:"boards"`
	Instruments int          `json:"instruments"`
	Programmed  int          `json:"programmed"`
	Connections int          `json:"connections"`
	Units       []UnitRecord `json:"units"`
}
