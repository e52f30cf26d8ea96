// Package instrument drives multi-channel digital acquisition devices. It
// exposes the identification Reader and the timing Measurer on top of a small
// status-code driver interface.
package instrument

import (
	"context"
	"time"
)

// DigitalPort selects one of the eight-channel digital ports.
type DigitalPort int

const (
	Port0 DigitalPort = iota
	Port1
)

const (
	// ChannelsPerPort is the number of digital channels on each port.
	ChannelsPerPort = 8
	// DigitalChannels is the total number of digital channels.
	DigitalChannels = 2 * ChannelsPerPort
)

// PortOf returns the digital port carrying channel ch and the channel's bit
// within that port.
func PortOf(ch int) (DigitalPort, uint) {
	return DigitalPort(ch / ChannelsPerPort), uint(ch % ChannelsPerPort)
}

// StreamRequest configures a streaming acquisition.
type StreamRequest struct {
	// Interval is the requested sample interval. The driver may pick a
	// different one and reports it from RunStreaming.
	Interval time.Duration
	// MaxSamples is the number of samples after which the driver auto-stops.
	MaxSamples int
	AutoStop   bool
	// BufferLen is the length of the registered data buffers.
	BufferLen int
}

// StreamBatch describes one chunk of streamed samples now present in the
// registered buffers at [StartIndex, StartIndex+Count).
type StreamBatch struct {
	Count      int
	StartIndex int
	Triggered  bool
	TriggerAt  int
	AutoStop   bool
}

// Handle is an open connection to one instrument. Every call returns a
// driver status code.
type Handle interface {
	SetDigitalPort(port DigitalPort, enabled bool, logicLevel int16) Status
	SetAnalogChannel(channel int, enabled bool) Status
	SetDataBuffer(port DigitalPort, buf []int16) Status
	// SetDigitalTrigger arms a rising edge trigger on a digital channel.
	SetDigitalTrigger(channel int) Status
	RunStreaming(req StreamRequest) (time.Duration, Status)
	// GetStreamingLatestValues invokes ready for every batch of samples
	// that arrived since the previous call. ready must not block.
	GetStreamingLatestValues(ready func(StreamBatch)) Status
	Stop() Status
	Close() Status
}

// Driver enumerates and opens instruments by serial number.
type Driver interface {
	Enumerate(ctx context.Context) ([]string, error)
	Open(serial string) (Handle, Status)
}

// NoDriver is used when no acquisition driver is available on the host.
// It finds no instruments, so every board becomes a standalone unit.
type NoDriver struct{}

// Enumerate returns no instruments.
func (NoDriver) Enumerate(context.Context) ([]string, error) { return nil, nil }

// Open always fails with StatusNotFound.
func (NoDriver) Open(string) (Handle, Status) { return nil, StatusNotFound }
