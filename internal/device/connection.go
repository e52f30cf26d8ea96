package device

import (
	"fmt"
	"strconv"
	"strings"
)

// Connection is one wire between a board pin and an instrument channel.
// Board and Instrument are lookups into the discovery result and may be nil
// for topology templates.
type Connection struct {
	Port    int
	Pin     int
	Channel string // "D<n>" for digital channels

	// DeviceID is the identifier decoded on the channel. Zero when unknown;
	// generated identifiers always carry a non-zero start pattern byte.
	DeviceID uint32

	Board      *Board
	Instrument *Instrument
}

// DigitalChannel returns the channel label for digital channel n.
func DigitalChannel(n int) string {
	return "D" + strconv.Itoa(n)
}

// ChannelNumber parses the numeric part of a digital channel label.
func (c Connection) ChannelNumber() (int, error) {
	if !strings.HasPrefix(c.Channel, "D") {
		return 0, fmt.Errorf("channel %q is not a digital channel", c.Channel)
	}
	n, err := strconv.Atoi(c.Channel[1:])
	if err != nil {
		return 0, fmt.Errorf("channel %q: %w", c.Channel, err)
	}
	return n, nil
}

// Matches reports whether c and o describe the same board pin and channel.
func (c Connection) Matches(o Connection) bool {
	return c.Port == o.Port && c.Pin == o.Pin && c.Channel == o.Channel
}

func (c Connection) String() string {
	return fmt.Sprintf("P%d.%d-%s", c.Port, c.Pin, c.Channel)
}
