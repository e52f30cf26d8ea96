// Package testunit pairs boards with instruments according to the required
// wiring and keeps the resulting units' capability tags.
package testunit

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/eas-attest/attest/internal/device"
)

// ConfigError reports an invalid configuration value.
type ConfigError struct {
	Parameter string
	Value     string
	Msg       string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s %s: %s", e.Parameter, e.Value, e.Msg)
}

var (
	pinPattern     = regexp.MustCompile(`^P([0-9]+)\.([0-9]+)$`)
	channelPattern = regexp.MustCompile(`^(D[0-9]+)$`)
)

// Topology is the list of connections every board and instrument pair must
// have to form a unit with an instrument.
type Topology []device.Connection

// ParseTopology parses strings such as "P6.0-D7" or "D7-P6.0".
func ParseTopology(specs []string) (Topology, error) {
	topo := make(Topology, 0, len(specs))
	for _, spec := range specs {
		syntaxErr := &ConfigError{
			Parameter: "tu_connections",
			Value:     "[" + strings.Join(specs, ", ") + "]",
			Msg:       fmt.Sprintf("syntax error in '%s'", spec),
		}

		tokens := strings.Split(spec, "-")
		if len(tokens) != 2 {
			return nil, syntaxErr
		}

		pp := pinPattern.FindStringSubmatch(tokens[0])
		ch := channelPattern.FindStringSubmatch(tokens[1])
		if pp == nil && ch == nil {
			pp = pinPattern.FindStringSubmatch(tokens[1])
			ch = channelPattern.FindStringSubmatch(tokens[0])
		}
		if pp == nil || ch == nil {
			return nil, syntaxErr
		}

		port, err := strconv.Atoi(pp[1])
		if err != nil {
			return nil, syntaxErr
		}
		pin, err := strconv.Atoi(pp[2])
		if err != nil {
			return nil, syntaxErr
		}
		topo = append(topo, device.Connection{Port: port, Pin: pin, Channel: ch[1]})
	}
	return topo, nil
}

// Validate checks whether b and inst can form a unit. For every required
// connection the first discovered connection between exactly these two
// devices with the same port, pin and channel is selected. Any missing
// requirement, or a nil instrument, makes the pair invalid.
func (t Topology) Validate(b *device.Board, inst *device.Instrument, discovered []device.Connection) (bool, []device.Connection) {
	if inst == nil {
		return false, nil
	}

	cons := make([]device.Connection, 0, len(t))
	for _, req := range t {
		found := false
		for _, c := range discovered {
			if c.Board != b || c.Instrument != inst {
				continue
			}
			if req.Matches(c) {
				cons = append(cons, c)
				found = true
				break
			}
		}
		if !found {
			return false, nil
		}
	}
	return true, cons
}

// TimingChannel returns the digital channel used for timing measurements:
// the channel of the first required connection, or 0 without requirements.
func (t Topology) TimingChannel() int {
	if len(t) == 0 {
		slog.Error("No connection configuration found, using digital channel 0 for timing measurements")
		return 0
	}
	n, err := t[0].ChannelNumber()
	if err != nil {
		return 0
	}
	return n
}
