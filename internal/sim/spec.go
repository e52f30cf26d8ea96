// Package sim is a simulated test rig: boards, instruments and the wires
// between them, described in YAML. It stands in for the flasher, make, the
// USB serial bus and the acquisition driver so discovery and jobs can run
// without hardware.
package sim

import (
	"fmt"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Spec describes a simulated rig.
type Spec struct {
	Boards      []BoardSpec      `yaml:"boards"`
	Instruments []InstrumentSpec `yaml:"instruments"`
	Wires       []WireSpec       `yaml:"wires"`
}

// BoardSpec describes one simulated board.
type BoardSpec struct {
	Serial string `yaml:"serial"`
	// Broken boards fail every flash.
	Broken bool `yaml:"broken"`
	// Stuck boards hang the flasher.
	Stuck bool `yaml:"stuck"`
	// Output is written on the UART by any test firmware.
	Output string `yaml:"output"`
	// PulseUs is the timing pulse a test firmware produces.
	PulseUs float64 `yaml:"pulse_us"`
}

// InstrumentSpec describes one simulated instrument.
type InstrumentSpec struct {
	Serial string `yaml:"serial"`
	// Faulty instruments cannot be opened.
	Faulty bool `yaml:"faulty"`
}

// WireSpec connects a board pin to an instrument channel.
type WireSpec struct {
	Board      string `yaml:"board"`
	Pin        string `yaml:"pin"`
	Instrument string `yaml:"instrument"`
	Channel    string `yaml:"channel"`
	// Glitches is the number of captures in which the wire corrupts every
	// other identification frame.
	Glitches int `yaml:"glitches"`
}

var (
	pinSpec     = regexp.MustCompile(`^P([0-9]+)\.([0-9]+)$`)
	channelSpec = regexp.MustCompile(`^D([0-9]+)$`)
)

func (w WireSpec) parse() (port, pin, channel int, err error) {
	pp := pinSpec.FindStringSubmatch(w.Pin)
	ch := channelSpec.FindStringSubmatch(w.Channel)
	if pp == nil || ch == nil {
		return 0, 0, 0, fmt.Errorf("invalid wire %s-%s", w.Pin, w.Channel)
	}
	port, _ = strconv.Atoi(pp[1])
	pin, _ = strconv.Atoi(pp[2])
	channel, _ = strconv.Atoi(ch[1])
	if port > 0xF || pin > 0xF || channel >= 16 {
		return 0, 0, 0, fmt.Errorf("wire %s-%s out of range", w.Pin, w.Channel)
	}
	return port, pin, channel, nil
}

// Load reads a rig description from a YAML file.
func Load(path string) (*Rig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rig file: %w", err)
	}
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse rig file: %w", err)
	}
	return New(spec)
}
