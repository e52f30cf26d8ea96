package sim

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/eas-attest/attest/internal/board"
)

const (
	simVID = "2047"
	simPID = "0013"

	debugProduct = "MSP Debug Interface"
	uartProduct  = "MSP Application UART1"
)

type wire struct {
	board      string
	port       int
	pin        int
	instrument string
	channel    int
	glitches   int
}

type simBoard struct {
	spec      BoardSpec
	index     int
	plugged   bool
	powered   bool
	id        uint32
	firmware  string
	flashes   int
	uartReads int
}

// Rig is the state of a simulated rig. It is safe for concurrent use.
type Rig struct {
	mu          sync.Mutex
	boards      map[string]*simBoard
	order       []string
	instruments map[string]InstrumentSpec
	instOrder   []string
	wires       []*wire
}

// New builds a rig from spec.
func New(spec Spec) (*Rig, error) {
	r := &Rig{
		boards:      make(map[string]*simBoard),
		instruments: make(map[string]InstrumentSpec),
	}
	for i, b := range spec.Boards {
		if b.Serial == "" {
			return nil, fmt.Errorf("board %d has no serial", i)
		}
		if _, dup := r.boards[b.Serial]; dup {
			return nil, fmt.Errorf("duplicate board %s", b.Serial)
		}
		r.boards[b.Serial] = &simBoard{spec: b, index: i, plugged: true, powered: true}
		r.order = append(r.order, b.Serial)
	}
	for _, in := range spec.Instruments {
		if in.Serial == "" {
			return nil, fmt.Errorf("instrument without serial")
		}
		r.instruments[in.Serial] = in
		r.instOrder = append(r.instOrder, in.Serial)
	}
	for _, w := range spec.Wires {
		if _, ok := r.boards[w.Board]; !ok {
			return nil, fmt.Errorf("wire references unknown board %s", w.Board)
		}
		if _, ok := r.instruments[w.Instrument]; !ok {
			return nil, fmt.Errorf("wire references unknown instrument %s", w.Instrument)
		}
		port, pin, ch, err := w.parse()
		if err != nil {
			return nil, err
		}
		r.wires = append(r.wires, &wire{
			board: w.Board, port: port, pin: pin,
			instrument: w.Instrument, channel: ch, glitches: w.Glitches,
		})
	}
	return r, nil
}

func (b *simBoard) debugPort() string { return fmt.Sprintf("/dev/simACM%d", 2*b.index) }
func (b *simBoard) uartPort() string  { return fmt.Sprintf("/dev/simACM%d", 2*b.index+1) }

// boardByPort finds the board owning a port name or its base name.
func (r *Rig) boardByPort(name string) *simBoard {
	base := filepath.Base(name)
	for _, b := range r.boards {
		if !b.plugged {
			continue
		}
		if filepath.Base(b.debugPort()) == base || filepath.Base(b.uartPort()) == base {
			return b
		}
	}
	return nil
}

// SetPlugged simulates plugging or unplugging a board's USB cable.
func (r *Rig) SetPlugged(serial string, plugged bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.boards[serial]; ok {
		b.plugged = plugged
	}
}

// FlashedID returns the identifier currently flashed onto a board.
func (r *Rig) FlashedID(serial string) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.boards[serial]; ok {
		return b.id
	}
	return 0
}

// Flashes returns how often a board was flashed.
func (r *Rig) Flashes(serial string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.boards[serial]; ok {
		return b.flashes
	}
	return 0
}

// Ports lists the serial ports of all plugged boards.
func (r *Rig) Ports() ([]board.PortInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ports []board.PortInfo
	for _, sn := range r.order {
		b := r.boards[sn]
		if !b.plugged {
			continue
		}
		ports = append(ports,
			board.PortInfo{Name: b.debugPort(), IsUSB: true, VID: simVID, PID: simPID, SerialNumber: sn, Product: debugProduct},
			board.PortInfo{Name: b.uartPort(), IsUSB: true, VID: simVID, PID: simPID, SerialNumber: sn, Product: uartProduct},
		)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}
