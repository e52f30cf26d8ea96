package sim

import (
	"errors"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// OpenSerial opens the UART port of a simulated board. It matches
// board.OpenFunc.
func (r *Rig) OpenSerial(name string, mode *serial.Mode) (serial.Port, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.boardByPort(name)
	if b == nil || b.uartPort() != name {
		return nil, errors.New("no such serial port: " + name)
	}
	return &port{rig: r, board: b, baud: mode.BaudRate, timeout: 10 * time.Millisecond}, nil
}

// port emits the board's output once per flash of a test firmware. Methods
// the monitor does not use are left to the nil embedded interface.
type port struct {
	serial.Port
	rig     *Rig
	board   *simBoard
	baud    int
	mu      sync.Mutex
	closed  bool
	timeout time.Duration
	pending []byte
}

func (p *port) SetReadTimeout(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = t
	return nil
}

func (p *port) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, io.EOF
	}

	if len(p.pending) == 0 {
		p.rig.mu.Lock()
		b := p.board
		if b.firmware != "" && b.powered && b.uartReads == 0 {
			p.pending = []byte(b.spec.Output)
			b.uartReads++
		}
		p.rig.mu.Unlock()
	}

	if len(p.pending) == 0 {
		p.mu.Unlock()
		time.Sleep(min(p.timeout, 10*time.Millisecond))
		p.mu.Lock()
		return 0, nil
	}
	n := copy(buf, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func (p *port) Write(data []byte) (int, error) { return len(data), nil }

func (p *port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
