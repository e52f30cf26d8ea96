package board

import (
	"bytes"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// OpenFunc opens a serial port.
type OpenFunc func(name string, mode *serial.Mode) (serial.Port, error)

// Monitor records everything a board writes on its application UART.
type Monitor struct {
	open     OpenFunc
	port     serial.Port
	portName string
	baudRate int
	mu       sync.Mutex
	running  bool
	output   bytes.Buffer
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewMonitor creates a new serial monitor. A nil open uses serial.Open.
func NewMonitor(open OpenFunc) *Monitor {
	if open == nil {
		open = serial.Open
	}
	return &Monitor{open: open}
}

// Connect opens a serial port with the given settings and starts recording.
// Previously recorded output is discarded.
func (m *Monitor) Connect(portName string, baudRate int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.disconnectLocked()
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := m.open(portName, mode)
	if err != nil {
		return err
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return err
	}

	m.port = port
	m.portName = portName
	m.baudRate = baudRate
	m.running = true
	m.output.Reset()
	m.done = make(chan struct{})

	m.wg.Add(1)
	go m.readLoop(port, m.done)
	return nil
}

// Disconnect closes the serial port and waits for the reader to exit.
func (m *Monitor) Disconnect() {
	m.mu.Lock()
	m.disconnectLocked()
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Monitor) disconnectLocked() {
	if !m.running {
		return
	}
	m.running = false
	close(m.done)
	if m.port != nil {
		m.port.Close()
		m.port = nil
	}
}

// Write sends data to the serial port.
func (m *Monitor) Write(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.port == nil {
		return io.ErrClosedPipe
	}
	_, err := m.port.Write(data)
	return err
}

// Output returns everything received since Connect.
func (m *Monitor) Output() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.output.String()
}

// Connected returns whether the monitor is connected.
func (m *Monitor) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) readLoop(port serial.Port, done chan struct{}) {
	defer m.wg.Done()
	buf := make([]byte, 1024)
	for {
		select {
		case <-done:
			return
		default:
		}

		n, err := port.Read(buf)
		if n > 0 {
			m.mu.Lock()
			m.output.Write(buf[:n])
			m.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}
