// Package device holds the hardware data model: boards under test,
// measurement instruments and the wiring discovered between them.
package device

import (
	"fmt"
	"sync"
)

// Board is an embedded board under test. Identity fields are fixed once the
// board is registered; port visibility, the flash counter and the defective
// flag change at runtime and are guarded by a mutex.
type Board struct {
	SerialNumber string
	Name         string
	Manufacturer string
	Product      string
	VID          int
	PID          int

	mu           sync.Mutex
	debugPort    string
	uartPort     string
	flashCounter int
	defective    bool
}

// NewBoard creates a board with the given serial number.
func NewBoard(serialNumber string) *Board {
	return &Board{SerialNumber: serialNumber}
}

// Ports returns the debug and UART port device paths. Empty strings mean the
// port is not currently visible.
func (b *Board) Ports() (debug, uart string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.debugPort, b.uartPort
}

// DebugPort returns the debug port path.
func (b *Board) DebugPort() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.debugPort
}

// UARTPort returns the application UART port path.
func (b *Board) UARTPort() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.uartPort
}

// SetPorts replaces both port paths.
func (b *Board) SetPorts(debug, uart string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.debugPort = debug
	b.uartPort = uart
}

// HasPorts reports whether both ports are visible.
func (b *Board) HasPorts() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.debugPort != "" && b.uartPort != ""
}

// Defective reports whether the board has been marked defective.
func (b *Board) Defective() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.defective
}

// SetDefective sets the defective flag.
func (b *Board) SetDefective(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.defective = v
}

// FlashCounter returns the number of successful flashes.
func (b *Board) FlashCounter() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flashCounter
}

// SetFlashCounter sets the flash counter, used when loading from the registry.
func (b *Board) SetFlashCounter(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flashCounter = n
}

// IncrementFlashCounter adds one to the flash counter and returns the new value.
func (b *Board) IncrementFlashCounter() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flashCounter++
	return b.flashCounter
}

// Identifier returns the USB identity of the board.
func (b *Board) Identifier() string {
	return fmt.Sprintf("VID:PID:SN = %d:%d:%s", b.VID, b.PID, b.SerialNumber)
}

func (b *Board) String() string {
	if b.Name != "" {
		return fmt.Sprintf("board %s (%s)", b.Name, b.Identifier())
	}
	return fmt.Sprintf("board (%s)", b.Identifier())
}
