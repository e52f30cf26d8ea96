// Package board finds the boards under test on the host's USB serial bus,
// tracks whether they are reachable and reads their application UART.
package board

import (
	"go.bug.st/serial/enumerator"
)

// PortInfo holds details about a serial port.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// Enumerator lists the serial ports currently present.
type Enumerator interface {
	Ports() ([]PortInfo, error)
}

// USBEnumerator lists ports through the operating system.
type USBEnumerator struct{}

// Ports returns available serial ports.
func (USBEnumerator) Ports() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	var result []PortInfo
	for _, p := range ports {
		result = append(result, PortInfo{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	return result, nil
}
