package device

import "fmt"

// Instrument is a multi-channel digital acquisition device.
type Instrument struct {
	SerialNumber string
	Name         string
}

// NewInstrument creates an instrument with the given serial number.
func NewInstrument(serialNumber string) *Instrument {
	return &Instrument{SerialNumber: serialNumber}
}

func (i *Instrument) String() string {
	if i.Name != "" {
		return fmt.Sprintf("instrument %s (SN = %s)", i.Name, i.SerialNumber)
	}
	return fmt.Sprintf("instrument (SN = %s)", i.SerialNumber)
}
