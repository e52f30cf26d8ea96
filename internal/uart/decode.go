// Package uart decodes oversampled asynchronous serial signals captured on
// instrument channels. Samples are single bits: 0 is low, anything else high.
package uart

import (
	"errors"
	"fmt"
)

var (
	// ErrStartBit is returned when the start bit does not sample low at its midpoint.
	ErrStartBit = errors.New("uart: start bit is not low")
	// ErrStopBit is returned when the stop bit does not sample high.
	ErrStopBit = errors.New("uart: stop bit is not high")
)

const (
	// FrameBits covers start bit, 8 data bits and stop bit.
	FrameBits = 10
	// CaptureBits is the window recorded per byte: a frame plus two idle bits.
	CaptureBits = 12
)

// DecodeByte extracts the first byte found in signal.
//
// The first low sample is taken as the falling edge of the start bit. Every
// bit is sampled once near its middle, data bits LSB first. ok is false when
// the signal holds no start edge or is too short for a full frame after it.
// consumed is the number of samples examined, so callers can continue with
// signal[consumed:].
func DecodeByte(signal []uint8, samplesPerBit int) (value byte, ok bool, consumed int, err error) {
	if samplesPerBit < 1 {
		return 0, false, 0, fmt.Errorf("uart: invalid samples per bit %d", samplesPerBit)
	}

	start := -1
	for i, s := range signal {
		if s == 0 {
			start = i
			break
		}
	}
	if start < 0 {
		return 0, false, len(signal), nil
	}

	end := start + FrameBits*samplesPerBit
	if end > len(signal) {
		return 0, false, len(signal), nil
	}

	if signal[start+samplesPerBit/2] != 0 {
		return 0, false, end, ErrStartBit
	}

	// Bit i of the data lives in [start+(i+1)*spb, start+(i+2)*spb); sample at 1.5+i bit times.
	for i := 0; i < 8; i++ {
		if signal[start+(2*i+3)*samplesPerBit/2] != 0 {
			value |= 1 << i
		}
	}

	if signal[start+19*samplesPerBit/2] == 0 {
		return 0, false, end, ErrStopBit
	}

	return value, true, end, nil
}

// EncodeByte renders value as an idle-high UART frame with samplesPerBit
// samples per bit, followed by idleBits bits of idle level.
func EncodeByte(value byte, samplesPerBit, idleBits int) []uint8 {
	out := make([]uint8, 0, (FrameBits+idleBits)*samplesPerBit)
	bit := func(level uint8) {
		for i := 0; i < samplesPerBit; i++ {
			out = append(out, level)
		}
	}

	bit(0)
	for i := 0; i < 8; i++ {
		bit((value >> i) & 1)
	}
	bit(1)
	for i := 0; i < idleBits; i++ {
		bit(1)
	}
	return out
}
