// Package discovery finds out which board pins are wired to which
// instrument channels. Every board is programmed to transmit a unique
// identifier frame on all of its pins; the frames captured on each
// instrument channel reveal the wiring.
package discovery

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// GenerateID returns a random identifier whose most significant byte is
// pattern and whose lower three bytes never equal pattern, so a decoder
// scanning for pattern cannot lock onto the payload.
func GenerateID(pattern byte) uint32 {
	for {
		u := uuid.New()
		low := binary.BigEndian.Uint32(u[12:16]) & 0xFFFFFF
		if byte(low>>16) == pattern || byte(low>>8) == pattern || byte(low) == pattern {
			continue
		}
		return uint32(pattern)<<24 | low
	}
}

// EncodeFrame renders the identification frame a board transmits from the
// given pin: the four identifier bytes followed by the port and pin nibbles.
func EncodeFrame(id uint32, port, pin int) []byte {
	return []byte{
		byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id),
		byte(port&0xF)<<4 | byte(pin&0xF),
	}
}

func hexID(id uint32) string {
	return fmt.Sprintf("0x%x", id)
}
