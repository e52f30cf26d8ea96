package discovery

import (
	"errors"
	"fmt"
)

// FrameLen is the length of one identification frame.
const FrameLen = 5

// ErrNoFrame is returned when a byte stream holds no complete frame.
var ErrNoFrame = errors.New("no valid device id found")

// DecodeError reports a frame that disagrees with the first frame of the
// same capture.
type DecodeError struct {
	Field  string
	Want   uint32
	Got    uint32
	Repeat int
}

func (e *DecodeError) Error() string {
	if e.Field == "device id" {
		return fmt.Sprintf("read inconsistent device ids (0x%x, 0x%x @ frame %d)", e.Want, e.Got, e.Repeat)
	}
	return fmt.Sprintf("read inconsistent %s numbers (%d, %d @ frame %d)", e.Field, e.Want, e.Got, e.Repeat)
}

// Frame is a decoded identification frame.
type Frame struct {
	DeviceID uint32
	Port     int
	Pin      int
}

func parseFrame(b []byte) Frame {
	return Frame{
		DeviceID: uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]),
		Port:     int(b[4]>>4) & 0xF,
		Pin:      int(b[4]) & 0xF,
	}
}

// DecodeFrames scans data for frames starting with pattern. Every complete
// frame must repeat the first one exactly. It returns the frame and the
// number of complete repeats found.
func DecodeFrames(data []byte, pattern byte) (Frame, int, error) {
	var (
		first Frame
		count int
		set   []byte
	)
	seeking := true

	for _, b := range data {
		if seeking {
			if b == pattern {
				seeking = false
				set = append(set[:0], b)
			}
			continue
		}
		set = append(set, b)
		if len(set) < FrameLen {
			continue
		}

		count++
		f := parseFrame(set)
		if count == 1 {
			first = f
		} else {
			switch {
			case f.DeviceID != first.DeviceID:
				return Frame{}, count, &DecodeError{Field: "device id", Want: first.DeviceID, Got: f.DeviceID, Repeat: count}
			case f.Port != first.Port:
				return Frame{}, count, &DecodeError{Field: "port", Want: uint32(first.Port), Got: uint32(f.Port), Repeat: count}
			case f.Pin != first.Pin:
				return Frame{}, count, &DecodeError{Field: "pin", Want: uint32(first.Pin), Got: uint32(f.Pin), Repeat: count}
			}
		}
		seeking = true
	}

	if count == 0 {
		return Frame{}, 0, ErrNoFrame
	}
	return first, count, nil
}
