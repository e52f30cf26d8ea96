package discovery

import (
	"errors"
	"testing"
)

func TestGenerateID(t *testing.T) {
	for i := 0; i < 1000; i++ {
		id := GenerateID(0xFE)
		if id>>24 != 0xFE {
			t.Fatalf("GenerateID() = 0x%x, want pattern in the top byte", id)
		}
		for shift := 0; shift < 24; shift += 8 {
			if byte(id>>shift) == 0xFE {
				t.Fatalf("GenerateID() = 0x%x repeats the pattern", id)
			}
		}
	}
}

func TestEncodeFrame(t *testing.T) {
	got := EncodeFrame(0xFE123456, 6, 3)
	want := []byte{0xFE, 0x12, 0x34, 0x56, 0x63}
	if string(got) != string(want) {
		t.Errorf("EncodeFrame() = %x, want %x", got, want)
	}
}

func frames(n int, id uint32, port, pin int) []byte {
	var data []byte
	for i := 0; i < n; i++ {
		data = append(data, EncodeFrame(id, port, pin)...)
	}
	return data
}

func TestDecodeFrames(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		want  Frame
		count int
	}{
		{"single", frames(1, 0xFE010203, 6, 0), Frame{0xFE010203, 6, 0}, 1},
		{"repeated", frames(3, 0xFE010203, 1, 7), Frame{0xFE010203, 1, 7}, 3},
		{"leading garbage", append([]byte{0x00, 0x11}, frames(2, 0xFEAABBCC, 2, 5)...), Frame{0xFEAABBCC, 2, 5}, 2},
		{"trailing partial", append(frames(2, 0xFE0A0B0C, 4, 1), 0xFE, 0x0A), Frame{0xFE0A0B0C, 4, 1}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, n, err := DecodeFrames(tt.data, 0xFE)
			if err != nil {
				t.Fatalf("DecodeFrames() error = %v", err)
			}
			if f != tt.want || n != tt.count {
				t.Errorf("DecodeFrames() = %+v x%d, want %+v x%d", f, n, tt.want, tt.count)
			}
		})
	}
}

func TestDecodeFramesMismatch(t *testing.T) {
	tests := []struct {
		name  string
		data  []byte
		field string
	}{
		{"device id", append(frames(1, 0xFE010203, 6, 0), frames(1, 0xFE010204, 6, 0)...), "device id"},
		{"port", append(frames(2, 0xFE010203, 6, 0), frames(1, 0xFE010203, 7, 0)...), "port"},
		{"pin", append(frames(1, 0xFE010203, 6, 0), frames(1, 0xFE010203, 6, 1)...), "pin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeFrames(tt.data, 0xFE)
			var de *DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("DecodeFrames() error = %v, want DecodeError", err)
			}
			if de.Field != tt.field {
				t.Errorf("Field = %q, want %q", de.Field, tt.field)
			}
		})
	}
}

func TestDecodeFramesWithoutFrame(t *testing.T) {
	for _, data := range [][]byte{nil, {0x01, 0x02, 0x03, 0x04, 0x05, 0x06}, {0xFE, 0x01, 0x02, 0x03}} {
		if _, _, err := DecodeFrames(data, 0xFE); !errors.Is(err, ErrNoFrame) {
			t.Errorf("DecodeFrames(%x) error = %v, want ErrNoFrame", data, err)
		}
	}
}
