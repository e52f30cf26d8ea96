package device

import (
	"strings"
	"sync"
	"testing"
)

func TestBoardPorts(t *testing.T) {
	b := NewBoard("SN1")
	if b.HasPorts() {
		t.Fatal("new board must not have ports")
	}
	b.SetPorts("/dev/ttyACM0", "")
	if b.HasPorts() {
		t.Fatal("board with only debug port must not report both ports")
	}
	b.SetPorts("/dev/ttyACM0", "/dev/ttyACM1")
	if !b.HasPorts() {
		t.Fatal("expected both ports")
	}
	debug, uart := b.Ports()
	if debug != "/dev/ttyACM0" || uart != "/dev/ttyACM1" {
		t.Errorf("unexpected ports %q %q", debug, uart)
	}
}

func TestBoardFlashCounterConcurrent(t *testing.T) {
	b := NewBoard("SN1")
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.IncrementFlashCounter()
		}()
	}
	wg.Wait()
	if got := b.FlashCounter(); got != 50 {
		t.Errorf("expected 50 flashes, got %d", got)
	}
}

func TestBoardString(t *testing.T) {
	b := &Board{SerialNumber: "ABC", VID: 8263, PID: 19}
	if got := b.String(); got != "board (VID:PID:SN = 8263:19:ABC)" {
		t.Errorf("unexpected string %q", got)
	}
	b.Name = "bench-3"
	if !strings.Contains(b.String(), "bench-3") {
		t.Errorf("expected name in %q", b.String())
	}
}

func TestConnectionChannelNumber(t *testing.T) {
	tests := []struct {
		channel string
		want    int
		wantErr bool
	}{
		{"D7", 7, false},
		{"D15", 15, false},
		{"A1", 0, true},
		{"Dx", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			n, err := Connection{Channel: tt.channel}.ChannelNumber()
			if (err != nil) != tt.wantErr {
				t.Fatalf("unexpected error state: %v", err)
			}
			if n != tt.want {
				t.Errorf("expected %d, got %d", tt.want, n)
			}
		})
	}
}

func TestConnectionString(t *testing.T) {
	c := Connection{Port: 6, Pin: 0, Channel: DigitalChannel(7)}
	if c.String() != "P6.0-D7" {
		t.Errorf("unexpected string %q", c.String())
	}
	if !c.Matches(Connection{Port: 6, Pin: 0, Channel: "D7", DeviceID: 1}) {
		t.Error("expected match regardless of device id")
	}
}
