package instrument

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eas-attest/attest/internal/device"
)

func TestPulseWidth(t *testing.T) {
	long := make([]int16, 5000)
	for i := 10; i < 2510; i++ {
		long[i] = 0x4
	}
	// Noise on other channels must be ignored.
	for i := range long {
		long[i] |= int16(i%2) << 5
	}

	endless := make([]int16, 100)
	for i := 5; i < len(endless); i++ {
		endless[i] = 1
	}

	tests := []struct {
		name    string
		buf     []int16
		trigger int
		mask    int16
		want    int
		wantErr error
	}{
		{"no edge", make([]int16, 50), 0, 1, 0, nil},
		{"short pulse", []int16{0, 0, 1, 1, 1, 0, 0}, 0, 1, 3, nil},
		{"coarse and fine search", long, 0, 0x4, 2500, nil},
		{"trigger inside pulse", long, 1000, 0x4, 1510, nil},
		{"pulse until end", endless, 0, 1, 95, ErrTimeout},
		{"trigger past end", []int16{1, 1}, 5, 1, 0, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PulseWidth(tt.buf, tt.trigger, SearchIncrement, tt.mask)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if got != tt.want {
				t.Errorf("expected %d samples, got %d", tt.want, got)
			}
		})
	}
}

func TestMeasurerMeasuresPulse(t *testing.T) {
	const bufLen = 10000
	port0 := make([]int16, bufLen)
	for i := 100; i < 2600; i++ {
		port0[i] = 1 << 2
	}
	h := newFakeHandle(port0, nil, 500)
	h.triggerAt = 100

	m := NewMeasurer(&fakeDriver{handle: h}, NewLockSet(), device.NewInstrument("IU1"), 2, nil)
	m.BufferLen = bufLen
	m.PollInterval = time.Microsecond

	armed := false
	us, err := m.Measure(context.Background(), func(context.Context) error {
		if !h.streaming {
			t.Error("arm called before streaming started")
		}
		armed = true
		return nil
	})
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	if !armed {
		t.Error("expected arm callback")
	}
	if h.trigger != 2 {
		t.Errorf("expected trigger on channel 2, got %d", h.trigger)
	}
	if !h.enabled[0] || h.enabled[1] {
		t.Errorf("expected only port 0 enabled, got %v", h.enabled)
	}
	// 2500 samples at 500ns with clock divider 32.
	if us != 39.0625 {
		t.Errorf("expected 39.0625us, got %v", us)
	}
	if !h.closed {
		t.Error("expected handle closed")
	}
}

func TestMeasurerHighPort(t *testing.T) {
	const bufLen = 4000
	port1 := make([]int16, bufLen)
	for i := 50; i < 114; i++ {
		port1[i] = 1 << 3
	}
	h := newFakeHandle(nil, port1, 200)
	h.triggerAt = 50

	m := NewMeasurer(&fakeDriver{handle: h}, NewLockSet(), device.NewInstrument("IU1"), 11, nil)
	m.BufferLen = bufLen
	m.PollInterval = time.Microsecond

	us, err := m.Measure(context.Background(), nil)
	if err != nil {
		t.Fatalf("Measure failed: %v", err)
	}
	if !h.enabled[1] || h.enabled[0] {
		t.Errorf("expected only port 1 enabled, got %v", h.enabled)
	}
	if us != 1 {
		t.Errorf("expected 1us, got %v", us)
	}
}

func TestMeasurerWithoutTrigger(t *testing.T) {
	h := newFakeHandle(make([]int16, 2000), nil, 400)
	m := NewMeasurer(&fakeDriver{handle: h}, NewLockSet(), device.NewInstrument("IU1"), 0, nil)
	m.BufferLen = 2000
	m.PollInterval = time.Microsecond

	if _, err := m.Measure(context.Background(), nil); !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestMeasurerArmError(t *testing.T) {
	h := newFakeHandle(nil, nil, 10)
	m := NewMeasurer(&fakeDriver{handle: h}, NewLockSet(), device.NewInstrument("IU1"), 0, nil)
	m.BufferLen = 100

	boom := errors.New("power up failed")
	if _, err := m.Measure(context.Background(), func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected arm error, got %v", err)
	}
	if !h.stopped || !h.closed {
		t.Error("expected cleanup after arm error")
	}
}
