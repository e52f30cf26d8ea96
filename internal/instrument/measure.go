package instrument

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eas-attest/attest/internal/device"
)

// ErrTimeout is returned when no complete pulse was captured.
var ErrTimeout = errors.New("timing measurement timed out")

const (
	// TimingSampleInterval is the streaming interval of timing measurements.
	TimingSampleInterval = 500 * time.Nanosecond
	// ClockDivider scales the measured pulse width to the firmware's timer.
	ClockDivider = 32
	// SearchIncrement is the coarse step used to find the falling edge.
	SearchIncrement = 1000
)

// PulseWidth counts the high samples of the first pulse at or after trigger.
// mask selects the channel bit. A pulse that is still high at the end of the
// buffer yields ErrTimeout; no high sample at all yields zero.
func PulseWidth(buf []int16, trigger, increment int, mask int16) (int, error) {
	edge := trigger
	for edge < len(buf) && buf[edge]&mask == 0 {
		edge++
	}
	if edge >= len(buf) {
		return 0, nil
	}

	start, stop := edge, edge
	for i := edge; i < len(buf); i += increment {
		start = stop
		stop = i
		if buf[i]&mask == 0 {
			break
		}
	}
	if len(buf)-stop <= increment {
		stop = len(buf)
	}

	count := start - edge
	for i := start; i < stop; i++ {
		if buf[i]&mask == 0 {
			break
		}
		count++
	}

	if count+edge == len(buf) {
		return count, ErrTimeout
	}
	return count, nil
}

// Measurer measures the width of a pulse on the timing channel.
type Measurer struct {
	driver     Driver
	locks      *LockSet
	instrument *device.Instrument
	channel    int
	log        *slog.Logger

	LogicLevel   int16
	PollInterval time.Duration
	// BufferLen bounds the capture window, ten seconds by default.
	BufferLen int
}

// NewMeasurer creates a measurer for the given digital channel of inst.
func NewMeasurer(driver Driver, locks *LockSet, inst *device.Instrument, channel int, log *slog.Logger) *Measurer {
	if log == nil {
		log = slog.Default()
	}
	return &Measurer{
		driver:       driver,
		locks:        locks,
		instrument:   inst,
		channel:      channel,
		log:          log.With("instrument", inst.SerialNumber, "channel", channel),
		LogicLevel:   LogicLevel(DefaultThresholdV),
		PollInterval: time.Millisecond,
		BufferLen:    int(10 * time.Second / TimingSampleInterval),
	}
}

// Measure arms a rising edge trigger on the timing channel, calls arm once
// streaming runs (typically to power up the board) and returns the width of
// the first pulse in microseconds.
func (m *Measurer) Measure(ctx context.Context, arm func(context.Context) error) (float64, error) {
	serial := m.instrument.SerialNumber
	port, bit := PortOf(m.channel)
	mask := int16(1) << bit

	unlock := m.locks.Lock(serial)
	defer unlock()

	h, st := m.driver.Open(serial)
	if err := check(serial, "open", st); err != nil {
		return 0, err
	}
	defer func() {
		if err := check(serial, "close", h.Close()); err != nil {
			m.log.Warn("Disconnecting failed", "error", err)
		}
	}()

	for _, p := range []DigitalPort{Port0, Port1} {
		if err := check(serial, "set digital port", h.SetDigitalPort(p, false, m.LogicLevel)); err != nil {
			return 0, err
		}
	}
	for ch := 0; ch < 2; ch++ {
		if err := check(serial, "set channel", h.SetAnalogChannel(ch, false)); err != nil {
			return 0, err
		}
	}
	if err := check(serial, "set digital port", h.SetDigitalPort(port, true, m.LogicLevel)); err != nil {
		return 0, err
	}

	buf := make([]int16, m.BufferLen)
	if err := check(serial, "set data buffer", h.SetDataBuffer(port, buf)); err != nil {
		return 0, err
	}
	if err := check(serial, "set trigger", h.SetDigitalTrigger(m.channel)); err != nil {
		return 0, err
	}

	actual, st := h.RunStreaming(StreamRequest{
		Interval:   TimingSampleInterval,
		MaxSamples: m.BufferLen,
		AutoStop:   true,
		BufferLen:  m.BufferLen,
	})
	if err := check(serial, "run streaming", st); err != nil {
		return 0, err
	}
	m.log.Debug("Timing stream started", "requested", TimingSampleInterval, "actual", actual)

	if arm != nil {
		if err := arm(ctx); err != nil {
			abort(h, serial, m.log)
			return 0, err
		}
	}

	trigger := -1
	received := 0
	reading := true
	ready := func(b StreamBatch) {
		if b.Triggered {
			trigger = b.TriggerAt
		}
		// Pulse finished once a post-trigger batch starts low.
		if trigger >= 0 && !b.Triggered && b.StartIndex < len(buf) && buf[b.StartIndex]&mask == 0 {
			reading = false
		}
		received += b.Count
		if received >= m.BufferLen || b.AutoStop {
			reading = false
		}
	}

	ticker := time.NewTicker(m.PollInterval)
	defer ticker.Stop()
	for reading {
		if err := check(serial, "get streaming values", h.GetStreamingLatestValues(ready)); err != nil {
			abort(h, serial, m.log)
			return 0, err
		}
		if !reading {
			break
		}
		select {
		case <-ctx.Done():
			abort(h, serial, m.log)
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
	if err := check(serial, "stop", h.Stop()); err != nil {
		return 0, err
	}

	if trigger < 0 {
		return 0, ErrTimeout
	}
	count, err := PulseWidth(buf, trigger, SearchIncrement, mask)
	if err != nil {
		return 0, err
	}
	us := float64(count) * float64(actual.Nanoseconds()) / (ClockDivider * 1000)
	m.log.Debug("Pulse measured", "samples", count, "us", us)
	return us, nil
}
