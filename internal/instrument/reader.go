package instrument

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/eas-attest/attest/internal/device"
	"github.com/eas-attest/attest/internal/uart"
)

// DefaultThresholdV is the logic threshold for digital ports.
const DefaultThresholdV = 1.7

// LogicLevel converts a threshold voltage into the driver's logic level
// scale of ±5 V over ±32767.
func LogicLevel(volts float64) int16 {
	return int16(volts / 5 * 32767)
}

// SampleInterval returns the streaming interval in whole microseconds for the
// given baud rate and oversampling factor.
func SampleInterval(baudRate, samplesPerBit int) int {
	return int(math.Round(1e6 / float64(baudRate*samplesPerBit)))
}

// Reader captures UART traffic on all digital channels of an instrument.
type Reader struct {
	driver     Driver
	locks      *LockSet
	instrument *device.Instrument
	log        *slog.Logger

	// LogicLevel is applied to both digital ports.
	LogicLevel int16
	// PollInterval is the delay between driver polls while streaming.
	PollInterval time.Duration

	channels []*uart.ChannelReader
}

// NewReader creates a reader for inst.
func NewReader(driver Driver, locks *LockSet, inst *device.Instrument, log *slog.Logger) *Reader {
	if log == nil {
		log = slog.Default()
	}
	return &Reader{
		driver:       driver,
		locks:        locks,
		instrument:   inst,
		log:          log.With("instrument", inst.SerialNumber),
		LogicLevel:   LogicLevel(DefaultThresholdV),
		PollInterval: time.Millisecond,
	}
}

// Read streams all digital channels for captureMs milliseconds and decodes
// the UART bytes seen on every channel. It blocks until the sample count is
// reached, the driver auto-stops or ctx is done.
func (r *Reader) Read(ctx context.Context, baudRate, samplesPerBit, captureMs int) error {
	if baudRate <= 0 || samplesPerBit <= 0 {
		return fmt.Errorf("invalid capture parameters: baud %d, %d samples per bit", baudRate, samplesPerBit)
	}
	intervalUs := SampleInterval(baudRate, samplesPerBit)
	if intervalUs <= 0 {
		return fmt.Errorf("baud rate %d too high for %d samples per bit", baudRate, samplesPerBit)
	}
	bufLen := captureMs * 1000 / intervalUs
	serial := r.instrument.SerialNumber

	unlock := r.locks.Lock(serial)
	defer unlock()

	h, st := r.driver.Open(serial)
	if err := check(serial, "open", st); err != nil {
		return err
	}
	defer func() {
		if err := check(serial, "close", h.Close()); err != nil {
			r.log.Warn("Disconnecting failed", "error", err)
		}
	}()

	for _, p := range []DigitalPort{Port0, Port1} {
		if err := check(serial, "set digital port", h.SetDigitalPort(p, true, r.LogicLevel)); err != nil {
			return err
		}
	}

	buffers := [2][]int16{make([]int16, bufLen), make([]int16, bufLen)}
	r.channels = make([]*uart.ChannelReader, DigitalChannels)
	for i := range r.channels {
		r.channels[i] = uart.NewChannelReader(i, samplesPerBit)
	}
	for p, buf := range buffers {
		if err := check(serial, "set data buffer", h.SetDataBuffer(DigitalPort(p), buf)); err != nil {
			return err
		}
	}

	actual, st := h.RunStreaming(StreamRequest{
		Interval:   time.Duration(intervalUs) * time.Microsecond,
		MaxSamples: 1000000 / intervalUs,
		AutoStop:   true,
		BufferLen:  bufLen,
	})
	if err := check(serial, "run streaming", st); err != nil {
		return err
	}
	r.log.Debug("Streaming started", "requested_us", intervalUs, "actual", actual)

	start := time.Now()
	received := 0
	stopped := false
	ready := func(b StreamBatch) {
		end := min(b.StartIndex+b.Count, bufLen)
		if b.StartIndex < end {
			for p, buf := range buffers {
				r.distribute(p, buf[b.StartIndex:end])
			}
		}
		received += b.Count
		if b.AutoStop {
			stopped = true
		}
	}

	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()
	for !stopped && received < bufLen {
		if err := check(serial, "get streaming values", h.GetStreamingLatestValues(ready)); err != nil {
			abort(h, serial, r.log)
			return err
		}
		select {
		case <-ctx.Done():
			abort(h, serial, r.log)
			return ctx.Err()
		case <-ticker.C:
		}
	}
	r.log.Debug("Capture finished", "samples", received, "took", time.Since(start))

	return check(serial, "stop", h.Stop())
}

// distribute splits a port sample chunk into per-channel bit streams.
func (r *Reader) distribute(port int, samples []int16) {
	bits := make([]uint8, len(samples))
	for bit := 0; bit < ChannelsPerPort; bit++ {
		for i, s := range samples {
			bits[i] = uint8(s>>bit) & 1
		}
		r.channels[port*ChannelsPerPort+bit].Record(bits)
	}
}

// ChannelData returns the bytes decoded on channel ch during the last Read.
func (r *Reader) ChannelData(ch int) []byte {
	if ch < 0 || ch >= len(r.channels) {
		return nil
	}
	return r.channels[ch].Data()
}
