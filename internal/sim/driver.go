package sim

import (
	"context"
	"math"
	"time"

	"github.com/eas-attest/attest/internal/discovery"
	"github.com/eas-attest/attest/internal/instrument"
	"github.com/eas-attest/attest/internal/uart"
)

const (
	// IdentifierBaud is the baud rate of the identifier firmware.
	IdentifierBaud = 1200
	// triggerIndex is where a timing pulse starts in the capture.
	triggerIndex = 1000
	frameGapBits = 20
	byteGapBits  = 4
)

// Driver returns an acquisition driver for the rig's instruments.
func (r *Rig) Driver() instrument.Driver { return &driver{rig: r} }

type driver struct{ rig *Rig }

func (d *driver) Enumerate(context.Context) ([]string, error) {
	d.rig.mu.Lock()
	defer d.rig.mu.Unlock()
	return append([]string(nil), d.rig.instOrder...), nil
}

func (d *driver) Open(serial string) (instrument.Handle, instrument.Status) {
	d.rig.mu.Lock()
	defer d.rig.mu.Unlock()
	spec, ok := d.rig.instruments[serial]
	if !ok {
		return nil, instrument.StatusNotFound
	}
	if spec.Faulty {
		return nil, instrument.StatusNotResponding
	}
	return &handle{rig: d.rig, serial: serial, trigger: -1, triggerAt: -1}, instrument.StatusOK
}

type handle struct {
	rig    *Rig
	serial string

	bufs     [2][]int16
	enabled  [2]bool
	trigger  int
	interval time.Duration
	max      int
	pos      int

	prepared  bool
	bits      [instrument.DigitalChannels][]uint8
	triggerAt int
	pulseLen  int
}

func (h *handle) SetDigitalPort(p instrument.DigitalPort, enabled bool, _ int16) instrument.Status {
	if p < instrument.Port0 || p > instrument.Port1 {
		return instrument.StatusInvalidParameter
	}
	h.enabled[p] = enabled
	return instrument.StatusOK
}

func (h *handle) SetAnalogChannel(ch int, _ bool) instrument.Status {
	if ch < 0 || ch > 1 {
		return instrument.StatusInvalidChannel
	}
	return instrument.StatusOK
}

func (h *handle) SetDataBuffer(p instrument.DigitalPort, buf []int16) instrument.Status {
	if p < instrument.Port0 || p > instrument.Port1 {
		return instrument.StatusInvalidParameter
	}
	h.bufs[p] = buf
	return instrument.StatusOK
}

func (h *handle) SetDigitalTrigger(ch int) instrument.Status {
	if ch < 0 || ch >= instrument.DigitalChannels {
		return instrument.StatusInvalidChannel
	}
	h.trigger = ch
	return instrument.StatusOK
}

func (h *handle) RunStreaming(req instrument.StreamRequest) (time.Duration, instrument.Status) {
	if req.Interval <= 0 {
		return 0, instrument.StatusInvalidSampleInterval
	}
	if h.bufs[0] == nil && h.bufs[1] == nil {
		return 0, instrument.StatusBuffersNotSet
	}
	h.interval = req.Interval
	h.max = req.MaxSamples
	return req.Interval, instrument.StatusOK
}

func (h *handle) bufferLen() int {
	for _, b := range h.bufs {
		if b != nil {
			return len(b)
		}
	}
	return 0
}

// prepare renders the signals present on the wires once streaming is read
// for the first time, so power changes made after RunStreaming count.
func (h *handle) prepare() {
	h.prepared = true
	r := h.rig
	r.mu.Lock()
	defer r.mu.Unlock()

	n := h.bufferLen()
	if h.trigger >= 0 {
		for _, w := range r.wires {
			if w.instrument != h.serial || w.channel != h.trigger {
				continue
			}
			b := r.boards[w.board]
			if b.firmware == "" || !b.powered || b.spec.PulseUs <= 0 {
				continue
			}
			h.triggerAt = triggerIndex
			h.pulseLen = int(math.Round(b.spec.PulseUs * instrument.ClockDivider * 1000 / float64(h.interval.Nanoseconds())))
		}
		return
	}

	bitTime := time.Second / IdentifierBaud
	spb := max(1, int(math.Round(float64(bitTime)/float64(h.interval))))
	for _, w := range r.wires {
		if w.instrument != h.serial {
			continue
		}
		b := r.boards[w.board]
		if b.id == 0 || !b.powered {
			h.bits[w.channel] = idle(n)
			continue
		}
		glitch := w.glitches > 0
		if glitch {
			w.glitches--
		}
		h.bits[w.channel] = identification(b.id, w.port, w.pin, w.channel, spb, n, glitch)
	}
}

func idle(n int) []uint8 {
	s := make([]uint8, n)
	for i := range s {
		s[i] = 1
	}
	return s
}

// identification renders repeated identification frames as samples. A
// glitching wire corrupts the port nibble of every second frame.
func identification(id uint32, port, pin, channel, spb, n int, glitch bool) []uint8 {
	s := make([]uint8, 0, n+64*spb)
	pad := func(bits int) {
		for i := 0; i < bits*spb; i++ {
			s = append(s, 1)
		}
	}
	pad(3 + channel)
	for frame := 0; len(s) < n; frame++ {
		p := port
		if glitch && frame%2 == 1 {
			p = (port + 1) & 0xF
		}
		for _, b := range discovery.EncodeFrame(id, p, pin) {
			s = append(s, uart.EncodeByte(b, spb, byteGapBits)...)
		}
		pad(frameGapBits)
	}
	return s[:n]
}

func (h *handle) level(p, i int) int16 {
	if !h.enabled[p] {
		return 0
	}
	var v int16
	for bit := 0; bit < instrument.ChannelsPerPort; bit++ {
		ch := p*instrument.ChannelsPerPort + bit
		if h.trigger >= 0 {
			if ch == h.trigger && h.triggerAt >= 0 && i >= h.triggerAt && i < h.triggerAt+h.pulseLen {
				v |= 1 << bit
			}
			continue
		}
		if s := h.bits[ch]; i < len(s) && s[i] != 0 {
			v |= 1 << bit
		}
	}
	return v
}

func (h *handle) GetStreamingLatestValues(ready func(instrument.StreamBatch)) instrument.Status {
	if h.interval == 0 {
		return instrument.StatusInvalidHandle
	}
	if !h.prepared {
		h.prepare()
	}

	chunk := 512
	if h.trigger >= 0 {
		chunk = 1 << 16
	}
	n := min(chunk, h.bufferLen()-h.pos)
	if n <= 0 {
		ready(instrument.StreamBatch{StartIndex: h.pos, AutoStop: true})
		return instrument.StatusOK
	}

	for p, buf := range h.bufs {
		if buf == nil {
			continue
		}
		for i := h.pos; i < h.pos+n; i++ {
			buf[i] = h.level(p, i)
		}
	}
	batch := instrument.StreamBatch{Count: n, StartIndex: h.pos}
	if h.triggerAt >= h.pos && h.triggerAt < h.pos+n {
		batch.Triggered = true
		batch.TriggerAt = h.triggerAt
	}
	h.pos += n
	batch.AutoStop = h.max > 0 && h.pos >= h.max
	ready(batch)
	return instrument.StatusOK
}

func (h *handle) Stop() instrument.Status {
	h.interval = 0
	return instrument.StatusOK
}

func (h *handle) Close() instrument.Status { return instrument.StatusOK }
