package instrument

import (
	"context"
	"time"
)

// fakeDriver serves prerecorded port samples through the Handle interface.
type fakeDriver struct {
	serials []string
	handle  *fakeHandle
	openSt  Status
	opened  int
}

func (d *fakeDriver) Enumerate(context.Context) ([]string, error) { return d.serials, nil }

func (d *fakeDriver) Open(string) (Handle, Status) {
	d.opened++
	if d.openSt != StatusOK {
		return nil, d.openSt
	}
	return d.handle, StatusOK
}

type fakeHandle struct {
	source    [2][]int16
	bufs      [2][]int16
	chunk     int
	pos       int
	triggerAt int
	max       int

	enabled   [2]bool
	trigger   int
	streaming bool
	stopped   bool
	closed    bool
	getSt     Status
	stopSt    Status
}

func newFakeHandle(port0, port1 []int16, chunk int) *fakeHandle {
	return &fakeHandle{source: [2][]int16{port0, port1}, chunk: chunk, triggerAt: -1, trigger: -1}
}

func (h *fakeHandle) SetDigitalPort(p DigitalPort, enabled bool, _ int16) Status {
	h.enabled[p] = enabled
	return StatusOK
}

func (h *fakeHandle) SetAnalogChannel(int, bool) Status { return StatusOK }

func (h *fakeHandle) SetDataBuffer(p DigitalPort, buf []int16) Status {
	h.bufs[p] = buf
	return StatusOK
}

func (h *fakeHandle) SetDigitalTrigger(ch int) Status {
	h.trigger = ch
	return StatusOK
}

func (h *fakeHandle) RunStreaming(req StreamRequest) (time.Duration, Status) {
	h.streaming = true
	h.max = req.MaxSamples
	return req.Interval, StatusOK
}

func (h *fakeHandle) GetStreamingLatestValues(ready func(StreamBatch)) Status {
	if h.getSt != StatusOK {
		return h.getSt
	}
	n := h.chunk
	for p := range h.bufs {
		if h.bufs[p] != nil {
			n = min(n, len(h.bufs[p])-h.pos)
		}
	}
	if n <= 0 {
		ready(StreamBatch{StartIndex: h.pos, AutoStop: true})
		return StatusOK
	}
	for p := range h.bufs {
		if h.bufs[p] == nil {
			continue
		}
		for i := h.pos; i < h.pos+n; i++ {
			if i < len(h.source[p]) {
				h.bufs[p][i] = h.source[p][i]
			}
		}
	}
	b := StreamBatch{Count: n, StartIndex: h.pos}
	if h.triggerAt >= h.pos && h.triggerAt < h.pos+n {
		b.Triggered = true
		b.TriggerAt = h.triggerAt
	}
	h.pos += n
	b.AutoStop = h.max > 0 && h.pos >= h.max
	ready(b)
	return StatusOK
}

func (h *fakeHandle) Stop() Status {
	h.stopped = true
	return h.stopSt
}

func (h *fakeHandle) Close() Status {
	h.closed = true
	return StatusOK
}
