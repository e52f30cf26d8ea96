package uart

// ChannelReader assembles the bytes of one sampling channel from successive
// sample chunks. It is not safe for concurrent use.
type ChannelReader struct {
	channel       int
	samplesPerBit int
	active        *Capture
	finished      []*Capture
}

// NewChannelReader creates a reader for the given channel number.
func NewChannelReader(channel, samplesPerBit int) *ChannelReader {
	return &ChannelReader{channel: channel, samplesPerBit: samplesPerBit}
}

// Channel returns the channel number this reader belongs to.
func (r *ChannelReader) Channel() int { return r.channel }

// Record feeds a chunk of samples. Captures are continued across calls.
func (r *ChannelReader) Record(data []uint8) {
	for i := 0; i < len(data); {
		if r.active == nil {
			r.active = NewCapture(r.samplesPerBit)
		}
		i += r.active.Feed(data[i:])
		if r.active.Complete() {
			r.finished = append(r.finished, r.active)
			r.active = nil
		}
	}
}

// Data returns the bytes of all finished captures that decode cleanly, in
// capture order. Captures with framing errors are dropped.
func (r *ChannelReader) Data() []byte {
	var data []byte
	for _, c := range r.finished {
		if !c.Valid() {
			continue
		}
		b, _, _ := c.Byte()
		data = append(data, b)
	}
	return data
}
