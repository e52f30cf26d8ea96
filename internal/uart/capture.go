package uart

// Capture records the samples of a single byte. It skips idle samples until
// the first falling edge and then buffers exactly CaptureBits bit times.
type Capture struct {
	samplesPerBit int
	buf           []uint8
	seeking       bool
}

// NewCapture creates an empty capture.
func NewCapture(samplesPerBit int) *Capture {
	return &Capture{
		samplesPerBit: samplesPerBit,
		buf:           make([]uint8, 0, CaptureBits*samplesPerBit),
		seeking:       true,
	}
}

// Size returns the number of samples a complete capture holds.
func (c *Capture) Size() int {
	return CaptureBits * c.samplesPerBit
}

// Complete reports whether the capture buffer is full.
func (c *Capture) Complete() bool {
	return len(c.buf) == c.Size()
}

// Feed pushes new samples and returns how many of them were consumed,
// including idle samples skipped while waiting for a start edge.
func (c *Capture) Feed(data []uint8) int {
	skip := 0
	if c.seeking {
		for skip < len(data) && data[skip] != 0 {
			skip++
		}
		if skip < len(data) {
			c.seeking = false
		}
	}

	take := min(c.Size()-len(c.buf), len(data)-skip)
	c.buf = append(c.buf, data[skip:skip+take]...)
	return skip + take
}

// Valid reports whether the buffered samples decode to a byte without a
// framing error.
func (c *Capture) Valid() bool {
	_, ok, _, err := DecodeByte(c.buf, c.samplesPerBit)
	return ok && err == nil
}

// Byte decodes the buffered samples.
func (c *Capture) Byte() (byte, bool, error) {
	b, ok, _, err := DecodeByte(c.buf, c.samplesPerBit)
	return b, ok, err
}
