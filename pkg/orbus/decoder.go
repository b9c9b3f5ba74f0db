package orbus

// DecoderState indicates the progress of assembling a frame.
type DecoderState int

const (
	// DecoderScanning means waiting for a start marker.
	DecoderScanning DecoderState = iota
	// DecoderAccumulating means collecting the declared frame.
	DecoderAccumulating
	// DecoderComplete means a valid frame is ready.
	DecoderComplete
)

// String implements fmt.Stringer.
func (s DecoderState) String() string {
	switch s {
	case DecoderScanning:
		return "SCANNING"
	case DecoderAccumulating:
		return "ACCUMULATING"
	case DecoderComplete:
		return "COMPLETE"
	}
	return "UNKNOWN"
}

type decodeStep int

const (
	stepMarker   decodeStep = iota // waiting for start marker
	stepLength                     // waiting for body length
	stepBody                       // waiting for body bytes
	stepChecksum                   // waiting for checksum
	stepDone                       // frame ready, Reset required
)

// Decoder assembles frames from a byte stream.
// It is fed one byte at a time regardless of how the transport chunks reads.
type Decoder struct {
	// MaxLength limits the declared body length, DefaultMaxFrameLength if 0.
	MaxLength int

	step      decodeStep
	async     bool
	body      []byte
	length    int
	framing   int
	completed int
}

// NewDecoder creates a Decoder.
func NewDecoder(maxLength int) *Decoder {
	return &Decoder{MaxLength: maxLength}
}

// State gets the current state.
func (d *Decoder) State() DecoderState {
	switch d.step {
	case stepMarker:
		return DecoderScanning
	case stepDone:
		return DecoderComplete
	}
	return DecoderAccumulating
}

// FramingErrors returns the count of discarded malformed frames.
func (d *Decoder) FramingErrors() int {
	return d.framing
}

// Completed returns the count of assembled frames.
func (d *Decoder) Completed() int {
	return d.completed
}

// Reset discards any partial or completed frame.
func (d *Decoder) Reset() {
	d.step, d.async, d.length = stepMarker, false, 0
	d.body = nil
}

// Abandon drops a partial frame, e.g. when the link went idle mid-frame.
// It returns true if bytes were discarded.
func (d *Decoder) Abandon() bool {
	if d.State() != DecoderAccumulating {
		return false
	}
	d.framing++
	d.Reset()
	return true
}

// Frame returns the assembled frame, nil unless complete.
func (d *Decoder) Frame() *Frame {
	if d.step != stepDone {
		return nil
	}
	return &Frame{Async: d.async, Body: d.body}
}

// Feed consumes one byte and returns true when a complete frame is ready.
// Once complete, bytes are ignored until Reset.
func (d *Decoder) Feed(b byte) bool {
	switch d.step {
	case stepMarker:
		d.scan(b)
	case stepLength:
		max := d.MaxLength
		if max <= 0 {
			max = DefaultMaxFrameLength
		}
		if int(b) > max {
			d.resync(b)
			return false
		}
		d.length, d.body = int(b), make([]byte, 0, b)
		if d.length == 0 {
			d.step = stepChecksum
		} else {
			d.step = stepBody
		}
	case stepBody:
		d.body = append(d.body, b)
		if len(d.body) >= d.length {
			d.step = stepChecksum
		}
	case stepChecksum:
		if b != Checksum(d.body) {
			d.resync(b)
			return false
		}
		d.step = stepDone
		d.completed++
		return true
	case stepDone:
		return true
	}
	return false
}

func (d *Decoder) scan(b byte) {
	switch b {
	case MarkerSync:
		d.step, d.async = stepLength, false
	case MarkerAsync:
		d.step, d.async = stepLength, true
	}
}

// resync drops the partial frame and re-examines b as a start marker.
func (d *Decoder) resync(b byte) {
	d.framing++
	d.Reset()
	d.scan(b)
}
