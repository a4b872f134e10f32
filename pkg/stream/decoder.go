// Package stream reconstructs flight history from a telemetry byte stream,
// and produces such streams on the flight side.
//
// The decoder owns the reconstruction state the format requires: the tick
// rate and barometer calibration in force at the current stream position,
// both of which are mutated by messages inside the stream itself. Absolute
// time and calibration context are therefore cumulative, and a decode pass
// can only start from position 0; seeking to a mid-stream offset without
// replaying the prefix is not supported.
package stream

import (
	"errors"
	"fmt"
	"io"

	"novafc/pkg/telemetry"
	"novafc/pkg/wire"
)

var (
	// ErrOrderViolation reports a sensor data message observed before the
	// state it depends on was established. Indicates a corrupted capture
	// or a producer bug; never auto-corrected.
	ErrOrderViolation = errors.New("sensor data before calibration")

	// ErrInvalidTickRate reports a TicksPerSecond message with rate 0.
	ErrInvalidTickRate = errors.New("tick rate must be positive")
)

// CodecError wraps a frame-level decode failure. It is fatal for the decode
// pass, since frame boundaries after a bad frame cannot be trusted, but the
// events emitted before it remain valid.
type CodecError struct {
	Offset int64 // byte offset of the offending frame
	Events int   // events successfully reconstructed before the failure
	Err    error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("stream: frame at byte %d (after %d events): %v", e.Offset, e.Events, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

// Event is one reconstructed message with its absolute position in flight
// time and, for sensor data, the calibration in force when it was sampled.
type Event struct {
	// Seconds since power-on, derived from accumulated tick deltas under
	// the tick rate in force for each delta.
	Seconds float64

	// Ticks is the raw accumulated tick count. Ticks from different rate
	// regimes have different durations; Seconds is the real timeline.
	Ticks uint64

	Message telemetry.Message

	// Calibration is set on barometer data events so consumers never
	// re-derive it from stream order.
	Calibration *telemetry.BarometerCalibration
}

// Decoder is a single pass over an ordered telemetry byte source. It is not
// safe for concurrent use; decode two logs with two Decoders instead.
type Decoder struct {
	r     io.Reader
	codec wire.Codec
	buf   []byte
	chunk []byte

	off    int64
	events int

	rate    uint32
	cal     *telemetry.BarometerCalibration
	ticks   uint64
	seconds float64

	err error
}

type DecoderOption func(*Decoder)

// WithCodec replaces the frame codec, e.g. for a future bit-packed layout.
func WithCodec(c wire.Codec) DecoderOption {
	return func(d *Decoder) {
		if c != nil {
			d.codec = c
		}
	}
}

// WithReadChunk sets the size of reads issued against the source.
func WithReadChunk(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 {
			d.chunk = make([]byte, n)
		}
	}
}

func NewDecoder(r io.Reader, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		r:     r,
		codec: wire.Default,
		chunk: make([]byte, 4096),
		rate:  telemetry.DefaultTickRate,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Decoded reports how many events this pass has reconstructed so far. After
// a failure it is the length of the valid prefix.
func (d *Decoder) Decoded() int { return d.events }

// Next reconstructs the next event in stream order. It returns io.EOF at a
// clean end of stream. Any other error is terminal for the pass: the decoder
// does not skip, guess, or retry, and repeated calls return the same error.
func (d *Decoder) Next() (Event, error) {
	if d.err != nil {
		return Event{}, d.err
	}

	m, n, err := d.readFrame()
	if err != nil {
		d.err = err
		return Event{}, err
	}

	// Elapsed time is interpreted under the rate in force before this
	// message's own state effect. A heartbeat payload extends the 16-bit
	// delta field.
	elapsed := uint64(m.TicksSinceLast)
	if hb, ok := m.Data.(telemetry.Heartbeat); ok {
		elapsed += uint64(hb)
	}
	d.ticks += elapsed
	d.seconds += float64(elapsed) / float64(d.rate)

	ev := Event{Seconds: d.seconds, Ticks: d.ticks, Message: m}

	switch data := m.Data.(type) {
	case telemetry.BarometerData:
		if d.cal == nil {
			d.err = fmt.Errorf("stream: message %d at %.6fs: %w", d.events, d.seconds, ErrOrderViolation)
			return Event{}, d.err
		}
		ev.Calibration = d.cal
	case telemetry.TicksPerSecond:
		if data == 0 {
			d.err = fmt.Errorf("stream: message %d at %.6fs: %w", d.events, d.seconds, ErrInvalidTickRate)
			return Event{}, d.err
		}
		d.rate = uint32(data)
	case telemetry.BarometerCalibration:
		cal := data
		d.cal = &cal
	}

	d.off += int64(n)
	d.events++
	return ev, nil
}

// maxEmptyReads bounds consecutive (0, nil) reads from the source before
// the pass fails rather than spinning, mirroring bufio.
const maxEmptyReads = 100

// readFrame pulls bytes from the source until the buffer holds one complete
// frame, then decodes and consumes it. Waiting for bytes is the only
// suspension point of a decode pass.
func (d *Decoder) readFrame() (telemetry.Message, int, error) {
	empty := 0
	for {
		if len(d.buf) > 0 {
			m, n, err := d.codec.Decode(d.buf)
			if err == nil {
				d.buf = d.buf[n:]
				return m, n, nil
			}
			if !errors.Is(err, wire.ErrTruncatedFrame) {
				return telemetry.Message{}, 0, &CodecError{Offset: d.off, Events: d.events, Err: err}
			}
		}

		n, err := d.r.Read(d.chunk)
		if n > 0 {
			empty = 0
			d.buf = append(d.buf, d.chunk[:n]...)
			continue
		}
		if err == nil {
			if empty++; empty >= maxEmptyReads {
				return telemetry.Message{}, 0, fmt.Errorf("stream: read source: %w", io.ErrNoProgress)
			}
			continue
		}
		if err == io.EOF {
			if len(d.buf) == 0 {
				return telemetry.Message{}, 0, io.EOF
			}
			// The source ended mid-frame.
			return telemetry.Message{}, 0, &CodecError{Offset: d.off, Events: d.events, Err: wire.ErrTruncatedFrame}
		}
		return telemetry.Message{}, 0, fmt.Errorf("stream: read source: %w", err)
	}
}

// DecodeAll drains r and returns every reconstructed event. On failure the
// valid prefix is returned alongside the error, so callers can still use the
// history up to the corruption point.
func DecodeAll(r io.Reader, opts ...DecoderOption) ([]Event, error) {
	d := NewDecoder(r, opts...)
	var events []Event
	for {
		ev, err := d.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, ev)
	}
}
