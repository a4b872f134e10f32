package stream

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"novafc/pkg/telemetry"
	"novafc/pkg/wire"
)

// ErrTicksRewound reports an emission at an absolute tick earlier than the
// previous one. Stream time only moves forward.
var ErrTicksRewound = errors.New("emission ticks moved backwards")

// maxHeartbeatSpan is the largest tick gap one heartbeat frame can cover:
// its own 16-bit delta plus its 32-bit extension payload.
const maxHeartbeatSpan = uint64(math.MaxUint16) + uint64(math.MaxUint32)

// Encoder appends messages to an outgoing telemetry stream. It owns the
// producer half of the protocol invariant: every state change that affects
// reconstruction is written to the stream at the moment it takes effect, and
// barometer data is refused until a calibration has been written. Violating
// either is an error in the caller, surfaced immediately rather than left
// for a decoder to discover.
//
// Emit-and-append is guarded by one mutex so that a state-change message and
// the state it represents become visible atomically, in stream order, even
// when sampling and emission run on separate goroutines.
type Encoder struct {
	mu      sync.Mutex
	w       io.Writer
	codec   wire.Codec
	scratch []byte

	rate       uint32
	last       uint64
	calibrated bool
}

type EncoderOption func(*Encoder)

// WithEncoderCodec replaces the frame codec.
func WithEncoderCodec(c wire.Codec) EncoderOption {
	return func(e *Encoder) {
		if c != nil {
			e.codec = c
		}
	}
}

func NewEncoder(w io.Writer, opts ...EncoderOption) *Encoder {
	e := &Encoder{
		w:     w,
		codec: wire.Default,
		rate:  telemetry.DefaultTickRate,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rate returns the tick rate currently configured on the stream.
func (e *Encoder) Rate() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate
}

// Calibrated reports whether a barometer calibration has been emitted.
func (e *Encoder) Calibrated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calibrated
}

// Emit appends one message, timestamped at the absolute tick `at` of the
// flight computer's counter. The delta to the previous emission is computed
// under the currently configured tick rate; gaps too wide for the delta
// field are bridged with heartbeat frames first.
func (e *Encoder) Emit(at uint64, data telemetry.Data) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if at < e.last {
		return fmt.Errorf("stream: emit at tick %d after tick %d: %w", at, e.last, ErrTicksRewound)
	}
	switch d := data.(type) {
	case telemetry.BarometerData:
		if !e.calibrated {
			return fmt.Errorf("stream: emit barometer data: %w", ErrOrderViolation)
		}
	case telemetry.TicksPerSecond:
		if d == 0 {
			return fmt.Errorf("stream: emit tick rate 0: %w", ErrInvalidTickRate)
		}
	}

	delta := at - e.last
	for delta > math.MaxUint16 {
		span := min(delta, maxHeartbeatSpan)
		hb := telemetry.Message{
			TicksSinceLast: math.MaxUint16,
			Data:           telemetry.Heartbeat(span - math.MaxUint16),
		}
		if err := e.write(hb); err != nil {
			return err
		}
		delta -= span
	}

	if err := e.write(telemetry.Message{TicksSinceLast: uint16(delta), Data: data}); err != nil {
		return err
	}

	switch d := data.(type) {
	case telemetry.TicksPerSecond:
		e.rate = uint32(d)
	case telemetry.BarometerCalibration:
		e.calibrated = true
	}
	e.last = at
	return nil
}

func (e *Encoder) write(m telemetry.Message) error {
	buf, err := e.codec.Append(e.scratch[:0], m)
	if err != nil {
		return fmt.Errorf("stream: encode %s: %w", m.Data.Kind(), err)
	}
	e.scratch = buf[:0]
	if _, err := e.w.Write(buf); err != nil {
		return fmt.Errorf("stream: append %s: %w", m.Data.Kind(), err)
	}
	return nil
}
