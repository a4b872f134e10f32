// Package wire encodes telemetry messages to and from byte frames.
//
// Frame layout (v0, semantics stable, layout subject to change):
//
//	[0]    tag (telemetry.Kind)
//	[1:3]  ticks since last message, uint16 little-endian
//	[3:]   payload, fixed size per tag, little-endian fields
//
// Frames are self-delimiting: the payload length is a function of the tag,
// so a decoder can find frame boundaries without outer framing. An unknown
// tag is fatal by design, since the length of its payload cannot be
// inferred. The codec is a pure per-message transform and tracks no stream
// state; reconstruction state lives in package stream.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"novafc/pkg/telemetry"
)

// HeaderSize is the fixed tag + tick-delta prefix of every frame.
const HeaderSize = 3

var (
	ErrUnknownTag       = errors.New("unknown message tag")
	ErrTruncatedFrame   = errors.New("truncated frame")
	ErrMalformedPayload = errors.New("malformed payload")
)

// Codec is the boundary behind which the frame layout can be swapped for a
// denser bit-packed encoding without touching the stream reconstruction
// logic.
type Codec interface {
	// Append encodes m and appends the frame to dst. It fails only for
	// messages that are not well-formed (nil or foreign payload types,
	// out-of-range values).
	Append(dst []byte, m telemetry.Message) ([]byte, error)

	// Decode reads one frame from the front of b and reports how many
	// bytes it consumed. ErrTruncatedFrame means b holds less than one
	// complete frame and more bytes are needed.
	Decode(b []byte) (telemetry.Message, int, error)
}

// Binary is the v0 byte-aligned codec.
type Binary struct{}

// Default is the codec used throughout this module unless overridden.
var Default Codec = Binary{}

func payloadSize(k telemetry.Kind) (int, bool) {
	switch k {
	case telemetry.KindBarometerCalibration:
		return 12, true
	case telemetry.KindBarometerData:
		return 8, true
	case telemetry.KindHighGAccelerometer:
		return 6, true
	case telemetry.KindTicksPerSecond, telemetry.KindHeartbeat:
		return 4, true
	default:
		return 0, false
	}
}

// Encode is shorthand for Default.Append with a fresh buffer.
func Encode(m telemetry.Message) ([]byte, error) {
	return Default.Append(nil, m)
}

func (Binary) Append(dst []byte, m telemetry.Message) ([]byte, error) {
	if m.Data == nil {
		return nil, fmt.Errorf("wire: encode: nil payload: %w", ErrMalformedPayload)
	}

	dst = append(dst, byte(m.Data.Kind()))
	dst = binary.LittleEndian.AppendUint16(dst, m.TicksSinceLast)

	switch d := m.Data.(type) {
	case telemetry.BarometerCalibration:
		dst = binary.LittleEndian.AppendUint16(dst, d.PressureSensitivity)
		dst = binary.LittleEndian.AppendUint16(dst, d.PressureOffset)
		dst = binary.LittleEndian.AppendUint16(dst, d.TemperatureCoefficientPS)
		dst = binary.LittleEndian.AppendUint16(dst, d.TemperatureCoefficientPO)
		dst = binary.LittleEndian.AppendUint16(dst, d.ReferenceTemperature)
		dst = binary.LittleEndian.AppendUint16(dst, d.TemperatureCoefficientT)
	case telemetry.BarometerData:
		dst = binary.LittleEndian.AppendUint32(dst, d.Temperature)
		dst = binary.LittleEndian.AppendUint32(dst, d.Pressure)
	case telemetry.HighGAccelerometerData:
		dst = binary.LittleEndian.AppendUint16(dst, uint16(d.X))
		dst = binary.LittleEndian.AppendUint16(dst, uint16(d.Y))
		dst = binary.LittleEndian.AppendUint16(dst, uint16(d.Z))
	case telemetry.TicksPerSecond:
		if d == 0 {
			return nil, fmt.Errorf("wire: encode ticks per second 0: %w", ErrMalformedPayload)
		}
		dst = binary.LittleEndian.AppendUint32(dst, uint32(d))
	case telemetry.Heartbeat:
		dst = binary.LittleEndian.AppendUint32(dst, uint32(d))
	default:
		return nil, fmt.Errorf("wire: encode %T: %w", m.Data, ErrUnknownTag)
	}
	return dst, nil
}

func (Binary) Decode(b []byte) (telemetry.Message, int, error) {
	if len(b) < HeaderSize {
		return telemetry.Message{}, 0, fmt.Errorf("wire: decode header: %w", ErrTruncatedFrame)
	}

	tag := telemetry.Kind(b[0])
	size, ok := payloadSize(tag)
	if !ok {
		return telemetry.Message{}, 0, fmt.Errorf("wire: decode tag 0x%02x: %w", b[0], ErrUnknownTag)
	}
	if len(b) < HeaderSize+size {
		return telemetry.Message{}, 0, fmt.Errorf("wire: decode %s payload: %w", tag, ErrTruncatedFrame)
	}

	m := telemetry.Message{TicksSinceLast: binary.LittleEndian.Uint16(b[1:3])}
	p := b[HeaderSize : HeaderSize+size]

	switch tag {
	case telemetry.KindBarometerCalibration:
		m.Data = telemetry.BarometerCalibration{
			PressureSensitivity:      binary.LittleEndian.Uint16(p[0:2]),
			PressureOffset:           binary.LittleEndian.Uint16(p[2:4]),
			TemperatureCoefficientPS: binary.LittleEndian.Uint16(p[4:6]),
			TemperatureCoefficientPO: binary.LittleEndian.Uint16(p[6:8]),
			ReferenceTemperature:     binary.LittleEndian.Uint16(p[8:10]),
			TemperatureCoefficientT:  binary.LittleEndian.Uint16(p[10:12]),
		}
	case telemetry.KindBarometerData:
		m.Data = telemetry.BarometerData{
			Temperature: binary.LittleEndian.Uint32(p[0:4]),
			Pressure:    binary.LittleEndian.Uint32(p[4:8]),
		}
	case telemetry.KindHighGAccelerometer:
		m.Data = telemetry.HighGAccelerometerData{
			X: int16(binary.LittleEndian.Uint16(p[0:2])),
			Y: int16(binary.LittleEndian.Uint16(p[2:4])),
			Z: int16(binary.LittleEndian.Uint16(p[4:6])),
		}
	case telemetry.KindTicksPerSecond:
		m.Data = telemetry.TicksPerSecond(binary.LittleEndian.Uint32(p))
	case telemetry.KindHeartbeat:
		m.Data = telemetry.Heartbeat(binary.LittleEndian.Uint32(p))
	}

	return m, HeaderSize + size, nil
}
