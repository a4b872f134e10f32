// Package telemetry defines the message catalog of the flight computer's
// data stream.
//
// A flight is recorded as an ordered stream of tagged messages. Each message
// carries the number of ticks elapsed since the previous message rather than
// a wall-clock timestamp; the tick rate itself is part of the stream and can
// change mid-flight via a TicksPerSecond message. Reconstructing absolute
// time and calibrated sensor values therefore requires replaying the stream
// in order (see package stream).
package telemetry

import "fmt"

// DefaultTickRate is the tick rate assumed at power-on, before any
// TicksPerSecond message has been observed.
const DefaultTickRate uint32 = 1024

// Kind tags a message variant. Values are part of the wire format: existing
// assignments never change, new kinds are appended.
type Kind uint8

const (
	KindBarometerCalibration Kind = 0x01
	KindBarometerData        Kind = 0x02
	KindHighGAccelerometer   Kind = 0x03
	KindTicksPerSecond       Kind = 0x04
	KindHeartbeat            Kind = 0x05
)

func (k Kind) String() string {
	switch k {
	case KindBarometerCalibration:
		return "barometer_calibration"
	case KindBarometerData:
		return "barometer_data"
	case KindHighGAccelerometer:
		return "high_g_accelerometer"
	case KindTicksPerSecond:
		return "ticks_per_second"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return fmt.Sprintf("kind(0x%02x)", uint8(k))
	}
}

// Data is the payload of one message. The set of implementations is closed:
// every variant is defined in this package and maps to exactly one Kind.
type Data interface {
	Kind() Kind
}

// BarometerCalibration holds the PROM constants read from the barometer's
// internal memory, needed to convert raw samples into physical units.
// Always emitted before the first BarometerData message.
type BarometerCalibration struct {
	// Pressure sensitivity | SENS_T1
	PressureSensitivity uint16 `json:"pressure_sensitivity"`
	// Pressure offset | OFF_T1
	PressureOffset uint16 `json:"pressure_offset"`
	// Temperature coefficient of pressure sensitivity | TCS
	TemperatureCoefficientPS uint16 `json:"temperature_coefficient_ps"`
	// Temperature coefficient of pressure offset | TCO
	TemperatureCoefficientPO uint16 `json:"temperature_coefficient_po"`
	// Reference temperature | T_REF
	ReferenceTemperature uint16 `json:"reference_temperature"`
	// Temperature coefficient of the temperature | TEMPSENS
	TemperatureCoefficientT uint16 `json:"temperature_coefficient_t"`
}

func (BarometerCalibration) Kind() Kind { return KindBarometerCalibration }

// BarometerData is one raw sample from the barometer's ADC.
type BarometerData struct {
	Temperature uint32 `json:"temperature"`
	Pressure    uint32 `json:"pressure"`
}

func (BarometerData) Kind() Kind { return KindBarometerData }

// HighGAccelerometerData is one raw sample from the high-g accelerometer.
type HighGAccelerometerData struct {
	X int16 `json:"x"`
	Y int16 `json:"y"`
	Z int16 `json:"z"`
}

func (HighGAccelerometerData) Kind() Kind { return KindHighGAccelerometer }

// TicksPerSecond changes the tick rate in force for all messages after the
// one that carries it. A value of zero is invalid input.
type TicksPerSecond uint32

func (TicksPerSecond) Kind() Kind { return KindTicksPerSecond }

// Heartbeat extends the 16-bit per-message tick delta during quiet periods.
// The payload is added to the carrying message's ticks-since-last value to
// obtain the real elapsed tick count, so time is not lost when no other
// message is emitted for longer than the delta field can express.
type Heartbeat uint32

func (Heartbeat) Kind() Kind { return KindHeartbeat }

// Message is one emitted unit of the stream: a payload plus the tick count
// elapsed since the previous message.
type Message struct {
	// TicksSinceLast is relative to the previous message in the stream,
	// under the tick rate in force before this message's own state effect.
	TicksSinceLast uint16
	Data           Data
}
