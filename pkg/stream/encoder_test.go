package stream_test

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"novafc/pkg/stream"
	"novafc/pkg/telemetry"
)

func TestEncoderComputesDeltas(t *testing.T) {
	var buf bytes.Buffer
	enc := stream.NewEncoder(&buf)

	if err := enc.Emit(1024, testCalibration); err != nil {
		t.Fatalf("emit calibration: %v", err)
	}
	if err := enc.Emit(2048, telemetry.TicksPerSecond(1000000)); err != nil {
		t.Fatalf("emit rate: %v", err)
	}
	if err := enc.Emit(4096, telemetry.BarometerData{Temperature: 1, Pressure: 2}); err != nil {
		t.Fatalf("emit data: %v", err)
	}

	events, err := stream.DecodeAll(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	deltas := []uint16{1024, 1024, 2048}
	for i, ev := range events {
		if ev.Message.TicksSinceLast != deltas[i] {
			t.Fatalf("event %d delta %d, want %d", i, ev.Message.TicksSinceLast, deltas[i])
		}
	}
	if events[2].Ticks != 4096 {
		t.Fatalf("final event at tick %d, want 4096", events[2].Ticks)
	}
}

func TestEncoderRefusesDataBeforeCalibration(t *testing.T) {
	enc := stream.NewEncoder(&bytes.Buffer{})
	err := enc.Emit(10, telemetry.BarometerData{Temperature: 1, Pressure: 1})
	if !errors.Is(err, stream.ErrOrderViolation) {
		t.Fatalf("expected ErrOrderViolation, got %v", err)
	}

	if err := enc.Emit(10, testCalibration); err != nil {
		t.Fatalf("emit calibration: %v", err)
	}
	if err := enc.Emit(20, telemetry.BarometerData{Temperature: 1, Pressure: 1}); err != nil {
		t.Fatalf("emit data after calibration: %v", err)
	}
}

func TestEncoderRefusesRewoundTicks(t *testing.T) {
	enc := stream.NewEncoder(&bytes.Buffer{})
	if err := enc.Emit(100, testCalibration); err != nil {
		t.Fatalf("emit: %v", err)
	}
	err := enc.Emit(99, telemetry.HighGAccelerometerData{})
	if !errors.Is(err, stream.ErrTicksRewound) {
		t.Fatalf("expected ErrTicksRewound, got %v", err)
	}
}

func TestEncoderRefusesZeroTickRate(t *testing.T) {
	enc := stream.NewEncoder(&bytes.Buffer{})
	err := enc.Emit(0, telemetry.TicksPerSecond(0))
	if !errors.Is(err, stream.ErrInvalidTickRate) {
		t.Fatalf("expected ErrInvalidTickRate, got %v", err)
	}
}

func TestEncoderBridgesWideGapsWithHeartbeats(t *testing.T) {
	var buf bytes.Buffer
	enc := stream.NewEncoder(&buf)

	if err := enc.Emit(0, testCalibration); err != nil {
		t.Fatalf("emit calibration: %v", err)
	}
	const at = uint64(1 << 33) // far beyond the 16-bit delta field
	if err := enc.Emit(at, telemetry.BarometerData{Temperature: 3, Pressure: 4}); err != nil {
		t.Fatalf("emit data: %v", err)
	}

	events, err := stream.DecodeAll(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	last := events[len(events)-1]
	if last.Message.Data.Kind() != telemetry.KindBarometerData {
		t.Fatalf("last event is %s, want barometer data", last.Message.Data.Kind())
	}
	if last.Ticks != at {
		t.Fatalf("reconstructed tick %d, want %d", last.Ticks, at)
	}
	for _, ev := range events[1 : len(events)-1] {
		if ev.Message.Data.Kind() != telemetry.KindHeartbeat {
			t.Fatalf("bridge event is %s, want heartbeat", ev.Message.Data.Kind())
		}
	}
}

func TestEncoderDecoderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := stream.NewEncoder(&buf)

	emitted := []struct {
		at   uint64
		data telemetry.Data
	}{
		{0, testCalibration},
		{512, telemetry.TicksPerSecond(8192)},
		{1024, telemetry.BarometerData{Temperature: 8569150, Pressure: 9085466}},
		{1100, telemetry.HighGAccelerometerData{X: -120, Y: 14, Z: 2000}},
		{9000, telemetry.BarometerData{Temperature: 8569100, Pressure: 9086466}},
	}
	for _, e := range emitted {
		if err := enc.Emit(e.at, e.data); err != nil {
			t.Fatalf("emit at %d: %v", e.at, err)
		}
	}

	events, err := stream.DecodeAll(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(events) != len(emitted) {
		t.Fatalf("expected %d events, got %d", len(emitted), len(events))
	}
	for i, ev := range events {
		if ev.Ticks != emitted[i].at {
			t.Fatalf("event %d at tick %d, want %d", i, ev.Ticks, emitted[i].at)
		}
		if !reflect.DeepEqual(ev.Message.Data, emitted[i].data) {
			t.Fatalf("event %d payload %#v, want %#v", i, ev.Message.Data, emitted[i].data)
		}
	}
	// 512 ticks at 1024 Hz, then the rest at 8192 Hz.
	if want := 0.5 + float64(9000-512)/8192; events[4].Seconds != want {
		t.Fatalf("final event at %.6fs, want %.6fs", events[4].Seconds, want)
	}
}

func TestEncoderTracksRate(t *testing.T) {
	enc := stream.NewEncoder(&bytes.Buffer{})
	if enc.Rate() != telemetry.DefaultTickRate {
		t.Fatalf("initial rate %d, want %d", enc.Rate(), telemetry.DefaultTickRate)
	}
	if err := enc.Emit(100, telemetry.TicksPerSecond(1000000)); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if enc.Rate() != 1000000 {
		t.Fatalf("rate %d, want 1000000", enc.Rate())
	}
	if enc.Calibrated() {
		t.Fatalf("calibrated before any calibration message")
	}
}
