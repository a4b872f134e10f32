// Package logger writes reconstructed telemetry events as JSON lines, one
// record per event, for ground-station archival and offline analysis.
package logger

import (
	"context"
	"encoding/json"
	"io"

	"novafc/pkg/stream"
	"novafc/pkg/telemetry"
)

type JSONLWriter struct {
	enc *json.Encoder
}

type jsonRecord struct {
	T     float64 `json:"t"`
	Ticks uint64  `json:"ticks"`
	Kind  string  `json:"kind"`
	Data  any     `json:"data,omitempty"`

	// Physical units for barometer samples, derived from the calibration
	// in force when the sample was taken.
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	PressurePa   *float64 `json:"pressure_pa,omitempty"`
}

func NewJSONLWriter(w io.Writer) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{enc: enc}
}

// Write records a single event.
func (j *JSONLWriter) Write(ev stream.Event) error {
	return j.enc.Encode(record(ev))
}

// Consume drains a hub subscription until it closes or ctx is cancelled.
func (j *JSONLWriter) Consume(ctx context.Context, in <-chan stream.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			_ = j.enc.Encode(record(ev))
		}
	}
}

func record(ev stream.Event) jsonRecord {
	rec := jsonRecord{
		T:     ev.Seconds,
		Ticks: ev.Ticks,
		Kind:  ev.Message.Data.Kind().String(),
		Data:  ev.Message.Data,
	}
	if raw, ok := ev.Message.Data.(telemetry.BarometerData); ok && ev.Calibration != nil {
		tempC, pressurePa := ev.Calibration.Convert(raw)
		rec.TemperatureC = &tempC
		rec.PressurePa = &pressurePa
	}
	return rec
}
