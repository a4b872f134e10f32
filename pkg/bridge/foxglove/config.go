package foxglove

// EventSchema describes the per-event JSON record pushed on the event
// channel.
const EventSchema = `{
  "type": "object",
  "properties": {
    "t": { "type": "number" },
    "ticks": { "type": "integer" },
    "kind": { "type": "string" },
    "data": { "type": "object", "additionalProperties": true },
    "temperature_c": { "type": "number" },
    "pressure_pa": { "type": "number" }
  },
  "required": ["t", "kind"]
}`

// BaroSchema describes the calibrated barometer channel, shaped for
// Foxglove's plot panel.
const BaroSchema = `{
  "type": "object",
  "properties": {
    "timestamp": {
      "type": "object",
      "properties": {
        "sec": { "type": "integer" },
        "nsec": { "type": "integer" }
      }
    },
    "temperature_c": { "type": "number" },
    "pressure_pa": { "type": "number" }
  },
  "required": ["timestamp"]
}`

type Config struct {
	WSAddr         string
	Name           string
	Topic          string
	ChannelID      uint64
	BaroTopic      string
	BaroChannelID  uint64
	SchemaEncoding string
	Encoding       string
	SendBuf        int
}

func DefaultConfig() Config {
	return Config{
		WSAddr:         "127.0.0.1:8765",
		Name:           "novafc",
		Topic:          "novafc/event",
		ChannelID:      1,
		BaroTopic:      "novafc/barometer",
		BaroChannelID:  2,
		SchemaEncoding: "jsonschema",
		Encoding:       "json",
		SendBuf:        256,
	}
}
