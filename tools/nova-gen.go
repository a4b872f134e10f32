package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"novafc/pkg/stream"
	"novafc/pkg/telemetry"
	"novafc/pkg/wire"
)

func main() {
	code := run(os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(code)
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}

	switch args[0] {
	case "frames":
		return runFrames(args[1:], stdout, stderr)
	case "flight":
		return runFlight(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintln(stderr, "unknown command:", args[0])
		printUsage(stderr)
		return 2
	}
}

// goldenFrames holds one frame per message kind with stable example values,
// so other implementations of the format can diff their encoders against
// these bytes.
var goldenFrames = []struct {
	Name    string
	Message telemetry.Message
}{
	{
		Name: "barometer_calibration",
		Message: telemetry.Message{TicksSinceLast: 1024, Data: telemetry.BarometerCalibration{
			PressureSensitivity:      40127,
			PressureOffset:           36924,
			TemperatureCoefficientPS: 23317,
			TemperatureCoefficientPO: 23282,
			ReferenceTemperature:     33464,
			TemperatureCoefficientT:  28312,
		}},
	},
	{
		Name:    "barometer_data",
		Message: telemetry.Message{TicksSinceLast: 1024, Data: telemetry.BarometerData{Temperature: 8566784, Pressure: 9085466}},
	},
	{
		Name:    "high_g_accelerometer",
		Message: telemetry.Message{TicksSinceLast: 0, Data: telemetry.HighGAccelerometerData{X: -12, Y: 7, Z: 327}},
	},
	{
		Name:    "ticks_per_second",
		Message: telemetry.Message{TicksSinceLast: 0, Data: telemetry.TicksPerSecond(1_000_000)},
	},
	{
		Name:    "heartbeat",
		Message: telemetry.Message{TicksSinceLast: 65535, Data: telemetry.Heartbeat(371965)},
	},
}

func runFrames(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("frames", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("dir", "", "also write one .bin fixture per frame")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	for _, g := range goldenFrames {
		raw, err := wire.Encode(g.Message)
		if err != nil {
			fmt.Fprintf(stderr, "encode %s: %v\n", g.Name, err)
			return 1
		}
		fmt.Fprintf(stdout, "%-22s %s\n", g.Name, hex.EncodeToString(raw))
		if *dir != "" {
			path := filepath.Join(*dir, g.Name+".bin")
			if err := os.WriteFile(path, raw, 0o644); err != nil {
				fmt.Fprintln(stderr, "write fixture:", err)
				return 1
			}
		}
	}
	return 0
}

func runFlight(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("flight", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "flight.ntl", "fixture output path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintln(stderr, "create fixture:", err)
		return 1
	}
	defer f.Close()

	if err := writeGoldenFlight(f); err != nil {
		fmt.Fprintln(stderr, "write fixture:", err)
		return 1
	}
	fmt.Fprintf(stdout, "wrote golden flight to %s\n", *out)
	return 0
}

// writeGoldenFlight emits a short, fully deterministic stream: calibration
// and a tick rate change up front, steady samples, and one gap wide enough
// to force a heartbeat bridge.
func writeGoldenFlight(w io.Writer) error {
	enc := stream.NewEncoder(w)

	if err := enc.Emit(0, goldenFrames[0].Message.Data); err != nil {
		return err
	}
	if err := enc.Emit(0, telemetry.TicksPerSecond(1_000_000)); err != nil {
		return err
	}

	at := uint64(0)
	for i := 0; i < 10; i++ {
		at += 62500 // 1/16 s at 1 MHz
		baro := telemetry.BarometerData{Temperature: 8566784, Pressure: 9085466 + uint32(i)*100}
		if err := enc.Emit(at, baro); err != nil {
			return err
		}
		if err := enc.Emit(at, telemetry.HighGAccelerometerData{X: 0, Y: 0, Z: 327}); err != nil {
			return err
		}
	}

	// Sleep period longer than a u16 delta can carry.
	at += 500_000
	return enc.Emit(at, telemetry.BarometerData{Temperature: 8566784, Pressure: 9085466})
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  go run tools/nova-gen.go frames [--dir fixtures/]")
	fmt.Fprintln(w, "  go run tools/nova-gen.go flight [--out flight.ntl]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  frames   print golden frame encodings, one per message kind")
	fmt.Fprintln(w, "  flight   write a deterministic capture for integration tests")
}
