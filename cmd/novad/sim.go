package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"os"
	"os/signal"
	"time"

	"novafc/pkg/stream"
	"novafc/pkg/telemetry"
)

// Ballistic single-stage profile: motor burn, coast to apogee, drogue
// descent. Values are loosely modeled on a mid-power flight.
const (
	simPadSeconds    = 5.0
	simBurnSeconds   = 3.0
	simBoostAccel    = 60.0 // m/s^2, net of gravity
	simDescentRate   = 25.0 // m/s under drogue
	simGravity       = 9.81
	simSeaLevelPa    = 101325.0
	simAccelLSBPerG  = 327.0 // high-g accelerometer, +/-100 g full scale
	simTempSwingRaw  = 2048  // slow raw-temperature wander amplitude
	simTempSwingFreq = 0.01  // Hz
)

// simCalibration matches the datasheet's typical PROM content, and keeps
// the raw synthesis exactly invertible through the first-order conversion.
var simCalibration = telemetry.BarometerCalibration{
	PressureSensitivity:      40127,
	PressureOffset:           36924,
	TemperatureCoefficientPS: 23317,
	TemperatureCoefficientPO: 23282,
	ReferenceTemperature:     33464,
	TemperatureCoefficientT:  28312,
}

func runSim(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("sim", flag.ContinueOnError)
	fs.SetOutput(stderr)

	out := fs.String("out", "", "write the stream to a file")
	listen := fs.String("listen", "", "serve the stream to TCP clients")
	duration := fs.Duration("duration", 60*time.Second, "simulated flight duration")
	rate := fs.Uint("rate", 1_000_000, "tick rate announced after power-on")
	hz := fs.Int("hz", 20, "barometer/accelerometer sample rate")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if (*out == "") == (*listen == "") {
		fmt.Fprintln(stderr, "sim: exactly one of --out or --listen is required")
		return 2
	}
	if *rate == 0 || *rate > math.MaxUint32 {
		fmt.Fprintln(stderr, "sim: --rate must be a positive 32-bit value")
		return 2
	}
	if *hz <= 0 {
		fmt.Fprintln(stderr, "sim: --hz must be positive")
		return 2
	}

	if *out != "" {
		file, err := os.Create(*out)
		if err != nil {
			fmt.Fprintln(stderr, "sim: create output:", err)
			return 1
		}
		defer file.Close()
		if err := writeFlight(file, duration.Seconds(), uint32(*rate), *hz); err != nil {
			fmt.Fprintln(stderr, "sim:", err)
			return 1
		}
		fmt.Fprintf(stdout, "sim: wrote %s flight to %s\n", duration, *out)
		return 0
	}

	log := slog.New(slog.NewTextHandler(stderr, nil))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ln, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(stderr, "sim: listen:", err)
		return 1
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	log.Info("sim serving flights", "addr", ln.Addr().String())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return 0
			}
			log.Warn("sim accept", "error", err)
			continue
		}
		go func() {
			defer conn.Close()
			if err := writeFlight(conn, duration.Seconds(), uint32(*rate), *hz); err != nil {
				log.Warn("sim stream", "remote", conn.RemoteAddr().String(), "error", err)
			}
		}()
	}
}

// writeFlight emits one full power-on-to-touchdown stream: calibration and
// tick rate first, as firmware does on wakeup, then sensor samples.
func writeFlight(w io.Writer, seconds float64, rate uint32, hz int) error {
	enc := stream.NewEncoder(w)

	if err := enc.Emit(0, simCalibration); err != nil {
		return err
	}
	if rate != telemetry.DefaultTickRate {
		if err := enc.Emit(0, telemetry.TicksPerSecond(rate)); err != nil {
			return err
		}
	}

	step := 1.0 / float64(hz)
	for t := step; t <= seconds; t += step {
		at := uint64(t * float64(rate))

		alt := simAltitude(t)
		if err := enc.Emit(at, simBarometerSample(t, alt)); err != nil {
			return err
		}
		if err := enc.Emit(at, simAccelSample(t)); err != nil {
			return err
		}
	}
	return nil
}

func simAltitude(t float64) float64 {
	burnout := simPadSeconds + simBurnSeconds
	burnoutVel := simBoostAccel * simBurnSeconds
	burnoutAlt := 0.5 * simBoostAccel * simBurnSeconds * simBurnSeconds
	apogeeDt := burnoutVel / simGravity
	apogeeAlt := burnoutAlt + burnoutVel*apogeeDt - 0.5*simGravity*apogeeDt*apogeeDt

	switch {
	case t < simPadSeconds:
		return 0
	case t < burnout:
		dt := t - simPadSeconds
		return 0.5 * simBoostAccel * dt * dt
	case t < burnout+apogeeDt:
		dt := t - burnout
		return burnoutAlt + burnoutVel*dt - 0.5*simGravity*dt*dt
	default:
		dt := t - burnout - apogeeDt
		return max(apogeeAlt-simDescentRate*dt, 0)
	}
}

// simVerticalG is the load the accelerometer sees along its vertical axis,
// in g: 1 g sitting on the pad, boost load during the burn, free fall while
// coasting.
func simVerticalG(t float64) float64 {
	burnout := simPadSeconds + simBurnSeconds
	switch {
	case t < simPadSeconds:
		return 1
	case t < burnout:
		return simBoostAccel/simGravity + 1
	case simAltitude(t) > 0:
		return 0
	default:
		return 1
	}
}

func simAccelSample(t float64) telemetry.HighGAccelerometerData {
	z := simVerticalG(t) * simAccelLSBPerG
	return telemetry.HighGAccelerometerData{
		X: int16(2 * math.Sin(2*math.Pi*1.3*t)),
		Y: int16(2 * math.Cos(2*math.Pi*1.1*t)),
		Z: int16(math.Round(z)),
	}
}

// simBarometerSample synthesizes raw ADC words whose first-order conversion
// under simCalibration reproduces the barometric pressure at alt. The raw
// temperature wanders slowly around the reference point, so the inversion
// runs the compensation math backwards with the actual dT.
func simBarometerSample(t float64, alt float64) telemetry.BarometerData {
	pressurePa := simSeaLevelPa * math.Pow(1-2.25577e-5*alt, 5.25588)
	pressureCentiMbar := pressurePa // Pa and mbar*100 are the same unit

	rawTemperature := float64(uint32(simCalibration.ReferenceTemperature)<<8) +
		simTempSwingRaw*math.Sin(2*math.Pi*simTempSwingFreq*t)

	dT := rawTemperature - float64(uint32(simCalibration.ReferenceTemperature)<<8)
	off := float64(uint64(simCalibration.PressureOffset)<<16) +
		float64(simCalibration.TemperatureCoefficientPO)*dT/math.Exp2(7)
	sens := float64(uint64(simCalibration.PressureSensitivity)<<15) +
		float64(simCalibration.TemperatureCoefficientPS)*dT/math.Exp2(8)

	rawPressure := (pressureCentiMbar*math.Exp2(15) + off) * math.Exp2(21) / sens

	return telemetry.BarometerData{
		Temperature: uint32(math.Round(rawTemperature)),
		Pressure:    uint32(math.Round(rawPressure)),
	}
}
