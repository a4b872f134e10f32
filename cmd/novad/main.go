// Command novad is the NOVA ground-station daemon. It receives the flight
// computer's telemetry byte stream, captures it verbatim, reconstructs the
// event history, and serves it to consumers: a JSONL event log and an
// optional Foxglove Studio bridge.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"novafc/pkg/bridge/foxglove"
	"novafc/pkg/config"
	"novafc/pkg/engine"
	"novafc/pkg/logger"
	"novafc/pkg/stream"
	"novafc/pkg/transport"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout io.Writer, stderr io.Writer) int {
	if len(args) == 0 {
		printUsage(stderr)
		return 2
	}

	switch args[0] {
	case "serve":
		return runServe(args[1:], stdout, stderr)
	case "replay":
		return runReplay(args[1:], stdout, stderr)
	case "sim":
		return runSim(args[1:], stdout, stderr)
	case "-h", "--help", "help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintln(stderr, "unknown command:", args[0])
		printUsage(stderr)
		return 2
	}
}

func runServe(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfgPath := fs.String("config", config.DefaultConfigPath, "TOML config path")
	addr := fs.String("addr", "", "flight link TCP address (overrides config)")
	capturePath := fs.String("capture", "", "raw capture output path (overrides config)")
	eventsPath := fs.String("events", "", "JSONL event log path (default: stdout)")
	foxgloveOn := fs.Bool("foxglove", false, "enable the Foxglove bridge")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := config.LoadOrDefault(*cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if *addr != "" {
		cfg.Link.Addr = *addr
	}
	if *capturePath != "" {
		cfg.Capture.Path = *capturePath
	}
	if *eventsPath != "" {
		cfg.Events.Path = *eventsPath
	}
	if *foxgloveOn {
		cfg.Foxglove.Enabled = true
	}
	reconnect, err := cfg.ReconnectInterval()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}

	log := slog.New(slog.NewTextHandler(stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	hub := engine.NewHub(engine.WithBroadcastBuffer(cfg.Link.Buf))
	go hub.Run(ctx)

	events := eventSink(cfg.Events, stdout)
	jsonl := logger.NewJSONLWriter(events)
	go jsonl.Consume(ctx, hub.Subscribe())

	if cfg.Foxglove.Enabled {
		srv := foxglove.NewServer(foxglove.Config{
			WSAddr:    cfg.Foxglove.WSAddr,
			Topic:     cfg.Foxglove.Topic,
			BaroTopic: cfg.Foxglove.BaroTopic,
			SendBuf:   cfg.Foxglove.SendBuf,
		}, hub)
		go func() {
			if err := srv.Run(ctx); err != nil {
				log.Error("foxglove bridge failed", "error", err)
			}
		}()
		log.Info("foxglove bridge listening", "addr", cfg.Foxglove.WSAddr)
	}

	frames := make(chan []byte, cfg.Link.Buf)
	transport.StartListener(ctx, cfg.Link.Addr, frames,
		transport.WithReconnectInterval(reconnect),
		transport.WithBufferSize(cfg.Link.ReaderBuf),
		transport.WithErrorHandler(func(err error) {
			log.Warn("flight link error", "addr", cfg.Link.Addr, "error", err)
		}),
	)
	log.Info("listening for flight link", "addr", cfg.Link.Addr)

	var src io.Reader = transport.NewChunkReader(ctx, frames)
	if cfg.Capture.Path != "" {
		capture, err := os.OpenFile(cfg.Capture.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Error("open capture", "path", cfg.Capture.Path, "error", err)
			return 1
		}
		defer capture.Close()
		src = io.TeeReader(src, capture)
		log.Info("capturing raw stream", "path", cfg.Capture.Path)
	}

	dec := stream.NewDecoder(src)
	for {
		ev, err := dec.Next()
		if err != nil {
			if err == io.EOF || errors.Is(err, context.Canceled) {
				log.Info("decode pass finished", "events", dec.Decoded())
				return 0
			}
			log.Error("decode failed", "events", dec.Decoded(), "error", err)
			return 1
		}
		hub.Publish(ev)
	}
}

func runReplay(args []string, stdout io.Writer, stderr io.Writer) int {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	fs.SetOutput(stderr)

	in := fs.String("in", "", "telemetry capture to decode")
	eventsPath := fs.String("events", "", "JSONL output path (default: stdout)")
	follow := fs.Bool("follow", false, "keep decoding as the capture grows")
	poll := fs.Duration("poll", 500*time.Millisecond, "follow-mode poll interval")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *in == "" {
		fmt.Fprintln(stderr, "replay: --in is required")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var (
		src *transport.FileFollower
		err error
	)
	if *follow {
		src, err = transport.FollowFile(ctx, *in, transport.WithPollInterval(*poll))
	} else {
		src, err = transport.OpenFile(*in)
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer src.Close()

	var out io.Writer = stdout
	if *eventsPath != "" {
		file, err := os.Create(*eventsPath)
		if err != nil {
			fmt.Fprintln(stderr, "replay: open events output:", err)
			return 1
		}
		defer file.Close()
		out = file
	}
	jsonl := logger.NewJSONLWriter(out)

	dec := stream.NewDecoder(src)
	for {
		ev, err := dec.Next()
		if err == io.EOF {
			fmt.Fprintf(stderr, "replay: decoded %d events\n", dec.Decoded())
			return 0
		}
		if err != nil {
			fmt.Fprintf(stderr, "replay: %v (valid prefix: %d events)\n", err, dec.Decoded())
			return 1
		}
		if err := jsonl.Write(ev); err != nil {
			fmt.Fprintln(stderr, "replay: write event:", err)
			return 1
		}
	}
}

func eventSink(cfg config.EventsConfig, stdout io.Writer) io.Writer {
	if cfg.Path == "" {
		return stdout
	}
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  novad serve  [--config novad.toml] [--addr host:port] [--capture flight.ntl] [--events out.jsonl] [--foxglove]")
	fmt.Fprintln(w, "  novad replay --in flight.ntl [--events out.jsonl] [--follow] [--poll 500ms]")
	fmt.Fprintln(w, "  novad sim    [--out flight.ntl | --listen host:port] [--duration 60s] [--rate 1000000] [--hz 20]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve    receive, capture and decode a live flight link")
	fmt.Fprintln(w, "  replay   decode a recorded telemetry capture")
	fmt.Fprintln(w, "  sim      synthesize a flight and emit its telemetry stream")
}
