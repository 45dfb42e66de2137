// Command voxline is a terminal client for real-time voice conversations
// with a live speech model: microphone in, synthesized audio out, with a
// rolling transcript and a volume-reactive display.
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
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxline/voxline/internal/config"
	"github.com/voxline/voxline/internal/observe"
	"github.com/voxline/voxline/internal/session"
	"github.com/voxline/voxline/internal/transcript"
	"github.com/voxline/voxline/internal/ui"
	"github.com/voxline/voxline/pkg/audio"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "voxline.yaml", "path to the YAML configuration file")
	logFile := flag.String("log-file", "", "write logs to this file (default: discard; the TUI owns the terminal)")
	showVersion := flag.Bool("version", false, "print the version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("voxline", version)
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxline: %v\n", err)
			return 1
		}
		// No config file is fine: defaults plus the environment credential.
		cfg = config.Default()
		cfg.Session.APIKey = os.Getenv("GEMINI_API_KEY")
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, closeLog, err := newLogger(cfg.LogLevel, *logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxline: %v\n", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("voxline starting",
		"version", version,
		"config", *configPath,
		"log_level", cfg.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	go func() {
		if err := observe.ServeMetrics(ctx, cfg.MetricsAddr, promhttp.Handler()); err != nil {
			slog.Error("metrics listener failed", "err", err)
		}
	}()

	// ── Audio backend ─────────────────────────────────────────────────────────
	actx, err := audio.NewContext()
	if err != nil {
		slog.Error("failed to initialise the audio backend", "err", err)
		fmt.Fprintf(os.Stderr, "voxline: audio backend: %v\n", err)
		return 1
	}
	defer actx.Close()

	// ── Session manager ───────────────────────────────────────────────────────
	tlog := transcript.New(transcript.DefaultMaxEntries)
	mgr := session.NewManager(actx, session.Config{
		APIKey:        cfg.Session.APIKey,
		Model:         cfg.Session.Model,
		Voice:         cfg.Session.Voice,
		Instructions:  cfg.Session.Instructions,
		InputRate:     cfg.Audio.InputRate,
		OutputRate:    cfg.Audio.OutputRate,
		FrameSize:     cfg.Audio.FrameSize,
		Amplification: cfg.Audio.Amplification,
		VideoInterval: cfg.Video.Interval(),
	}, tlog, logger)
	defer mgr.Disconnect()

	// ── Terminal UI ───────────────────────────────────────────────────────────
	if err := ui.Run(mgr); err != nil {
		slog.Error("ui error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// newLogger builds the process logger. With no log file, output is
// discarded so the TUI keeps sole ownership of the terminal; user-facing
// failures still reach the transcript as system entries.
func newLogger(level config.LogLevel, path string) (*slog.Logger, func(), error) {
	var w io.Writer = io.Discard
	closeLog := func() {}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %q: %w", path, err)
		}
		w = f
		closeLog = func() { _ = f.Close() }
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level.Slog()})
	return slog.New(h), closeLog, nil
}
