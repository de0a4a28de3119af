// Command serialbridged runs the serial bridge engine behind a
// newline-delimited JSON-RPC 2.0 loop over stdio, exposing list_ports,
// configure_connection, send_data, and read_async_messages.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"log/slog"

	"github.com/lattice-iot/serialbridge/internal/engine"
	"github.com/lattice-iot/serialbridge/internal/toolserver"
)

func main() {
	flag.String("serial-port", "/dev/ttyUSB0", "Default serial port for configure_connection")
	flag.Int("baud-rate", 115200, "Default baud rate for configure_connection")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Int("idle-threshold-ms", 100, "Async Packetizer idle-gap flush threshold, in milliseconds")
	flag.Int("response-buffer-cap", 4096, "Max bytes accumulated per synchronous response")
	flag.Int("async-store-capacity", 1000, "Max pending async packets retained before drop-oldest")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	engineCfg, err := engine.NewConfigBuilder().
		WithDialer(engine.SerialDialer{PortName: config.SerialPort, BaudRate: config.BaudRate}).
		WithLogger(logger.With("component", "engine")).
		WithBaudRate(config.BaudRate).
		WithIdleThreshold(config.IdleThreshold).
		WithResponseBufferCap(config.ResponseBufferCap).
		WithAsyncStoreCapacity(config.AsyncStoreCapacity).
		Build()
	if err != nil {
		logger.Error("failed to build engine config", "error", err)
		os.Exit(1)
	}

	eng, err := engine.New(engineCfg)
	if err != nil {
		logger.Error("failed to construct engine", "error", err)
		os.Exit(1)
	}

	srv := toolserver.New(eng, logger.With("component", "toolserver"))

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig)
		if eng.Connected() {
			if err := eng.Disconnect(); err != nil {
				logger.Error("failed to disconnect engine", "error", err)
			}
		}
		cancel()
	}()

	logger.Info("starting serialbridged", "default_port", config.SerialPort, "default_baud", config.BaudRate)
	if err := rpcLoop(ctx, os.Stdin, os.Stdout, srv, logger); err != nil && ctx.Err() == nil {
		logger.Error("rpc loop exited with error", "error", err)
		os.Exit(1)
	}
}
