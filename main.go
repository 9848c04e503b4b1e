package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.bug.st/serial"

	"github.com/AarC10/ubxlib-dev/cell"
)

func main() {
	configPath := flag.String("config", "", "Path to a yaml configuration file")
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the module")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("module-type", "SARA-R5", "Attached module variant")
	flag.Duration("refresh-interval", 30*time.Second, "Background radio parameter poll interval")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configPath), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
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
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	module, ok := cell.ParseModuleType(config.ModuleType)
	if !ok {
		logger.Error("Unknown module type", "type", config.ModuleType)
		os.Exit(1)
	}

	cellConfig, err := cell.NewConfigBuilder().
		WithModule(module).
		WithATTimeout(5 * time.Second).
		WithInitTimeout(30 * time.Second).
		WithDialer(cell.SerialDialer{
			PortName: config.SerialPort,
			Mode: &serial.Mode{
				BaudRate: config.BaudRate,
				Parity:   serial.NoParity,
				DataBits: 8,
				StopBits: serial.OneStopBit,
			},
		}).
		Build()
	if err != nil {
		logger.Error("Failed to create cell config", "error", err)
		os.Exit(1)
	}

	cellCtx := cell.NewContext(logger.With("component", "cell"))
	handle, err := cellCtx.Add(context.Background(), cellConfig)
	if err != nil {
		logger.Error("Failed to add cellular module", "error", err)
		os.Exit(1)
	}

	collector, err := NewCollector(nil)
	if err != nil {
		logger.Error("Failed to register metrics", "error", err)
		os.Exit(1)
	}

	logger.Info("Starting cellular monitor", "module", module, "port", config.SerialPort)

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger:  logger.With("component", "server"),
			Cell:    cellCtx,
			Handle:  handle,
			Metrics: collector,
		},
	}

	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	go refreshLoop(refreshCtx, logger.With("component", "refresh"), cellCtx, handle, config.RefreshInterval, collector)

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig)

	stopRefresh()

	logger.Info("Closing module connection")
	if err := cellCtx.Close(); err != nil {
		logger.Error("Failed to close module", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
		os.Exit(1)
	}
}

// refreshLoop periodically refreshes the radio parameters and publishes
// them to the metrics collector until the context is canceled.
func refreshLoop(ctx context.Context, logger *slog.Logger, cellCtx *cell.Context, handle int, interval time.Duration, collector *Collector) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := cellCtx.RefreshRadioParameters(ctx, handle)
		collector.ObserveRefresh(refreshOutcome(err))
		if err != nil {
			logger.Warn("Radio parameter refresh failed", "error", err)
			continue
		}

		params, err := cellCtx.RadioParameters(handle)
		if err != nil {
			logger.Warn("Failed to read radio parameters", "error", err)
			continue
		}
		snr, snrErr := cellCtx.SnrDb(handle)
		collector.ObserveRadio(params, snr, snrErr == nil)

		logger.Debug("Refreshed radio parameters",
			"rssi_dbm", params.RssiDbm,
			"rsrp_dbm", params.RsrpDbm,
			"rsrq_db", params.RsrqDb,
			"cell_id", params.CellID,
			"earfcn", params.Earfcn)
	}
}
