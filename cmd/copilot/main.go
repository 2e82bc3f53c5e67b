package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ivfcopilot/copilot/config"
	"github.com/ivfcopilot/copilot/errors"
	"github.com/ivfcopilot/copilot/server"
	"go.uber.org/zap"
)

const Version = "v0.1.0"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("copilot", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "", "Path to configuration file (defaults and environment only when empty)")
	validate := fs.Bool("validate", false, "Validate configuration and exit")
	version := fs.Bool("version", false, "Print version and exit")
	watch := fs.Bool("watch", false, "Reload configuration when the file changes")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *version {
		fmt.Fprintf(stdout, "copilot %s\n", Version)
		return 0
	}

	cfg, err := config.LoadFile(*configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}

	if *validate {
		fmt.Fprintln(stdout, "Configuration is valid")
		return 0
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "Critical error: Failed to create logger: %v\n", err)
		return 1
	}
	defer func() {
		// Sync fails on stdout/stderr for some terminals; nothing to do about it.
		_ = logger.Sync()
	}()
	errors.SetLogger(logger)

	var opts []server.Option
	if *watch {
		if *configFile == "" {
			logger.Error("-watch requires -config")
			return 1
		}
		watcher, err := config.NewConfigWatcher(*configFile, logger)
		if err != nil {
			logger.Error("Failed to start config watcher", zap.Error(err))
			return 1
		}
		defer watcher.Close()
		cfg = watcher.GetCurrentConfig()
		opts = append(opts, server.WithWatcher(watcher))
	}

	srv, err := server.NewServer(cfg, logger, opts...)
	if err != nil {
		logger.Error("Server initialization failed",
			zap.Error(err),
			zap.String("config_path", *configFile),
		)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting IVF Copilot",
		zap.String("version", Version),
		zap.Int("port", cfg.Server.Port),
	)
	if err := srv.Start(ctx); err != nil {
		logger.Error("Server startup or runtime error", zap.Error(err))
		return 1
	}

	logger.Info("Server stopped")
	return 0
}

// newLogger builds the process logger. The json format uses zap's production
// encoder, text uses the development console encoder.
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	var zcfg zap.Config
	switch cfg.Format {
	case "text":
		zcfg = zap.NewDevelopmentConfig()
	default:
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = level

	return zcfg.Build()
}
