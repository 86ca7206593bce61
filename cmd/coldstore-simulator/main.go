// v2
// cmd/coldstore-simulator/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/app"
	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run returns the process exit code once every deferred cleanup has finished.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	bootstrap := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	flagSet := pflag.NewFlagSet("coldstore-simulator", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	propsPath := flagSet.StringP("properties", "p", "",
		fmt.Sprintf("properties file (default $%s or coldstore.properties)", config.PropertiesPathEnv))
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		bootstrap.Error("flag_parse_failed", slog.Any("err", err))
		return 2
	}

	cfg, err := config.Load(*propsPath)
	if err != nil {
		bootstrap.Error("config_load_failed", slog.Any("err", err))
		return 1
	}

	application, err := app.New(cfg, stdout)
	if err != nil {
		bootstrap.Error("app_init_failed", slog.Any("err", err))
		return 1
	}
	defer func() {
		if cerr := application.Close(); cerr != nil {
			bootstrap.Error("app_close_failed", slog.Any("err", cerr))
		}
	}()

	logger := application.Logger()
	logger.Info("service_boot",
		slog.String("listen_address", cfg.ListenAddress),
		slog.String("log_path", cfg.LogFilePath),
		slog.String("properties_path", cfg.PropertiesPath),
		slog.String("zones", strings.Join(cfg.Zones, ",")),
		slog.Duration("interval", cfg.Interval),
		slog.String("sinks", strings.Join(cfg.Sinks, ",")),
		slog.String("sink_mode", string(cfg.SinkMode)),
	)

	if err := application.Run(ctx); err != nil {
		logger.Error("service_terminated", slog.Any("err", err))
		return 1
	}

	logger.Info("service_stopped")
	return 0
}
