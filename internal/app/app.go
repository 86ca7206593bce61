// v3
// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/circuitbreaker"
	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/config"
	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/httpapi"
	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/observability"
	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/publisher"
	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/sink"
	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/telemetry"
)

// Application wires configuration, logging, sinks, the publisher loop and
// the HTTP surface of the simulator.
type Application struct {
	cfg     config.Config
	logger  *slog.Logger
	logFile *lumberjack.Logger
	server  *http.Server
	health  *httpapi.HealthState
	loop    *publisher.Loop
	sinks   *sink.Fanout
	metrics *observability.Metrics
}

// New prepares a fully wired simulator. console receives human-readable
// logs and the HTTP access log; the rotating log file receives JSON logs.
func New(cfg config.Config, console io.Writer) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		return nil, errors.New("listen address cannot be empty")
	}
	if console == nil {
		console = os.Stdout
	}
	logPath := filepath.Clean(cfg.LogFilePath)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	lf := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		Compress:   true,
	}
	logger := newLogger(console, lf, cfg.LogLevel)

	cbSettings, err := circuitbreaker.SettingsFromEnv()
	if err != nil {
		_ = lf.Close()
		return nil, fmt.Errorf("circuit breaker settings: %w", err)
	}
	logger.Info("circuit_breaker_config",
		slog.Bool("enabled", cbSettings.Enabled),
		slog.Int("failure_threshold", cbSettings.FailureThreshold),
		slog.Int("success_threshold", cbSettings.SuccessThreshold),
		slog.Duration("open_for", cbSettings.OpenFor),
		slog.Duration("timeout", cbSettings.Timeout),
	)

	metrics := observability.NewMetrics()
	named, err := buildSinks(cfg, cbSettings, logger, metrics)
	if err != nil {
		_ = lf.Close()
		return nil, err
	}
	fanout := sink.NewFanout(named...)

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	deltas := telemetry.NewUniformDeltas(seed)
	zones := telemetry.SeedZones(cfg.Zones, cfg.Params, deltas)
	gen := telemetry.NewGenerator(cfg.Params, deltas)
	logger.Info("zones_seeded",
		slog.Uint64("seed", seed),
		slog.Any("zones", zones.Keys()),
		slog.String("sink_mode", string(cfg.SinkMode)),
	)

	loop, err := publisher.New(publisher.Config{
		Generator: gen,
		Zones:     zones,
		Interval:  cfg.Interval,
		Sink:      fanout,
		Observer:  metrics,
		Logger:    logger,
	})
	if err != nil {
		_ = fanout.Close()
		_ = lf.Close()
		return nil, fmt.Errorf("publisher init: %w", err)
	}

	health := httpapi.NewHealthState()
	router := httpapi.NewRouter(logger.With(slog.String("component", "http")), health, loop, metrics, console)
	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           router,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPWriteTimeout,
	}

	return &Application{
		cfg:     cfg,
		logger:  logger,
		logFile: lf,
		server:  server,
		health:  health,
		loop:    loop,
		sinks:   fanout,
		metrics: metrics,
	}, nil
}

func buildSinks(cfg config.Config, cb circuitbreaker.Settings, logger *slog.Logger, metrics *observability.Metrics) ([]sink.Named, error) {
	var out []sink.Named
	fail := func(err error) ([]sink.Named, error) {
		_ = sink.NewFanout(out...).Close()
		return nil, err
	}
	watch := func(g *circuitbreaker.Guard) {
		if b := g.Breaker(); b != nil {
			metrics.SetCircuitBreakerState(b.Name(), circuitbreaker.Closed)
			b.OnStateChange(metrics.SetCircuitBreakerState)
		}
	}

	for _, name := range cfg.Sinks {
		var s sink.Sink
		guardSettings := cb
		switch name {
		case "file":
			fs, err := sink.NewFileSink(cfg.FilePath, cfg.SinkMode, logger)
			if err != nil {
				return fail(fmt.Errorf("file sink: %w", err))
			}
			s = fs
		case "kafka":
			ks, err := sink.NewKafkaSink(sink.KafkaConfig{
				Brokers: cfg.KafkaBrokers,
				Topic:   cfg.KafkaTopic,
				Acks:    cfg.KafkaAcks,
				Mode:    cfg.SinkMode,
			}, logger)
			if err != nil {
				return fail(fmt.Errorf("kafka sink: %w", err))
			}
			s = ks
		case "mqtt":
			ms, err := sink.NewMQTTSink(sink.MQTTConfig{
				Broker:      cfg.MQTTBroker,
				ClientID:    cfg.MQTTClientID,
				TopicPrefix: cfg.MQTTTopicPrefix,
				QoS:         cfg.MQTTQoS,
				Mode:        cfg.SinkMode,
				Timeout:     cfg.MQTTTimeout,
			}, logger)
			if err != nil {
				return fail(fmt.Errorf("mqtt sink: %w", err))
			}
			s = ms
			guardSettings = cb.ForSinkTimeout(cfg.MQTTTimeout)
		case "rtdb":
			client := circuitbreaker.NewHTTPClient("rtdb", cb.ForSinkTimeout(cfg.RTDBTimeout),
				sink.ProbeURL(cfg.RTDBURL, cfg.RTDBZonesPath),
				&http.Client{Timeout: cfg.RTDBTimeout}, logger)
			watch(client.Guard())
			rs, err := sink.NewRTDBSink(sink.RTDBConfig{
				BaseURL:   cfg.RTDBURL,
				ZonesPath: cfg.RTDBZonesPath,
				LogsPath:  cfg.RTDBLogsPath,
				Mode:      cfg.SinkMode,
			}, client, logger)
			if err != nil {
				return fail(fmt.Errorf("rtdb sink: %w", err))
			}
			out = append(out, sink.Named{Name: name, Sink: rs})
			continue
		default:
			return fail(fmt.Errorf("unknown sink %q", name))
		}
		guard := circuitbreaker.NewGuard(name, guardSettings, logger, nil)
		watch(guard)
		out = append(out, sink.Named{Name: name, Sink: sink.WithGuard(s, guard)})
	}
	return out, nil
}

// Logger exposes the configured slog logger.
func (a *Application) Logger() *slog.Logger {
	return a.logger
}

// Loop exposes the publisher loop for read-only inspection.
func (a *Application) Loop() *publisher.Loop {
	return a.loop
}

// Run blocks until the context is cancelled or the HTTP server terminates
// unexpectedly, then shuts both the server and the loop down.
func (a *Application) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpCh := make(chan error, 1)
	go func() {
		a.health.SetReady(true)
		a.logger.Info("http_server_listen", slog.String("address", a.cfg.ListenAddress))
		httpCh <- a.server.ListenAndServe()
	}()

	loopCh := make(chan error, 1)
	go func() {
		loopCh <- a.loop.Run(ctx)
	}()

	var httpErr, loopErr error
	for {
		select {
		case err := <-httpCh:
			httpErr = err
			httpCh = nil
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("http_server_error", slog.Any("err", err))
			} else {
				a.logger.Info("server_closed")
			}
			cancel()
		case err := <-loopCh:
			loopErr = err
			loopCh = nil
			if err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("publisher_loop_error", slog.Any("err", err))
			}
			cancel()
		case <-ctx.Done():
			a.logger.Info("shutdown_signal")
			a.health.SetReady(false)
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			if err := a.server.Shutdown(shutdownCtx); err != nil && httpErr == nil {
				a.logger.Error("server_shutdown_failed", slog.Any("err", err))
				httpErr = fmt.Errorf("shutdown: %w", err)
			}
			shutdownCancel()

			if httpCh != nil {
				if err := <-httpCh; err != nil && !errors.Is(err, http.ErrServerClosed) && httpErr == nil {
					httpErr = err
				}
			}
			if loopCh != nil {
				loopErr = <-loopCh
			}

			if loopErr != nil && !errors.Is(loopErr, context.Canceled) && !errors.Is(loopErr, context.DeadlineExceeded) {
				return loopErr
			}
			if httpErr != nil && !errors.Is(httpErr, http.ErrServerClosed) {
				return httpErr
			}
			a.logger.Info("shutdown_complete")
			return nil
		}
	}
}

// Close releases the sinks and the log file.
func (a *Application) Close() error {
	if a.sinks == nil && a.logFile == nil {
		return nil
	}
	a.logger.Info("service_closed")
	var errs []error
	if a.sinks != nil {
		if err := a.sinks.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sinks: %w", err))
		}
		a.sinks = nil
	}
	if a.logFile != nil {
		if err := a.logFile.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
		a.logFile = nil
	}
	return errors.Join(errs...)
}
