// v2
// internal/config/config.go
package config

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/sink"
	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/telemetry"
)

// Config captures all runtime settings of the simulator. Values come from
// defaults, then an optional properties file, then environment variables.
type Config struct {
	// ListenAddress defines the TCP address used by the HTTP server.
	ListenAddress string
	// LogFilePath is the rotating log file; LogLevel is debug, info, warn or error.
	LogFilePath   string
	LogLevel      slog.Level
	LogMaxSizeMB  int
	LogMaxBackups int
	// HTTPReadTimeout bounds the time to read incoming requests.
	HTTPReadTimeout time.Duration
	// HTTPWriteTimeout bounds the time to write responses.
	HTTPWriteTimeout time.Duration
	// ShutdownTimeout limits graceful shutdown attempts.
	ShutdownTimeout time.Duration
	// PropertiesPath records the path used to load property values.
	PropertiesPath string

	// Zones lists the fixed zone keys.
	Zones    []string
	Interval time.Duration
	// Seed drives the random walk. Zero picks a random seed at start-up.
	Seed   uint64
	Params telemetry.Params

	// Sinks lists the enabled destinations: file, kafka, mqtt, rtdb.
	Sinks    []string
	SinkMode sink.Mode

	FilePath string

	KafkaBrokers []string
	KafkaTopic   string
	KafkaAcks    int

	MQTTBroker      string
	MQTTClientID    string
	MQTTTopicPrefix string
	MQTTQoS         byte
	MQTTTimeout     time.Duration

	RTDBURL       string
	RTDBZonesPath string
	RTDBLogsPath  string
	RTDBTimeout   time.Duration
}

const (
	defaultListenAddress = ":8080"
	defaultLogFile       = "logs/coldstore.log"
	defaultLogMaxSizeMB  = 10
	defaultLogMaxBackups = 3
	defaultReadTimeout   = 5 * time.Second
	defaultWriteTimeout  = 10 * time.Second
	defaultShutdown      = 5 * time.Second
	defaultPropsPath     = "coldstore.properties"
	defaultZones         = "zone1,zone2,zone3,zone4"
	defaultInterval      = 5 * time.Second
	defaultSinks         = "file"
	defaultFilePath      = "data/zones.json"
	defaultKafkaBrokers  = "kafka:9092"
	defaultKafkaTopic    = "coldstore.zones"
	defaultMQTTBroker    = "tcp://mosquitto:1883"
	defaultMQTTPrefix    = "coldstore/zones"
	defaultMQTTTimeout   = 5 * time.Second
	defaultRTDBZones     = "zones"
	defaultRTDBLogs      = "logs"
	defaultRTDBTimeout   = 10 * time.Second

	// PropertiesPathEnv overrides the properties file location.
	PropertiesPathEnv = "COLDSTORE_PROPERTIES_PATH"
)

var knownSinks = map[string]bool{"file": true, "kafka": true, "mqtt": true, "rtdb": true}

// Defaults returns the configuration used when nothing is overridden.
func Defaults() Config {
	return Config{
		ListenAddress:    defaultListenAddress,
		LogFilePath:      filepath.Clean(defaultLogFile),
		LogLevel:         slog.LevelInfo,
		LogMaxSizeMB:     defaultLogMaxSizeMB,
		LogMaxBackups:    defaultLogMaxBackups,
		HTTPReadTimeout:  defaultReadTimeout,
		HTTPWriteTimeout: defaultWriteTimeout,
		ShutdownTimeout:  defaultShutdown,
		PropertiesPath:   defaultPropsPath,
		Zones:            splitAndTrim(defaultZones),
		Interval:         defaultInterval,
		Params:           telemetry.DefaultParams(),
		Sinks:            splitAndTrim(defaultSinks),
		SinkMode:         sink.ModeLatest,
		FilePath:         filepath.Clean(defaultFilePath),
		KafkaBrokers:     splitAndTrim(defaultKafkaBrokers),
		KafkaTopic:       defaultKafkaTopic,
		KafkaAcks:        -1,
		MQTTBroker:       defaultMQTTBroker,
		MQTTTopicPrefix:  defaultMQTTPrefix,
		MQTTQoS:          1,
		MQTTTimeout:      defaultMQTTTimeout,
		RTDBZonesPath:    defaultRTDBZones,
		RTDBLogsPath:     defaultRTDBLogs,
		RTDBTimeout:      defaultRTDBTimeout,
	}
}

// Load resolves configuration by layering defaults, an optional properties
// file, and finally environment variables. path overrides the file location
// when non-empty; otherwise COLDSTORE_PROPERTIES_PATH or the default is used.
// A missing properties file is not an error.
func Load(path string) (Config, error) {
	cfg := Defaults()

	propsPath := strings.TrimSpace(path)
	if propsPath == "" {
		propsPath = strings.TrimSpace(os.Getenv(PropertiesPathEnv))
	}
	if propsPath == "" {
		propsPath = defaultPropsPath
	}
	cfg.PropertiesPath = propsPath

	if err := applyProperties(&cfg, propsPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyProperties(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, ";") {
			continue
		}
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid properties entry on line %d", line)
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if err := setProperty(cfg, key, value); err != nil {
			return fmt.Errorf("property %s: %w", key, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read properties: %w", err)
	}
	return nil
}

// propertyKeys lists every key understood by setProperty. Each one can also
// be set through the environment as COLDSTORE_<KEY in upper case>.
var propertyKeys = []string{
	"listen_address", "log_path", "log_level", "log_max_size_mb", "log_max_backups",
	"http_read_timeout_ms", "http_write_timeout_ms", "shutdown_timeout_ms",
	"zones", "interval_ms", "seed",
	"temp_min", "temp_max", "humidity_min", "humidity_max",
	"temp_step", "humidity_step", "temp_threshold", "humidity_threshold",
	"temp_seed_min", "temp_seed_max", "humidity_seed_min", "humidity_seed_max",
	"decimals",
	"sinks", "sink_mode", "file_path",
	"kafka_brokers", "kafka_topic", "kafka_acks",
	"mqtt_broker", "mqtt_client_id", "mqtt_topic_prefix", "mqtt_qos", "mqtt_timeout_ms",
	"rtdb_url", "rtdb_zones_path", "rtdb_logs_path", "rtdb_timeout_ms",
}

func setProperty(cfg *Config, key, value string) error {
	var err error
	switch key {
	case "listen_address":
		cfg.ListenAddress, err = nonEmpty(value)
	case "log_path":
		var p string
		if p, err = nonEmpty(value); err == nil {
			cfg.LogFilePath = filepath.Clean(p)
		}
	case "log_level":
		err = cfg.LogLevel.UnmarshalText([]byte(value))
	case "log_max_size_mb":
		cfg.LogMaxSizeMB, err = parsePositiveInt(value)
	case "log_max_backups":
		cfg.LogMaxBackups, err = parseNonNegativeInt(value)
	case "http_read_timeout_ms":
		cfg.HTTPReadTimeout, err = parsePositiveMillis(value)
	case "http_write_timeout_ms":
		cfg.HTTPWriteTimeout, err = parsePositiveMillis(value)
	case "shutdown_timeout_ms":
		cfg.ShutdownTimeout, err = parsePositiveMillis(value)
	case "zones":
		cfg.Zones = splitAndTrim(value)
	case "interval_ms":
		cfg.Interval, err = parsePositiveMillis(value)
	case "seed":
		cfg.Seed, err = strconv.ParseUint(value, 10, 64)
	case "temp_min":
		cfg.Params.TempClamp.Min, err = parseFloat(value)
	case "temp_max":
		cfg.Params.TempClamp.Max, err = parseFloat(value)
	case "humidity_min":
		cfg.Params.HumidityClamp.Min, err = parseFloat(value)
	case "humidity_max":
		cfg.Params.HumidityClamp.Max, err = parseFloat(value)
	case "temp_step":
		cfg.Params.TempStep, err = parseFloat(value)
	case "humidity_step":
		cfg.Params.HumidityStep, err = parseFloat(value)
	case "temp_threshold":
		cfg.Params.TempMax, err = parseFloat(value)
	case "humidity_threshold":
		cfg.Params.HumidityMax, err = parseFloat(value)
	case "temp_seed_min":
		cfg.Params.TempSeed.Min, err = parseFloat(value)
	case "temp_seed_max":
		cfg.Params.TempSeed.Max, err = parseFloat(value)
	case "humidity_seed_min":
		cfg.Params.HumiditySeed.Min, err = parseFloat(value)
	case "humidity_seed_max":
		cfg.Params.HumiditySeed.Max, err = parseFloat(value)
	case "decimals":
		cfg.Params.Decimals, err = strconv.Atoi(value)
	case "sinks":
		cfg.Sinks = splitAndTrim(strings.ToLower(value))
	case "sink_mode":
		cfg.SinkMode, err = sink.ParseMode(value)
	case "file_path":
		var p string
		if p, err = nonEmpty(value); err == nil {
			cfg.FilePath = filepath.Clean(p)
		}
	case "kafka_brokers":
		cfg.KafkaBrokers = splitAndTrim(value)
	case "kafka_topic":
		cfg.KafkaTopic = value
	case "kafka_acks":
		cfg.KafkaAcks, err = strconv.Atoi(value)
	case "mqtt_broker":
		cfg.MQTTBroker = value
	case "mqtt_client_id":
		cfg.MQTTClientID = value
	case "mqtt_topic_prefix":
		cfg.MQTTTopicPrefix = value
	case "mqtt_qos":
		var n uint64
		n, err = strconv.ParseUint(value, 10, 8)
		cfg.MQTTQoS = byte(n)
	case "mqtt_timeout_ms":
		cfg.MQTTTimeout, err = parsePositiveMillis(value)
	case "rtdb_url":
		cfg.RTDBURL = value
	case "rtdb_zones_path":
		cfg.RTDBZonesPath = value
	case "rtdb_logs_path":
		cfg.RTDBLogsPath = value
	case "rtdb_timeout_ms":
		cfg.RTDBTimeout, err = parsePositiveMillis(value)
	default:
		// Unknown keys are ignored to keep the loader forward-compatible.
	}
	return err
}

func applyEnv(cfg *Config) error {
	if v, ok := lookupEnvTrimmed("DATABASE_URL"); ok && v != "" {
		cfg.RTDBURL = v
	}
	for _, key := range propertyKeys {
		name := "COLDSTORE_" + strings.ToUpper(key)
		v, ok := lookupEnvTrimmed(name)
		if !ok {
			continue
		}
		if err := setProperty(cfg, key, v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Validate checks the resolved configuration as a whole.
func (c Config) Validate() error {
	var errs []error
	if len(c.Zones) == 0 {
		errs = append(errs, errors.New("at least one zone is required"))
	}
	seen := make(map[string]bool, len(c.Zones))
	for _, z := range c.Zones {
		if seen[z] {
			errs = append(errs, fmt.Errorf("duplicate zone %q", z))
		}
		seen[z] = true
	}
	if c.Interval <= 0 {
		errs = append(errs, errors.New("interval must be positive"))
	}
	if err := c.Params.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.SinkMode != sink.ModeLatest && c.SinkMode != sink.ModeLog {
		errs = append(errs, fmt.Errorf("unsupported sink mode %q", c.SinkMode))
	}
	if len(c.Sinks) == 0 {
		errs = append(errs, errors.New("at least one sink is required"))
	}
	seenSinks := make(map[string]bool, len(c.Sinks))
	for _, s := range c.Sinks {
		if seenSinks[s] {
			errs = append(errs, fmt.Errorf("duplicate sink %q", s))
			continue
		}
		seenSinks[s] = true
		if !knownSinks[s] {
			errs = append(errs, fmt.Errorf("unknown sink %q", s))
			continue
		}
		errs = append(errs, c.validateSink(s)...)
	}
	return errors.Join(errs...)
}

func (c Config) validateSink(name string) []error {
	var errs []error
	switch name {
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("kafka_brokers cannot be empty"))
		}
		if c.KafkaTopic == "" {
			errs = append(errs, errors.New("kafka_topic cannot be empty"))
		}
		if c.KafkaAcks < -1 || c.KafkaAcks > 1 {
			errs = append(errs, errors.New("kafka_acks must be -1, 0 or 1"))
		}
	case "mqtt":
		if c.MQTTBroker == "" {
			errs = append(errs, errors.New("mqtt_broker cannot be empty"))
		}
		if c.MQTTQoS > 2 {
			errs = append(errs, errors.New("mqtt_qos must be 0, 1 or 2"))
		}
	case "rtdb":
		if c.RTDBURL == "" {
			errs = append(errs, errors.New("rtdb sink requires DATABASE_URL or rtdb_url"))
		}
	}
	return errs
}

func lookupEnvTrimmed(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func splitAndTrim(raw string) []string {
	fields := strings.Split(raw, ",")
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		trimmed := strings.TrimSpace(field)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func nonEmpty(value string) (string, error) {
	if value == "" {
		return "", errors.New("value cannot be empty")
	}
	return value, nil
}

func parseFloat(value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number: %w", err)
	}
	return f, nil
}

func parsePositiveInt(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	if n <= 0 {
		return 0, errors.New("value must be positive")
	}
	return n, nil
}

func parseNonNegativeInt(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid integer: %w", err)
	}
	if n < 0 {
		return 0, errors.New("value must not be negative")
	}
	return n, nil
}

func parsePositiveMillis(value string) (time.Duration, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %w", err)
	}
	if n <= 0 {
		return 0, errors.New("duration must be positive")
	}
	return time.Duration(n) * time.Millisecond, nil
}
