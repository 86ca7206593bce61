// v1
// internal/sink/mqtt.go
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/telemetry"
)

// MQTTConfig configures the MQTT sink.
type MQTTConfig struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	QoS         byte
	Mode        Mode
	Timeout     time.Duration
}

type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTSink publishes every zone on <prefix>/<zone>. In ModeLatest messages
// are retained so a new subscriber immediately receives the current zones.
type MQTTSink struct {
	cfg    MQTTConfig
	client mqttPublisher
	close  func()
	log    *slog.Logger
}

func NewMQTTSink(cfg MQTTConfig, log *slog.Logger) (*MQTTSink, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, errors.New("mqtt broker must not be empty")
	}
	if cfg.QoS > 2 {
		return nil, fmt.Errorf("mqtt qos must be 0, 1 or 2: %d", cfg.QoS)
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "coldstore-" + uuid.NewString()[:8]
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	log = log.With(slog.String("sink", "mqtt"))

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(cfg.Timeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("mqtt_connection_lost", slog.Any("err", err))
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info("mqtt_connected", slog.String("broker", cfg.Broker))
		})
	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt connect to %s timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return newMQTTSinkWithClient(cfg, c, func() { c.Disconnect(250) }, log), nil
}

// newMQTTSinkWithClient wires the provided client into the sink. It is used in tests.
func newMQTTSinkWithClient(cfg MQTTConfig, client mqttPublisher, closeFn func(), log *slog.Logger) *MQTTSink {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &MQTTSink{cfg: cfg, client: client, close: closeFn, log: log}
}

func (m *MQTTSink) Publish(ctx context.Context, _ time.Time, snap telemetry.Snapshot) error {
	retained := m.cfg.Mode == ModeLatest
	var errs []error
	for _, msg := range Messages(snap) {
		payload, err := json.Marshal(msg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		topic := m.topic(msg.ZoneID)
		token := m.client.Publish(topic, m.cfg.QoS, retained, payload)
		if err := m.await(ctx, token); err != nil {
			m.log.Warn("mqtt_publish_failed", slog.String("topic", topic), slog.Any("err", err))
			errs = append(errs, fmt.Errorf("%s: %w", topic, err))
		}
	}
	return errors.Join(errs...)
}

func (m *MQTTSink) await(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(m.cfg.Timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("mqtt publish not acknowledged within %s", m.cfg.Timeout)
	}
}

func (m *MQTTSink) topic(zone string) string {
	prefix := strings.TrimRight(m.cfg.TopicPrefix, "/")
	if prefix == "" {
		return zone
	}
	return prefix + "/" + zone
}

func (m *MQTTSink) Close() error {
	if m.close != nil {
		m.close()
	}
	return nil
}
