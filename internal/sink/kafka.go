// v2
// internal/sink/kafka.go
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/telemetry"
)

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Acks    int
	Mode    Mode
}

type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type kafkaWriteCloser interface {
	Close() error
}

// KafkaSink writes one message per zone. Messages are keyed by zone in
// ModeLatest (compaction keeps the newest reading) and by zone and
// timestamp in ModeLog.
type KafkaSink struct {
	cfg    KafkaConfig
	writer kafkaMessageWriter
	closer kafkaWriteCloser
	log    *slog.Logger
}

func NewKafkaSink(cfg KafkaConfig, log *slog.Logger) (*KafkaSink, error) {
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("kafka topic must not be empty")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one kafka broker is required")
	}
	if cfg.Acks != -1 && cfg.Acks != 0 && cfg.Acks != 1 {
		return nil, fmt.Errorf("kafka acks must be -1, 0, or 1: %d", cfg.Acks)
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		RequiredAcks:           kafka.RequiredAcks(cfg.Acks),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
	}
	log.Info("kafka writer ready", "topic", cfg.Topic, "brokers", cfg.Brokers)
	return newKafkaSinkWithWriter(cfg, w, w, log), nil
}

// newKafkaSinkWithWriter wires the provided writer into the sink. It is used in tests.
func newKafkaSinkWithWriter(cfg KafkaConfig, w kafkaMessageWriter, c kafkaWriteCloser, log *slog.Logger) *KafkaSink {
	return &KafkaSink{cfg: cfg, writer: w, closer: c, log: log.With(slog.String("sink", "kafka"))}
}

func (k *KafkaSink) Publish(ctx context.Context, at time.Time, snap telemetry.Snapshot) error {
	msgs := make([]kafka.Message, 0, len(snap))
	for _, m := range Messages(snap) {
		b, err := json.Marshal(m)
		if err != nil {
			k.log.Error("marshal failed", "err", err, "zoneId", m.ZoneID)
			return err
		}
		msgs = append(msgs, kafka.Message{
			Key:   k.messageKey(m.ZoneID, at),
			Value: b,
			Time:  at,
			Headers: []kafka.Header{
				{Key: "deviceId", Value: []byte(m.DeviceID)},
				{Key: "status", Value: []byte(m.Status.String())},
			},
		})
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		k.log.Error("kafka write failed", "err", err, "messages", len(msgs))
		return fmt.Errorf("kafka write: %w", err)
	}
	k.log.Debug("published", "messages", len(msgs), "ts", at)
	return nil
}

func (k *KafkaSink) messageKey(zone string, at time.Time) []byte {
	if k.cfg.Mode == ModeLog {
		return []byte(fmt.Sprintf("%s:%d", zone, at.Unix()))
	}
	return []byte(zone)
}

func (k *KafkaSink) Close() error {
	if k.closer == nil {
		return nil
	}
	return k.closer.Close()
}
