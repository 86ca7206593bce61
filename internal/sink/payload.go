// v0
// internal/sink/payload.go

// Package sink holds the concrete destinations a snapshot can be published
// to. Every sink accepts the same snapshot and encodes it for its transport.
package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/telemetry"
)

// Sink is satisfied by every destination in this package.
type Sink interface {
	Publish(ctx context.Context, at time.Time, snap telemetry.Snapshot) error
}

// TimestampLayout is the timestamp format the dashboard reads.
const TimestampLayout = "2006-01-02 15:04:05"

// Mode selects the persistence model of a sink.
type Mode string

const (
	// ModeLatest overwrites a single document holding the current zones.
	ModeLatest Mode = "latest"
	// ModeLog appends one document per tick, keyed by its timestamp.
	ModeLog Mode = "log"
)

// ParseMode accepts the mode names and their historical aliases.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "latest", "zones", "overwrite":
		return ModeLatest, nil
	case "log", "logs", "append":
		return ModeLog, nil
	default:
		return "", fmt.Errorf("unsupported sink mode: %q", raw)
	}
}

// ZoneDoc is one zone inside the snapshot document.
type ZoneDoc struct {
	Temperature float64          `json:"temperature"`
	Humidity    float64          `json:"humidity"`
	Timestamp   string           `json:"timestamp"`
	Status      telemetry.Status `json:"status"`
}

// Document renders a snapshot as {zone: {temperature, humidity, timestamp, status}}.
func Document(snap telemetry.Snapshot) map[string]ZoneDoc {
	doc := make(map[string]ZoneDoc, len(snap))
	for zone, r := range snap {
		doc[zone] = ZoneDoc{
			Temperature: r.Temperature,
			Humidity:    r.Humidity,
			Timestamp:   FormatTimestamp(r.Timestamp),
			Status:      r.Status,
		}
	}
	return doc
}

// FormatTimestamp renders t with TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.Format(TimestampLayout)
}

// ZoneMessage is the per-zone payload used by message brokers.
type ZoneMessage struct {
	ZoneID      string           `json:"zoneId"`
	DeviceID    string           `json:"deviceId"`
	Temperature float64          `json:"temperature"`
	Humidity    float64          `json:"humidity"`
	Timestamp   time.Time        `json:"timestamp"`
	Status      telemetry.Status `json:"status"`
}

// Messages returns one ZoneMessage per zone in key order.
func Messages(snap telemetry.Snapshot) []ZoneMessage {
	out := make([]ZoneMessage, 0, len(snap))
	for _, zone := range snap.Keys() {
		r := snap[zone]
		out = append(out, ZoneMessage{
			ZoneID:      zone,
			DeviceID:    DeviceID(zone),
			Temperature: r.Temperature,
			Humidity:    r.Humidity,
			Timestamp:   r.Timestamp,
			Status:      r.Status,
		})
	}
	return out
}

var deviceNamespace = uuid.MustParse("6f1c2a7e-3b0d-4c59-9a8e-2d4f5b6c7a81")

// DeviceID derives a stable sensor identifier from the zone key, so the
// same zone keeps its identity across restarts.
func DeviceID(zone string) string {
	return uuid.NewSHA1(deviceNamespace, []byte(zone)).String()
}
