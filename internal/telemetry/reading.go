// v0
// internal/telemetry/reading.go
package telemetry

import (
	"fmt"
	"sort"
	"time"
)

// Status is the threshold classification of a reading.
type Status int

const (
	WithinRange Status = iota
	OutOfRange
)

// String returns the text shown on the monitoring dashboard.
func (s Status) String() string {
	if s == OutOfRange {
		return "Out of Range"
	}
	return "Within Range"
}

// MarshalText lets Status travel as its dashboard text in JSON documents.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "Within Range":
		*s = WithinRange
	case "Out of Range":
		*s = OutOfRange
	default:
		return fmt.Errorf("unknown status %q", b)
	}
	return nil
}

// ZoneState is the running state of one zone.
type ZoneState struct {
	Temperature float64
	Humidity    float64
}

// Zones maps a zone key to its running state. The key set is fixed for the
// lifetime of the process and only Generator.Tick writes the values.
type Zones map[string]ZoneState

// Keys returns the zone keys in sorted order.
func (z Zones) Keys() []string {
	keys := make([]string, 0, len(z))
	for k := range z {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Reading is the immutable result of one zone at one tick.
type Reading struct {
	Temperature float64
	Humidity    float64
	Timestamp   time.Time
	Status      Status
}

// Snapshot holds every zone's Reading for a single tick.
type Snapshot map[string]Reading

// Keys returns the zone keys of the snapshot in sorted order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OutOfRange counts the zones classified OutOfRange.
func (s Snapshot) OutOfRange() int {
	n := 0
	for _, r := range s {
		if r.Status == OutOfRange {
			n++
		}
	}
	return n
}

// Classify applies the thresholds: OutOfRange iff temperature > TempMax or
// humidity > HumidityMax.
func Classify(p Params, temperature, humidity float64) Status {
	if temperature > p.TempMax || humidity > p.HumidityMax {
		return OutOfRange
	}
	return WithinRange
}
