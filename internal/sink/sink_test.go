// v0
// internal/sink/sink_test.go
package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"

	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/circuitbreaker"
	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/telemetry"
)

var testAt = time.Date(2024, 3, 1, 8, 30, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSnapshot() telemetry.Snapshot {
	return telemetry.Snapshot{
		"Zone A": {Temperature: 4.25, Humidity: 70.5, Timestamp: testAt, Status: telemetry.WithinRange},
		"Zone B": {Temperature: 10.1, Humidity: 79.7, Timestamp: testAt, Status: telemetry.OutOfRange},
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()
	cases := []struct {
		raw     string
		want    Mode
		wantErr bool
	}{
		{raw: "latest", want: ModeLatest},
		{raw: " Zones ", want: ModeLatest},
		{raw: "overwrite", want: ModeLatest},
		{raw: "log", want: ModeLog},
		{raw: "LOGS", want: ModeLog},
		{raw: "append", want: ModeLog},
		{raw: "csv", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseMode(tc.raw)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseMode(%q) expected error", tc.raw)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseMode(%q) = %q, %v; want %q", tc.raw, got, err, tc.want)
		}
	}
}

func TestDocumentShape(t *testing.T) {
	t.Parallel()
	raw, err := json.Marshal(Document(testSnapshot()))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	b := decoded["Zone B"]
	if b["status"] != "Out of Range" {
		t.Fatalf("expected status text, got %v", b["status"])
	}
	if b["timestamp"] != "2024-03-01 08:30:00" {
		t.Fatalf("unexpected timestamp %v", b["timestamp"])
	}
	if b["temperature"] != 10.1 || b["humidity"] != 79.7 {
		t.Fatalf("unexpected values %v", b)
	}
	if decoded["Zone A"]["status"] != "Within Range" {
		t.Fatalf("unexpected status for Zone A: %v", decoded["Zone A"]["status"])
	}
}

func TestDeviceIDStable(t *testing.T) {
	t.Parallel()
	if DeviceID("Zone A") != DeviceID("Zone A") {
		t.Fatalf("device id must be stable")
	}
	if DeviceID("Zone A") == DeviceID("Zone B") {
		t.Fatalf("device ids must differ per zone")
	}
}

func TestFileSinkLatestOverwrites(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "zones.json")
	fs, err := NewFileSink(path, ModeLatest, testLogger())
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	defer fs.Close()

	snap := testSnapshot()
	if err := fs.Publish(context.Background(), testAt, snap); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	snap["Zone A"] = telemetry.Reading{Temperature: 6, Humidity: 65, Timestamp: testAt.Add(5 * time.Second), Status: telemetry.WithinRange}
	if err := fs.Publish(context.Background(), testAt.Add(5*time.Second), snap); err != nil {
		t.Fatalf("second publish: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var doc map[string]ZoneDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc) != 2 {
		t.Fatalf("expected 2 zones, got %d", len(doc))
	}
	if doc["Zone A"].Temperature != 6 || doc["Zone A"].Timestamp != "2024-03-01 08:30:05" {
		t.Fatalf("expected latest reading, got %+v", doc["Zone A"])
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestFileSinkLogAppends(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "logs.jsonl")
	fs, err := NewFileSink(path, ModeLog, testLogger())
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := fs.Publish(context.Background(), testAt.Add(time.Duration(i)*5*time.Second), testSnapshot()); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	if err := fs.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := fs.Publish(context.Background(), testAt, testSnapshot()); err == nil {
		t.Fatalf("expected publish after close to fail")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	var keys []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var line map[string]map[string]ZoneDoc
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		for k := range line {
			keys = append(keys, k)
		}
	}
	want := []string{"2024-03-01 08:30:00", "2024-03-01 08:30:05", "2024-03-01 08:30:10"}
	if strings.Join(keys, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected log keys %v", keys)
	}
}

type recordingWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaSinkKeyModes(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		mode Mode
		want []string
	}{
		{name: "latest", mode: ModeLatest, want: []string{"Zone A", "Zone B"}},
		{name: "log", mode: ModeLog, want: []string{"Zone A:1709281800", "Zone B:1709281800"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			w := &recordingWriter{}
			ks := newKafkaSinkWithWriter(KafkaConfig{Topic: "coldstore.zones", Mode: tc.mode}, w, w, testLogger())
			if err := ks.Publish(context.Background(), testAt, testSnapshot()); err != nil {
				t.Fatalf("publish: %v", err)
			}
			if len(w.msgs) != len(tc.want) {
				t.Fatalf("expected %d messages, got %d", len(tc.want), len(w.msgs))
			}
			for i, msg := range w.msgs {
				if string(msg.Key) != tc.want[i] {
					t.Fatalf("message %d key = %q, want %q", i, msg.Key, tc.want[i])
				}
			}
			var decoded ZoneMessage
			if err := json.Unmarshal(w.msgs[1].Value, &decoded); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if decoded.ZoneID != "Zone B" || decoded.Status != telemetry.OutOfRange {
				t.Fatalf("unexpected payload %+v", decoded)
			}
			if decoded.DeviceID != DeviceID("Zone B") {
				t.Fatalf("unexpected device id %q", decoded.DeviceID)
			}
		})
	}
}

func TestKafkaSinkWriteError(t *testing.T) {
	t.Parallel()
	w := &recordingWriter{err: errors.New("broker down")}
	ks := newKafkaSinkWithWriter(KafkaConfig{Topic: "t", Mode: ModeLatest}, w, w, testLogger())
	err := ks.Publish(context.Background(), testAt, testSnapshot())
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Fatalf("expected wrapped write error, got %v", err)
	}
}

func TestNewKafkaSinkValidation(t *testing.T) {
	t.Parallel()
	if _, err := NewKafkaSink(KafkaConfig{Brokers: []string{"kafka:9092"}}, testLogger()); err == nil {
		t.Fatalf("expected missing topic error")
	}
	if _, err := NewKafkaSink(KafkaConfig{Topic: "t"}, testLogger()); err == nil {
		t.Fatalf("expected missing brokers error")
	}
	if _, err := NewKafkaSink(KafkaConfig{Topic: "t", Brokers: []string{"kafka:9092"}, Acks: 3}, testLogger()); err == nil {
		t.Fatalf("expected invalid acks error")
	}
}

type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(err error, complete bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeMQTT struct {
	mu       sync.Mutex
	sent     []published
	failOn   string
	complete bool
}

func (f *fakeMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	if topic == f.failOn {
		return newFakeToken(errors.New("not authorized"), true)
	}
	return newFakeToken(nil, f.complete)
}

func TestMQTTSinkTopicsAndRetain(t *testing.T) {
	t.Parallel()
	for _, mode := range []Mode{ModeLatest, ModeLog} {
		client := &fakeMQTT{complete: true}
		closed := false
		ms := newMQTTSinkWithClient(MQTTConfig{TopicPrefix: "coldstore/zones/", QoS: 1, Mode: mode}, client, func() { closed = true }, testLogger())
		if err := ms.Publish(context.Background(), testAt, testSnapshot()); err != nil {
			t.Fatalf("publish: %v", err)
		}
		if len(client.sent) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(client.sent))
		}
		if client.sent[0].topic != "coldstore/zones/Zone A" {
			t.Fatalf("unexpected topic %q", client.sent[0].topic)
		}
		for _, p := range client.sent {
			if p.retained != (mode == ModeLatest) {
				t.Fatalf("mode %s: retained = %v", mode, p.retained)
			}
			if p.qos != 1 {
				t.Fatalf("unexpected qos %d", p.qos)
			}
		}
		_ = ms.Close()
		if !closed {
			t.Fatalf("expected close to disconnect client")
		}
	}
}

func TestMQTTSinkReportsFailedZones(t *testing.T) {
	t.Parallel()
	client := &fakeMQTT{complete: true, failOn: "cs/Zone B"}
	ms := newMQTTSinkWithClient(MQTTConfig{TopicPrefix: "cs", Mode: ModeLatest}, client, nil, testLogger())
	err := ms.Publish(context.Background(), testAt, testSnapshot())
	if err == nil || !strings.Contains(err.Error(), "cs/Zone B") {
		t.Fatalf("expected failure naming the topic, got %v", err)
	}
	if len(client.sent) != 2 {
		t.Fatalf("other zones must still be published, got %d", len(client.sent))
	}
}

func TestMQTTSinkHonoursContext(t *testing.T) {
	t.Parallel()
	client := &fakeMQTT{complete: false}
	ms := newMQTTSinkWithClient(MQTTConfig{Mode: ModeLatest, Timeout: time.Minute}, client, nil, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := ms.Publish(ctx, testAt, telemetry.Snapshot{"Zone A": testSnapshot()["Zone A"]})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRTDBSinkPaths(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	var paths []string
	var bodies []map[string]ZoneDoc
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("unexpected method %s", r.Method)
		}
		var doc map[string]ZoneDoc
		_ = json.NewDecoder(r.Body).Decode(&doc)
		mu.Lock()
		paths = append(paths, r.URL.EscapedPath())
		bodies = append(bodies, doc)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := circuitbreaker.NewHTTPClient("rtdb", circuitbreaker.Settings{}, "", srv.Client(), testLogger())
	for _, mode := range []Mode{ModeLatest, ModeLog} {
		s, err := NewRTDBSink(RTDBConfig{BaseURL: srv.URL + "/", Mode: mode}, client, testLogger())
		if err != nil {
			t.Fatalf("NewRTDBSink: %v", err)
		}
		if err := s.Publish(context.Background(), testAt, testSnapshot()); err != nil {
			t.Fatalf("publish %s: %v", mode, err)
		}
	}
	want := []string{"/zones.json", "/logs/2024-03-01%2008:30:00.json"}
	if strings.Join(paths, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected paths %v", paths)
	}
	if bodies[0]["Zone B"].Status != telemetry.OutOfRange {
		t.Fatalf("unexpected body %+v", bodies[0])
	}
}

func TestRTDBSinkStatusError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "permission denied", http.StatusUnauthorized)
	}))
	defer srv.Close()
	client := circuitbreaker.NewHTTPClient("rtdb", circuitbreaker.Settings{}, "", srv.Client(), testLogger())
	s, err := NewRTDBSink(RTDBConfig{BaseURL: srv.URL}, client, testLogger())
	if err != nil {
		t.Fatalf("NewRTDBSink: %v", err)
	}
	err = s.Publish(context.Background(), testAt, testSnapshot())
	if err == nil || !strings.Contains(err.Error(), "401") || !strings.Contains(err.Error(), "permission denied") {
		t.Fatalf("expected status error with body, got %v", err)
	}
}

func TestNewRTDBSinkRejectsBadURL(t *testing.T) {
	t.Parallel()
	client := circuitbreaker.NewHTTPClient("rtdb", circuitbreaker.Settings{}, "", nil, testLogger())
	if _, err := NewRTDBSink(RTDBConfig{BaseURL: "not a url"}, client, testLogger()); err == nil {
		t.Fatalf("expected invalid url error")
	}
	if _, err := NewRTDBSink(RTDBConfig{BaseURL: "https://db.example"}, nil, testLogger()); err == nil {
		t.Fatalf("expected missing client error")
	}
}

type funcSink struct {
	calls  int
	err    error
	mu     sync.Mutex
	closed bool
}

func (f *funcSink) Publish(context.Context, time.Time, telemetry.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.err
}

func (f *funcSink) Close() error {
	f.closed = true
	return nil
}

func TestFanoutDeliversToAllSinks(t *testing.T) {
	t.Parallel()
	ok := &funcSink{}
	bad := &funcSink{err: errors.New("timeout")}
	f := NewFanout(Named{Name: "file", Sink: ok}, Named{Name: "rtdb", Sink: bad})
	err := f.Publish(context.Background(), testAt, testSnapshot())
	if err == nil || !strings.Contains(err.Error(), "rtdb: timeout") {
		t.Fatalf("expected named failure, got %v", err)
	}
	if ok.calls != 1 || bad.calls != 1 {
		t.Fatalf("expected both sinks to be called, got %d and %d", ok.calls, bad.calls)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !ok.closed || !bad.closed {
		t.Fatalf("expected every sink closed")
	}
}

func TestGuardedFastFailsWhenOpen(t *testing.T) {
	t.Parallel()
	inner := &funcSink{err: errors.New("down")}
	guard := circuitbreaker.NewGuard("test", circuitbreaker.Settings{
		Enabled:          true,
		FailureThreshold: 2,
		SuccessThreshold: 1,
		OpenFor:          time.Hour,
	}, testLogger(), nil)
	g := WithGuard(inner, guard)
	for i := 0; i < 2; i++ {
		if err := g.Publish(context.Background(), testAt, testSnapshot()); err == nil {
			t.Fatalf("attempt %d: expected failure", i)
		}
	}
	err := g.Publish(context.Background(), testAt, testSnapshot())
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("open breaker must not call the sink, calls=%d", inner.calls)
	}
	if err := g.Close(); err != nil || !inner.closed {
		t.Fatalf("close must forward to inner sink")
	}
}
