// v0
// internal/sink/rtdb.go
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/circuitbreaker"
	"github.com/akulalokesh123/COLD-STORAGE-IOT/internal/telemetry"
)

// RTDBConfig configures the hosted realtime-database sink.
type RTDBConfig struct {
	BaseURL   string
	ZonesPath string
	LogsPath  string
	Mode      Mode
}

// RTDBSink writes the snapshot document through the database REST API:
// PUT <base>/<zones>.json in ModeLatest, PUT <base>/<logs>/<timestamp>.json
// in ModeLog.
type RTDBSink struct {
	cfg    RTDBConfig
	client *circuitbreaker.HTTPClient
	log    *slog.Logger
}

func NewRTDBSink(cfg RTDBConfig, client *circuitbreaker.HTTPClient, log *slog.Logger) (*RTDBSink, error) {
	u, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid database url %q", cfg.BaseURL)
	}
	if client == nil {
		return nil, errors.New("rtdb sink requires an http client")
	}
	if cfg.ZonesPath == "" {
		cfg.ZonesPath = "zones"
	}
	if cfg.LogsPath == "" {
		cfg.LogsPath = "logs"
	}
	cfg.BaseURL = strings.TrimRight(u.String(), "/")
	return &RTDBSink{cfg: cfg, client: client, log: log.With(slog.String("sink", "rtdb"))}, nil
}

// ProbeURL is a cheap read used to test the database while the breaker is half-open.
func ProbeURL(baseURL, zonesPath string) string {
	if zonesPath == "" {
		zonesPath = "zones"
	}
	return strings.TrimRight(baseURL, "/") + "/" + strings.Trim(zonesPath, "/") + ".json?shallow=true"
}

func (s *RTDBSink) Publish(ctx context.Context, at time.Time, snap telemetry.Snapshot) error {
	body, err := json.Marshal(Document(snap))
	if err != nil {
		return err
	}
	target := s.target(at)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.client.Do(req, func(resp *http.Response) error {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("rtdb status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	})
}

func (s *RTDBSink) target(at time.Time) string {
	if s.cfg.Mode == ModeLog {
		return s.cfg.BaseURL + "/" + strings.Trim(s.cfg.LogsPath, "/") + "/" + url.PathEscape(FormatTimestamp(at)) + ".json"
	}
	return s.cfg.BaseURL + "/" + strings.Trim(s.cfg.ZonesPath, "/") + ".json"
}
