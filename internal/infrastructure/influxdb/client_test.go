package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/avr-control/internal/infrastructure/config"
	"github.com/nerrad567/avr-control/internal/infrastructure/influxdb"
)

// fakeInflux answers ping and write requests and keeps the written line
// protocol.
type fakeInflux struct {
	mu     sync.Mutex
	lines  []string
	server *httptest.Server
}

func newFakeInflux(t *testing.T) *fakeInflux {
	t.Helper()
	f := &fakeInflux{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping", "/health":
			w.WriteHeader(http.StatusNoContent)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			f.lines = append(f.lines, strings.Split(strings.TrimSpace(string(body)), "\n")...)
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

// waitForLine returns the first written line containing prefix.
func (f *fakeInflux) waitForLine(t *testing.T, prefix string) string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		for _, line := range f.lines {
			if strings.HasPrefix(line, prefix) {
				f.mu.Unlock()
				return line
			}
		}
		f.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no line with prefix %q written", prefix)
	return ""
}

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "avrctl-test-token",
		Org:           "avrctl",
		Bucket:        "receivers",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

func connect(t *testing.T, f *fakeInflux) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(testConfig(f.server.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func TestConnect(t *testing.T) {
	client := connect(t, newFakeInflux(t))
	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8086")
	cfg.Enabled = false

	if _, err := influxdb.Connect(cfg); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	if _, err := influxdb.Connect(testConfig(url)); !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	f := newFakeInflux(t)
	cfg := testConfig(f.server.URL)
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close() //nolint:errcheck // Test cleanup

	if !client.IsConnected() {
		t.Error("IsConnected() = false with default batch settings")
	}
}

func TestWriteReceiverStatus(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	client.WriteReceiverStatus(influxdb.ReceiverSample{
		Host:      "192.168.1.50",
		Port:      80,
		Power:     "ON",
		Volume:    -35.5,
		Mute:      false,
		Input:     "SAT/CBL",
		SoundMode: "STEREO",
		Time:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	client.Flush()

	line := f.waitForLine(t, "receiver_status,host=192.168.1.50,port=80 ")
	for _, want := range []string{`input="SAT/CBL"`, "mute=false", "power_on=true", `sound_mode="STEREO"`, "volume_db=-35.5"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %s", line, want)
		}
	}
}

func TestWriteCommandOutcome(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)

	client.WriteCommandOutcome(influxdb.CommandSample{
		Model:      "AVR-X2300W",
		Action:     "power_on",
		Host:       "192.168.1.50",
		Success:    true,
		StatusCode: 200,
		Duration:   40 * time.Millisecond,
	})
	client.WriteCommandOutcome(influxdb.CommandSample{
		Model:  "AVR-X2300W",
		Action: "power_off",
		Host:   "192.168.1.50",
	})
	client.Flush()

	ok := f.waitForLine(t, "receiver_command,action=power_on,host=192.168.1.50,model=AVR-X2300W ")
	for _, want := range []string{"success=true", "status_code=200i", "duration_ms=40"} {
		if !strings.Contains(ok, want) {
			t.Errorf("line %q missing %s", ok, want)
		}
	}

	failed := f.waitForLine(t, "receiver_command,action=power_off")
	if strings.Contains(failed, "status_code") {
		t.Errorf("line %q has status_code for an unanswered command", failed)
	}
}

func TestClose(t *testing.T) {
	f := newFakeInflux(t)
	client, err := influxdb.Connect(testConfig(f.server.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	client.WriteReceiverStatus(influxdb.ReceiverSample{Host: "close-test", Power: "STANDBY"})
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	f.waitForLine(t, "receiver_status,host=close-test")

	// Writes after Close are dropped without panicking.
	client.WriteReceiverStatus(influxdb.ReceiverSample{Host: "after-close"})
	client.Flush()
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheck_ServerGone(t *testing.T) {
	f := newFakeInflux(t)
	client := connect(t, f)
	f.server.Close()

	err := client.HealthCheck(context.Background())
	if err == nil {
		t.Fatal("HealthCheck() error = nil after server shutdown")
	}
	if errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want a ping failure", err)
	}
}

func TestClose_Twice(t *testing.T) {
	client := connect(t, newFakeInflux(t))
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
