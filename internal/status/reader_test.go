package status

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/avr-control/internal/request"
)

type captureSamples struct {
	mu      sync.Mutex
	samples []Sample
}

func (c *captureSamples) StatusRead(s Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, s)
}

func (c *captureSamples) RecordStatus(s Sample) { c.StatusRead(s) }

func receiver(t *testing.T, handler http.HandlerFunc) (string, int) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse server port: %v", err)
	}
	return u.Hostname(), port
}

func TestReader_Fetch(t *testing.T) {
	paths := make(chan string, 1)
	host, port := receiver(t, func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(fullStatus)) //nolint:errcheck // Test handler
	})

	samples := &captureSamples{}
	reader := NewReader(request.NewHTTPClient())
	reader.SetNotifier(samples)

	s, err := reader.Fetch(context.Background(), host, port, time.Second)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if gotPath := <-paths; gotPath != Path {
		t.Errorf("path = %q, want %q", gotPath, Path)
	}
	if !s.Valid || s.Power != "ON" || s.Input != "SAT/CBL" {
		t.Errorf("Fetch() = %+v", s)
	}
	if len(samples.samples) != 1 || samples.samples[0].Host != host || samples.samples[0].Port != port {
		t.Errorf("samples = %+v, want one for %s:%d", samples.samples, host, port)
	}
}

func TestReader_FetchFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name:    "not found",
			handler: func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNotFound) },
			wantErr: ErrUnexpectedStatus,
		},
		{
			name: "not xml",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("<html>")) //nolint:errcheck // Test handler
			},
			wantErr: ErrMalformedStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			host, port := receiver(t, tt.handler)
			samples := &captureSamples{}
			reader := NewReader(request.NewHTTPClient())
			reader.SetRecorder(samples)

			s, err := reader.Fetch(context.Background(), host, port, time.Second)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Fetch() error = %v, want %v", err, tt.wantErr)
			}
			if s != Default() {
				t.Errorf("Fetch() = %+v, want Default()", s)
			}
			if len(samples.samples) != 0 {
				t.Errorf("recorded %d samples for a failed read", len(samples.samples))
			}
		})
	}
}

func TestReader_GetStatus_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	u, _ := url.Parse(srv.URL)
	srv.Close()
	port, _ := strconv.Atoi(u.Port())

	reader := NewReader(request.NewHTTPClient())
	if s := reader.GetStatus(context.Background(), u.Hostname(), port, 500*time.Millisecond); s != Default() {
		t.Errorf("GetStatus() = %+v, want Default()", s)
	}
}

func TestReader_FetchMissingHost(t *testing.T) {
	reader := NewReader(request.NewHTTPClient())
	if _, err := reader.Fetch(context.Background(), "", 80, 0); !errors.Is(err, ErrMissingHost) {
		t.Errorf("Fetch() error = %v, want %v", err, ErrMissingHost)
	}
}
