package status

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/avr-control/internal/request"
)

// Path is the main zone status document on Denon receivers.
const Path = "/goform/formMainZone_MainZoneXmlStatus.xml"

// DefaultTimeout bounds a status read when the caller gives none.
const DefaultTimeout = 3 * time.Second

// DefaultPort is used when the caller gives no port.
const DefaultPort = 80

// Logger defines the logging interface used by the Reader.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Sample is a status read from one receiver at one moment.
type Sample struct {
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier is told about every successful read.
type Notifier interface {
	StatusRead(sample Sample)
}

// Recorder stores successful reads, e.g. as time-series points.
type Recorder interface {
	RecordStatus(sample Sample)
}

// Reader fetches receiver status over HTTP.
type Reader struct {
	client   request.Doer
	logger   Logger
	notifier Notifier
	recorder Recorder
	now      func() time.Time
}

// NewReader creates a Reader using client for requests.
func NewReader(client request.Doer) *Reader {
	return &Reader{
		client: client,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger.
func (r *Reader) SetLogger(logger Logger) {
	r.logger = logger
}

// SetNotifier sets the notifier for successful reads.
func (r *Reader) SetNotifier(n Notifier) {
	r.notifier = n
}

// SetRecorder sets the recorder for successful reads.
func (r *Reader) SetRecorder(rec Recorder) {
	r.recorder = rec
}

// GetStatus reads the receiver at host:port. Any failure is logged and
// Default() is returned.
func (r *Reader) GetStatus(ctx context.Context, host string, port int, timeout time.Duration) Status {
	s, err := r.Fetch(ctx, host, port, timeout)
	if err != nil {
		r.logger.Warn("receiver status unavailable", "host", host, "port", port, "error", err)
	}
	return s
}

// Fetch reads the receiver at host:port. A port of zero means 80 and a
// zero timeout means DefaultTimeout.
//
// Returns:
//   - the parsed status and nil on success
//   - Default() and an error wrapping ErrMissingHost, request.ErrTransport,
//     ErrUnexpectedStatus or ErrMalformedStatus otherwise
func (r *Reader) Fetch(ctx context.Context, host string, port int, timeout time.Duration) (Status, error) {
	if host == "" {
		return Default(), ErrMissingHost
	}
	if port <= 0 {
		port = DefaultPort
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	url := fmt.Sprintf("http://%s%s", net.JoinHostPort(host, strconv.Itoa(port)), Path)
	r.logger.Debug("reading receiver status", "url", url)

	resp, err := r.client.Do(ctx, &request.Request{
		Method:          http.MethodGet,
		URL:             url,
		Timeout:         timeout,
		FollowRedirects: true,
	})
	if err != nil {
		return Default(), err
	}
	if resp.StatusCode != http.StatusOK {
		return Default(), fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	s, err := Parse(resp.Body)
	if err != nil {
		return Default(), err
	}

	sample := Sample{Host: host, Port: port, Status: s, Timestamp: r.now().UTC()}
	if r.notifier != nil {
		r.notifier.StatusRead(sample)
	}
	if r.recorder != nil {
		r.recorder.RecordStatus(sample)
	}
	return s, nil
}
