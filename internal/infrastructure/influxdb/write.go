package influxdb

import (
	"strconv"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementStatus  = "receiver_status"
	MeasurementCommand = "receiver_command"
)

// ReceiverSample is one status read.
type ReceiverSample struct {
	Host      string
	Port      int
	Power     string
	Volume    float64
	Mute      bool
	Input     string
	SoundMode string
	Time      time.Time
}

// CommandSample is one dispatched command.
type CommandSample struct {
	Model      string
	Action     string
	Host       string
	Success    bool
	StatusCode int
	Duration   time.Duration
	Time       time.Time
}

// WriteReceiverStatus writes a status read as a receiver_status point.
func (c *Client) WriteReceiverStatus(s ReceiverSample) {
	c.writePoint(MeasurementStatus,
		map[string]string{
			"host": s.Host,
			"port": strconv.Itoa(s.Port),
		},
		map[string]interface{}{
			"power_on":   strings.EqualFold(s.Power, "ON"),
			"volume_db":  s.Volume,
			"mute":       s.Mute,
			"input":      s.Input,
			"sound_mode": s.SoundMode,
		},
		timestamp(s.Time),
	)
}

// WriteCommandOutcome writes a dispatched command as a receiver_command
// point.
func (c *Client) WriteCommandOutcome(s CommandSample) {
	fields := map[string]interface{}{
		"success":     s.Success,
		"duration_ms": float64(s.Duration) / float64(time.Millisecond),
	}
	if s.StatusCode != 0 {
		fields["status_code"] = s.StatusCode
	}

	c.writePoint(MeasurementCommand,
		map[string]string{
			"model":  s.Model,
			"action": s.Action,
			"host":   s.Host,
		},
		fields,
		timestamp(s.Time),
	)
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}

func timestamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
