package events

import (
	"github.com/nerrad567/avr-control/internal/executor"
	"github.com/nerrad567/avr-control/internal/infrastructure/influxdb"
	"github.com/nerrad567/avr-control/internal/status"
)

// MetricsWriter stores samples. *influxdb.Client implements it.
type MetricsWriter interface {
	WriteReceiverStatus(s influxdb.ReceiverSample)
	WriteCommandOutcome(s influxdb.CommandSample)
}

var (
	_ MetricsWriter     = (*influxdb.Client)(nil)
	_ executor.Recorder = (*Recorder)(nil)
	_ status.Recorder   = (*Recorder)(nil)
)

// Recorder implements executor.Recorder and status.Recorder.
type Recorder struct {
	writer MetricsWriter
}

// NewRecorder creates a Recorder writing to w.
func NewRecorder(w MetricsWriter) *Recorder {
	return &Recorder{writer: w}
}

// RecordCommand implements executor.Recorder.
func (r *Recorder) RecordCommand(event executor.CommandEvent) {
	r.writer.WriteCommandOutcome(influxdb.CommandSample{
		Model:      event.Model,
		Action:     event.Action,
		Host:       event.Host,
		Success:    event.Success,
		StatusCode: event.StatusCode,
		Duration:   event.Duration,
		Time:       event.Timestamp,
	})
}

// RecordStatus implements status.Recorder.
func (r *Recorder) RecordStatus(sample status.Sample) {
	r.writer.WriteReceiverStatus(influxdb.ReceiverSample{
		Host:      sample.Host,
		Port:      sample.Port,
		Power:     sample.Status.Power,
		Volume:    sample.Status.Volume,
		Mute:      sample.Status.Mute,
		Input:     sample.Status.Input,
		SoundMode: sample.Status.SoundMode,
		Time:      sample.Timestamp,
	})
}
