package events

import (
	"time"

	"github.com/nerrad567/avr-control/internal/discovery"
	"github.com/nerrad567/avr-control/internal/executor"
	"github.com/nerrad567/avr-control/internal/infrastructure/mqtt"
	"github.com/nerrad567/avr-control/internal/registry"
	"github.com/nerrad567/avr-control/internal/status"
)

// Broker is the MQTT surface used here. *mqtt.Client implements it.
type Broker interface {
	PublishJSON(topic string, v any, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger defines the logging interface used by this package.
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

var (
	_ Broker             = (*mqtt.Client)(nil)
	_ executor.Notifier  = (*Publisher)(nil)
	_ discovery.Notifier = (*Publisher)(nil)
	_ status.Notifier    = (*Publisher)(nil)
)

// DeviceEvent is published for every sighting.
type DeviceEvent struct {
	Device  registry.Device `json:"device"`
	Created bool            `json:"created"`
}

// ExpiredEvent is published after a staleness sweep.
type ExpiredEvent struct {
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher publishes control-layer events.
type Publisher struct {
	broker Broker
	topics mqtt.Topics
	logger Logger
	now    func() time.Time
}

// NewPublisher creates a Publisher.
func NewPublisher(broker Broker) *Publisher {
	return &Publisher{broker: broker, logger: noopLogger{}, now: time.Now}
}

// SetLogger sets the logger.
func (p *Publisher) SetLogger(logger Logger) {
	p.logger = logger
}

// CommandExecuted implements executor.Notifier.
func (p *Publisher) CommandExecuted(event executor.CommandEvent) {
	p.publish(p.topics.CommandEvent(), event, false)
}

// DeviceSighted implements discovery.Notifier.
func (p *Publisher) DeviceSighted(device registry.Device, created bool) {
	p.publish(p.topics.DiscoveryDevice(device.ID), DeviceEvent{Device: device, Created: created}, true)
}

// DevicesExpired implements discovery.Notifier.
func (p *Publisher) DevicesExpired(count int) {
	p.publish(p.topics.DiscoveryExpired(), ExpiredEvent{Count: count, Timestamp: p.now().UTC()}, false)
}

// StatusRead implements status.Notifier.
func (p *Publisher) StatusRead(sample status.Sample) {
	p.publish(p.topics.Status(sample.Host), sample, true)
}

func (p *Publisher) publish(topic string, v any, retained bool) {
	if err := p.broker.PublishJSON(topic, v, retained); err != nil {
		p.logger.Warn("event not published", "topic", topic, "error", err)
		return
	}
	p.logger.Debug("event published", "topic", topic)
}
