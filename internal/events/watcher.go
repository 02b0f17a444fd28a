package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/avr-control/internal/infrastructure/mqtt"
	"github.com/nerrad567/avr-control/internal/status"
)

// StatusWatcher follows the receiver status a daemon publishes. Retained
// messages mean the last known status of each receiver arrives first.
type StatusWatcher struct {
	broker Broker
	qos    byte
	topics mqtt.Topics
	logger Logger
}

// NewStatusWatcher creates a StatusWatcher subscribing with qos.
func NewStatusWatcher(broker Broker, qos byte) *StatusWatcher {
	return &StatusWatcher{broker: broker, qos: qos, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (w *StatusWatcher) SetLogger(logger Logger) {
	w.logger = logger
}

// Watch calls fn for every status sample until ctx ends, then
// unsubscribes. An empty host follows every receiver. Samples that do
// not decode are logged and skipped.
func (w *StatusWatcher) Watch(ctx context.Context, host string, fn func(status.Sample)) error {
	filter := w.topics.AllStatus()
	if host != "" {
		filter = w.topics.Status(host)
	}

	err := w.broker.Subscribe(filter, w.qos, func(topic string, payload []byte) error {
		var sample status.Sample
		if err := json.Unmarshal(payload, &sample); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidStatus, topic, err)
		}
		fn(sample)
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", filter, err)
	}
	w.logger.Debug("watching receiver status", "topic", filter)

	<-ctx.Done()
	if err := w.broker.Unsubscribe(filter); err != nil {
		w.logger.Warn("status unsubscribe failed", "topic", filter, "error", err)
	}
	return nil
}
