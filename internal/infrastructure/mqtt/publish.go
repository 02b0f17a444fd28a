package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
)

// PublishJSON encodes v and publishes it at the configured QoS. State
// topics (device records, receiver status) are retained; events and acks
// are not.
func (c *Client) PublishJSON(topic string, v any, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrPublishFailed, topic, err)
	}
	if len(payload) > maxPayloadBytes {
		return fmt.Errorf("%w: %s payload is %d bytes (limit %d)", ErrPublishFailed, topic, len(payload), maxPayloadBytes)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := await(ctx, c.paho.Publish(topic, c.qos, retained, payload)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}
