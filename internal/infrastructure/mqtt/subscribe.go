package mqtt

import (
	"context"
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// route is a remembered subscription, replayed after a reconnect.
type route struct {
	qos     byte
	handler MessageHandler
}

// Subscribe routes messages matching filter to handler. Wildcards follow
// MQTT rules, for example Topics.AllCommands. Handlers run on paho's
// delivery goroutine; a panic is recovered and logged.
func (c *Client) Subscribe(filter string, qos byte, handler MessageHandler) error {
	switch {
	case filter == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: %s: nil handler", ErrSubscribeFailed, filter)
	case !c.IsConnected():
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := await(ctx, c.paho.Subscribe(filter, qos, c.deliver(handler))); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, filter, err)
	}

	c.mu.Lock()
	c.routes[filter] = route{qos: qos, handler: handler}
	c.mu.Unlock()
	return nil
}

// Unsubscribe drops the route for filter. The route is forgotten even if
// the broker cannot be told, so it is not replayed on reconnect.
func (c *Client) Unsubscribe(filter string) error {
	if filter == "" {
		return ErrInvalidTopic
	}

	c.mu.Lock()
	delete(c.routes, filter)
	c.mu.Unlock()

	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := await(ctx, c.paho.Unsubscribe(filter)); err != nil {
		return fmt.Errorf("%w: unsubscribe %s: %w", ErrSubscribeFailed, filter, err)
	}
	return nil
}

// resubscribe replays every route; the broker forgets them because the
// session is clean.
func (c *Client) resubscribe() {
	c.mu.Lock()
	routes := make(map[string]route, len(c.routes))
	for filter, r := range c.routes {
		routes[filter] = r
	}
	c.mu.Unlock()

	for filter, r := range routes {
		token := c.paho.Subscribe(filter, r.qos, c.deliver(r.handler))
		go func() {
			if err := await(context.Background(), token); err != nil {
				c.log().Warn("mqtt resubscribe failed", "filter", filter, "error", err)
			}
		}()
	}
}

func (c *Client) deliver(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.log().Error("mqtt handler panic", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.log().Warn("mqtt handler failed", "topic", msg.Topic(), "error", err)
		}
	}
}
