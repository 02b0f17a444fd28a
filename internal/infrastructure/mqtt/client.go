package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/avr-control/internal/infrastructure/config"
)

// Client is the daemon's broker session. It announces presence on
// Topics.SystemStatus, leaves an offline Last Will with the broker and
// re-subscribes its routes after every reconnect.
//
// All methods are safe for concurrent use.
type Client struct {
	paho     pahomqtt.Client
	clientID string
	qos      byte

	online atomic.Bool

	mu           sync.Mutex
	routes       map[string]route
	onDisconnect func(error)
	logger       Logger
}

// Logger is the logging surface used by the client. *logging.Logger
// satisfies it.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// MessageHandler receives one message. A returned error is logged; it
// does not affect delivery.
type MessageHandler func(topic string, payload []byte) error

// Connect opens a session with the broker named in cfg and waits for the
// first connection. Presence is published from the connect callback, so
// it is repeated after every reconnect.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	if cfg.QoS < 0 || cfg.QoS > maxQoS {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQoS, cfg.QoS)
	}

	c := newClient(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := await(ctx, c.paho.Connect()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect callback runs on its own goroutine and may lag.
	c.online.Store(true)
	return c, nil
}

func newClient(cfg config.MQTTConfig) *Client {
	c := &Client{
		clientID: cfg.Broker.ClientID,
		qos:      byte(cfg.QoS),
		routes:   make(map[string]route),
		logger:   noopLogger{},
	}

	opts := sessionOptions(cfg)
	opts.SetWill(Topics{}.SystemStatus(), string(c.presence(PresenceOffline, ReasonLost)), 1, true)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.log().Warn("mqtt reconnecting", "broker", cfg.Broker.Host)
	})

	c.paho = pahomqtt.NewClient(opts)
	return c
}

func (c *Client) connected() {
	c.online.Store(true)
	c.resubscribe()
	c.announce(PresenceOnline, "")
}

func (c *Client) lost(err error) {
	c.online.Store(false)

	c.mu.Lock()
	callback := c.onDisconnect
	c.mu.Unlock()
	if callback != nil {
		callback(err)
	}
}

// announce publishes a retained presence document without waiting.
func (c *Client) announce(state, reason string) pahomqtt.Token {
	return c.paho.Publish(Topics{}.SystemStatus(), c.qos, true, c.presence(state, reason))
}

// Close retracts presence with a graceful offline document and
// disconnects. Closing an offline client is not an error.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	if c.IsConnected() {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		if err := await(ctx, c.announce(PresenceOffline, ReasonShutdown)); err != nil {
			c.log().Warn("mqtt offline announcement failed", "error", err)
		}
		cancel()
	}
	c.paho.Disconnect(quiesceMillis)
	c.online.Store(false)
	return nil
}

// HealthCheck refreshes the retained presence document and waits for the
// broker to accept it, so a passing check means a live round trip.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	if err := await(ctx, c.announce(PresenceOnline, "")); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	return nil
}

// IsConnected reports the last known session state.
func (c *Client) IsConnected() bool {
	return c.online.Load() && c.paho.IsConnected()
}

// SetOnDisconnect registers fn to run whenever the session drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.mu.Lock()
	c.onDisconnect = fn
	c.mu.Unlock()
}

// SetLogger sets the logger for reconnects and handler failures.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logger
}

// await blocks until the token completes or ctx ends.
func await(ctx context.Context, token pahomqtt.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
