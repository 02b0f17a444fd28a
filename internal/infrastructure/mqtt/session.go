package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"net"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/avr-control/internal/infrastructure/config"
)

const (
	connectTimeout  = 10 * time.Second
	requestTimeout  = 5 * time.Second
	keepAlive       = 60 * time.Second
	quiesceMillis   = 1000
	maxQoS          = 2
	maxPayloadBytes = 1 << 20
)

// Presence states and reasons carried on avrctl/system/status.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"

	ReasonShutdown = "shutdown"
	ReasonLost     = "unexpected_disconnect"
)

// Presence is the retained document on Topics.SystemStatus. The broker
// publishes the offline variant itself as the Last Will when the daemon
// drops off without saying goodbye.
type Presence struct {
	State     string    `json:"status"`
	ClientID  string    `json:"client_id"`
	Reason    string    `json:"reason,omitempty"`
	Routes    int       `json:"subscriptions"`
	Timestamp time.Time `json:"timestamp"`
}

// sessionOptions maps the mqtt config section onto paho options. Callbacks
// and the Last Will are attached by newClient.
func sessionOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp://"
	if cfg.Broker.TLS {
		scheme = "ssl://"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(scheme+net.JoinHostPort(cfg.Broker.Host, strconv.Itoa(cfg.Broker.Port))).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(connectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	return opts
}

// presence encodes the current presence document for this client.
func (c *Client) presence(state, reason string) []byte {
	c.mu.Lock()
	routes := len(c.routes)
	c.mu.Unlock()

	// Presence has no unencodable fields.
	payload, _ := json.Marshal(Presence{
		State:     state,
		ClientID:  c.clientID,
		Reason:    reason,
		Routes:    routes,
		Timestamp: time.Now().UTC(),
	})
	return payload
}
