package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/avr-control/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig(clientID string) config.MQTTConfig {
	return config.MQTTConfig{
		Enabled: true,
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: clientID,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// connectOrSkip connects to a local broker, skipping the test when none
// is listening on 127.0.0.1:1883.
func connectOrSkip(t *testing.T, clientID string) *Client {
	t.Helper()
	conn, err := net.DialTimeout("tcp", "127.0.0.1:1883", 200*time.Millisecond)
	if err != nil {
		t.Skip("no MQTT broker on 127.0.0.1:1883")
	}
	conn.Close() //nolint:errcheck // Reachability check only

	client, err := Connect(testConfig(clientID))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() }) //nolint:errcheck // Test cleanup
	return client
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"CommandEvent", topics.CommandEvent(), "avrctl/event/command"},
		{"DiscoveryDevice", topics.DiscoveryDevice("dev-1"), "avrctl/discovery/device/dev-1"},
		{"DiscoveryExpired", topics.DiscoveryExpired(), "avrctl/discovery/expired"},
		{"Status", topics.Status("192.168.1.50"), "avrctl/status/192.168.1.50"},
		{"Command", topics.Command("AVR-X2300W", "power_on"), "avrctl/command/AVR-X2300W/power_on"},
		{"Ack", topics.Ack("AVR-X2300W", "power_on"), "avrctl/ack/AVR-X2300W/power_on"},
		{"SystemStatus", topics.SystemStatus(), "avrctl/system/status"},
		{"AllCommands", topics.AllCommands(), "avrctl/command/+/+"},
		{"AllStatus", topics.AllStatus(), "avrctl/status/+"},
		{"wildcards escaped", topics.Status("a/b+#"), "avrctl/status/a_b__"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("topic = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestParseCommandTopic(t *testing.T) {
	tests := []struct {
		topic      string
		wantModel  string
		wantAction string
		wantOK     bool
	}{
		{"avrctl/command/AVR-X2300W/volume_set", "AVR-X2300W", "volume_set", true},
		{"avrctl/ack/AVR-X2300W/volume_set", "", "", false},
		{"avrctl/command/AVR-X2300W", "", "", false},
		{"avrctl/command//power_on", "", "", false},
		{"other/command/AVR-X2300W/power_on", "", "", false},
		{"avrctl/command/a/b/c", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			model, action, ok := ParseCommandTopic(tt.topic)
			if ok != tt.wantOK || model != tt.wantModel || action != tt.wantAction {
				t.Errorf("ParseCommandTopic() = (%q, %q, %v), want (%q, %q, %v)",
					model, action, ok, tt.wantModel, tt.wantAction, tt.wantOK)
			}
		})
	}
}

func TestNewClient_Session(t *testing.T) {
	cfg := testConfig("avrctl-opts")
	cfg.Broker.TLS = true
	cfg.Auth = config.MQTTAuthConfig{Username: "avr", Password: "secret"}

	opts := newClient(cfg).paho.OptionsReader()

	servers := opts.Servers()
	if len(servers) != 1 || servers[0].String() != "ssl://127.0.0.1:1883" {
		t.Errorf("Servers() = %v, want [ssl://127.0.0.1:1883]", servers)
	}
	if opts.ClientID() != "avrctl-opts" {
		t.Errorf("ClientID() = %q, want %q", opts.ClientID(), "avrctl-opts")
	}
	if opts.Username() != "avr" || opts.Password() != "secret" {
		t.Errorf("credentials = %q/%q", opts.Username(), opts.Password())
	}
	if !opts.AutoReconnect() || !opts.CleanSession() {
		t.Error("AutoReconnect and CleanSession must be enabled")
	}
	if tlsCfg := opts.TLSConfig(); tlsCfg == nil || tlsCfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("TLSConfig() = %+v, want MinVersion TLS 1.2", tlsCfg)
	}
}

func TestNewClient_LastWill(t *testing.T) {
	opts := newClient(testConfig("avrctl-lwt")).paho.OptionsReader()

	if !opts.WillEnabled() || opts.WillTopic() != "avrctl/system/status" || !opts.WillRetained() {
		t.Fatalf("will = %v %q retained=%v", opts.WillEnabled(), opts.WillTopic(), opts.WillRetained())
	}

	var will Presence
	if err := json.Unmarshal(opts.WillPayload(), &will); err != nil {
		t.Fatalf("will payload: %v", err)
	}
	if will.State != PresenceOffline || will.Reason != ReasonLost || will.ClientID != "avrctl-lwt" {
		t.Errorf("will = %+v, want offline/%s from avrctl-lwt", will, ReasonLost)
	}
}

func TestPresence_CountsRoutes(t *testing.T) {
	c := newClient(testConfig("avrctl-presence"))
	c.routes["avrctl/command/+/+"] = route{qos: 1, handler: func(string, []byte) error { return nil }}

	var p Presence
	if err := json.Unmarshal(c.presence(PresenceOnline, ""), &p); err != nil {
		t.Fatalf("presence: %v", err)
	}
	if p.State != PresenceOnline || p.Routes != 1 || p.Reason != "" {
		t.Errorf("presence = %+v, want online with 1 route", p)
	}
	if p.Timestamp.IsZero() {
		t.Error("presence timestamp not set")
	}
}

func TestConnect_InvalidQoS(t *testing.T) {
	cfg := testConfig("avrctl-qos")
	cfg.QoS = 3
	if _, err := Connect(cfg); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Connect() error = %v, want %v", err, ErrInvalidQoS)
	}
}

func TestPublishJSON_Validation(t *testing.T) {
	c := newClient(testConfig("avrctl-test-offline"))
	tests := []struct {
		name    string
		topic   string
		v       any
		wantErr error
	}{
		{"empty topic", "", map[string]string{}, ErrInvalidTopic},
		{"unencodable", "avrctl/test", make(chan int), ErrPublishFailed},
		{"oversized", "avrctl/test", make([]byte, maxPayloadBytes), ErrPublishFailed},
		{"not connected", "avrctl/test", map[string]string{"a": "b"}, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.PublishJSON(tt.topic, tt.v, false); !errors.Is(err, tt.wantErr) {
				t.Errorf("PublishJSON() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribe_Validation(t *testing.T) {
	c := newClient(testConfig("avrctl-test-offline"))
	noop := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		filter  string
		qos     byte
		handler MessageHandler
		wantErr error
	}{
		{"empty filter", "", 1, noop, ErrInvalidTopic},
		{"invalid qos", "avrctl/#", 3, noop, ErrInvalidQoS},
		{"nil handler", "avrctl/#", 1, nil, ErrSubscribeFailed},
		{"not connected", "avrctl/#", 1, noop, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Subscribe(tt.filter, tt.qos, tt.handler); !errors.Is(err, tt.wantErr) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if len(c.routes) != 0 {
		t.Errorf("routes = %d, want 0", len(c.routes))
	}
}

func TestUnsubscribe_ForgetsRouteWhenOffline(t *testing.T) {
	c := newClient(testConfig("avrctl-test-offline"))
	c.routes["avrctl/status/+"] = route{qos: 1, handler: func(string, []byte) error { return nil }}

	if err := c.Unsubscribe("avrctl/status/+"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want %v", err, ErrNotConnected)
	}
	if len(c.routes) != 0 {
		t.Errorf("routes = %d, want 0", len(c.routes))
	}
	if err := c.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(empty) error = %v, want %v", err, ErrInvalidTopic)
	}
}

func TestHealthCheck_Offline(t *testing.T) {
	c := newClient(testConfig("avrctl-test-offline"))
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want %v", err, ErrNotConnected)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck(cancelled) error = %v, want %v", err, context.Canceled)
	}
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
	warns  []string
}

func (l *recordingLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

type fakeMessage struct {
	pahomqtt.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

func TestDeliver(t *testing.T) {
	c := newClient(testConfig("avrctl-test-offline"))
	logger := &recordingLogger{}
	c.SetLogger(logger)
	msg := fakeMessage{topic: "avrctl/command/m/a", payload: []byte("{}")}

	c.deliver(func(string, []byte) error { return errors.New("bad payload") })(nil, msg)
	c.deliver(func(string, []byte) error { panic("boom") })(nil, msg)

	if len(logger.warns) != 1 {
		t.Errorf("warnings = %d, want 1", len(logger.warns))
	}
	if len(logger.errors) != 1 {
		t.Errorf("errors = %d, want 1 (recovered panic)", len(logger.errors))
	}
}

func TestConnectInvalidBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the connect timeout")
	}
	cfg := testConfig("avrctl-test-invalid")
	cfg.Broker.Port = 19999

	if _, err := Connect(cfg); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want %v", err, ErrConnectionFailed)
	}
}

func TestRoundTrip(t *testing.T) {
	sub := connectOrSkip(t, "avrctl-test-sub")
	pub := connectOrSkip(t, "avrctl-test-pub")

	received := make(chan string, 1)
	err := sub.Subscribe(Topics{}.AllCommands(), 1, func(topic string, _ []byte) error {
		received <- topic
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := sub.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	topic := Topics{}.Command("AVR-X2300W", "power_on")
	if err := pub.PublishJSON(topic, map[string]any{"host": "192.168.1.50"}, false); err != nil {
		t.Fatalf("PublishJSON() error = %v", err)
	}

	select {
	case got := <-received:
		if got != topic {
			t.Errorf("topic = %q, want %q", got, topic)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not received")
	}

	if err := sub.Unsubscribe(Topics{}.AllCommands()); err != nil {
		t.Errorf("Unsubscribe() error = %v", err)
	}
}

func TestPublishAfterClose(t *testing.T) {
	client := connectOrSkip(t, "avrctl-test-closed")
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := client.PublishJSON(Topics{}.Status("test"), map[string]string{}, true); !errors.Is(err, ErrNotConnected) {
		t.Errorf("PublishJSON() error = %v, want %v", err, ErrNotConnected)
	}
	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want %v", err, ErrNotConnected)
	}
}
