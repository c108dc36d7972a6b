package dash

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// DefaultPublishPrefix is the topic prefix used when none is configured.
const DefaultPublishPrefix = "patroldash"

// RemoteIntent is an operator action received over MQTT.
type RemoteIntent struct {
	Command string `json:"command,omitempty"`
	Mission string `json:"mission,omitempty"`
	View    string `json:"view,omitempty"`
}

// IntentHandler is called for every valid message on <prefix>/cmd.
type IntentHandler func(RemoteIntent)

// MQTTClient manages the broker connection for the telemetry bridge.
type MQTTClient struct {
	client      mqtt.Client
	prefix      string
	handler     IntentHandler
	isConnected bool
	mu          sync.RWMutex
}

// InitMQTT creates the bridge client and starts connecting in the background.
// It returns nil, nil when no broker is configured.
func InitMQTT(cfg MQTTConfig, handler IntentHandler) (*MQTTClient, error) {
	if cfg.Broker == "" {
		Logf("MQTT disabled: no broker configured")
		return nil, nil
	}
	if !strings.Contains(cfg.Broker, "://") {
		return nil, fmt.Errorf("mqtt broker must include a scheme (tcp://host:1883), got %q", cfg.Broker)
	}

	c := &MQTTClient{
		prefix:  publishPrefix(cfg),
		handler: handler,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID(cfg))
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	// Connection settings
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(false)
	opts.SetOrderMatters(false)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.client = mqtt.NewClient(opts)
	go c.connectWithRetry()
	return c, nil
}

func publishPrefix(cfg MQTTConfig) string {
	if cfg.PublishPrefix != "" {
		return strings.TrimSuffix(cfg.PublishPrefix, "/")
	}
	return DefaultPublishPrefix
}

// clientID returns the configured id or a unique default so several
// dashboards can share a broker.
func clientID(cfg MQTTConfig) string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}
	return "patroldash-" + uuid.NewString()[:8]
}

// connectWithRetry attempts to connect to the MQTT broker with exponential backoff
func (c *MQTTClient) connectWithRetry() {
	retryDelay := 1 * time.Second
	maxRetryDelay := 60 * time.Second

	for {
		Logf("[MQTT] Connecting to broker...")

		token := c.client.Connect()
		if token.WaitTimeout(10 * time.Second) {
			if token.Error() == nil {
				Logf("[MQTT] Connected to broker")
				c.setConnected(true)
				return
			}
			Logf("[MQTT] Connection failed: %v", token.Error())
		} else {
			Logf("[MQTT] Connection timeout")
		}

		Logf("[MQTT] Retrying connection in %v...", retryDelay)
		time.Sleep(retryDelay)
		retryDelay *= 2
		if retryDelay > maxRetryDelay {
			retryDelay = maxRetryDelay
		}
	}
}

// CommandTopic is where remote operator intents arrive.
func (c *MQTTClient) CommandTopic() string { return c.prefix + "/cmd" }

// Prefix returns the publish prefix.
func (c *MQTTClient) Prefix() string { return c.prefix }

func (c *MQTTClient) onConnect(client mqtt.Client) {
	c.setConnected(true)
	topic := c.CommandTopic()
	Logf("[MQTT] Connected, subscribing to %s", topic)
	token := client.Subscribe(topic, 0, c.handleIntent)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		Logf("[MQTT] Error subscribing to %s: %v", topic, token.Error())
	}
}

func (c *MQTTClient) onConnectionLost(client mqtt.Client, err error) {
	Logf("[MQTT] Connection interrupted (%v), auto-reconnect will retry", err)
	c.setConnected(false)
}

func (c *MQTTClient) onReconnecting(client mqtt.Client, opts *mqtt.ClientOptions) {
	Logf("[MQTT] Reconnecting...")
}

// handleIntent decodes a payload from the command topic. A bare JSON string
// or plain text payload is treated as a drive command.
func (c *MQTTClient) handleIntent(client mqtt.Client, msg mqtt.Message) {
	intent, err := ParseIntent(msg.Payload())
	if err != nil {
		Logf("[MQTT] Ignoring payload on %s: %v", msg.Topic(), err)
		return
	}
	if c.handler != nil {
		c.handler(intent)
	}
}

// ParseIntent decodes {"command":..}, {"mission":..}, {"view":..}, a JSON
// string, or raw text.
func ParseIntent(payload []byte) (RemoteIntent, error) {
	var intent RemoteIntent
	if err := json.Unmarshal(payload, &intent); err == nil {
		if intent.Command == "" && intent.Mission == "" && intent.View == "" {
			return intent, fmt.Errorf("empty intent")
		}
		return intent, nil
	}
	var plain string
	if err := json.Unmarshal(payload, &plain); err == nil {
		plain = strings.TrimSpace(plain)
	} else {
		plain = strings.TrimSpace(string(payload))
	}
	if plain == "" {
		return intent, fmt.Errorf("empty payload")
	}
	return RemoteIntent{Command: plain}, nil
}

// IsConnected returns true if the MQTT client is connected
func (c *MQTTClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected
}

func (c *MQTTClient) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isConnected = connected
}

// Disconnect gracefully closes the MQTT connection
func (c *MQTTClient) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		Logf("[MQTT] Disconnecting from broker...")
		c.client.Disconnect(250) // 250ms quiesce time
		c.setConnected(false)
	}
}

// GetClient returns the underlying MQTT client for publishing
func (c *MQTTClient) GetClient() mqtt.Client {
	return c.client
}

// newMQTTClientWithMock wraps a provided mqtt.Client for tests.
func newMQTTClientWithMock(client mqtt.Client, prefix string, handler IntentHandler) *MQTTClient {
	return &MQTTClient{client: client, prefix: prefix, handler: handler}
}
