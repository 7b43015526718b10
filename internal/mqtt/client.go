package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"rubberweigh/internal/config"
	"rubberweigh/shared/types"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var ErrNotConnected = errors.New("mqtt client not connected")

// MessageHandler receives raw message payloads. It runs on a paho goroutine
// and must return quickly.
type MessageHandler func(topic string, payload []byte)

type subscription struct {
	qos     byte
	handler MessageHandler
}

type Client struct {
	client    mqtt.Client
	cfg       config.Base
	logger    *slog.Logger
	mu        sync.RWMutex
	connected bool

	subsMu sync.Mutex
	subs   map[string]subscription

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewClient(cfg config.Base, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		cfg:    cfg,
		logger: logger,
		subs:   make(map[string]subscription),
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTTBroker, cfg.MQTTPort))
	opts.SetClientID(cfg.MQTTClientID)

	// Session settings
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	// Keepalive / timeouts
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	// Callbacks keep internal state accurate
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		c.setConnected(true)
		logger.Info("mqtt connected", "broker", cfg.MQTTBroker, "port", cfg.MQTTPort)
		// A clean session forgets subscriptions across reconnects.
		c.resubscribe()
	})

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.setConnected(false)
		logger.Warn("mqtt connection lost", "error", err)
	})

	c.client = mqtt.NewClient(opts)
	return c, nil
}

// Connect establishes connection to the MQTT broker.
// This function waits for the initial connection, and respects ctx and Disconnect().
func (c *Client) Connect(ctx context.Context) error {
	// Fail fast if already stopped.
	select {
	case <-c.stopCh:
		return fmt.Errorf("client stopped")
	default:
	}

	// Fast path.
	if c.IsConnected() {
		return nil
	}

	// Start connect attempt. With ConnectRetry(true), it may keep retrying internally.
	token := c.client.Connect()

	// Wait in a ctx/stop-aware loop.
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			// OnConnectHandler sets connected=true.
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return fmt.Errorf("client stopped")
		default:
		}
	}
}

// PublishAsync hands payload to paho and returns immediately. done is called
// exactly once from a paho-owned goroutine when the publish completes (PUBACK
// for QoS 1) or fails. An error return means nothing was sent and done will
// not be called.
func (c *Client) PublishAsync(topic string, qos byte, retained bool, payload []byte, done func(error)) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			c.logger.Debug("mqtt publish failed", "topic", topic, "error", err)
		}
		if done != nil {
			done(token.Error())
		}
	}()
	return nil
}

// Subscribe registers handler for topic. The subscription is (re)established
// on every connect; if the client is already connected it is sent now.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	c.subsMu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.subsMu.Unlock()

	if !c.IsConnected() {
		return nil
	}
	return c.subscribe(topic, qos, handler)
}

func (c *Client) subscribe(topic string, qos byte, handler MessageHandler) error {
	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	c.logger.Info("subscribed to mqtt topic", "topic", topic, "qos", qos)
	return nil
}

func (c *Client) resubscribe() {
	c.subsMu.Lock()
	subs := make(map[string]subscription, len(c.subs))
	for t, s := range c.subs {
		subs[t] = s
	}
	c.subsMu.Unlock()

	for topic, s := range subs {
		go func(topic string, s subscription) {
			if err := c.subscribe(topic, s.qos, s.handler); err != nil {
				c.logger.Error("mqtt resubscribe failed", "topic", topic, "error", err)
			}
		}(topic, s)
	}
}

// PublishStationHealth publishes station health/last-seen state.
func (c *Client) PublishStationHealth(prefix string, health types.StationHealth) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	topic := HealthTopic(prefix, health.StationID)

	if health.LastSeen.IsZero() {
		health.LastSeen = time.Now()
	}

	data, err := json.Marshal(health)
	if err != nil {
		return fmt.Errorf("marshal health: %w", err)
	}

	token := c.client.Publish(topic, 1, true, data) // retained
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if token.Error() != nil {
		c.logger.Error("failed to publish station health", "topic", topic, "error", token.Error())
		return fmt.Errorf("publish health: %w", token.Error())
	}

	c.logger.Debug("published station health",
		"topic", topic,
		"station_id", health.StationID,
		"last_seen", health.LastSeen,
		"healthy", health.Healthy,
	)
	return nil
}

// IsConnected returns whether the client is connected.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	return connected && c.client.IsConnected()
}

// Disconnect stops the client and closes the MQTT connection.
// Idempotent and safe to call multiple times.
// After Disconnect, Connect() will return "client stopped".
func (c *Client) Disconnect() {
	// Signal shutdown once (unblocks any Connect loops).
	c.stopOnce.Do(func() { close(c.stopCh) })

	// Paho Disconnect quiesces in-flight work for the given ms.
	if c.client != nil {
		c.client.Disconnect(250)
	}

	c.setConnected(false)
	c.logger.Info("mqtt disconnected")
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

// RecordsTopic is where a station publishes its record frames.
func RecordsTopic(prefix, stationID string) string {
	return prefix + "/" + stationID + "/records"
}

// RecordsWildcard matches the records topic of every station.
func RecordsWildcard(prefix string) string {
	return prefix + "/+/records"
}

func HealthTopic(prefix, stationID string) string {
	return prefix + "/" + stationID + "/health"
}

// StationFromTopic extracts the station id from a records or health topic.
func StationFromTopic(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, prefix+"/")
	if !ok {
		return "", false
	}
	station, _, ok := strings.Cut(rest, "/")
	if !ok || station == "" {
		return "", false
	}
	return station, true
}
