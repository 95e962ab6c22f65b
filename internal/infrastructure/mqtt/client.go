package mqtt

import (
	"context"
	"fmt"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/wa-gateway/internal/infrastructure/config"
)

// Client is the gateway's link to the broker. It mirrors session events
// onto per-tenant topics, receives session commands, and announces the
// gateway itself on the system status topic.
//
// All methods are safe for concurrent use. The command subscription is
// restored after every reconnect.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	// subscriptions are replayed by handleConnect.
	subMu         sync.RWMutex
	subscriptions map[string]subscription

	// mu guards the link flag and the hooks below it.
	mu        sync.RWMutex
	connected bool
	hooks     hooks
}

type hooks struct {
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is the subset of logging.Logger the client reports through.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler handles one message on a concrete topic. A returned
// error is logged; the message is acknowledged either way.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and waits for the first connection.
//
// The last will marks the gateway offline on <prefix>/system/status if it
// drops without Close. Reconnects back off between the configured
// reconnect delays, and every (re)connect republishes the online status.
//
// Parameters:
//   - cfg: MQTT configuration; cfg.TopicPrefix scopes every topic
//
// Returns:
//   - *Client: connected client
//   - error: wraps ErrConnectionFailed
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		topics:        Topics{Prefix: cfg.TopicPrefix},
		subscriptions: make(map[string]subscription),
	}

	opts := buildClientOptions(cfg)
	configureLWT(opts, c.topics, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.warn("MQTT reconnecting", "broker", cfg.Broker.Host)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// handleConnect runs asynchronously; mark the link up now so the
	// caller can subscribe straight away.
	c.setConnected(true)
	return c, nil
}

func (c *Client) handleConnect() {
	h := c.setConnected(true)
	c.restoreSubscriptions()
	c.publishStatus(buildOnlinePayload(c.cfg.Broker.ClientID))

	if h.onConnect != nil {
		h.onConnect()
	}
}

func (c *Client) handleDisconnect(err error) {
	if h := c.setConnected(false); h.onDisconnect != nil {
		h.onDisconnect(err)
	}
}

// setConnected records the link state and returns the hooks current at
// that moment.
func (c *Client) setConnected(v bool) hooks {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = v
	return c.hooks
}

func (c *Client) currentHooks() hooks {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hooks
}

// restoreSubscriptions replays tracked subscriptions after a reconnect.
// The broker's answer is not awaited; failures surface through the
// token asynchronously and are logged.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		token := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		go func(topic string) {
			if token.Wait() && token.Error() != nil {
				c.warn("restoring MQTT subscription failed", "topic", topic, "error", token.Error())
			}
		}(sub.topic)
	}
}

// publishStatus writes payload to the retained system status topic.
func (c *Client) publishStatus(payload string) pahomqtt.Token {
	return c.client.Publish(c.topics.SystemStatus(), byte(c.cfg.QoS), true, payload)
}

// Close announces a graceful shutdown on the status topic, then
// disconnects. Calling it on a client that never connected is a no-op.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		c.publishStatus(buildOfflinePayload(c.cfg.Broker.ClientID)).WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)
	return nil
}

// Topics returns the topic builder bound to the configured prefix.
func (c *Client) Topics() Topics {
	return c.topics
}

// HealthCheck reports ErrNotConnected while the broker link is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known link state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	up := c.connected
	c.mu.RUnlock()
	return up && c.client != nil && c.client.IsConnected()
}

// SetOnConnect sets a callback run after the first connect and every
// reconnect.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.hooks.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect sets a callback run when the link is lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.hooks.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets the logger for handler errors and panics. Without one
// they are dropped.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.hooks.logger = logger
	c.mu.Unlock()
}

// warn and fail log through the configured logger, if any.
func (c *Client) warn(msg string, args ...any) {
	if l := c.currentHooks().logger; l != nil {
		l.Warn(msg, args...)
	}
}

func (c *Client) fail(msg string, args ...any) {
	if l := c.currentHooks().logger; l != nil {
		l.Error(msg, args...)
	}
}

// wrapHandler recovers handler panics and logs handler errors.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.fail("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.warn("MQTT message rejected", "topic", msg.Topic(), "error", err)
		}
	}
}
