package mqtt

import (
	"fmt"
)

// SessionHandler receives one message addressed to a tenant's session,
// with the tenant id already taken from the topic.
type SessionHandler func(tenantID string, payload []byte) error

// SubscribeSessionCommands listens on <prefix>/session/+/command and
// hands each message to handler with its tenant id. A message whose topic
// does not resolve to a tenant is dropped with ErrNotSessionTopic, which
// the handler wrapper logs.
//
// The subscription is restored after a reconnect.
//
// Parameters:
//   - qos: Maximum QoS for delivered commands (0, 1, or 2)
//   - handler: Called once per command; should not block for long
//
// Returns:
//   - error: wraps ErrSubscribeFailed, or ErrNotConnected / ErrInvalidQoS
func (c *Client) SubscribeSessionCommands(qos byte, handler SessionHandler) error {
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	return c.subscribe(c.topics.AllSessionCommands(), qos, c.routeSession(handler))
}

// routeSession adapts a SessionHandler to a topic-level MessageHandler.
func (c *Client) routeSession(handler SessionHandler) MessageHandler {
	return func(topic string, payload []byte) error {
		tenantID, ok := c.topics.TenantFromTopic(topic)
		if !ok {
			return fmt.Errorf("%w: %q", ErrNotSessionTopic, topic)
		}
		return handler(tenantID, payload)
	}
}

// subscribe registers handler on topic and remembers it so that
// handleConnect can restore it. The entry is dropped again if the broker
// rejects the subscription or does not answer in time.
func (c *Client) subscribe(topic string, qos byte, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	c.subMu.Unlock()

	var err error
	token := c.client.Subscribe(topic, qos, c.wrapHandler(handler))
	switch {
	case !token.WaitTimeout(defaultPublishTimeout):
		err = fmt.Errorf("%w: %s: timeout after %v", ErrSubscribeFailed, topic, defaultPublishTimeout)
	case token.Error() != nil:
		err = fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, token.Error())
	}
	if err != nil {
		c.subMu.Lock()
		delete(c.subscriptions, topic)
		c.subMu.Unlock()
	}
	return err
}
