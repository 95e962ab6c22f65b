package mqtt

import (
	"encoding/json"
	"fmt"
)

// maxPayloadSize caps one message at 1 MiB, the common broker default.
const maxPayloadSize = 1 << 20

// PublishSessionState mirrors a tenant's lifecycle state onto
// <prefix>/session/<tenant>/state. The message is retained so a
// subscriber sees the current state as soon as it joins.
func (c *Client) PublishSessionState(tenantID string, v any) error {
	if err := validTenant(tenantID); err != nil {
		return err
	}
	return c.publishJSON(c.topics.SessionState(tenantID), v, true)
}

// PublishSessionPairing forwards a pairing code to
// <prefix>/session/<tenant>/pairing. Codes expire quickly, so they are
// never retained.
func (c *Client) PublishSessionPairing(tenantID string, v any) error {
	if err := validTenant(tenantID); err != nil {
		return err
	}
	return c.publishJSON(c.topics.SessionPairing(tenantID), v, false)
}

func (c *Client) publishJSON(topic string, v any, retained bool) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encoding payload: %w", ErrPublishFailed, err)
	}
	return c.publish(topic, payload, byte(c.cfg.QoS), retained)
}

// publish sends payload and waits for the broker acknowledgement.
//
// Returns:
//   - error: ErrInvalidTopic, ErrInvalidQoS, ErrPayloadTooLarge,
//     ErrNotConnected, or a wrapped ErrPublishFailed
func (c *Client) publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrPayloadTooLarge, len(payload), maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: %s: timeout after %v", ErrPublishFailed, topic, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}
