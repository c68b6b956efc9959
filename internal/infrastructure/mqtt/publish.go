package mqtt

import "fmt"

// maxPayloadSize caps outbound messages at 1MB, in line with common
// broker limits. Presence payloads are tiny; this guards WritePoint-style
// misuse, not normal traffic.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits (bounded) for the broker to
// acknowledge it.
//
// retained=true makes the broker hand the message to every future
// subscriber as current state; the presence bridge uses that for
// availability and roster topics. Transient events go unretained.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := validateSend(topic, qos, len(payload)); err != nil {
		return err
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// PublishString publishes a string payload.
func (c *Client) PublishString(topic string, payload string, qos byte, retained bool) error {
	return c.Publish(topic, []byte(payload), qos, retained)
}

// validateSend rejects malformed publish/subscribe parameters before
// they reach paho.
func validateSend(topic string, qos byte, payloadLen int) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if payloadLen > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes",
			ErrPublishFailed, payloadLen, maxPayloadSize)
	}
	return nil
}
