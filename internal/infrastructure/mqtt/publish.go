package mqtt

import (
	"context"
	"fmt"
)

// maxPayloadSize caps a single message at 1 MiB.
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker to accept it.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: %d byte payload exceeds %d", ErrPublishFailed, len(payload), maxPayloadSize)
	case !c.IsConnected():
		return ErrNotConnected
	}

	if err := wait(context.Background(), c.client.Publish(topic, qos, retained, payload), defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// PublishRetained publishes a retained message with the configured QoS, so a
// new subscriber sees the latest property value immediately.
func (c *Client) PublishRetained(topic string, payload []byte) error {
	return c.Publish(topic, payload, byte(c.cfg.QoS), true) //nolint:gosec // QoS validated to 0-2
}

// SetLinkStatus records whether the upstream INDI link is connected and
// republishes the retained status topic when the broker is reachable.
func (c *Client) SetLinkStatus(connected bool) error {
	c.indiConnected.Store(connected)
	if !c.IsConnected() {
		return nil
	}
	return c.PublishRetained(c.topics.Status(), c.onlineStatus())
}

func (c *Client) onlineStatus() []byte {
	return statusPayload(StatusOnline, c.cfg.Broker.ClientID, c.indiConnected.Load(), "")
}
