package mqtt

import (
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// subackFailure is the SUBACK return code a broker uses to refuse a filter.
const subackFailure = 0x80

// Subscribe registers a handler for messages on the specified topic.
//
// Subscriptions are restored automatically after a reconnect.
//
// Parameters:
//   - topic: The topic pattern to subscribe to
//   - qos: Maximum QoS level for received messages (0, 1, or 2)
//   - handler: Callback function invoked for each message
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	return c.SubscribeMultiple([]string{topic}, qos, handler)
}

// SubscribeMultiple subscribes one handler to several topics in a single
// SUBSCRIBE packet. A filter refused by the broker fails the whole call.
//
// Parameters:
//   - topics: Topic filters, none empty
//   - qos: Maximum QoS level for received messages
//   - handler: Callback function invoked for each message
//
// Returns:
//   - error: nil on success, or wrapped ErrSubscribeFailed
func (c *Client) SubscribeMultiple(topics []string, qos byte, handler MessageHandler) error {
	if len(topics) == 0 {
		return ErrInvalidTopic
	}
	for _, topic := range topics {
		if topic == "" {
			return ErrInvalidTopic
		}
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	filters := make(map[string]byte, len(topics))
	c.subMu.Lock()
	for _, topic := range topics {
		filters[topic] = qos
		c.subscriptions[topic] = subscription{topic: topic, qos: qos, handler: handler}
	}
	c.subMu.Unlock()

	token := c.client.SubscribeMultiple(filters, c.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		c.forget(topics)
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		c.forget(topics)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}

	if st, ok := token.(*pahomqtt.SubscribeToken); ok {
		if refused := refusedFilters(st.Result()); len(refused) > 0 {
			c.forget(topics)
			return fmt.Errorf("%w: broker refused %s", ErrSubscribeFailed, strings.Join(refused, ", "))
		}
	}

	return nil
}

// refusedFilters returns the filters the broker answered with a failure code.
func refusedFilters(result map[string]byte) []string {
	var refused []string
	for topic, code := range result {
		if code == subackFailure {
			refused = append(refused, topic)
		}
	}
	return refused
}

// forget removes topics from reconnect tracking after a failed subscribe.
func (c *Client) forget(topics []string) {
	c.subMu.Lock()
	for _, topic := range topics {
		delete(c.subscriptions, topic)
	}
	c.subMu.Unlock()
}

// Unsubscribe removes a subscription and stops receiving messages for a topic.
//
// Parameters:
//   - topic: The exact topic pattern that was subscribed to
//
// Returns:
//   - error: nil on success, or wrapped error describing the failure
func (c *Client) Unsubscribe(topic string) error {
	if topic == "" {
		return ErrInvalidTopic
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	c.forget([]string{topic})

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrUnsubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnsubscribeFailed, err)
	}

	return nil
}

// SubscriptionCount returns the number of active subscriptions.
func (c *Client) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// HasSubscription checks if a subscription exists for the given topic.
//
// Note: This checks only the exact topic string, not pattern matching.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, exists := c.subscriptions[topic]
	return exists
}
