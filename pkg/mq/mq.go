// Package mq publishes store events and carries store commands.
package mq

// MessageQueue 消息队列接口
type MessageQueue interface {
	Publish(topic string, message []byte) error
	Subscribe(topic string, handler func(message []byte) error) error
	Close() error
}

// KeyedPublisher is implemented by queues that can route messages by key.
// Messages with the same key keep their relative order.
type KeyedPublisher interface {
	PublishKeyed(topic, key string, message []byte) error
}

// PublishKeyed uses the keyed path when q supports it and falls back to Publish.
func PublishKeyed(q MessageQueue, topic, key string, message []byte) error {
	if kp, ok := q.(KeyedPublisher); ok {
		return kp.PublishKeyed(topic, key, message)
	}
	return q.Publish(topic, message)
}
