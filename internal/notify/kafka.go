package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// event types on the wire.
const (
	EventOrderConfirmation = "order.confirmation"
	EventOrderStatusUpdate = "order.status_update"
	EventProducerOrder     = "order.producer_notification"
)

// envelope is the kafka message body: the notification payload plus its
// event type, keyed by order ID for per-order ordering.
type envelope struct {
	Type string `json:"type"`
	OrderNotification
}

// KafkaNotifier publishes order events to a kafka topic. A downstream
// consumer turns them into emails; this process only guarantees the publish
// attempt.
type KafkaNotifier struct {
	writer *kafka.Writer
	topic  string
}

func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	return &KafkaNotifier{
		topic: topic,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
			BatchTimeout:           100 * time.Millisecond,
		},
	}
}

func (n *KafkaNotifier) SendOrderConfirmation(ctx context.Context, event OrderNotification) error {
	return n.publish(ctx, EventOrderConfirmation, event)
}

func (n *KafkaNotifier) SendOrderStatusUpdate(ctx context.Context, event OrderNotification) error {
	return n.publish(ctx, EventOrderStatusUpdate, event)
}

func (n *KafkaNotifier) SendProducerOrderNotification(ctx context.Context, event OrderNotification) error {
	return n.publish(ctx, EventProducerOrder, event)
}

func (n *KafkaNotifier) publish(ctx context.Context, eventType string, event OrderNotification) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(envelope{Type: eventType, OrderNotification: event})
	if err != nil {
		return err
	}
	return n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderID),
		Value: data,
	})
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
