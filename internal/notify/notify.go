// Package notify carries order events to customers and producers. The order
// lifecycle treats every notifier as fire-and-forget: a failed send is
// logged and swallowed, never rolled back into the order mutation.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// OrderNotification is the payload shared by all order events.
type OrderNotification struct {
	OrderID     string      `json:"order_id"`
	CustomerID  string      `json:"customer_id"`
	ProducerID  string      `json:"producer_id"`
	Status      string      `json:"status"`
	Total       float64     `json:"total"`
	PickupPoint string      `json:"pickup_point,omitempty"`
	PickupDate  *time.Time  `json:"pickup_date,omitempty"`
	OccurredAt  time.Time   `json:"occurred_at"`
}

// LogNotifier writes notifications to the structured log. It is the default
// when no broker is configured.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendOrderConfirmation(ctx context.Context, event OrderNotification) error {
	n.logger.Info("order confirmation",
		"order_id", event.OrderID, "customer_id", event.CustomerID, "total", event.Total)
	return nil
}

func (n *LogNotifier) SendOrderStatusUpdate(ctx context.Context, event OrderNotification) error {
	n.logger.Info("order status update",
		"order_id", event.OrderID, "customer_id", event.CustomerID, "status", event.Status)
	return nil
}

func (n *LogNotifier) SendProducerOrderNotification(ctx context.Context, event OrderNotification) error {
	n.logger.Info("producer order notification",
		"order_id", event.OrderID, "producer_id", event.ProducerID, "total", event.Total)
	return nil
}
