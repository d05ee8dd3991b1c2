// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/vkropotko/fulfillment/internal/models"
)

// OrderStatusEvent is the wire payload for an order status transition
type OrderStatusEvent struct {
	OrderID    string    `json:"order_id"`
	Status     string    `json:"status"`
	BuyerID    int64     `json:"buyer_id"`
	SellerID   int64     `json:"seller_id"`
	ProductID  int64     `json:"product_id"`
	Quantity   int       `json:"quantity"`
	Amount     float64   `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}

// KafkaPublisher emits order status events to one topic, keyed by
// order id so transitions of one order stay in partition order.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafkaPublisher creates a publisher writing to topic via brokers
func NewKafkaPublisher(brokers []string, topic string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		log: log,
	}
}

// OrderStatusChanged publishes the transition. Publishing is
// best-effort: a broker failure is logged, not surfaced, so it can
// never fail an order that already reached its status.
func (p *KafkaPublisher) OrderStatusChanged(ctx context.Context, order *models.Order) {
	event := OrderStatusEvent{
		OrderID:    order.ID.String(),
		Status:     order.Status,
		BuyerID:    order.BuyerID,
		SellerID:   order.SellerID,
		ProductID:  order.ProductID,
		Quantity:   order.Quantity,
		Amount:     order.Amount(),
		OccurredAt: time.Now(),
	}

	value, err := json.Marshal(event)
	if err != nil {
		p.log.Error("failed to marshal order event", zap.Error(err))
		return
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.OrderID),
		Value: value,
	})
	if err != nil {
		p.log.Error("failed to publish order event",
			zap.String("order_id", event.OrderID),
			zap.String("status", event.Status),
			zap.Error(err))
	}
}

// Close flushes and closes the underlying writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
