// Package events publishes order lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"prago-api/models"

	"github.com/segmentio/kafka-go"
)

const (
	OrderCreated  = "order.created"
	OrderPaid     = "order.paid"
	OrderCanceled = "order.canceled"
)

type Publisher interface {
	Publish(ctx context.Context, event models.OrderEvent) error
}

func NewOrderEvent(eventType string, order *models.Order) models.OrderEvent {
	return models.OrderEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Type:        eventType,
		Status:      order.Status,
		OrderType:   order.OrderType,
		FinalAmount: order.FinalAmount.StringFixed(2),
		Occurred:    time.Now().UTC(),
	}
}

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: NewKafkaWriter(brokers, topic)}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event models.OrderEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}

	// order-order.paid-42
	msg := kafka.Message{
		Key:   []byte(fmt.Sprintf("order-%s-%d", event.Type, event.OrderID)),
		Value: value,
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop drops every event. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, models.OrderEvent) error { return nil }
