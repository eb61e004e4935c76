package consumers

import (
	"context"
	"fmt"
	"time"

	"prago-api/config"
	"prago-api/tasks"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const jobTimeout = 2 * time.Minute

type Handler interface {
	Handle(ctx context.Context, job tasks.Job) error
}

type TaskConsumer struct {
	handler Handler
}

func NewTaskConsumer(handler Handler) *TaskConsumer {
	return &TaskConsumer{handler: handler}
}

// Start consumes the task queue and the dead letter queue until ctx ends
// or the channel closes.
func (c *TaskConsumer) Start(ctx context.Context, ch *amqp.Channel, cfg *config.Config) error {
	msgs, err := ch.Consume(
		cfg.TaskQueue,
		"prago-worker", // consumer tag
		false,          // auto-ack
		false,          // exclusive
		false,          // no-local
		false,          // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("register task consumer: %w", err)
	}

	go func() {
		for msg := range msgs {
			c.process(ctx, msg)
		}
	}()

	dlqMsgs, err := ch.Consume(
		cfg.DeadLetterQueue,
		"prago-worker-dlq", // consumer tag
		false,              // auto-ack
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,
	)
	if err != nil {
		log.Error().Err(err).Msg("failed to register dead letter consumer")
		return nil
	}

	go func() {
		for msg := range dlqMsgs {
			processDeadLetter(msg)
		}
	}()
	return nil
}

func (c *TaskConsumer) process(ctx context.Context, msg amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("kind", msg.Type).Msg("recovered from panic in job")
			_ = msg.Nack(false, false)
		}
	}()

	if msg.Type == "" || len(msg.Body) == 0 {
		log.Warn().Bytes("body", msg.Body).Msg("invalid job message")
		_ = msg.Nack(false, false) // reject, no requeue
		return
	}

	job := tasks.Job{Kind: tasks.Kind(msg.Type), Payload: msg.Body}

	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	if err := c.handler.Handle(jobCtx, job); err != nil {
		log.Error().Err(err).Str("kind", msg.Type).Msg("job failed")
		_ = msg.Nack(false, false)
		return
	}

	if err := msg.Ack(false); err != nil {
		log.Error().Err(err).Str("kind", msg.Type).Msg("ack failed")
	}
}

func processDeadLetter(msg amqp.Delivery) {
	log.Warn().Str("kind", msg.Type).Int("body_len", len(msg.Body)).Msg("received dead letter")
	if err := msg.Ack(false); err != nil {
		log.Error().Err(err).Msg("ack dead letter failed")
	}
}
