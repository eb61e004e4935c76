package rabbitmq

import (
	"context"
	"time"

	"prago-api/config"
	"prago-api/tasks"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

var _ tasks.Enqueuer = (*RabbitMQ)(nil)

type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

type RabbitMQ struct {
	Conn    *amqp.Connection
	Channel *amqp.Channel
	Cfg     *config.Config

	pub publisher
}

func NewRabbitMQ(cfg *config.Config) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &RabbitMQ{
		Conn:    conn,
		Channel: ch,
		Cfg:     cfg,
		pub:     ch,
	}, nil
}

func (r *RabbitMQ) deadLetterExchange() string {
	return r.Cfg.DeadLetterQueue + "_exchange"
}

func (r *RabbitMQ) SetupQueues() error {
	// dead letter exchange and queue
	if err := r.Channel.ExchangeDeclare(
		r.deadLetterExchange(),
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return err
	}

	_, err := r.Channel.QueueDeclare(
		r.Cfg.DeadLetterQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-queue-type": "classic",
		},
	)
	if err != nil {
		return err
	}

	if err := r.Channel.QueueBind(
		r.Cfg.DeadLetterQueue,
		r.Cfg.DeadLetterQueue,
		r.deadLetterExchange(),
		false,
		nil,
	); err != nil {
		return err
	}

	if err := r.Channel.ExchangeDeclare(
		r.Cfg.TaskExchange,
		"direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return err
	}

	// needs the rabbitmq_delayed_message_exchange plugin
	delayed := true
	if err := r.Channel.ExchangeDeclare(
		r.Cfg.DelayExchange,
		"x-delayed-message",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		amqp.Table{"x-delayed-type": "direct"},
	); err != nil {
		// a failed declare closes the channel
		log.Warn().Err(err).Msg("delayed exchange not supported, delayed jobs will run immediately")
		delayed = false
		ch, chErr := r.Conn.Channel()
		if chErr != nil {
			return chErr
		}
		r.Channel, r.pub = ch, ch
		r.Cfg.DelayExchange = r.Cfg.TaskExchange
	}

	// main task queue with priorities and dead lettering
	_, err = r.Channel.QueueDeclare(
		r.Cfg.TaskQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-max-priority":            r.Cfg.MaxPriority,
			"x-dead-letter-exchange":    r.deadLetterExchange(),
			"x-dead-letter-routing-key": r.Cfg.DeadLetterQueue,
		},
	)
	if err != nil {
		return err
	}

	if err := r.Channel.QueueBind(r.Cfg.TaskQueue, "", r.Cfg.TaskExchange, false, nil); err != nil {
		return err
	}
	if delayed {
		return r.Channel.QueueBind(r.Cfg.TaskQueue, "", r.Cfg.DelayExchange, false, nil)
	}
	return nil
}

func buildMessage(job tasks.Job) amqp.Publishing {
	return amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		ContentType:  "application/json",
		Type:         string(job.Kind),
		Body:         job.Payload,
		Priority:     job.Kind.Priority(),
	}
}

func (r *RabbitMQ) Enqueue(ctx context.Context, job tasks.Job) error {
	return r.pub.PublishWithContext(ctx,
		r.Cfg.TaskExchange,
		"",
		false, // mandatory
		false, // immediate
		buildMessage(job),
	)
}

func (r *RabbitMQ) EnqueueDelayed(ctx context.Context, job tasks.Job, delay time.Duration) error {
	msg := buildMessage(job)
	msg.Headers = amqp.Table{
		"x-delay": delay.Milliseconds(),
	}

	return r.pub.PublishWithContext(ctx,
		r.Cfg.DelayExchange,
		"",
		false, // mandatory
		false, // immediate
		msg,
	)
}

func (r *RabbitMQ) Close() {
	if r.Channel != nil {
		if err := r.Channel.Close(); err != nil {
			log.Error().Err(err).Msg("close rabbitmq channel")
		}
	}
	if r.Conn != nil {
		if err := r.Conn.Close(); err != nil {
			log.Error().Err(err).Msg("close rabbitmq connection")
		}
	}
}
