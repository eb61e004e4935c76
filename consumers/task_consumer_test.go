package consumers

import (
	"context"
	"errors"
	"testing"

	"prago-api/tasks"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

type fakeAcknowledger struct {
	acked, nacked, requeued bool
}

func (a *fakeAcknowledger) Ack(uint64, bool) error { a.acked = true; return nil }

func (a *fakeAcknowledger) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked, a.requeued = true, requeue
	return nil
}

func (a *fakeAcknowledger) Reject(uint64, bool) error { return nil }

type handlerFunc func(ctx context.Context, job tasks.Job) error

func (f handlerFunc) Handle(ctx context.Context, job tasks.Job) error { return f(ctx, job) }

func delivery(ack amqp.Acknowledger, kind string, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Type: kind, Body: []byte(body)}
}

func TestProcessAcksHandledJob(t *testing.T) {
	var got tasks.Job
	c := NewTaskConsumer(handlerFunc(func(_ context.Context, job tasks.Job) error {
		got = job
		return nil
	}))
	ack := &fakeAcknowledger{}

	c.process(context.Background(), delivery(ack, "payment_check", `{"order_id":3}`))

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	assert.Equal(t, tasks.KindPaymentCheck, got.Kind)
	assert.JSONEq(t, `{"order_id":3}`, string(got.Payload))
}

func TestProcessNacksFailures(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		body    string
		handler handlerFunc
	}{
		{"missing type", "", `{}`, func(context.Context, tasks.Job) error { return nil }},
		{"handler error", "email", `{}`, func(context.Context, tasks.Job) error { return errors.New("smtp down") }},
		{"handler panic", "email", `{}`, func(context.Context, tasks.Job) error { panic("boom") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAcknowledger{}
			NewTaskConsumer(tt.handler).process(context.Background(), delivery(ack, tt.kind, tt.body))

			assert.True(t, ack.nacked)
			assert.False(t, ack.requeued)
			assert.False(t, ack.acked)
		})
	}
}

func TestProcessDeadLetterAcks(t *testing.T) {
	ack := &fakeAcknowledger{}
	processDeadLetter(delivery(ack, "email", `{}`))
	assert.True(t, ack.acked)
}
