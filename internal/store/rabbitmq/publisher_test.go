package rabbitmq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestQueues(t *testing.T) {
	mainQ, retryQ, dlqQ := Queues("bot_events")
	assert.Equal(t, "bot_events", mainQ)
	assert.Equal(t, "bot_events.retry", retryQ)
	assert.Equal(t, "bot_events.dlq", dlqQ)
}

func TestAttempt(t *testing.T) {
	assert.Equal(t, 0, Attempt(amqp.Delivery{}))
	assert.Equal(t, 2, Attempt(amqp.Delivery{Headers: amqp.Table{AttemptHeader: int32(2)}}))
	assert.Equal(t, 3, Attempt(amqp.Delivery{Headers: amqp.Table{AttemptHeader: int64(3)}}))
	assert.Equal(t, 0, Attempt(amqp.Delivery{Headers: amqp.Table{AttemptHeader: "x"}}))
}
