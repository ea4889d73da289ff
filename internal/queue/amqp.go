package queue

import (
	"github.com/rs/zerolog/log"
	"github.com/streadway/amqp"
)

// AMQPQueue hands dispatch jobs through RabbitMQ so the API process and
// the delivery worker can run as separate processes. Queues are durable
// and messages persistent: an admitted campaign survives a broker or
// worker restart.
type AMQPQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPQueue(url string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPQueue{conn: conn, ch: ch}, nil
}

func (q *AMQPQueue) declare(topic string) (amqp.Queue, error) {
	return q.ch.QueueDeclare(
		topic,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
}

func (q *AMQPQueue) Publish(topic string, payload []byte) error {
	qd, err := q.declare(topic)
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"",
		qd.Name,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         payload,
		},
	)
}

// Subscribe consumes the topic on a dedicated goroutine. A handler
// error nacks the delivery back onto the queue once; a redelivered
// message that fails again is dropped so a poison job cannot spin.
func (q *AMQPQueue) Subscribe(topic string, handler func(payload []byte) error) error {
	qd, err := q.declare(topic)
	if err != nil {
		return err
	}

	msgs, err := q.ch.Consume(
		qd.Name,
		"",
		false, // autoAck = false for reliability
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			if err := handler(d.Body); err != nil {
				if !d.Redelivered {
					d.Nack(false, true)
					continue
				}
				log.Error().Err(err).Str("topic", topic).Msg("dropping job after redelivery")
			}
			d.Ack(false)
		}
	}()
	return nil
}

func (q *AMQPQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		q.conn.Close()
		return err
	}
	return q.conn.Close()
}

var _ Queue = (*AMQPQueue)(nil)
