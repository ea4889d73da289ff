package queue

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// TopicDispatch carries campaign IDs from the API process to whichever
// process runs the delivery engine.
const TopicDispatch = "campaign_dispatch"

// Queue interface
type Queue interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler func(payload []byte) error) error
	Close() error
}

// InMemoryQueue dispatches jobs to in-process subscribers. It is used
// when the server runs the engine itself and in tests; deployments that
// split API and worker use AMQPQueue instead.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(payload []byte) error
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(payload []byte) error),
	}
}

// Publish sends a message to all subscribers
func (q *InMemoryQueue) Publish(topic string, payload []byte) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	for _, handler := range handlers {
		go q.processJob(handler, payload)
	}
	return nil
}

// processJob gives a failing handler maxAttempts tries with backoff
// before dropping the job, mirroring the broker's redelivery behavior.
func (q *InMemoryQueue) processJob(handler func(payload []byte) error, payload []byte) {
	const maxAttempts = 3
	for attempt := 1; ; attempt++ {
		err := handler(payload)
		if err == nil {
			return
		}
		if attempt >= maxAttempts {
			log.Error().Err(err).Int("attempts", attempt).Msg("job permanently failed")
			return
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("job failed, retrying")
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
	}
}

// Subscribe adds a handler for a topic
func (q *InMemoryQueue) Subscribe(topic string, handler func(payload []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}

func (q *InMemoryQueue) Close() error { return nil }

var _ Queue = (*InMemoryQueue)(nil)
