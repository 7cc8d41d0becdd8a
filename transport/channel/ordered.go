package channel

import (
	"context"
	"errors"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// ErrClosed is returned when publishing to a closed PubSub.
var ErrClosed = errors.New("channel pub/sub closed")

// PubSub is a gochannel pub/sub that keeps publish order per topic.
//
// gochannel hands every message to its subscribers on a fresh goroutine, so
// two messages published back to back may arrive swapped. PubSub queues
// messages per topic and a single drain goroutine publishes them one at a
// time, waiting for the subscribers' ack before the next one. Publish itself
// never waits for a subscriber, so a handler may publish to a topic whose
// subscriber is busy publishing back.
type PubSub struct {
	ch     *gochannel.GoChannel
	logger watermill.LoggerAdapter

	mu     sync.Mutex
	queues map[string]*topicQueue
	closed bool
	wg     sync.WaitGroup
}

type topicQueue struct {
	pending  []*message.Message
	draining bool
}

// NewPubSub creates an ordered in-memory pub/sub. cfg is passed to gochannel
// with BlockPublishUntilSubscriberAck forced on.
func NewPubSub(cfg gochannel.Config, logger watermill.LoggerAdapter) *PubSub {
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	cfg.BlockPublishUntilSubscriberAck = true
	return &PubSub{
		ch:     gochannel.NewGoChannel(cfg, logger),
		logger: logger,
		queues: make(map[string]*topicQueue),
	}
}

// Publish queues messages for topic and returns without waiting for delivery.
func (p *PubSub) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	q, ok := p.queues[topic]
	if !ok {
		q = &topicQueue{}
		p.queues[topic] = q
	}
	q.pending = append(q.pending, messages...)
	if !q.draining {
		q.draining = true
		p.wg.Add(1)
		go p.drain(topic, q)
	}
	return nil
}

func (p *PubSub) drain(topic string, q *topicQueue) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		if p.closed || len(q.pending) == 0 {
			q.pending = nil
			q.draining = false
			p.mu.Unlock()
			return
		}
		msg := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		p.mu.Unlock()

		if err := p.ch.Publish(topic, msg); err != nil {
			p.logger.Error("Could not deliver message", err, watermill.LogFields{
				"topic":        topic,
				"message_uuid": msg.UUID,
			})
		}
	}
}

// Subscribe returns the messages published on topic from now on.
func (p *PubSub) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return p.ch.Subscribe(ctx, topic)
}

// Close stops delivery and closes every subscription. Queued messages that
// were not delivered yet are dropped. Close is idempotent.
func (p *PubSub) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	err := p.ch.Close()
	p.wg.Wait()
	return err
}
