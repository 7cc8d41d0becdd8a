// Package rabbitmq carries envelopes over RabbitMQ. Each topic is a fanout
// exchange with an auto-deleted queue, since an envelope is only useful to
// a page that is still open.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"
	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/drblury/viewbridge/internal/runtime/metadata"
	"github.com/drblury/viewbridge/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "rabbitmq"

const contentType = "application/json"

// ErrContentType is returned when a delivery does not carry a JSON envelope.
var ErrContentType = errors.New("delivery is not a json envelope")

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// CloseConnection allows overriding how the shared connection is closed.
var CloseConnection = func(conn *amqp.ConnectionWrapper) error {
	return conn.Close()
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

func init() {
	Register()
}

// Register registers the RabbitMQ transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RabbitMQCapabilities)
}

// Marshaler maps envelope metadata onto AMQP message properties. The broker
// drops an envelope that waited longer than ttl in a queue.
type Marshaler struct {
	amqp.DefaultMarshaler
	TTL time.Duration
}

// NewMarshaler creates a transient-delivery envelope marshaler.
func NewMarshaler(ttl time.Duration) Marshaler {
	return Marshaler{
		DefaultMarshaler: amqp.DefaultMarshaler{NotPersistentDeliveryMode: true},
		TTL:              ttl,
	}
}

func (m Marshaler) Marshal(msg *message.Message) (amqp091.Publishing, error) {
	p, err := m.DefaultMarshaler.Marshal(msg)
	if err != nil {
		return p, err
	}
	p.DeliveryMode = amqp091.Transient
	p.ContentType = contentType
	p.MessageId = msg.UUID
	p.Type = msg.Metadata.Get(metadata.KeyMessageType)
	p.AppId = msg.Metadata.Get(metadata.KeyOrigin)
	p.CorrelationId = msg.Metadata.Get(metadata.KeyCorrelationID)
	p.Timestamp = time.Now().UTC()
	if m.TTL > 0 {
		p.Expiration = strconv.FormatInt(m.TTL.Milliseconds(), 10)
	}
	return p, nil
}

func (m Marshaler) Unmarshal(d amqp091.Delivery) (*message.Message, error) {
	if d.ContentType != "" && d.ContentType != contentType {
		return nil, fmt.Errorf("%w: %s", ErrContentType, d.ContentType)
	}
	return m.DefaultMarshaler.Unmarshal(d)
}

// Config returns the AMQP topology for envelopes posted to url.
func Config(url string, ttl time.Duration) amqp.Config {
	c := amqp.NewNonDurablePubSubConfig(url, amqp.GenerateQueueNameTopicName)
	c.Marshaler = NewMarshaler(ttl)
	c.Queue.AutoDelete = true
	return c
}

type connSubscriber struct {
	message.Subscriber
	conn *amqp.ConnectionWrapper
}

func (s connSubscriber) Close() error {
	return errors.Join(s.Subscriber.Close(), CloseConnection(s.conn))
}

// Build creates a new RabbitMQ transport. Publisher and subscriber share one
// connection, closed with the subscriber.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetRabbitMQURL()
	amqpConfig := Config(url, cfg.GetRequestTimeout())

	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   url,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return transport.Transport{}, err
	}

	publisher, err := PublisherFactory(amqpConfig, logger, conn)
	if err != nil {
		return transport.Transport{}, errors.Join(err, CloseConnection(conn))
	}

	subscriber, err := SubscriberFactory(amqpConfig, logger, conn)
	if err != nil {
		return transport.Transport{}, errors.Join(transport.CloseOnError(publisher, err), CloseConnection(conn))
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: connSubscriber{Subscriber: subscriber, conn: conn},
	}, nil
}
