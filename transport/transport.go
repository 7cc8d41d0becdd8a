// Package transport defines how host and view envelopes travel between
// processes. Each backend (kafka, rabbitmq, nats, ...) lives in its own
// sub-package and registers itself with the transport registry.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// Transport is the publisher/subscriber pair a page session posts
// envelopes through, together with what the backend guarantees.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	// Capabilities is filled in by the registry.
	Capabilities Capabilities
}

// Close closes the publisher and the subscriber. A backend that serves
// both from one value is closed once.
func (t Transport) Close() error {
	var errs []error
	if t.Publisher != nil {
		errs = append(errs, t.Publisher.Close())
	}
	if t.Subscriber != nil && any(t.Subscriber) != any(t.Publisher) {
		errs = append(errs, t.Subscriber.Close())
	}
	return errors.Join(errs...)
}

// Builder creates a transport from config. Each backend registers one on init.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error)

// Config is the part of the page configuration backends read, so a backend
// never depends on the full config package.
type Config interface {
	GetPubSubSystem() string

	// GetRequestTimeout is how long an envelope stays useful. Backends that
	// can expire undelivered messages or bound a publish use it.
	GetRequestTimeout() time.Duration

	GetKafkaBrokers() []string
	GetKafkaConsumerGroup() string

	GetRabbitMQURL() string

	GetNATSURL() string
	GetNATSClientName() string

	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CloseOnError closes pub after a later build step failed with err.
func CloseOnError(pub message.Publisher, err error) error {
	if pub == nil {
		return err
	}
	if cerr := pub.Close(); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}
