// Package nats carries envelopes over NATS Core subjects.
package nats

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/drblury/viewbridge/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "nats"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

func init() {
	Register()
}

// Register registers the NATS transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

const (
	// DefaultReconnectWait is the pause between reconnect attempts.
	DefaultReconnectWait = 2 * time.Second
	// DefaultMaxReconnects bounds reconnect attempts; a page session gives up
	// after roughly one minute without a server.
	DefaultMaxReconnects = 30
)

// ConnectionOptions returns the NATS options shared by publisher and
// subscriber. A positive dialTimeout bounds the initial connect.
func ConnectionOptions(clientName string, dialTimeout time.Duration) []nc.Option {
	opts := []nc.Option{
		nc.ReconnectWait(DefaultReconnectWait),
		nc.MaxReconnects(DefaultMaxReconnects),
	}
	if clientName != "" {
		opts = append(opts, nc.Name(clientName))
	}
	if dialTimeout > 0 {
		opts = append(opts, nc.Timeout(dialTimeout))
	}
	return opts
}

// Build creates a new NATS Core transport. JetStream is disabled: envelopes
// are fire-and-forget and bridge requests time out on their own.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	marshaler := &nats.NATSMarshaler{}
	opts := ConnectionOptions(cfg.GetNATSClientName(), cfg.GetRequestTimeout())
	jetStream := nats.JetStreamConfig{Disabled: true}

	publisher, err := PublisherFactory(
		nats.PublisherConfig{
			URL:         url,
			NatsOptions: opts,
			Marshaler:   marshaler,
			JetStream:   jetStream,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		nats.SubscriberConfig{
			URL:         url,
			NatsOptions: opts,
			Unmarshaler: marshaler,
			JetStream:   jetStream,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, transport.CloseOnError(publisher, err)
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}
