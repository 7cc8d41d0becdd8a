package transport

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/viewbridge/internal/runtime/config"
	errspkg "github.com/drblury/viewbridge/internal/runtime/errors"
	newtransport "github.com/drblury/viewbridge/transport"

	// Register every built-in transport.
	_ "github.com/drblury/viewbridge/transport/transports"
)

// Transport combines a publisher and subscriber pair produced by a factory.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	// Capabilities of the backend. Zero when the factory cannot tell.
	Capabilities Capabilities
}

// Factory abstracts how a page session initialises its message transport.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)

// Build calls f.
func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	return f(ctx, conf, logger)
}

// DefaultFactory returns the built-in transport factory backed by the
// transport registry.
func DefaultFactory() Factory {
	return defaultFactory{}
}

type defaultFactory struct{}

func (defaultFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	if conf == nil {
		return Transport{}, errspkg.ErrConfigRequired
	}

	t, err := newtransport.Build(ctx, conf, logger)
	if err != nil {
		return Transport{}, err
	}

	return Transport{
		Publisher:    t.Publisher,
		Subscriber:   t.Subscriber,
		Capabilities: t.Capabilities,
	}, nil
}

// Shared returns a factory that always hands out the same publisher and
// subscriber. Use it to run host and views in one process over one pub/sub.
func Shared(pub message.Publisher, sub message.Subscriber, caps Capabilities) Factory {
	return FactoryFunc(func(context.Context, *config.Config, watermill.LoggerAdapter) (Transport, error) {
		if pub == nil {
			return Transport{}, errspkg.ErrPublisherRequired
		}
		if sub == nil {
			return Transport{}, errspkg.ErrSubscriberRequired
		}
		return Transport{Publisher: pub, Subscriber: sub, Capabilities: caps}, nil
	})
}
