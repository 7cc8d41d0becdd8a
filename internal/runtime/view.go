package runtime

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/viewbridge/internal/runtime/agent"
	configpkg "github.com/drblury/viewbridge/internal/runtime/config"
	"github.com/drblury/viewbridge/internal/runtime/envelope"
	errspkg "github.com/drblury/viewbridge/internal/runtime/errors"
	"github.com/drblury/viewbridge/internal/runtime/frame"
	loggingpkg "github.com/drblury/viewbridge/internal/runtime/logging"
)

// ViewOptions identifies the view served by ConnectView.
type ViewOptions struct {
	NodeID    string
	Namespace string
	Handlers  agent.Handlers
}

// ConnectView runs the view side of nodeID on the same transport as the page:
// it listens on the view topic until ctx is done and replies on the host
// topic. The caller announces readiness with Agent.Load.
func ConnectView(ctx context.Context, conf *configpkg.Config, pub message.Publisher, sub message.Subscriber, opts ViewOptions, log loggingpkg.ServiceLogger) (*agent.Agent, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if sub == nil {
		return nil, errspkg.ErrSubscriberRequired
	}

	port, err := frame.NewPort(conf.HostOrigin, pub, sub, log)
	if err != nil {
		return nil, err
	}
	prefix := conf.GetTopicPrefix()

	a, err := agent.New(agent.Config{
		NodeID:     opts.NodeID,
		Namespace:  opts.Namespace,
		HostOrigin: conf.HostOrigin,
	}, opts.Handlers, port.To(frame.HostTopic(prefix), conf.HostOrigin), log)
	if err != nil {
		return nil, err
	}

	if err := port.Listen(ctx, frame.ViewTopic(prefix, opts.NodeID), func(ev envelope.Event) {
		a.HandleMessage(ctx, ev)
	}); err != nil {
		return nil, err
	}
	return a, nil
}
