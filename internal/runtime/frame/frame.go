// Package frame carries envelopes between the host and its views over a
// Watermill publisher/subscriber pair, the way window.postMessage carries
// them between frames.
package frame

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/viewbridge/internal/runtime/envelope"
	errspkg "github.com/drblury/viewbridge/internal/runtime/errors"
	"github.com/drblury/viewbridge/internal/runtime/ids"
	"github.com/drblury/viewbridge/internal/runtime/jsoncodec"
	"github.com/drblury/viewbridge/internal/runtime/logging"
	"github.com/drblury/viewbridge/internal/runtime/metadata"
)

// WildcardOrigin is the postMessage wildcard. It is never accepted as a
// target origin.
const WildcardOrigin = "*"

// HostTopic is the topic views post to.
func HostTopic(prefix string) string {
	return prefix + ".host"
}

// ViewTopic is the topic the host posts to for one view.
func ViewTopic(prefix, nodeID string) string {
	return prefix + ".view." + nodeID
}

// Poster posts an envelope to a fixed destination.
type Poster interface {
	Post(ctx context.Context, env *envelope.Envelope) error
}

// Port is one side of the frame boundary. Messages it posts carry its
// origin; messages it receives are dropped unless they target it.
type Port struct {
	origin string
	pub    message.Publisher
	sub    message.Subscriber
	log    logging.ServiceLogger
}

// NewPort creates a port for origin. sub may be nil for a post-only port.
func NewPort(origin string, pub message.Publisher, sub message.Subscriber, log logging.ServiceLogger) (*Port, error) {
	if origin == "" || origin == WildcardOrigin {
		return nil, errspkg.ErrHostOriginRequired
	}
	if pub == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	return &Port{origin: origin, pub: pub, sub: sub, log: logging.OrNop(log)}, nil
}

// Origin returns the origin stamped on posted messages.
func (p *Port) Origin() string {
	return p.origin
}

// PostMessage publishes env on topic, restricted to receivers whose origin
// is targetOrigin.
func (p *Port) PostMessage(ctx context.Context, topic string, env *envelope.Envelope, targetOrigin string) error {
	if topic == "" {
		return errspkg.ErrTopicRequired
	}
	msg, err := Encode(env, p.origin, targetOrigin)
	if err != nil {
		return err
	}
	if ctx != nil {
		msg.SetContext(ctx)
	}
	if err := p.pub.Publish(topic, msg); err != nil {
		return fmt.Errorf("post %s to %s: %w", env.Type, topic, err)
	}
	p.log.Trace("Posted envelope", logging.LogFields{
		"topic":        topic,
		"node_id":      env.NodeID,
		"message_type": env.Type,
	})
	return nil
}

// Listen subscribes to topic and calls fn for every envelope addressed to
// this port's origin until ctx is done. Undecodable messages and messages
// for another origin are acked and dropped.
func (p *Port) Listen(ctx context.Context, topic string, fn func(envelope.Event)) error {
	if p.sub == nil {
		return errspkg.ErrSubscriberRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}
	messages, err := p.sub.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", topic, err)
	}
	go func() {
		for msg := range messages {
			ev, ok := p.Receive(msg)
			msg.Ack()
			if ok {
				fn(ev)
			}
		}
	}()
	return nil
}

// Receive decodes msg and applies the target-origin check.
func (p *Port) Receive(msg *message.Message) (envelope.Event, bool) {
	md := metadata.FromWatermill(msg.Metadata)
	if md.TargetOrigin() != p.origin {
		p.log.Trace("Dropped envelope for another origin", logging.LogFields{
			"target_origin": md.TargetOrigin(),
			"message_uuid":  msg.UUID,
		})
		return envelope.Event{}, false
	}
	ev, err := Decode(msg)
	if err != nil {
		p.log.Trace("Dropped undecodable envelope", logging.LogFields{
			"message_uuid": msg.UUID,
			"error":        err.Error(),
		})
		return envelope.Event{}, false
	}
	return ev, true
}

// To returns a Poster that posts to topic with targetOrigin.
func (p *Port) To(topic, targetOrigin string) *Target {
	return &Target{port: p, topic: topic, targetOrigin: targetOrigin}
}

// Target is a Port bound to one destination.
type Target struct {
	port         *Port
	topic        string
	targetOrigin string
}

func (t *Target) Post(ctx context.Context, env *envelope.Envelope) error {
	return t.port.PostMessage(ctx, t.topic, env, t.targetOrigin)
}

// Encode wraps env in a Watermill message sent from origin to targetOrigin.
func Encode(env *envelope.Envelope, origin, targetOrigin string) (*message.Message, error) {
	if targetOrigin == "" || targetOrigin == WildcardOrigin {
		return nil, errspkg.ErrWildcardTargetOrigin
	}
	if env == nil || env.NodeID == "" {
		return nil, errspkg.ErrNodeIDRequired
	}
	out := *env
	out.Origin = origin
	payload, err := jsoncodec.Marshal(&out)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", env.Type, err)
	}
	msg := message.NewMessage(ids.CreateULID(), payload)
	msg.Metadata = metadata.ToWatermill(metadata.New(
		metadata.KeyOrigin, origin,
		metadata.KeyTargetOrigin, targetOrigin,
		metadata.KeyNodeID, env.NodeID,
		metadata.KeyMessageType, string(env.Type),
		metadata.KeyCorrelationID, ids.CreateULID(),
	))
	return msg, nil
}

// Decode unwraps a message produced by Encode. The event origin is taken
// from the message metadata, not from the body.
func Decode(msg *message.Message) (envelope.Event, error) {
	if !jsoncodec.Valid(msg.Payload) {
		return envelope.Event{}, fmt.Errorf("message %s: payload is not JSON", msg.UUID)
	}
	var env envelope.Envelope
	if err := jsoncodec.Unmarshal(msg.Payload, &env); err != nil {
		return envelope.Event{}, fmt.Errorf("message %s: %w", msg.UUID, err)
	}
	return envelope.Event{
		Origin: metadata.FromWatermill(msg.Metadata).Origin(),
		Data:   &env,
	}, nil
}
