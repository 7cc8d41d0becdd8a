package runtime

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/viewbridge/internal/runtime/bridge"
	"github.com/drblury/viewbridge/internal/runtime/envelope"
	loggingpkg "github.com/drblury/viewbridge/internal/runtime/logging"
	metadatapkg "github.com/drblury/viewbridge/internal/runtime/metadata"
)

// EnvelopeContext describes one envelope received on the host topic.
type EnvelopeContext struct {
	// MessageUUID is the unique identifier of the message.
	MessageUUID string
	// NodeID is the view the envelope came from.
	NodeID string
	// MessageType is the envelope type.
	MessageType string
	// Origin is the origin the sender stamped on the message.
	Origin string
	// Metadata contains the message metadata.
	Metadata message.Metadata
	// Context is the context associated with the message.
	Context context.Context
	// StartedAt is when handling started.
	StartedAt time.Time
	// Duration is how long handling took (only set in OnEnvelopeDone and OnEnvelopeError).
	Duration time.Duration
}

// EnvelopeHooks defines callbacks around host-topic envelope handling.
// All hooks are optional.
type EnvelopeHooks struct {
	OnEnvelopeStart func(ctx EnvelopeContext)
	OnEnvelopeDone  func(ctx EnvelopeContext)
	OnEnvelopeError func(ctx EnvelopeContext, err error)
}

// Merge combines two EnvelopeHooks. The hooks from other run after the
// hooks from h.
func (h EnvelopeHooks) Merge(other EnvelopeHooks) EnvelopeHooks {
	return EnvelopeHooks{
		OnEnvelopeStart: chainEnvelopeHooks(h.OnEnvelopeStart, other.OnEnvelopeStart),
		OnEnvelopeDone:  chainEnvelopeHooks(h.OnEnvelopeDone, other.OnEnvelopeDone),
		OnEnvelopeError: chainEnvelopeErrorHooks(h.OnEnvelopeError, other.OnEnvelopeError),
	}
}

func chainEnvelopeHooks(a, b func(EnvelopeContext)) func(EnvelopeContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx EnvelopeContext) {
		a(ctx)
		b(ctx)
	}
}

func chainEnvelopeErrorHooks(a, b func(EnvelopeContext, error)) func(EnvelopeContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx EnvelopeContext, err error) {
		a(ctx, err)
		b(ctx, err)
	}
}

// EnvelopeHooksMiddleware invokes hooks around every host-topic envelope.
func EnvelopeHooksMiddleware(hooks EnvelopeHooks) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name: "envelope_hooks",
		Builder: func(s *Service) (message.HandlerMiddleware, error) {
			return envelopeHooksMiddleware(hooks), nil
		},
	}
}

func envelopeHooksMiddleware(hooks EnvelopeHooks) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			md := metadatapkg.FromWatermill(msg.Metadata)
			envCtx := EnvelopeContext{
				MessageUUID: msg.UUID,
				NodeID:      md.NodeID(),
				MessageType: md.MessageType(),
				Origin:      md.Origin(),
				Metadata:    msg.Metadata,
				Context:     msg.Context(),
				StartedAt:   time.Now(),
			}

			if hooks.OnEnvelopeStart != nil {
				hooks.OnEnvelopeStart(envCtx)
			}

			msgs, err := h(msg)
			envCtx.Duration = time.Since(envCtx.StartedAt)

			if err != nil {
				if hooks.OnEnvelopeError != nil {
					hooks.OnEnvelopeError(envCtx, err)
				}
			} else if hooks.OnEnvelopeDone != nil {
				hooks.OnEnvelopeDone(envCtx)
			}

			return msgs, err
		}
	}
}

// LoggingHooks returns bridge hooks that log request lifecycle and alerts.
func LoggingHooks(logger loggingpkg.ServiceLogger) bridge.Hooks {
	log := loggingpkg.OrNop(logger)
	return bridge.Hooks{
		OnRequestStart: func(info bridge.RequestInfo) {
			log.Debug("View request started", loggingpkg.LogFields{
				"node_id":      info.NodeID,
				"message_type": info.Type,
			})
		},
		OnRequestDone: func(info bridge.RequestInfo) {
			fields := loggingpkg.LogFields{
				"node_id":      info.NodeID,
				"message_type": info.Type,
				"outcome":      info.Outcome,
				"duration_ms":  info.Duration.Milliseconds(),
			}
			if info.Outcome == bridge.OutcomeReply {
				log.Debug("View request completed", fields)
				return
			}
			log.Info("View request did not complete", fields)
		},
		OnAlert: func(nodeID string, alert envelope.Alert) {
			log.Info("View alert raised", loggingpkg.LogFields{
				"node_id": nodeID,
				"level":   alert.Level,
				"message": alert.Message,
			})
		},
	}
}

// AlertingHooks returns bridge hooks that forward every alert to alertFunc.
func AlertingHooks(alertFunc func(nodeID string, alert envelope.Alert)) bridge.Hooks {
	return bridge.Hooks{OnAlert: alertFunc}
}
