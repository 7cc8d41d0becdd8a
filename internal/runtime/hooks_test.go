package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/viewbridge/internal/runtime/bridge"
	"github.com/drblury/viewbridge/internal/runtime/envelope"
	metadatapkg "github.com/drblury/viewbridge/internal/runtime/metadata"
)

func newHostMessage() *message.Message {
	msg := message.NewMessage("test-uuid", []byte("{}"))
	msg.Metadata.Set(metadatapkg.KeyNodeID, "view-1")
	msg.Metadata.Set(metadatapkg.KeyMessageType, "validate")
	msg.Metadata.Set(metadatapkg.KeyOrigin, testHostOrigin)
	msg.SetContext(context.Background())
	return msg
}

func TestEnvelopeHooks_OnEnvelopeStart(t *testing.T) {
	var captured EnvelopeContext
	hooks := EnvelopeHooks{
		OnEnvelopeStart: func(ctx EnvelopeContext) { captured = ctx },
	}

	handler := envelopeHooksMiddleware(hooks)(func(*message.Message) ([]*message.Message, error) {
		return nil, nil
	})
	_, err := handler(newHostMessage())

	require.NoError(t, err)
	assert.Equal(t, "test-uuid", captured.MessageUUID)
	assert.Equal(t, "view-1", captured.NodeID)
	assert.Equal(t, "validate", captured.MessageType)
	assert.Equal(t, testHostOrigin, captured.Origin)
	assert.False(t, captured.StartedAt.IsZero())
}

func TestEnvelopeHooks_OnEnvelopeDone(t *testing.T) {
	var captured EnvelopeContext
	hooks := EnvelopeHooks{
		OnEnvelopeDone: func(ctx EnvelopeContext) { captured = ctx },
	}

	handler := envelopeHooksMiddleware(hooks)(func(*message.Message) ([]*message.Message, error) {
		time.Sleep(5 * time.Millisecond)
		return nil, nil
	})
	_, err := handler(newHostMessage())

	require.NoError(t, err)
	assert.GreaterOrEqual(t, captured.Duration, 5*time.Millisecond)
}

func TestEnvelopeHooks_OnEnvelopeError(t *testing.T) {
	var captured error
	doneCalled := false
	hooks := EnvelopeHooks{
		OnEnvelopeDone:  func(EnvelopeContext) { doneCalled = true },
		OnEnvelopeError: func(_ EnvelopeContext, err error) { captured = err },
	}

	boom := errors.New("boom")
	handler := envelopeHooksMiddleware(hooks)(func(*message.Message) ([]*message.Message, error) {
		return nil, boom
	})
	_, err := handler(newHostMessage())

	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, captured, boom)
	assert.False(t, doneCalled)
}

func TestEnvelopeHooks_Merge(t *testing.T) {
	var calls []string
	first := EnvelopeHooks{
		OnEnvelopeStart: func(EnvelopeContext) { calls = append(calls, "start1") },
		OnEnvelopeDone:  func(EnvelopeContext) { calls = append(calls, "done1") },
	}
	second := EnvelopeHooks{
		OnEnvelopeStart: func(EnvelopeContext) { calls = append(calls, "start2") },
		OnEnvelopeError: func(EnvelopeContext, error) { calls = append(calls, "error2") },
	}

	handler := envelopeHooksMiddleware(first.Merge(second))(func(*message.Message) ([]*message.Message, error) {
		return nil, nil
	})
	_, _ = handler(newHostMessage())

	assert.Equal(t, []string{"start1", "start2", "done1"}, calls)
}

func TestEnvelopeHooksMiddleware_Registration(t *testing.T) {
	reg := EnvelopeHooksMiddleware(EnvelopeHooks{})
	assert.Equal(t, "envelope_hooks", reg.Name)
	assert.NotNil(t, reg.Builder)
}

func TestLoggingHooks(t *testing.T) {
	logger := &recordingServiceLogger{}
	hooks := LoggingHooks(logger)

	hooks.OnRequestStart(bridge.RequestInfo{NodeID: "v", Type: envelope.TypeValidate})
	hooks.OnRequestDone(bridge.RequestInfo{NodeID: "v", Type: envelope.TypeValidate, Outcome: bridge.OutcomeReply})
	hooks.OnRequestDone(bridge.RequestInfo{NodeID: "v", Type: envelope.TypeValidate, Outcome: bridge.OutcomeTimeout})
	hooks.OnAlert("v", envelope.Alert{Level: envelope.AlertWarn, Message: "m"})

	assert.Equal(t, []string{"View request started", "View request completed"}, logger.debugMessages())
	assert.Equal(t, []string{"View request did not complete", "View alert raised"}, logger.infoMessages())
}

func TestLoggingHooksNilLogger(t *testing.T) {
	hooks := LoggingHooks(nil)
	assert.NotPanics(t, func() {
		hooks.OnAlert("v", envelope.Alert{Level: envelope.AlertWarn, Message: "m"})
	})
}

func TestAlertingHooks(t *testing.T) {
	var gotNode string
	var gotAlert envelope.Alert
	hooks := AlertingHooks(func(nodeID string, alert envelope.Alert) {
		gotNode = nodeID
		gotAlert = alert
	})

	hooks.OnAlert("view-2", envelope.Alert{Level: envelope.AlertError, Message: "x"})

	assert.Equal(t, "view-2", gotNode)
	assert.Equal(t, envelope.AlertError, gotAlert.Level)
	assert.Nil(t, hooks.OnRequestStart)
}
