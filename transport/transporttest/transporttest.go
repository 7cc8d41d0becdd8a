// Package transporttest holds helpers for testing transport backends with
// real viewbridge envelopes.
package transporttest

import (
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	"github.com/drblury/viewbridge/internal/runtime/envelope"
	"github.com/drblury/viewbridge/internal/runtime/frame"
	"github.com/drblury/viewbridge/internal/runtime/metadata"
)

// Origin is the page origin stamped on envelopes built here.
const Origin = "https://page.example"

// Config is a transport.Config with plain fields.
type Config struct {
	PubSubSystem       string
	RequestTimeout     time.Duration
	KafkaBrokers       []string
	KafkaConsumerGroup string
	RabbitMQURL        string
	NATSURL            string
	NATSClientName     string
	HTTPServerAddress  string
	HTTPPublisherURL   string
	AWSRegion          string
	AWSAccountID       string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSEndpoint        string
}

func (c *Config) GetPubSubSystem() string          { return c.PubSubSystem }
func (c *Config) GetRequestTimeout() time.Duration { return c.RequestTimeout }
func (c *Config) GetKafkaBrokers() []string        { return c.KafkaBrokers }
func (c *Config) GetKafkaConsumerGroup() string    { return c.KafkaConsumerGroup }
func (c *Config) GetRabbitMQURL() string           { return c.RabbitMQURL }
func (c *Config) GetNATSURL() string               { return c.NATSURL }
func (c *Config) GetNATSClientName() string        { return c.NATSClientName }
func (c *Config) GetHTTPServerAddress() string     { return c.HTTPServerAddress }
func (c *Config) GetHTTPPublisherURL() string      { return c.HTTPPublisherURL }
func (c *Config) GetAWSRegion() string             { return c.AWSRegion }
func (c *Config) GetAWSAccountID() string          { return c.AWSAccountID }
func (c *Config) GetAWSAccessKeyID() string        { return c.AWSAccessKeyID }
func (c *Config) GetAWSSecretAccessKey() string    { return c.AWSSecretAccessKey }
func (c *Config) GetAWSEndpoint() string           { return c.AWSEndpoint }

// EnvelopeMessage encodes an envelope of type typ for nodeID the way a
// page posts it.
func EnvelopeMessage(t testing.TB, nodeID string, typ envelope.MessageType) *message.Message {
	t.Helper()
	env := envelope.New(nodeID, typ)
	env.Namespace = "views"
	msg, err := frame.Encode(env, Origin, Origin)
	require.NoError(t, err)
	return msg
}

// RequireSameEnvelope fails unless got carries the message id, the routing
// metadata and the envelope of want.
func RequireSameEnvelope(t testing.TB, want, got *message.Message) {
	t.Helper()
	require.NotNil(t, got)
	require.Equal(t, want.UUID, got.UUID)

	for _, key := range []string{
		metadata.KeyOrigin,
		metadata.KeyTargetOrigin,
		metadata.KeyNodeID,
		metadata.KeyMessageType,
		metadata.KeyCorrelationID,
	} {
		require.Equal(t, want.Metadata.Get(key), got.Metadata.Get(key), "metadata %s", key)
	}

	wantEv, err := frame.Decode(want)
	require.NoError(t, err)
	gotEv, err := frame.Decode(got)
	require.NoError(t, err)
	require.Equal(t, wantEv, gotEv)
}
