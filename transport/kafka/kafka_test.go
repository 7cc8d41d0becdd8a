package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/viewbridge/internal/runtime/envelope"
	"github.com/drblury/viewbridge/transport"
	"github.com/drblury/viewbridge/transport/transporttest"
)

func TestRegister(t *testing.T) {
	reg := transport.DefaultRegistry
	defer func() { transport.DefaultRegistry = reg }()
	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, transport.KafkaCapabilities, caps)
	assert.True(t, caps.CrossProcess)
}

func TestPartitionKey(t *testing.T) {
	msg := transporttest.EnvelopeMessage(t, "chart-1", envelope.TypeGetValue)
	key, err := PartitionKey("views.page", msg)
	require.NoError(t, err)
	assert.Equal(t, "chart-1", key)

	broadcast := message.NewMessage(watermill.NewUUID(), []byte(`{}`))
	key, err = PartitionKey("views.page", broadcast)
	require.NoError(t, err)
	assert.Equal(t, "views.page", key)
}

func toConsumerMessage(t *testing.T, pm *sarama.ProducerMessage) *sarama.ConsumerMessage {
	t.Helper()
	value, err := pm.Value.Encode()
	require.NoError(t, err)
	key, err := pm.Key.Encode()
	require.NoError(t, err)

	cm := &sarama.ConsumerMessage{Topic: pm.Topic, Key: key, Value: value}
	for i := range pm.Headers {
		h := pm.Headers[i]
		cm.Headers = append(cm.Headers, &h)
	}
	return cm
}

func TestMarshalerRoundTripsEnvelopes(t *testing.T) {
	m := Marshaler()

	for _, typ := range []envelope.MessageType{
		envelope.TypeInit,
		envelope.TypeValidate,
		envelope.TypeInteractivityPublish,
		envelope.TypeUpdateResponseMonitor,
	} {
		t.Run(string(typ), func(t *testing.T) {
			sent := transporttest.EnvelopeMessage(t, "chart-1", typ)

			pm, err := m.Marshal("views.host", sent)
			require.NoError(t, err)
			assert.Equal(t, "views.host", pm.Topic)

			cm := toConsumerMessage(t, pm)
			assert.Equal(t, []byte("chart-1"), cm.Key)

			got, err := m.Unmarshal(cm)
			require.NoError(t, err)
			transporttest.RequireSameEnvelope(t, sent, got)
		})
	}
}

func TestSameViewSharesPartition(t *testing.T) {
	m := Marshaler()
	p := sarama.NewHashPartitioner("views.host")

	partitionOf := func(nodeID string, typ envelope.MessageType) int32 {
		pm, err := m.Marshal("views.host", transporttest.EnvelopeMessage(t, nodeID, typ))
		require.NoError(t, err)
		partition, err := p.Partition(pm, 12)
		require.NoError(t, err)
		return partition
	}

	first := partitionOf("chart-1", envelope.TypeRequestViewUpdate)
	assert.Equal(t, first, partitionOf("chart-1", envelope.TypeUpdateResponseMonitor))
	assert.Equal(t, first, partitionOf("chart-1", envelope.TypeCancelViewRequest))
}

func TestBuild(t *testing.T) {
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	defer func() { PublisherFactory, SubscriberFactory = originalPub, originalSub }()

	var pubCfg kafka.PublisherConfig
	var subCfg kafka.SubscriberConfig
	pub, sub := &fakePublisher{}, &fakeSubscriber{}
	PublisherFactory = func(cfg kafka.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		pubCfg = cfg
		return pub, nil
	}
	SubscriberFactory = func(cfg kafka.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
		subCfg = cfg
		return sub, nil
	}

	cfg := &transporttest.Config{
		PubSubSystem:       TransportName,
		KafkaBrokers:       []string{"kafka-1:9092", "kafka-2:9092"},
		KafkaConsumerGroup: "page-42",
	}
	tr, err := Build(context.Background(), cfg, watermill.NopLogger{})
	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)
	assert.Same(t, sub, tr.Subscriber)

	assert.Equal(t, cfg.KafkaBrokers, pubCfg.Brokers)
	assert.Equal(t, cfg.KafkaBrokers, subCfg.Brokers)
	assert.Equal(t, "page-42", subCfg.ConsumerGroup)
	assert.NotNil(t, pubCfg.Tracer)
	assert.NotNil(t, subCfg.Tracer)
	assert.Equal(t, clientID, pubCfg.OverwriteSaramaConfig.ClientID)
	assert.Equal(t, clientID, subCfg.OverwriteSaramaConfig.ClientID)
	assert.Equal(t, int(transport.KafkaCapabilities.MaxMessageSize), pubCfg.OverwriteSaramaConfig.Producer.MaxMessageBytes)
	assert.True(t, pubCfg.OverwriteSaramaConfig.Producer.Return.Successes)

	// The configured marshaler is the node-keyed one.
	pm, err := pubCfg.Marshaler.Marshal("views.host", transporttest.EnvelopeMessage(t, "grid-7", envelope.TypeLoad))
	require.NoError(t, err)
	key, err := pm.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "grid-7", string(key))
}

func TestBuildErrors(t *testing.T) {
	originalPub, originalSub := PublisherFactory, SubscriberFactory
	defer func() { PublisherFactory, SubscriberFactory = originalPub, originalSub }()
	cfg := &transporttest.Config{KafkaBrokers: []string{"kafka-1:9092"}}

	t.Run("publisher", func(t *testing.T) {
		boom := errors.New("no brokers reachable")
		PublisherFactory = func(kafka.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return nil, boom
		}
		_, err := Build(context.Background(), cfg, watermill.NopLogger{})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("subscriber closes publisher", func(t *testing.T) {
		boom := errors.New("consumer group rejected")
		pub := &fakePublisher{}
		PublisherFactory = func(kafka.PublisherConfig, watermill.LoggerAdapter) (message.Publisher, error) {
			return pub, nil
		}
		SubscriberFactory = func(kafka.SubscriberConfig, watermill.LoggerAdapter) (message.Subscriber, error) {
			return nil, boom
		}
		_, err := Build(context.Background(), cfg, watermill.NopLogger{})
		assert.ErrorIs(t, err, boom)
		assert.True(t, pub.closed)
	})
}

type fakePublisher struct{ closed bool }

func (f *fakePublisher) Publish(string, ...*message.Message) error { return nil }
func (f *fakePublisher) Close() error                              { f.closed = true; return nil }

type fakeSubscriber struct{}

func (f *fakeSubscriber) Subscribe(context.Context, string) (<-chan *message.Message, error) {
	return make(chan *message.Message), nil
}
func (f *fakeSubscriber) Close() error { return nil }
