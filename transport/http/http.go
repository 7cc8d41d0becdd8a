// Package http carries envelopes over HTTP webhooks. An envelope published
// on a topic is POSTed to the publisher URL joined with the topic path, and
// the subscriber serves one route per topic.
package http

import (
	"context"
	"errors"
	"fmt"
	"mime"
	nethttp "net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/viewbridge/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "http"

const contentType = "application/json"

// ErrContentType is returned for webhook requests that do not carry JSON.
var ErrContentType = errors.New("request is not a json envelope")

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(config, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(addr string, config http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return http.NewSubscriber(addr, config, logger)
}

func init() {
	Register()
}

// Register registers the HTTP transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.HTTPCapabilities)
}

// TopicPath is the route an envelope topic is served on.
func TopicPath(topic string) string {
	return "/" + url.PathEscape(topic)
}

// MarshalMessage builds the webhook request for a topic under base.
func MarshalMessage(base string) http.MarshalMessageFunc {
	base = strings.TrimSuffix(base, "/")
	return func(topic string, msg *message.Message) (*nethttp.Request, error) {
		req, err := http.DefaultMarshalMessageFunc(base+TopicPath(topic), msg)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	}
}

// UnmarshalMessage reads an envelope from a webhook request.
func UnmarshalMessage(topic string, req *nethttp.Request) (*message.Message, error) {
	mediaType, _, err := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if err != nil || mediaType != contentType {
		return nil, fmt.Errorf("%w: %q", ErrContentType, req.Header.Get("Content-Type"))
	}
	return http.DefaultUnmarshalMessageFunc(topic, req)
}

type httpServer interface {
	StartHTTPServer() error
}

// webhookSubscriber routes topics to their paths and starts the HTTP server
// with the first subscription. Topics should be subscribed before envelopes
// arrive, since routes are added to a live router.
type webhookSubscriber struct {
	message.Subscriber
	logger watermill.LoggerAdapter
	start  sync.Once
}

func (s *webhookSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	messages, err := s.Subscriber.Subscribe(ctx, TopicPath(topic))
	if err != nil {
		return nil, err
	}
	s.start.Do(func() {
		srv, ok := s.Subscriber.(httpServer)
		if !ok {
			return
		}
		go func() {
			if err := srv.StartHTTPServer(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
				s.logger.Error("HTTP subscriber server stopped", err, nil)
			}
		}()
	})
	return messages, nil
}

// Build creates a new HTTP transport.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	publisher, err := PublisherFactory(
		http.PublisherConfig{
			MarshalMessageFunc: MarshalMessage(cfg.GetHTTPPublisherURL()),
			Client:             &nethttp.Client{Timeout: cfg.GetRequestTimeout()},
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, err
	}

	subscriber, err := SubscriberFactory(
		cfg.GetHTTPServerAddress(),
		http.SubscriberConfig{UnmarshalMessageFunc: UnmarshalMessage},
		logger,
	)
	if err != nil {
		return transport.Transport{}, transport.CloseOnError(publisher, err)
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: &webhookSubscriber{Subscriber: subscriber, logger: logger},
	}, nil
}
