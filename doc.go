// Package viewbridge connects a host page with the views embedded in it.
// Every view runs in its own isolated context; host and views exchange
// origin-checked JSON envelopes over a Watermill transport. A page session
// (Service) keeps one bridge per view, a page-wide interactivity store for
// selection and filter events, and a queue of view-update requests handed
// to the native shell.
//
// Fill Config with at least HostOrigin, create a Service, attach views with
// AddView and call Start. Views run an Agent, usually through ConnectView,
// and answer init, getValue, validate and setValidationError requests
// through ViewHandlers.
//
// # Transports
//
// The transport is read from Config.PubSubSystem:
//   - channel: In-memory Go channels for a single process
//   - kafka: Streaming with consumer groups
//   - rabbitmq: AMQP queues
//   - aws: SNS/SQS with LocalStack support
//   - nats: NATS Core messaging
//   - http: Webhook-style delivery
//
// Transports without ordering guarantees are allowed but logged, since
// partial selection state relies on envelope order.
//
// # Middleware
//
// The default middleware chain around the host handler includes correlation
// ID injection, structured logging, OpenTelemetry tracing, Prometheus
// metrics and panic recovery. Custom middleware can be added via
// ServiceDependencies.Middlewares.
//
// # Hooks
//
// BridgeHooks observe every awaited view request and every alert. The
// Service always feeds BridgeMetrics and LoggingHooks; extra hooks go in
// ServiceDependencies.Hooks. EnvelopeHooksMiddleware observes raw envelopes
// on the host topic.
package viewbridge
