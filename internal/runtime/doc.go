/*
Package runtime hosts embedded views for viewbridge.

# Architecture Overview

A page embeds any number of views. Every view runs in its own isolated
context and talks to the page only through origin-checked envelopes carried
over a Watermill transport. The host side consumes one host topic with a
Watermill router and posts to one topic per view.

# Package Structure

## Core Service (service.go)

The Service struct is one page session. It wires together:
  - Message router (Watermill) consuming the host topic
  - Publisher and subscriber connections
  - One bridge per attached view
  - The page interactivity store
  - The view-update queue towards the native shell
  - HTTP servers for metrics and the web UI

## Middleware (middleware.go)

Composable stages around the host handler:
  - CorrelationID: Ensures envelope traceability
  - LogMessages: Debug logging of envelope payloads
  - Tracer: OpenTelemetry distributed tracing
  - Metrics: Prometheus router metrics
  - Recoverer: Panic recovery

## Hooks & Metrics (hooks.go, bridge_metrics.go)

Bridge hooks observe view requests and alerts. BridgeMetrics turns them into
Prometheus collectors and per-view statistics.

## WebUI (webui.go)

HTTP API for inspecting views, interactivity channels and pending view
updates.

# Sub-packages

  - agent/: View-side endpoint answering host requests
  - bridge/: Host-side endpoint of one view
  - config/: Session configuration with validation
  - envelope/: Envelope types and the message visitor
  - errors/: Sentinel errors and error types
  - frame/: Origin-checked envelope port over Watermill
  - ids/: ULID generation
  - interactivity/: Page pub/sub store and selection translators
  - jsoncodec/: JSON marshaling utilities
  - logging/: Logger interface and adapters
  - metadata/: Envelope metadata utilities
  - transport/: Transport factory and capabilities
  - updates/: View-update queue towards the native shell

# Usage Example

	cfg := &viewbridge.Config{
		HostOrigin:     "https://page.example",
		MetricsEnabled: true,
		MetricsPort:    9090,
	}

	svc := viewbridge.NewService(cfg, logger, ctx, viewbridge.ServiceDependencies{})
	view, _ := svc.AddView("scatter-plot")

	go svc.Start(ctx)
	<-svc.Running()

	result := view.Validate(ctx)
*/
package runtime
