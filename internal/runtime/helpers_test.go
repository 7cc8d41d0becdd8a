package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/viewbridge/internal/runtime/config"
	loggingpkg "github.com/drblury/viewbridge/internal/runtime/logging"
	transportpkg "github.com/drblury/viewbridge/internal/runtime/transport"
)

const testHostOrigin = "https://host.example"

type testPublisher struct {
	mu        sync.Mutex
	published []string
	err       error
	closed    bool
}

func (p *testPublisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, topic)
	return nil
}

func (p *testPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *testPublisher) Topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	clone := make([]string, len(p.published))
	copy(clone, p.published)
	return clone
}

type testSubscriber struct {
	err error
}

func (s *testSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	ch := make(chan *message.Message)
	close(ch)
	return ch, nil
}

func (s *testSubscriber) Close() error { return nil }

type recordedLog struct {
	level string
	msg   string
}

// recordingServiceLogger captures log calls for assertions.
type recordingServiceLogger struct {
	mu   sync.Mutex
	logs []recordedLog
}

func (l *recordingServiceLogger) record(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, recordedLog{level: level, msg: msg})
}

func (l *recordingServiceLogger) messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, entry := range l.logs {
		if entry.level == level {
			out = append(out, entry.msg)
		}
	}
	return out
}

func (l *recordingServiceLogger) debugMessages() []string { return l.messages("debug") }
func (l *recordingServiceLogger) infoMessages() []string  { return l.messages("info") }

func (l *recordingServiceLogger) With(loggingpkg.LogFields) loggingpkg.ServiceLogger { return l }
func (l *recordingServiceLogger) Debug(msg string, _ loggingpkg.LogFields)           { l.record("debug", msg) }
func (l *recordingServiceLogger) Info(msg string, _ loggingpkg.LogFields)            { l.record("info", msg) }
func (l *recordingServiceLogger) Error(msg string, _ error, _ loggingpkg.LogFields) {
	l.record("error", msg)
}
func (l *recordingServiceLogger) Trace(msg string, _ loggingpkg.LogFields) { l.record("trace", msg) }

func newTestSlogLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(newTestSlogLogger())
}

func newTestConfig() *configpkg.Config {
	return &configpkg.Config{HostOrigin: testHostOrigin}
}

// newTestService builds a Service on stub transports. The router never
// receives anything.
func newTestService(t *testing.T, deps ServiceDependencies) *Service {
	t.Helper()
	if deps.TransportFactory == nil {
		deps.TransportFactory = transportpkg.Shared(&testPublisher{}, &testSubscriber{}, transportpkg.GetCapabilities("channel"))
	}
	if deps.MetricsRegisterer == nil {
		deps.MetricsRegisterer = prometheus.NewRegistry()
	}
	svc, err := TryNewService(newTestConfig(), newTestLogger(), context.Background(), deps)
	if err != nil {
		t.Fatalf("service init failed: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}
