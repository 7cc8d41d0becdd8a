// Package bridge is the host side of one host/view connection. It sends
// typed requests to an embedded view, correlates replies by node id and
// type, and applies the view's interactivity and view-update messages.
package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/viewbridge/internal/runtime/config"
	"github.com/drblury/viewbridge/internal/runtime/envelope"
	errspkg "github.com/drblury/viewbridge/internal/runtime/errors"
	"github.com/drblury/viewbridge/internal/runtime/frame"
	"github.com/drblury/viewbridge/internal/runtime/interactivity"
	"github.com/drblury/viewbridge/internal/runtime/logging"
	"github.com/drblury/viewbridge/internal/runtime/updates"
)

const (
	alertValidationFailed = "View validation failed."
	alertNotResponding    = "View is not responding."
)

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	NodeID  string `json:"nodeId"`
	IsValid bool   `json:"isValid"`
}

// ViewUpdater runs view-update requests raised by the view.
type ViewUpdater interface {
	RequestViewUpdate(ctx context.Context, frameID string, request any, requestSequence int64) (*updates.Monitor, error)
	CancelViewRequest(ctx context.Context, frameID, monitorID string, invokeCatch bool) error
}

// Config configures a Bridge.
type Config struct {
	NodeID     string
	HostOrigin string
	// Timeout bounds every awaited request. Zero means
	// config.DefaultRequestTimeout.
	Timeout time.Duration
	// Store receives the view's interactivity messages. Optional.
	Store *interactivity.Store
	// Updater receives the view's view-update messages. Optional.
	Updater ViewUpdater
	Hooks   Hooks
	Logger  logging.ServiceLogger
}

type result struct {
	reply envelope.Reply
	err   error
}

type pendingRequest struct {
	nodeID    string
	msgType   envelope.MessageType
	createdAt time.Time
	timer     *time.Timer
	done      chan result
	once      sync.Once
}

type viewSubscription struct {
	channelID  string
	subscriber *interactivity.Subscriber
}

// Bridge talks to one embedded view.
type Bridge struct {
	cfg    Config
	view   frame.Poster
	log    logging.ServiceLogger
	tracer trace.Tracer

	mu            sync.Mutex
	pending       map[envelope.MessageType][]*pendingRequest
	alert         *envelope.Alert
	loaded        bool
	queuedInit    *envelope.Envelope
	subscriptions map[string]viewSubscription
	closed        bool
}

// New creates a bridge that posts to the view through view.
func New(cfg Config, view frame.Poster) (*Bridge, error) {
	if cfg.NodeID == "" {
		return nil, errspkg.ErrNodeIDRequired
	}
	if cfg.HostOrigin == "" {
		return nil, errspkg.ErrHostOriginRequired
	}
	if view == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultRequestTimeout
	}
	return &Bridge{
		cfg:           cfg,
		view:          view,
		log:           logging.OrNop(cfg.Logger).With(logging.LogFields{"node_id": cfg.NodeID}),
		tracer:        otel.Tracer("viewbridge/bridge"),
		pending:       make(map[envelope.MessageType][]*pendingRequest),
		subscriptions: make(map[string]viewSubscription),
	}, nil
}

// NodeID returns the id of the view.
func (b *Bridge) NodeID() string {
	return b.cfg.NodeID
}

// Loaded reports whether the view has announced itself with load.
func (b *Bridge) Loaded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loaded
}

// PendingRequests returns the number of requests awaiting a reply.
func (b *Bridge) PendingRequests() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, queue := range b.pending {
		n += len(queue)
	}
	return n
}

// Alert returns the most recent alert, or nil.
func (b *Bridge) Alert() *envelope.Alert {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.alert == nil {
		return nil
	}
	a := *b.alert
	return &a
}

// ClearAlert empties the alert slot.
func (b *Bridge) ClearAlert() {
	b.mu.Lock()
	b.alert = nil
	b.mu.Unlock()
}

func (b *Bridge) raise(level envelope.AlertLevel, message string) {
	a := envelope.Alert{Level: level, Message: message}
	b.mu.Lock()
	b.alert = &a
	b.mu.Unlock()
	b.log.Info("View alert", logging.LogFields{"level": level, "message": message})
	b.cfg.Hooks.alert(b.cfg.NodeID, a)
}

// Validate asks the view whether its settings are valid. Error replies and
// timeouts raise an alert and yield an invalid result; no error is returned.
func (b *Bridge) Validate(ctx context.Context) ValidationResult {
	res := ValidationResult{NodeID: b.cfg.NodeID}
	reply, err := b.await(ctx, envelope.New(b.cfg.NodeID, envelope.TypeValidate))
	switch {
	case err != nil:
		b.raise(envelope.AlertError, alertNotResponding)
	case reply.Failed():
		b.raise(envelope.AlertError, alertValidationFailed)
	default:
		res.IsValid = reply.IsValid != nil && *reply.IsValid
	}
	return res
}

// SetValidationError shows message in the view. An error reply raises an
// alert with the view's text and is returned as an error carrying it.
func (b *Bridge) SetValidationError(ctx context.Context, message string) (bool, error) {
	env := envelope.New(b.cfg.NodeID, envelope.TypeSetValidationError)
	env.ErrorMessage = message
	reply, err := b.await(ctx, env)
	if err != nil {
		b.raise(envelope.AlertError, alertNotResponding)
		return false, err
	}
	if reply.Failed() {
		b.raise(envelope.AlertError, reply.Error)
		return false, errors.New(reply.Error)
	}
	return true, nil
}

// GetValue fetches the view's current value.
func (b *Bridge) GetValue(ctx context.Context) (any, error) {
	reply, err := b.await(ctx, envelope.New(b.cfg.NodeID, envelope.TypeGetValue))
	if err != nil {
		b.raise(envelope.AlertError, alertNotResponding)
		return nil, err
	}
	if reply.Failed() {
		b.raise(envelope.AlertError, reply.Error)
		return nil, errors.New(reply.Error)
	}
	return reply.Value, nil
}

// Init sends the view its representation and value. Before the view has
// posted load the request is held and sent on load; a later Init replaces a
// held one. Failures arrive asynchronously as alerts.
func (b *Bridge) Init(ctx context.Context, viewRepresentation, viewValue string) error {
	env := envelope.New(b.cfg.NodeID, envelope.TypeInit)
	env.ViewRepresentation = viewRepresentation
	env.ViewValue = viewValue

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errspkg.ErrViewClosed
	}
	if !b.loaded {
		b.queuedInit = env
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()
	return b.view.Post(ctx, env)
}

// DeliverResponse posts a view-update response into the view.
func (b *Bridge) DeliverResponse(ctx context.Context, resp updates.ResponseContainer) error {
	env := envelope.New(b.cfg.NodeID, envelope.TypeRespondToViewRequest)
	env.Sequence = resp.Sequence
	env.RequestSequence = resp.RequestSequence
	env.Response = &resp
	return b.view.Post(ctx, env)
}

// DeliverMonitor posts a view-update monitor into the view.
func (b *Bridge) DeliverMonitor(ctx context.Context, monitor *updates.Monitor) error {
	env := envelope.New(b.cfg.NodeID, envelope.TypeUpdateResponseMonitor)
	env.Monitor = monitor
	if monitor != nil {
		env.MonitorID = monitor.ID
		env.RequestSequence = monitor.RequestSequence
	}
	return b.view.Post(ctx, env)
}

// Close fails outstanding requests with ErrViewClosed and removes the
// view's subscriptions from the store.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var outstanding []*pendingRequest
	for _, queue := range b.pending {
		outstanding = append(outstanding, queue...)
	}
	subs := b.subscriptions
	b.subscriptions = make(map[string]viewSubscription)
	b.mu.Unlock()

	for _, p := range outstanding {
		b.settle(p, result{err: errspkg.ErrViewClosed})
	}
	if b.cfg.Store != nil {
		for _, s := range subs {
			b.cfg.Store.RemoveSubscriber(s.channelID, s.subscriber)
		}
	}
}

func (b *Bridge) await(ctx context.Context, env *envelope.Envelope) (envelope.Reply, error) {
	ctx, span := b.tracer.Start(ctx, "bridge."+string(env.Type), trace.WithAttributes(
		attribute.String("viewbridge.node_id", b.cfg.NodeID),
		attribute.String("viewbridge.message_type", string(env.Type)),
	))
	defer span.End()

	p := &pendingRequest{
		nodeID:    b.cfg.NodeID,
		msgType:   env.Type,
		createdAt: time.Now(),
		done:      make(chan result, 1),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		span.SetStatus(codes.Error, errspkg.ErrViewClosed.Error())
		return envelope.Reply{}, errspkg.ErrViewClosed
	}
	b.pending[env.Type] = append(b.pending[env.Type], p)
	p.timer = time.AfterFunc(b.cfg.Timeout, func() {
		b.settle(p, result{err: errspkg.ErrRequestTimeout})
	})
	b.mu.Unlock()

	info := RequestInfo{NodeID: b.cfg.NodeID, Type: env.Type, StartedAt: p.createdAt}
	b.cfg.Hooks.requestStart(info)

	if err := b.view.Post(ctx, env); err != nil {
		b.settle(p, result{err: err})
	}

	var r result
	select {
	case r = <-p.done:
	case <-ctx.Done():
		b.settle(p, result{err: ctx.Err()})
		r = <-p.done
	}

	info.Duration = time.Since(p.createdAt)
	switch {
	case errors.Is(r.err, errspkg.ErrRequestTimeout):
		info.Outcome = OutcomeTimeout
	case r.err != nil:
		info.Outcome = OutcomeAborted
	case r.reply.Failed():
		info.Outcome = OutcomeError
	default:
		info.Outcome = OutcomeReply
	}
	b.cfg.Hooks.requestDone(info)

	if r.err != nil {
		span.RecordError(r.err)
		span.SetStatus(codes.Error, r.err.Error())
		b.log.Debug("View request failed", logging.LogFields{"message_type": env.Type, "error": r.err.Error()})
	} else if r.reply.Failed() {
		span.SetStatus(codes.Error, r.reply.Error)
	}
	return r.reply, r.err
}

// settle completes p once; later calls are no-ops.
func (b *Bridge) settle(p *pendingRequest, r result) bool {
	settled := false
	p.once.Do(func() {
		b.mu.Lock()
		if p.timer != nil {
			p.timer.Stop()
		}
		queue := b.pending[p.msgType]
		for i, candidate := range queue {
			if candidate == p {
				b.pending[p.msgType] = append(queue[:i:i], queue[i+1:]...)
				break
			}
		}
		if len(b.pending[p.msgType]) == 0 {
			delete(b.pending, p.msgType)
		}
		b.mu.Unlock()
		p.done <- r
		settled = true
	})
	return settled
}

// HandleMessage processes an event posted by the view. It reports whether
// the event was addressed to this bridge.
func (b *Bridge) HandleMessage(ctx context.Context, ev envelope.Event) bool {
	if !ev.Accepts(b.cfg.NodeID, b.cfg.HostOrigin) {
		return false
	}
	msg, err := envelope.DecodeHostMessage(ev.Data)
	if err != nil {
		b.log.Trace("Dropped view message", logging.LogFields{"error": err.Error()})
		return true
	}
	msg.Accept(&inbound{ctx: ctx, bridge: b})
	return true
}
