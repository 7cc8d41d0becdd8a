// Package agent runs inside a view. It answers lifecycle requests from the
// host through a capability table and exposes the view-side interactivity
// and view-update API.
package agent

import (
	"context"
	"fmt"
	"sync"

	"github.com/drblury/viewbridge/internal/runtime/envelope"
	errspkg "github.com/drblury/viewbridge/internal/runtime/errors"
	"github.com/drblury/viewbridge/internal/runtime/frame"
	"github.com/drblury/viewbridge/internal/runtime/ids"
	"github.com/drblury/viewbridge/internal/runtime/interactivity"
	"github.com/drblury/viewbridge/internal/runtime/logging"
	"github.com/drblury/viewbridge/internal/runtime/updates"
)

// Handlers is the capability table of a view. Nil entries are methods the
// view does not implement.
type Handlers struct {
	Init               func(viewRepresentation, viewValue string) error
	GetValue           func() (any, error)
	Validate           func() (bool, error)
	SetValidationError func(message string) error

	// OnInteractivityEvent receives events for subscriptions not made
	// through Agent.Subscribe.
	OnInteractivityEvent func(channelID string, payload interactivity.Payload)
	OnViewResponse       func(updates.ResponseContainer)
	OnMonitorUpdate      func(updates.Monitor)
}

// Config identifies the view an Agent serves.
type Config struct {
	NodeID     string
	Namespace  string
	HostOrigin string
}

// Agent is the view side of one host/view bridge.
type Agent struct {
	cfg      Config
	handlers Handlers
	host     frame.Poster
	log      logging.ServiceLogger

	mu            sync.Mutex
	subscriptions map[string]func(interactivity.Payload)
}

// New creates an agent that replies to the host through host.
func New(cfg Config, handlers Handlers, host frame.Poster, log logging.ServiceLogger) (*Agent, error) {
	if cfg.NodeID == "" {
		return nil, errspkg.ErrNodeIDRequired
	}
	if cfg.HostOrigin == "" {
		return nil, errspkg.ErrHostOriginRequired
	}
	if host == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	return &Agent{
		cfg:           cfg,
		handlers:      handlers,
		host:          host,
		log:           logging.OrNop(log).With(logging.LogFields{"node_id": cfg.NodeID}),
		subscriptions: make(map[string]func(interactivity.Payload)),
	}, nil
}

// NodeID returns the id of the view this agent serves.
func (a *Agent) NodeID() string {
	return a.cfg.NodeID
}

// HandleMessage processes one event from the host. Events for another node
// or from another origin are ignored. It never panics.
func (a *Agent) HandleMessage(ctx context.Context, ev envelope.Event) {
	if !ev.Accepts(a.cfg.NodeID, a.cfg.HostOrigin) {
		return
	}
	msg, err := envelope.DecodeViewMessage(ev.Data)
	if err != nil {
		a.log.Trace("Dropped host message", logging.LogFields{"error": err.Error()})
		return
	}
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("View callback panicked", fmt.Errorf("%v", r), logging.LogFields{"message_type": ev.Data.Type})
		}
	}()
	msg.Accept(&dispatcher{ctx: ctx, agent: a})
}

func (a *Agent) reply(ctx context.Context, env *envelope.Envelope) {
	if err := a.host.Post(ctx, env); err != nil {
		a.log.Error("Failed to reply to host", err, logging.LogFields{"message_type": env.Type})
	}
}

// safely runs fn and turns a panic into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return fn()
}

type dispatcher struct {
	ctx   context.Context
	agent *Agent
}

func (d *dispatcher) VisitInit(m envelope.InitRequest) {
	h := d.agent.handlers.Init
	if h == nil {
		d.agent.reply(d.ctx, envelope.ErrorReply(m.Envelope, "Init method not present in view."))
		return
	}
	if err := safely(func() error { return h(m.ViewRepresentation, m.ViewValue) }); err != nil {
		d.agent.reply(d.ctx, envelope.ErrorReply(m.Envelope, "View initialization failed: "+err.Error()))
	}
}

func (d *dispatcher) VisitGetValue(m envelope.GetValueRequest) {
	h := d.agent.handlers.GetValue
	if h == nil {
		d.agent.reply(d.ctx, envelope.ErrorReply(m.Envelope, "Value method not present in view."))
		return
	}
	var value *envelope.Value
	err := safely(func() error {
		v, err := h()
		if err != nil {
			return err
		}
		value, err = envelope.NewValue(v)
		return err
	})
	if err != nil {
		d.agent.reply(d.ctx, envelope.ErrorReply(m.Envelope, "Value could not be retrieved from view: "+err.Error()))
		return
	}
	out := envelope.New(m.Envelope.NodeID, envelope.TypeGetValue)
	out.Namespace = m.Envelope.Namespace
	out.Value = value
	d.agent.reply(d.ctx, out)
}

func (d *dispatcher) VisitValidate(m envelope.ValidateRequest) {
	out := envelope.New(m.Envelope.NodeID, envelope.TypeValidate)
	out.Namespace = m.Envelope.Namespace
	h := d.agent.handlers.Validate
	if h == nil {
		out.IsValid = envelope.Bool(true)
		d.agent.reply(d.ctx, out)
		return
	}
	var valid bool
	err := safely(func() error {
		var err error
		valid, err = h()
		return err
	})
	if err != nil {
		d.agent.reply(d.ctx, envelope.ErrorReply(m.Envelope, "View could not be validated: "+err.Error()))
		return
	}
	out.IsValid = envelope.Bool(valid)
	d.agent.reply(d.ctx, out)
}

func (d *dispatcher) VisitSetValidationError(m envelope.SetValidationErrorRequest) {
	h := d.agent.handlers.SetValidationError
	if h == nil {
		d.agent.reply(d.ctx, envelope.ErrorReply(m.Envelope, "View error message could not be set: Method does not exist."))
		return
	}
	if err := safely(func() error { return h(m.ErrorMessage) }); err != nil {
		d.agent.reply(d.ctx, envelope.ErrorReply(m.Envelope, "View error message could not be set: "+err.Error()))
		return
	}
	d.agent.reply(d.ctx, envelope.Echo(m.Envelope))
}

func (d *dispatcher) VisitInteractivityEvent(m envelope.InteractivityEvent) {
	d.agent.mu.Lock()
	cb, ok := d.agent.subscriptions[m.SubscriptionID]
	d.agent.mu.Unlock()
	switch {
	case ok:
		cb(m.Payload)
	case d.agent.handlers.OnInteractivityEvent != nil:
		d.agent.handlers.OnInteractivityEvent(m.ChannelID, m.Payload)
	}
}

func (d *dispatcher) VisitViewResponse(m envelope.ViewResponse) {
	if h := d.agent.handlers.OnViewResponse; h != nil {
		h(m.Response)
	}
}

func (d *dispatcher) VisitMonitorUpdate(m envelope.MonitorUpdate) {
	if h := d.agent.handlers.OnMonitorUpdate; h != nil {
		h(m.Monitor)
	}
}

func (a *Agent) post(ctx context.Context, env *envelope.Envelope) error {
	env.Namespace = a.cfg.Namespace
	return a.host.Post(ctx, env)
}

// Load tells the host the view is ready for init.
func (a *Agent) Load(ctx context.Context) error {
	return a.post(ctx, envelope.New(a.cfg.NodeID, envelope.TypeLoad))
}

// Alert raises a message next to the view on the host page.
func (a *Agent) Alert(ctx context.Context, level envelope.AlertLevel, message string) error {
	env := envelope.New(a.cfg.NodeID, envelope.TypeAlert)
	env.Alert = &envelope.Alert{Level: level, Message: message}
	return a.post(ctx, env)
}

// Subscribe subscribes the view to channelID on the host store. The returned
// id is needed to unsubscribe.
func (a *Agent) Subscribe(ctx context.Context, channelID string, filterIDs []string, cb func(interactivity.Payload)) (string, error) {
	if channelID == "" {
		return "", errspkg.ErrChannelIDRequired
	}
	if cb == nil {
		return "", errspkg.ErrSubscriberNil
	}
	id := ids.CreateULID()
	a.mu.Lock()
	a.subscriptions[id] = cb
	a.mu.Unlock()

	env := envelope.New(a.cfg.NodeID, envelope.TypeInteractivitySubscribe)
	env.ChannelID = channelID
	env.SubscriptionID = id
	env.FilterIDs = filterIDs
	if err := a.post(ctx, env); err != nil {
		a.mu.Lock()
		delete(a.subscriptions, id)
		a.mu.Unlock()
		return "", err
	}
	return id, nil
}

// Unsubscribe removes a subscription made with Subscribe.
func (a *Agent) Unsubscribe(ctx context.Context, channelID, subscriptionID string) error {
	a.mu.Lock()
	delete(a.subscriptions, subscriptionID)
	a.mu.Unlock()

	env := envelope.New(a.cfg.NodeID, envelope.TypeInteractivityUnsubscribe)
	env.ChannelID = channelID
	env.SubscriptionID = subscriptionID
	return a.post(ctx, env)
}

// Publish publishes payload on channelID through the host store.
func (a *Agent) Publish(ctx context.Context, channelID string, payload interactivity.Payload) error {
	if channelID == "" {
		return errspkg.ErrChannelIDRequired
	}
	env := envelope.New(a.cfg.NodeID, envelope.TypeInteractivityPublish)
	env.ChannelID = channelID
	env.Payload = &payload
	return a.post(ctx, env)
}

// RegisterSelectionTranslator registers translator on the host store.
func (a *Agent) RegisterSelectionTranslator(ctx context.Context, translatorID string, translator interactivity.Translator) error {
	if err := translator.Validate(); err != nil {
		return err
	}
	env := envelope.New(a.cfg.NodeID, envelope.TypeInteractivityRegisterSelectionTranslator)
	env.TranslatorID = translatorID
	env.Translator = &translator
	return a.post(ctx, env)
}

// RequestViewUpdate asks the native shell, through the host, to run request.
// Progress arrives at Handlers.OnMonitorUpdate and the result at
// Handlers.OnViewResponse.
func (a *Agent) RequestViewUpdate(ctx context.Context, request any, requestSequence int64) error {
	env := envelope.New(a.cfg.NodeID, envelope.TypeRequestViewUpdate)
	env.Request = request
	env.RequestSequence = requestSequence
	return a.post(ctx, env)
}

// CancelViewRequest cancels a view update by monitor id or request sequence.
func (a *Agent) CancelViewRequest(ctx context.Context, monitorID string, invokeCatch bool) error {
	env := envelope.New(a.cfg.NodeID, envelope.TypeCancelViewRequest)
	env.MonitorID = monitorID
	env.InvokeCatch = invokeCatch
	return a.post(ctx, env)
}
