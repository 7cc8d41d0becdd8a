package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/viewbridge/internal/runtime/bridge"
	configpkg "github.com/drblury/viewbridge/internal/runtime/config"
	errspkg "github.com/drblury/viewbridge/internal/runtime/errors"
	"github.com/drblury/viewbridge/internal/runtime/frame"
	"github.com/drblury/viewbridge/internal/runtime/interactivity"
	loggingpkg "github.com/drblury/viewbridge/internal/runtime/logging"
	transportpkg "github.com/drblury/viewbridge/internal/runtime/transport"
	"github.com/drblury/viewbridge/internal/runtime/updates"
)

// HostHandlerName is the router handler that consumes the host topic.
const HostHandlerName = "viewbridge_host"

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// ServiceDependencies holds the optional collaborators of a page session.
type ServiceDependencies struct {
	// Shell runs view updates outside the page. Nil disables view updates.
	Shell                     updates.Shell
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool                     // Skips registering the default middleware chain when true.
	TransportFactory          transportpkg.Factory
	// Hooks observe every bridge of the page, after the built-in metrics
	// and logging hooks.
	Hooks bridge.Hooks
	// MetricsRegisterer receives the Prometheus collectors. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegisterer prometheus.Registerer
}

// ErrorResponse maps a view node id to the validation message to show in it.
type ErrorResponse map[string]string

// PageValidation is the outcome of Service.Validate.
type PageValidation struct {
	IsValid bool                      `json:"isValid"`
	Views   []bridge.ValidationResult `json:"views"`
}

// Service is one page session: the host side of every embedded view, the
// page interactivity store and the view-update queue, wired to a Watermill
// router that consumes the host topic.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	publisher    message.Publisher
	subscriber   message.Subscriber
	router       *message.Router
	capabilities transportpkg.Capabilities
	registerer   prometheus.Registerer

	port    *frame.Port
	store   *interactivity.Store
	queue   *updates.Queue
	metrics *BridgeMetrics
	hooks   bridge.Hooks

	viewsMu sync.RWMutex
	views   map[string]*bridge.Bridge

	httpServers   map[int]*http.ServeMux
	running       []*http.Server
	httpServersMu sync.Mutex
}

// NewService constructs a Service for the supplied configuration and panics
// when it cannot. Add views on the returned Service, then call Start.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) *Service {
	s, err := TryNewService(conf, log, ctx, deps)
	if err != nil {
		panic(err)
	}
	return s
}

// TryNewService is NewService returning errors instead of panicking.
func TryNewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if err := conf.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating page session",
		loggingpkg.LogFields{
			"pubsub_system": conf.GetPubSubSystem(),
			"config":        conf,
		})

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	transport, err := factory.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}
	caps := transport.Capabilities
	if caps.Name == "" {
		caps = transportpkg.GetCapabilities(conf.GetPubSubSystem())
	}

	port, err := frame.NewPort(conf.HostOrigin, transport.Publisher, transport.Subscriber, log)
	if err != nil {
		return nil, err
	}
	if transport.Subscriber == nil {
		return nil, errspkg.ErrSubscriberRequired
	}

	s := &Service{
		Conf:         conf,
		Logger:       log,
		publisher:    transport.Publisher,
		subscriber:   transport.Subscriber,
		capabilities: caps,
		registerer:   deps.MetricsRegisterer,
		port:         port,
		store:        interactivity.NewStore(log),
		metrics:      NewBridgeMetrics(deps.MetricsRegisterer),
		views:        make(map[string]*bridge.Bridge),
	}
	s.hooks = s.metrics.Hooks().Merge(LoggingHooks(log)).Merge(deps.Hooks)
	if conf.MetricsEnabled {
		if err := s.metrics.Register(); err != nil {
			return nil, fmt.Errorf("register bridge metrics: %w", err)
		}
	}

	if deps.Shell != nil {
		s.queue, err = updates.NewQueue(deps.Shell,
			updates.WithMaxSequence(conf.GetMaxUpdateSequence()),
			updates.WithResponder(viewResponder{s}),
			updates.WithLogger(log),
			updates.WithPendingObserver(s.metrics.SetPendingViewUpdates),
		)
		if err != nil {
			return nil, err
		}
	}

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, err
	}
	s.router = router
	s.router.AddPlugin(plugin.SignalsHandler)

	if err := s.registerConfiguredMiddlewares(deps); err != nil {
		return nil, err
	}

	s.router.AddNoPublisherHandler(
		HostHandlerName,
		frame.HostTopic(conf.GetTopicPrefix()),
		s.subscriber,
		s.handleHostMessage,
	)

	return s, nil
}

// Start runs the router until the provided context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	if !s.capabilities.SupportsOrdering && s.Logger != nil {
		s.Logger.Info("Transport does not guarantee ordering; partial selection state may drift", loggingpkg.LogFields{
			"transport": s.capabilities.Name,
		})
	}
	s.StartWebUIServer()
	s.startHTTPServers()
	return routerRun(s.router, ctx)
}

// Running is closed once the router consumes the host topic.
func (s *Service) Running() chan struct{} {
	return s.router.Running()
}

func (s *Service) registerConfiguredMiddlewares(deps ServiceDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := s.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

// handleHostMessage offers an envelope from the host topic to every view.
// Protocol faults never fail the message.
func (s *Service) handleHostMessage(msg *message.Message) error {
	ev, ok := s.port.Receive(msg)
	if !ok {
		return nil
	}
	handled := false
	for _, b := range s.bridges() {
		if b.HandleMessage(msg.Context(), ev) {
			handled = true
		}
	}
	if !handled {
		s.Logger.Trace("Dropped envelope for unknown view", loggingpkg.LogFields{
			"node_id":      ev.Data.NodeID,
			"message_type": ev.Data.Type,
		})
	}
	return nil
}

// Publisher returns the publisher the session posts to views with.
func (s *Service) Publisher() message.Publisher { return s.publisher }

// Subscriber returns the subscriber the session consumes the host topic with.
func (s *Service) Subscriber() message.Subscriber { return s.subscriber }

// Capabilities returns the capabilities of the configured transport.
func (s *Service) Capabilities() transportpkg.Capabilities { return s.capabilities }

// Interactivity returns the page interactivity store.
func (s *Service) Interactivity() *interactivity.Store { return s.store }

// Metrics returns the bridge statistics of the page.
func (s *Service) Metrics() *BridgeMetrics { return s.metrics }

// AddView attaches the view nodeID to the page.
func (s *Service) AddView(nodeID string) (*bridge.Bridge, error) {
	if nodeID == "" {
		return nil, errspkg.ErrNodeIDRequired
	}

	s.viewsMu.Lock()
	defer s.viewsMu.Unlock()

	if _, ok := s.views[nodeID]; ok {
		return nil, fmt.Errorf("%w: %s", errspkg.ErrViewExists, nodeID)
	}

	var updater bridge.ViewUpdater
	if s.queue != nil {
		updater = s.queue
	}
	b, err := bridge.New(bridge.Config{
		NodeID:     nodeID,
		HostOrigin: s.port.Origin(),
		Timeout:    s.Conf.GetRequestTimeout(),
		Store:      s.store,
		Updater:    updater,
		Hooks:      s.hooks,
		Logger:     s.Logger,
	}, s.port.To(frame.ViewTopic(s.Conf.GetTopicPrefix(), nodeID), s.port.Origin()))
	if err != nil {
		return nil, err
	}
	s.views[nodeID] = b
	s.metrics.SetViews(len(s.views))
	return b, nil
}

// RemoveView closes the bridge of nodeID and detaches it.
func (s *Service) RemoveView(nodeID string) error {
	s.viewsMu.Lock()
	b, ok := s.views[nodeID]
	if ok {
		delete(s.views, nodeID)
	}
	count := len(s.views)
	s.viewsMu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", errspkg.ErrViewNotFound, nodeID)
	}
	b.Close()
	s.metrics.RemoveView(nodeID)
	s.metrics.SetViews(count)
	return nil
}

// View returns the bridge of nodeID.
func (s *Service) View(nodeID string) (*bridge.Bridge, bool) {
	s.viewsMu.RLock()
	defer s.viewsMu.RUnlock()
	b, ok := s.views[nodeID]
	return b, ok
}

// Views returns the sorted node ids of all attached views.
func (s *Service) Views() []string {
	s.viewsMu.RLock()
	defer s.viewsMu.RUnlock()
	ids := make([]string, 0, len(s.views))
	for id := range s.views {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Service) bridges() []*bridge.Bridge {
	s.viewsMu.RLock()
	defer s.viewsMu.RUnlock()
	out := make([]*bridge.Bridge, 0, len(s.views))
	for _, b := range s.views {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NodeID() < out[j].NodeID() })
	return out
}

func (s *Service) lookup(nodeID string) (*bridge.Bridge, error) {
	b, ok := s.View(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errspkg.ErrViewNotFound, nodeID)
	}
	return b, nil
}

// GetPageValues collects the value of every view concurrently. Values of
// views that failed are missing from the map and their errors are joined.
func (s *Service) GetPageValues(ctx context.Context) (map[string]any, error) {
	views := s.bridges()
	values := make(map[string]any, len(views))
	errs := make([]error, len(views))

	var mu sync.Mutex
	var wg sync.WaitGroup
	for i, b := range views {
		wg.Add(1)
		go func(i int, b *bridge.Bridge) {
			defer wg.Done()
			value, err := b.GetValue(ctx)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", b.NodeID(), err)
				return
			}
			mu.Lock()
			values[b.NodeID()] = value
			mu.Unlock()
		}(i, b)
	}
	wg.Wait()
	return values, errors.Join(errs...)
}

// Validate validates every view concurrently. The page is valid when every
// view is; failures and timeouts count as invalid.
func (s *Service) Validate(ctx context.Context) PageValidation {
	views := s.bridges()
	results := make([]bridge.ValidationResult, len(views))

	var wg sync.WaitGroup
	for i, b := range views {
		wg.Add(1)
		go func(i int, b *bridge.Bridge) {
			defer wg.Done()
			results[i] = b.Validate(ctx)
		}(i, b)
	}
	wg.Wait()

	page := PageValidation{IsValid: true, Views: results}
	for _, r := range results {
		if !r.IsValid {
			page.IsValid = false
		}
	}
	return page
}

// SetValidationError shows each message of errorResponse in its view.
func (s *Service) SetValidationError(ctx context.Context, errorResponse ErrorResponse) error {
	nodeIDs := make([]string, 0, len(errorResponse))
	for id := range errorResponse {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	errs := make([]error, len(nodeIDs))
	var wg sync.WaitGroup
	for i, nodeID := range nodeIDs {
		b, err := s.lookup(nodeID)
		if err != nil {
			errs[i] = err
			continue
		}
		wg.Add(1)
		go func(i int, b *bridge.Bridge, message string) {
			defer wg.Done()
			if _, err := b.SetValidationError(ctx, message); err != nil {
				errs[i] = fmt.Errorf("%s: %w", b.NodeID(), err)
			}
		}(i, b, errorResponse[nodeID])
	}
	wg.Wait()
	return errors.Join(errs...)
}

// RequestViewUpdate hands request of frameID to the native shell.
func (s *Service) RequestViewUpdate(ctx context.Context, frameID string, request any, requestSequence int64) (*updates.Monitor, error) {
	if s.queue == nil {
		return nil, errspkg.ErrShellRequired
	}
	return s.queue.RequestViewUpdate(ctx, frameID, request, requestSequence)
}

// RespondToViewRequest delivers a shell response to the view that asked.
func (s *Service) RespondToViewRequest(ctx context.Context, resp updates.ResponseContainer) (bool, error) {
	if s.queue == nil {
		return false, errspkg.ErrShellRequired
	}
	return s.queue.RespondToViewRequest(ctx, resp)
}

// UpdateResponseMonitor forwards a shell monitor update to its view.
func (s *Service) UpdateResponseMonitor(ctx context.Context, monitor *updates.Monitor) (bool, error) {
	if s.queue == nil {
		return false, errspkg.ErrShellRequired
	}
	return s.queue.UpdateResponseMonitor(ctx, monitor)
}

// CancelViewRequest cancels a view update by monitor id or request sequence.
func (s *Service) CancelViewRequest(ctx context.Context, frameID, monitorID string, invokeCatch bool) error {
	if s.queue == nil {
		return errspkg.ErrShellRequired
	}
	return s.queue.CancelViewRequest(ctx, frameID, monitorID, invokeCatch)
}

// PendingViewUpdates returns the view updates waiting for the shell.
func (s *Service) PendingViewUpdates() []updates.Resolvable {
	if s.queue == nil {
		return nil
	}
	return s.queue.Pending()
}

// ClearPage tears down every view, clears the store and resets the queue.
// Call it when the page is replaced.
func (s *Service) ClearPage() {
	s.viewsMu.Lock()
	views := s.views
	s.views = make(map[string]*bridge.Bridge)
	s.viewsMu.Unlock()

	for nodeID, b := range views {
		b.Close()
		s.metrics.RemoveView(nodeID)
	}
	s.metrics.SetViews(0)
	s.store.Clear()
	if s.queue != nil {
		s.queue.Reset()
	}
}

// Close clears the page, stops HTTP servers and closes the router and
// transport.
func (s *Service) Close() error {
	s.ClearPage()

	var errs []error
	s.httpServersMu.Lock()
	servers := s.running
	s.running = nil
	s.httpServersMu.Unlock()
	for _, srv := range servers {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, srv.Shutdown(ctx))
		cancel()
	}

	if s.router != nil {
		errs = append(errs, s.router.Close())
	}
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	if s.subscriber != nil {
		errs = append(errs, s.subscriber.Close())
	}
	return errors.Join(errs...)
}

// RegisterHTTPHandler adds handler to the HTTP server on port. Servers start
// with Start.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.running = append(s.running, srv)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}(srv)
	}
	s.httpServers = nil
}

type viewResponder struct {
	s *Service
}

func (r viewResponder) RespondToView(ctx context.Context, nodeID string, resp updates.ResponseContainer) error {
	b, err := r.s.lookup(nodeID)
	if err != nil {
		return err
	}
	return b.DeliverResponse(ctx, resp)
}

func (r viewResponder) UpdateViewMonitor(ctx context.Context, nodeID string, monitor *updates.Monitor) error {
	b, err := r.s.lookup(nodeID)
	if err != nil {
		return err
	}
	return b.DeliverMonitor(ctx, monitor)
}
