package viewbridge

import (
	runtimepkg "github.com/drblury/viewbridge/internal/runtime"
	"github.com/drblury/viewbridge/internal/runtime/agent"
	"github.com/drblury/viewbridge/internal/runtime/bridge"
	configpkg "github.com/drblury/viewbridge/internal/runtime/config"
	"github.com/drblury/viewbridge/internal/runtime/envelope"
	errspkg "github.com/drblury/viewbridge/internal/runtime/errors"
	"github.com/drblury/viewbridge/internal/runtime/frame"
	idspkg "github.com/drblury/viewbridge/internal/runtime/ids"
	"github.com/drblury/viewbridge/internal/runtime/interactivity"
	jsoncodec "github.com/drblury/viewbridge/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/viewbridge/internal/runtime/logging"
	metadatapkg "github.com/drblury/viewbridge/internal/runtime/metadata"
	transportpkg "github.com/drblury/viewbridge/internal/runtime/transport"
	"github.com/drblury/viewbridge/internal/runtime/updates"
	newtransport "github.com/drblury/viewbridge/transport"
)

type (
	Config               = configpkg.Config
	Service              = runtimepkg.Service
	ServiceDependencies  = runtimepkg.ServiceDependencies
	ErrorResponse        = runtimepkg.ErrorResponse
	PageValidation       = runtimepkg.PageValidation
	Transport            = transportpkg.Transport
	TransportFactory     = transportpkg.Factory
	TransportFactoryFunc = transportpkg.FactoryFunc

	// Host side of one view
	View             = bridge.Bridge
	ValidationResult = bridge.ValidationResult
	BridgeHooks      = bridge.Hooks
	RequestInfo      = bridge.RequestInfo
	RequestOutcome   = bridge.Outcome

	// View side
	Agent        = agent.Agent
	ViewHandlers = agent.Handlers
	ViewOptions  = runtimepkg.ViewOptions

	// Envelope types
	Envelope    = envelope.Envelope
	MessageType = envelope.MessageType
	Alert       = envelope.Alert
	AlertLevel  = envelope.AlertLevel

	// Interactivity
	InteractivityStore = interactivity.Store
	Payload            = interactivity.Payload
	ChangeSet          = interactivity.ChangeSet
	Element            = interactivity.Element
	Translator         = interactivity.Translator
	ChannelInfo        = interactivity.ChannelInfo

	// View updates
	Shell             = updates.Shell
	ShellRequest      = updates.ShellRequest
	Monitor           = updates.Monitor
	ResponseContainer = updates.ResponseContainer
	Resolvable        = updates.Resolvable

	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ConfigValidationError = errspkg.ConfigValidationError

	// Envelope hooks
	EnvelopeContext = runtimepkg.EnvelopeContext
	EnvelopeHooks   = runtimepkg.EnvelopeHooks

	// Bridge metrics
	BridgeMetrics         = runtimepkg.BridgeMetrics
	ViewMetrics           = runtimepkg.ViewMetrics
	BridgeMetricsSnapshot = runtimepkg.BridgeMetricsSnapshot

	// Web UI
	ViewStatus     = runtimepkg.ViewStatus
	ChannelsStatus = runtimepkg.ChannelsStatus

	// Transport capabilities
	Capabilities = transportpkg.Capabilities

	// Modular transport types
	TransportBuilder  = newtransport.Builder
	TransportConfig   = newtransport.Config
	TransportRegistry = newtransport.Registry
)

var (
	NewService     = runtimepkg.NewService
	TryNewService  = runtimepkg.TryNewService
	ConnectView    = runtimepkg.ConnectView
	ValidateConfig = configpkg.ValidateConfig

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	// Hooks
	EnvelopeHooksMiddleware = runtimepkg.EnvelopeHooksMiddleware
	LoggingHooks            = runtimepkg.LoggingHooks
	AlertingHooks           = runtimepkg.AlertingHooks

	NewBridgeMetrics = runtimepkg.NewBridgeMetrics

	// Topics
	HostTopic = frame.HostTopic
	ViewTopic = frame.ViewTopic

	SelectionChannel = interactivity.SelectionChannel

	// Transport capabilities
	GetCapabilities         = transportpkg.GetCapabilities
	SharedTransport         = transportpkg.Shared
	DefaultTransportFactory = transportpkg.DefaultFactory

	// Modular transport registry.
	// Import individual transports via: _ "github.com/drblury/viewbridge/transport/kafka"
	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrServiceRequired      = errspkg.ErrServiceRequired
	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired
	ErrPublisherRequired    = errspkg.ErrPublisherRequired
	ErrSubscriberRequired   = errspkg.ErrSubscriberRequired
	ErrTopicRequired        = errspkg.ErrTopicRequired
	ErrNodeIDRequired       = errspkg.ErrNodeIDRequired
	ErrHostOriginRequired   = errspkg.ErrHostOriginRequired
	ErrWildcardTargetOrigin = errspkg.ErrWildcardTargetOrigin
	ErrViewExists           = errspkg.ErrViewExists
	ErrViewNotFound         = errspkg.ErrViewNotFound
	ErrViewClosed           = errspkg.ErrViewClosed
	ErrRequestTimeout       = errspkg.ErrRequestTimeout
	ErrShellRequired        = errspkg.ErrShellRequired
	ErrUnknownMessageType   = errspkg.ErrUnknownMessageType
	ErrMalformedChangeSet   = errspkg.ErrMalformedChangeSet
	ErrInvalidTranslator    = errspkg.ErrInvalidTranslator
	ErrChannelIDRequired    = errspkg.ErrChannelIDRequired
	ErrSubscriberNil        = errspkg.ErrSubscriberNil
	ErrUnknownTransport     = newtransport.ErrUnknownTransport

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NopLogger                 = loggingpkg.NopLogger

	NewMetadata = metadatapkg.New

	CreateULID = idspkg.CreateULID
)

// Metadata keys stamped on every envelope message.
const (
	MetadataKeyOrigin        = metadatapkg.KeyOrigin
	MetadataKeyTargetOrigin  = metadatapkg.KeyTargetOrigin
	MetadataKeyNodeID        = metadatapkg.KeyNodeID
	MetadataKeyMessageType   = metadatapkg.KeyMessageType
	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
)

// Alert levels.
const (
	AlertWarn  = envelope.AlertWarn
	AlertError = envelope.AlertError
)

// Request outcomes reported to BridgeHooks.
const (
	OutcomeReply   = bridge.OutcomeReply
	OutcomeError   = bridge.OutcomeError
	OutcomeTimeout = bridge.OutcomeTimeout
	OutcomeAborted = bridge.OutcomeAborted
)
