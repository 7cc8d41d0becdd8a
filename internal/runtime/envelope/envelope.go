package envelope

import (
	"github.com/drblury/viewbridge/internal/runtime/interactivity"
	"github.com/drblury/viewbridge/internal/runtime/updates"
)

// MessageType is the wire name of an envelope kind.
type MessageType string

const (
	TypeInit                                     MessageType = "init"
	TypeGetValue                                 MessageType = "getValue"
	TypeValidate                                 MessageType = "validate"
	TypeSetValidationError                       MessageType = "setValidationError"
	TypeAlert                                    MessageType = "alert"
	TypeLoad                                     MessageType = "load"
	TypeInteractivitySubscribe                   MessageType = "interactivitySubscribe"
	TypeInteractivityUnsubscribe                 MessageType = "interactivityUnsubscribe"
	TypeInteractivityPublish                     MessageType = "interactivityPublish"
	TypeInteractivityRegisterSelectionTranslator MessageType = "interactivityRegisterSelectionTranslator"
	TypeInteractivityEvent                       MessageType = "interactivityEvent"
	TypeRequestViewUpdate                        MessageType = "requestViewUpdate"
	TypeCancelViewRequest                        MessageType = "cancelViewRequest"
	TypeRespondToViewRequest                     MessageType = "respondToViewRequest"
	TypeUpdateResponseMonitor                    MessageType = "updateResponseMonitor"
)

// AlertLevel separates informational alerts from failures.
type AlertLevel string

const (
	AlertWarn  AlertLevel = "warn"
	AlertError AlertLevel = "error"
)

// Alert is a message the host shows next to a view.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Message string     `json:"message"`
}

// Envelope is one message crossing the host/view boundary. Envelopes are
// not mutated after they are posted.
type Envelope struct {
	NodeID    string      `json:"nodeId"`
	Type      MessageType `json:"type"`
	Origin    string      `json:"origin,omitempty"`
	Namespace string      `json:"namespace,omitempty"`

	Error   string `json:"error,omitempty"`
	IsValid *bool  `json:"isValid,omitempty"`
	Value   *Value `json:"value,omitempty"`

	ViewRepresentation string `json:"viewRepresentation,omitempty"`
	ViewValue          string `json:"viewValue,omitempty"`
	ErrorMessage       string `json:"errorMessage,omitempty"`
	Alert              *Alert `json:"alert,omitempty"`

	ChannelID      string                    `json:"id,omitempty"`
	SubscriptionID string                    `json:"subscriptionId,omitempty"`
	FilterIDs      []string                  `json:"filterIds,omitempty"`
	Payload        *interactivity.Payload    `json:"payload,omitempty"`
	TranslatorID   string                    `json:"translatorId,omitempty"`
	Translator     *interactivity.Translator `json:"translator,omitempty"`

	Request         any                        `json:"request,omitempty"`
	RequestSequence int64                      `json:"requestSequence,omitempty"`
	Sequence        int64                      `json:"sequence,omitempty"`
	MonitorID       string                     `json:"monitorId,omitempty"`
	InvokeCatch     bool                       `json:"invokeCatch,omitempty"`
	Response        *updates.ResponseContainer `json:"response,omitempty"`
	Monitor         *updates.Monitor           `json:"monitor,omitempty"`
}

// Event is a received envelope together with the origin of its sender.
type Event struct {
	Origin string
	Data   *Envelope
}

// Accepts reports whether ev carries an envelope for nodeID sent from
// origin. Anything else is cross-instance noise and must be dropped.
func (ev Event) Accepts(nodeID, origin string) bool {
	return ev.Data != nil && ev.Data.NodeID == nodeID && ev.Origin == origin
}

// Bool returns a pointer to b, for IsValid.
func Bool(b bool) *bool {
	return &b
}

// New returns an envelope of type t addressed to nodeID.
func New(nodeID string, t MessageType) *Envelope {
	return &Envelope{NodeID: nodeID, Type: t}
}

// ErrorReply answers req with a failure.
func ErrorReply(req *Envelope, message string) *Envelope {
	return &Envelope{
		NodeID:    req.NodeID,
		Type:      req.Type,
		Namespace: req.Namespace,
		Error:     message,
		IsValid:   Bool(false),
	}
}

// Echo copies req as an acknowledgement of receipt.
func Echo(req *Envelope) *Envelope {
	c := *req
	c.Origin = ""
	return &c
}
