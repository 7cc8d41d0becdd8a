package envelope

import (
	"fmt"

	errspkg "github.com/drblury/viewbridge/internal/runtime/errors"
	"github.com/drblury/viewbridge/internal/runtime/interactivity"
	"github.com/drblury/viewbridge/internal/runtime/updates"
)

// ViewMessage is a message the host sends to a view. Implementations are
// closed to this package; agents consume them through ViewVisitor.
type ViewMessage interface {
	Accept(v ViewVisitor)
	viewMessage()
}

// ViewVisitor handles every ViewMessage kind.
type ViewVisitor interface {
	VisitInit(InitRequest)
	VisitGetValue(GetValueRequest)
	VisitValidate(ValidateRequest)
	VisitSetValidationError(SetValidationErrorRequest)
	VisitInteractivityEvent(InteractivityEvent)
	VisitViewResponse(ViewResponse)
	VisitMonitorUpdate(MonitorUpdate)
}

type InitRequest struct {
	Envelope           *Envelope
	ViewRepresentation string
	ViewValue          string
}

type GetValueRequest struct{ Envelope *Envelope }

type ValidateRequest struct{ Envelope *Envelope }

type SetValidationErrorRequest struct {
	Envelope     *Envelope
	ErrorMessage string
}

type InteractivityEvent struct {
	Envelope       *Envelope
	ChannelID      string
	SubscriptionID string
	Payload        interactivity.Payload
}

type ViewResponse struct {
	Envelope *Envelope
	Response updates.ResponseContainer
}

type MonitorUpdate struct {
	Envelope *Envelope
	Monitor  updates.Monitor
}

func (m InitRequest) Accept(v ViewVisitor)               { v.VisitInit(m) }
func (m GetValueRequest) Accept(v ViewVisitor)           { v.VisitGetValue(m) }
func (m ValidateRequest) Accept(v ViewVisitor)           { v.VisitValidate(m) }
func (m SetValidationErrorRequest) Accept(v ViewVisitor) { v.VisitSetValidationError(m) }
func (m InteractivityEvent) Accept(v ViewVisitor)        { v.VisitInteractivityEvent(m) }
func (m ViewResponse) Accept(v ViewVisitor)              { v.VisitViewResponse(m) }
func (m MonitorUpdate) Accept(v ViewVisitor)             { v.VisitMonitorUpdate(m) }

func (InitRequest) viewMessage()               {}
func (GetValueRequest) viewMessage()           {}
func (ValidateRequest) viewMessage()           {}
func (SetValidationErrorRequest) viewMessage() {}
func (InteractivityEvent) viewMessage()        {}
func (ViewResponse) viewMessage()              {}
func (MonitorUpdate) viewMessage()             {}

// DecodeViewMessage maps an envelope received by a view onto its variant.
func DecodeViewMessage(env *Envelope) (ViewMessage, error) {
	switch env.Type {
	case TypeInit:
		return InitRequest{Envelope: env, ViewRepresentation: env.ViewRepresentation, ViewValue: env.ViewValue}, nil
	case TypeGetValue:
		return GetValueRequest{Envelope: env}, nil
	case TypeValidate:
		return ValidateRequest{Envelope: env}, nil
	case TypeSetValidationError:
		return SetValidationErrorRequest{Envelope: env, ErrorMessage: env.ErrorMessage}, nil
	case TypeInteractivityEvent:
		msg := InteractivityEvent{Envelope: env, ChannelID: env.ChannelID, SubscriptionID: env.SubscriptionID}
		if env.Payload != nil {
			msg.Payload = *env.Payload
		}
		return msg, nil
	case TypeRespondToViewRequest:
		if env.Response == nil {
			return nil, fmt.Errorf("%s without response: %w", env.Type, errspkg.ErrUnknownMessageType)
		}
		return ViewResponse{Envelope: env, Response: *env.Response}, nil
	case TypeUpdateResponseMonitor:
		if env.Monitor == nil {
			return nil, fmt.Errorf("%s without monitor: %w", env.Type, errspkg.ErrUnknownMessageType)
		}
		return MonitorUpdate{Envelope: env, Monitor: *env.Monitor}, nil
	}
	return nil, fmt.Errorf("%q for a view: %w", env.Type, errspkg.ErrUnknownMessageType)
}

// HostMessage is a message a view sends to the host.
type HostMessage interface {
	Accept(v HostVisitor)
	hostMessage()
}

// HostVisitor handles every HostMessage kind.
type HostVisitor interface {
	VisitReply(Reply)
	VisitAlert(AlertMessage)
	VisitLoad(Load)
	VisitSubscribe(Subscribe)
	VisitUnsubscribe(Unsubscribe)
	VisitPublish(Publish)
	VisitRegisterTranslator(RegisterTranslator)
	VisitRequestViewUpdate(ViewUpdateRequest)
	VisitCancelViewRequest(CancelViewRequest)
}

// Reply answers an init, getValue, validate or setValidationError request.
type Reply struct {
	Envelope *Envelope
	Type     MessageType
	Error    string
	IsValid  *bool
	Value    any
}

// Failed reports whether the view answered with an error.
func (r Reply) Failed() bool { return r.Error != "" }

type AlertMessage struct {
	Envelope *Envelope
	Alert    Alert
}

type Load struct{ Envelope *Envelope }

type Subscribe struct {
	Envelope       *Envelope
	ChannelID      string
	SubscriptionID string
	FilterIDs      []string
}

type Unsubscribe struct {
	Envelope       *Envelope
	ChannelID      string
	SubscriptionID string
}

type Publish struct {
	Envelope  *Envelope
	ChannelID string
	Payload   interactivity.Payload
}

type RegisterTranslator struct {
	Envelope     *Envelope
	TranslatorID string
	Translator   interactivity.Translator
}

type ViewUpdateRequest struct {
	Envelope        *Envelope
	Request         any
	RequestSequence int64
}

type CancelViewRequest struct {
	Envelope    *Envelope
	MonitorID   string
	InvokeCatch bool
}

func (m Reply) Accept(v HostVisitor)              { v.VisitReply(m) }
func (m AlertMessage) Accept(v HostVisitor)       { v.VisitAlert(m) }
func (m Load) Accept(v HostVisitor)               { v.VisitLoad(m) }
func (m Subscribe) Accept(v HostVisitor)          { v.VisitSubscribe(m) }
func (m Unsubscribe) Accept(v HostVisitor)        { v.VisitUnsubscribe(m) }
func (m Publish) Accept(v HostVisitor)            { v.VisitPublish(m) }
func (m RegisterTranslator) Accept(v HostVisitor) { v.VisitRegisterTranslator(m) }
func (m ViewUpdateRequest) Accept(v HostVisitor)  { v.VisitRequestViewUpdate(m) }
func (m CancelViewRequest) Accept(v HostVisitor)  { v.VisitCancelViewRequest(m) }

func (Reply) hostMessage()              {}
func (AlertMessage) hostMessage()       {}
func (Load) hostMessage()               {}
func (Subscribe) hostMessage()          {}
func (Unsubscribe) hostMessage()        {}
func (Publish) hostMessage()            {}
func (RegisterTranslator) hostMessage() {}
func (ViewUpdateRequest) hostMessage()  {}
func (CancelViewRequest) hostMessage()  {}

// DecodeHostMessage maps an envelope received by the host onto its variant.
// A view-raised alert without a level defaults to warn.
func DecodeHostMessage(env *Envelope) (HostMessage, error) {
	switch env.Type {
	case TypeInit, TypeGetValue, TypeValidate, TypeSetValidationError:
		return Reply{Envelope: env, Type: env.Type, Error: env.Error, IsValid: env.IsValid, Value: env.Value.Interface()}, nil
	case TypeAlert:
		alert := Alert{Level: AlertWarn}
		if env.Alert != nil {
			alert.Message = env.Alert.Message
			if env.Alert.Level != "" {
				alert.Level = env.Alert.Level
			}
		}
		return AlertMessage{Envelope: env, Alert: alert}, nil
	case TypeLoad:
		return Load{Envelope: env}, nil
	case TypeInteractivitySubscribe:
		return Subscribe{Envelope: env, ChannelID: env.ChannelID, SubscriptionID: env.SubscriptionID, FilterIDs: env.FilterIDs}, nil
	case TypeInteractivityUnsubscribe:
		return Unsubscribe{Envelope: env, ChannelID: env.ChannelID, SubscriptionID: env.SubscriptionID}, nil
	case TypeInteractivityPublish:
		msg := Publish{Envelope: env, ChannelID: env.ChannelID}
		if env.Payload != nil {
			msg.Payload = *env.Payload
		}
		return msg, nil
	case TypeInteractivityRegisterSelectionTranslator:
		msg := RegisterTranslator{Envelope: env, TranslatorID: env.TranslatorID}
		if env.Translator != nil {
			msg.Translator = *env.Translator
		}
		return msg, nil
	case TypeRequestViewUpdate:
		return ViewUpdateRequest{Envelope: env, Request: env.Request, RequestSequence: env.RequestSequence}, nil
	case TypeCancelViewRequest:
		return CancelViewRequest{Envelope: env, MonitorID: env.MonitorID, InvokeCatch: env.InvokeCatch}, nil
	}
	return nil, fmt.Errorf("%q for the host: %w", env.Type, errspkg.ErrUnknownMessageType)
}
