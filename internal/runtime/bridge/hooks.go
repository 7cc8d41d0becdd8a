package bridge

import (
	"time"

	"github.com/drblury/viewbridge/internal/runtime/envelope"
)

// Outcome is how an awaited request ended.
type Outcome string

const (
	OutcomeReply   Outcome = "reply"
	OutcomeError   Outcome = "error"
	OutcomeTimeout Outcome = "timeout"
	OutcomeAborted Outcome = "aborted"
)

// RequestInfo describes one request to a view.
type RequestInfo struct {
	NodeID    string
	Type      envelope.MessageType
	StartedAt time.Time
	// Duration and Outcome are only set in OnRequestDone.
	Duration time.Duration
	Outcome  Outcome
}

// Hooks observe bridge activity. Nil hooks are skipped.
type Hooks struct {
	OnRequestStart func(RequestInfo)
	OnRequestDone  func(RequestInfo)
	OnAlert        func(nodeID string, alert envelope.Alert)
}

// Merge returns hooks that call h first and then other.
func (h Hooks) Merge(other Hooks) Hooks {
	return Hooks{
		OnRequestStart: chainRequestHooks(h.OnRequestStart, other.OnRequestStart),
		OnRequestDone:  chainRequestHooks(h.OnRequestDone, other.OnRequestDone),
		OnAlert:        chainAlertHooks(h.OnAlert, other.OnAlert),
	}
}

func chainRequestHooks(a, b func(RequestInfo)) func(RequestInfo) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(info RequestInfo) {
		a(info)
		b(info)
	}
}

func chainAlertHooks(a, b func(string, envelope.Alert)) func(string, envelope.Alert) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(nodeID string, alert envelope.Alert) {
		a(nodeID, alert)
		b(nodeID, alert)
	}
}

func (h Hooks) requestStart(info RequestInfo) {
	if h.OnRequestStart != nil {
		h.OnRequestStart(info)
	}
}

func (h Hooks) requestDone(info RequestInfo) {
	if h.OnRequestDone != nil {
		h.OnRequestDone(info)
	}
}

func (h Hooks) alert(nodeID string, alert envelope.Alert) {
	if h.OnAlert != nil {
		h.OnAlert(nodeID, alert)
	}
}
