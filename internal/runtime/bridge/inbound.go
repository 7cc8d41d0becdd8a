package bridge

import (
	"context"

	"github.com/drblury/viewbridge/internal/runtime/envelope"
	"github.com/drblury/viewbridge/internal/runtime/interactivity"
	"github.com/drblury/viewbridge/internal/runtime/logging"
)

type inbound struct {
	ctx    context.Context
	bridge *Bridge
}

func (in *inbound) VisitReply(m envelope.Reply) {
	b := in.bridge
	if m.Type == envelope.TypeInit {
		if m.Failed() {
			b.raise(envelope.AlertError, m.Error)
		}
		return
	}
	b.mu.Lock()
	queue := b.pending[m.Type]
	if len(queue) == 0 {
		b.mu.Unlock()
		b.log.Trace("Dropped reply without pending request", logging.LogFields{"message_type": m.Type})
		return
	}
	p := queue[0]
	b.mu.Unlock()
	b.settle(p, result{reply: m})
}

func (in *inbound) VisitAlert(m envelope.AlertMessage) {
	in.bridge.raise(m.Alert.Level, m.Alert.Message)
}

func (in *inbound) VisitLoad(envelope.Load) {
	b := in.bridge
	b.mu.Lock()
	b.loaded = true
	env := b.queuedInit
	b.queuedInit = nil
	b.mu.Unlock()

	b.log.Debug("View loaded", nil)
	if env == nil {
		return
	}
	if err := b.view.Post(in.ctx, env); err != nil {
		b.log.Error("Failed to send init to view", err, nil)
	}
}

func (in *inbound) VisitSubscribe(m envelope.Subscribe) {
	b := in.bridge
	if b.cfg.Store == nil {
		b.log.Debug("Ignored subscribe without interactivity store", nil)
		return
	}
	channelID, subscriptionID := m.ChannelID, m.SubscriptionID
	sub := &interactivity.Subscriber{
		FilterIDs: m.FilterIDs,
		Callback: func(p interactivity.Payload) error {
			env := envelope.New(b.cfg.NodeID, envelope.TypeInteractivityEvent)
			env.ChannelID = channelID
			env.SubscriptionID = subscriptionID
			env.Payload = &p
			if err := b.view.Post(context.Background(), env); err != nil {
				b.log.Error("Failed to deliver interactivity event", err, logging.LogFields{"channel_id": channelID})
			}
			return nil
		},
	}
	if err := b.cfg.Store.AddSubscriber(channelID, sub); err != nil {
		b.log.Error("View subscription rejected", err, logging.LogFields{"channel_id": channelID})
		return
	}
	b.mu.Lock()
	old, replaced := b.subscriptions[subscriptionID]
	b.subscriptions[subscriptionID] = viewSubscription{channelID: channelID, subscriber: sub}
	b.mu.Unlock()
	if replaced {
		b.cfg.Store.RemoveSubscriber(old.channelID, old.subscriber)
	}
}

func (in *inbound) VisitUnsubscribe(m envelope.Unsubscribe) {
	b := in.bridge
	b.mu.Lock()
	s, ok := b.subscriptions[m.SubscriptionID]
	if ok {
		delete(b.subscriptions, m.SubscriptionID)
	}
	b.mu.Unlock()
	if ok && b.cfg.Store != nil {
		b.cfg.Store.RemoveSubscriber(s.channelID, s.subscriber)
	}
}

func (in *inbound) VisitPublish(m envelope.Publish) {
	b := in.bridge
	if b.cfg.Store == nil {
		return
	}
	if err := b.cfg.Store.Publish(m.ChannelID, m.Payload); err != nil {
		b.log.Error("Interactivity publish failed", err, logging.LogFields{"channel_id": m.ChannelID})
		b.raise(envelope.AlertError, err.Error())
	}
}

func (in *inbound) VisitRegisterTranslator(m envelope.RegisterTranslator) {
	b := in.bridge
	if b.cfg.Store == nil {
		return
	}
	if err := b.cfg.Store.RegisterSelectionTranslator(m.TranslatorID, m.Translator); err != nil {
		b.log.Error("Selection translator rejected", err, logging.LogFields{"translator_id": m.TranslatorID})
		b.raise(envelope.AlertError, err.Error())
	}
}

func (in *inbound) VisitRequestViewUpdate(m envelope.ViewUpdateRequest) {
	b := in.bridge
	if b.cfg.Updater == nil {
		b.log.Debug("Ignored view update without updater", nil)
		return
	}
	monitor, err := b.cfg.Updater.RequestViewUpdate(in.ctx, b.cfg.NodeID, m.Request, m.RequestSequence)
	if err != nil {
		b.log.Error("View update request failed", err, logging.LogFields{"request_sequence": m.RequestSequence})
	}
	if monitor == nil {
		return
	}
	if err := b.DeliverMonitor(in.ctx, monitor); err != nil {
		b.log.Error("Failed to deliver view update monitor", err, nil)
	}
}

func (in *inbound) VisitCancelViewRequest(m envelope.CancelViewRequest) {
	b := in.bridge
	if b.cfg.Updater == nil {
		return
	}
	if err := b.cfg.Updater.CancelViewRequest(in.ctx, b.cfg.NodeID, m.MonitorID, m.InvokeCatch); err != nil {
		b.log.Error("View update cancellation failed", err, logging.LogFields{"monitor_id": m.MonitorID})
	}
}
