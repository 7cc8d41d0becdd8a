package interactivity

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	errspkg "github.com/drblury/viewbridge/internal/runtime/errors"
	"github.com/drblury/viewbridge/internal/runtime/logging"
)

// Callback receives a published payload.
type Callback func(Payload) error

// Subscriber is identified by pointer: RemoveSubscriber removes the entry
// that was added with the same *Subscriber.
type Subscriber struct {
	Callback  Callback
	FilterIDs []string
}

type channel struct {
	data        *Payload
	subscribers []*Subscriber
}

// ChannelInfo describes one channel for introspection.
type ChannelInfo struct {
	ID          string `json:"id"`
	Subscribers int    `json:"subscribers"`
	HasData     bool   `json:"hasData"`
}

// Store is a channel-keyed publish/subscribe bus scoped to one page.
type Store struct {
	mu          sync.Mutex
	channels    map[string]*channel
	translators map[string]*translatorState
	log         logging.ServiceLogger
}

// NewStore creates an empty store. A nil logger discards output.
func NewStore(log logging.ServiceLogger) *Store {
	return &Store{
		channels:    make(map[string]*channel),
		translators: make(map[string]*translatorState),
		log:         logging.OrNop(log),
	}
}

func (s *Store) channelLocked(id string) *channel {
	ch, ok := s.channels[id]
	if !ok {
		ch = &channel{}
		s.channels[id] = ch
	}
	return ch
}

// AddSubscriber appends sub to channel id, creating the channel if needed.
// Current channel data is not replayed.
func (s *Store) AddSubscriber(id string, sub *Subscriber) error {
	if id == "" {
		return errspkg.ErrChannelIDRequired
	}
	if sub == nil || sub.Callback == nil {
		return errspkg.ErrSubscriberNil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := s.channelLocked(id)
	ch.subscribers = append(ch.subscribers, sub)
	return nil
}

// RemoveSubscriber removes the first entry equal to sub. Channels left with
// neither subscribers nor data are discarded.
func (s *Store) RemoveSubscriber(id string, sub *Subscriber) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeSubscriberLocked(id, sub)
}

func (s *Store) removeSubscriberLocked(id string, sub *Subscriber) bool {
	ch, ok := s.channels[id]
	if !ok {
		return false
	}
	for i, existing := range ch.subscribers {
		if existing != sub {
			continue
		}
		ch.subscribers = append(ch.subscribers[:i:i], ch.subscribers[i+1:]...)
		if len(ch.subscribers) == 0 && ch.data == nil {
			delete(s.channels, id)
		}
		return true
	}
	return false
}

// UpdateData stores data on channel id without notifying subscribers.
func (s *Store) UpdateData(id string, data Payload) error {
	if id == "" {
		return errspkg.ErrChannelIDRequired
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelLocked(id).data = &data
	return nil
}

// Data returns the payload last stored with UpdateData.
func (s *Store) Data(id string) (Payload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[id]
	if !ok || ch.data == nil {
		return Payload{}, false
	}
	return *ch.data, true
}

// SubscriberCount returns the number of subscribers on channel id, including
// the ones registered by selection translators.
func (s *Store) SubscriberCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.channels[id]; ok {
		return len(ch.subscribers)
	}
	return 0
}

// Publish delivers data to the subscribers of channel id in registration
// order. Every matching subscriber is called even when an earlier one fails;
// the callback errors are joined. Publishing to an unknown channel is a no-op.
func (s *Store) Publish(id string, data Payload) error {
	return s.publish(id, data, nil)
}

func (s *Store) publish(id string, data Payload, skip *Subscriber) error {
	s.mu.Lock()
	ch, ok := s.channels[id]
	var subs []*Subscriber
	if ok {
		subs = append(subs, ch.subscribers...)
	}
	s.mu.Unlock()

	s.log.Trace("Publishing interactivity payload", logging.LogFields{
		"channel_id":  id,
		"subscribers": len(subs),
	})

	var errs []error
	for _, sub := range subs {
		if sub == skip || !data.matches(sub.FilterIDs) {
			continue
		}
		if err := sub.Callback(data); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("publish %s: %w", id, errors.Join(errs...))
	}
	return nil
}

// Clear drops every channel and translator.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = make(map[string]*channel)
	s.translators = make(map[string]*translatorState)
}

// Snapshot lists the channels sorted by id.
func (s *Store) Snapshot() []ChannelInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	infos := make([]ChannelInfo, 0, len(s.channels))
	for id, ch := range s.channels {
		infos = append(infos, ChannelInfo{ID: id, Subscribers: len(ch.subscribers), HasData: ch.data != nil})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Translators returns the registered translator ids, sorted.
func (s *Store) Translators() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.translators))
	for id := range s.translators {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
