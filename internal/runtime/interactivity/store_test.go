package interactivity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/viewbridge/internal/runtime/errors"
)

type recorder struct {
	payloads []Payload
}

func (r *recorder) subscriber(filterIDs ...string) *Subscriber {
	return &Subscriber{
		Callback: func(p Payload) error {
			r.payloads = append(r.payloads, p)
			return nil
		},
		FilterIDs: filterIDs,
	}
}

func TestAddSubscriberValidation(t *testing.T) {
	store := NewStore(nil)

	assert.ErrorIs(t, store.AddSubscriber("", (&recorder{}).subscriber()), errspkg.ErrChannelIDRequired)
	assert.ErrorIs(t, store.AddSubscriber("filter", nil), errspkg.ErrSubscriberNil)
	assert.ErrorIs(t, store.AddSubscriber("filter", &Subscriber{}), errspkg.ErrSubscriberNil)
}

func TestAddSubscriberDoesNotReplayData(t *testing.T) {
	store := NewStore(nil)
	require.NoError(t, store.UpdateData("filter", Payload{Data: "range"}))

	rec := &recorder{}
	require.NoError(t, store.AddSubscriber("filter", rec.subscriber()))
	assert.Empty(t, rec.payloads)

	data, ok := store.Data("filter")
	require.True(t, ok)
	assert.Equal(t, "range", data.Data)
}

func TestUpdateDataDoesNotNotify(t *testing.T) {
	store := NewStore(nil)
	rec := &recorder{}
	require.NoError(t, store.AddSubscriber("filter", rec.subscriber()))

	require.NoError(t, store.UpdateData("filter", Payload{Data: 1}))
	assert.Empty(t, rec.payloads)
}

func TestSubscriberCountAccuracy(t *testing.T) {
	store := NewStore(nil)
	rec := &recorder{}
	subs := make([]*Subscriber, 5)
	for i := range subs {
		subs[i] = rec.subscriber()
		require.NoError(t, store.AddSubscriber("selection-a", subs[i]))
	}
	assert.Equal(t, 5, store.SubscriberCount("selection-a"))

	assert.True(t, store.RemoveSubscriber("selection-a", subs[1]))
	assert.True(t, store.RemoveSubscriber("selection-a", subs[3]))
	assert.False(t, store.RemoveSubscriber("selection-a", subs[3]))
	assert.False(t, store.RemoveSubscriber("selection-missing", subs[0]))
	assert.Equal(t, 3, store.SubscriberCount("selection-a"))
}

func TestRemoveSubscriberRemovesFirstMatchOnly(t *testing.T) {
	store := NewStore(nil)
	rec := &recorder{}
	sub := rec.subscriber()
	require.NoError(t, store.AddSubscriber("c", sub))
	require.NoError(t, store.AddSubscriber("c", sub))

	require.True(t, store.RemoveSubscriber("c", sub))
	require.NoError(t, store.Publish("c", Payload{Data: "x"}))
	assert.Len(t, rec.payloads, 1)
}

func TestRemoveSubscriberPrunesEmptyChannel(t *testing.T) {
	store := NewStore(nil)
	sub := (&recorder{}).subscriber()
	require.NoError(t, store.AddSubscriber("empty", sub))
	require.NoError(t, store.AddSubscriber("with-data", sub))
	require.NoError(t, store.UpdateData("with-data", Payload{Data: true}))

	store.RemoveSubscriber("empty", sub)
	store.RemoveSubscriber("with-data", sub)

	assert.Equal(t, []ChannelInfo{{ID: "with-data", HasData: true}}, store.Snapshot())
}

func TestPublishFiltering(t *testing.T) {
	tests := []struct {
		name      string
		filterIDs []string
		payload   Payload
		delivered bool
	}{
		{name: "no filter", payload: Payload{Data: 1}, delivered: true},
		{name: "element match", filterIDs: []string{"row-1"}, payload: Payload{Elements: []Element{{ID: "row-1"}}}, delivered: true},
		{name: "change-set match", filterIDs: []string{"row-2"}, payload: Payload{ChangeSet: &ChangeSet{Removed: []string{"row-2"}}}, delivered: true},
		{name: "no overlap", filterIDs: []string{"row-3"}, payload: Payload{ChangeSet: &ChangeSet{Added: []string{"row-2"}}}},
		{name: "filter without references", filterIDs: []string{"row-3"}, payload: Payload{Data: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore(nil)
			rec := &recorder{}
			require.NoError(t, store.AddSubscriber("c", rec.subscriber(tt.filterIDs...)))
			require.NoError(t, store.Publish("c", tt.payload))
			assert.Equal(t, tt.delivered, len(rec.payloads) == 1)
		})
	}
}

func TestPublishToUnknownChannelIsNoop(t *testing.T) {
	store := NewStore(nil)
	assert.NoError(t, store.Publish("nobody", Payload{Data: 1}))
	assert.Empty(t, store.Snapshot())
}

func TestPublishInRegistrationOrderAndJoinsErrors(t *testing.T) {
	store := NewStore(nil)
	var order []string
	boom := errors.New("boom")
	require.NoError(t, store.AddSubscriber("c", &Subscriber{Callback: func(Payload) error {
		order = append(order, "first")
		return nil
	}}))
	require.NoError(t, store.AddSubscriber("c", &Subscriber{Callback: func(Payload) error {
		order = append(order, "second")
		return boom
	}}))
	require.NoError(t, store.AddSubscriber("c", &Subscriber{Callback: func(Payload) error {
		order = append(order, "third")
		return nil
	}}))

	err := store.Publish("c", Payload{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestPublishReachesSubscribersAfterFailingTranslator(t *testing.T) {
	store := NewStore(nil)
	require.NoError(t, store.RegisterSelectionTranslator("groups", Translator{
		SourceID:  "a",
		TargetIDs: []string{"b"},
		Mapping:   map[string][]string{"g": {"t"}},
	}))
	var got []Payload
	require.NoError(t, store.AddSubscriber(SelectionChannel("a"), &Subscriber{Callback: func(p Payload) error {
		got = append(got, p)
		return nil
	}}))

	err := store.Publish(SelectionChannel("a"), Payload{Data: "no change-set"})
	assert.ErrorIs(t, err, errspkg.ErrMalformedChangeSet)
	require.Len(t, got, 1)
	assert.Equal(t, "no change-set", got[0].Data)
}

func TestPublishSnapshotsSubscribers(t *testing.T) {
	store := NewStore(nil)
	late := &recorder{}
	var self *Subscriber
	self = &Subscriber{Callback: func(Payload) error {
		store.RemoveSubscriber("c", self)
		return store.AddSubscriber("c", late.subscriber())
	}}
	second := &recorder{}
	require.NoError(t, store.AddSubscriber("c", self))
	require.NoError(t, store.AddSubscriber("c", second.subscriber()))

	require.NoError(t, store.Publish("c", Payload{}))
	assert.Len(t, second.payloads, 1)
	assert.Empty(t, late.payloads)
	assert.Equal(t, 2, store.SubscriberCount("c"))
}

func TestClearDropsChannelsAndTranslators(t *testing.T) {
	store := NewStore(nil)
	require.NoError(t, store.AddSubscriber("c", (&recorder{}).subscriber()))
	require.NoError(t, store.RegisterSelectionTranslator("t", Translator{SourceID: "a", TargetIDs: []string{"b"}, Forward: true}))

	store.Clear()
	assert.Empty(t, store.Snapshot())
	assert.Empty(t, store.Translators())
}

func TestReferencedIDs(t *testing.T) {
	p := Payload{
		Elements:  []Element{{ID: "e1"}, {ID: "k1"}},
		ChangeSet: &ChangeSet{Added: []string{"k1", "k2"}, PartialRemoved: []string{"k3"}},
	}
	assert.Equal(t, []string{"e1", "k1", "k2", "k3"}, p.ReferencedIDs())
	assert.Empty(t, Payload{}.ReferencedIDs())
}
