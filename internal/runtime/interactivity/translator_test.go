package interactivity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/viewbridge/internal/runtime/errors"
)

func added(keys ...string) Payload {
	return Payload{ChangeSet: &ChangeSet{Added: keys}}
}

func removed(keys ...string) Payload {
	return Payload{ChangeSet: &ChangeSet{Removed: keys}}
}

func TestTranslatorValidate(t *testing.T) {
	tests := []struct {
		name       string
		translator Translator
		valid      bool
	}{
		{name: "forward", translator: Translator{SourceID: "a", TargetIDs: []string{"b"}, Forward: true}, valid: true},
		{name: "mapping", translator: Translator{SourceID: "a", TargetIDs: []string{"b"}, Mapping: map[string][]string{"g": {"t"}}}, valid: true},
		{name: "missing source", translator: Translator{TargetIDs: []string{"b"}, Forward: true}},
		{name: "missing targets", translator: Translator{SourceID: "a", Forward: true}},
		{name: "empty target id", translator: Translator{SourceID: "a", TargetIDs: []string{""}, Forward: true}},
		{name: "neither", translator: Translator{SourceID: "a", TargetIDs: []string{"b"}}},
		{name: "both", translator: Translator{SourceID: "a", TargetIDs: []string{"b"}, Forward: true, Mapping: map[string][]string{"g": {"t"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.translator.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errspkg.ErrInvalidTranslator)
			}
		})
	}
}

func TestRegisterInvalidTranslatorLeavesStoreUntouched(t *testing.T) {
	store := NewStore(nil)
	err := store.RegisterSelectionTranslator("t", Translator{SourceID: "a", TargetIDs: []string{"b"}})
	assert.ErrorIs(t, err, errspkg.ErrInvalidTranslator)
	assert.Empty(t, store.Snapshot())
	assert.Empty(t, store.Translators())

	err = store.RegisterSelectionTranslator("", Translator{SourceID: "a", TargetIDs: []string{"b"}, Forward: true})
	assert.ErrorIs(t, err, errspkg.ErrInvalidTranslator)
}

func TestForwardTranslatorRelaysBothWays(t *testing.T) {
	store := NewStore(nil)
	require.NoError(t, store.RegisterSelectionTranslator("fwd", Translator{
		SourceID:  "a",
		TargetIDs: []string{"b", "c"},
		Forward:   true,
	}))

	onA, onB, onC := &recorder{}, &recorder{}, &recorder{}
	require.NoError(t, store.AddSubscriber(SelectionChannel("a"), onA.subscriber()))
	require.NoError(t, store.AddSubscriber(SelectionChannel("b"), onB.subscriber()))
	require.NoError(t, store.AddSubscriber(SelectionChannel("c"), onC.subscriber()))

	require.NoError(t, store.Publish(SelectionChannel("a"), added("Row42")))
	require.Len(t, onB.payloads, 1)
	require.Len(t, onC.payloads, 1)
	assert.Equal(t, []string{"Row42"}, onB.payloads[0].ChangeSet.Added)
	assert.Equal(t, []string{"Row42"}, onC.payloads[0].ChangeSet.Added)
	assert.Len(t, onA.payloads, 1, "source subscriber sees its own publish once")

	require.NoError(t, store.Publish(SelectionChannel("b"), removed("Row7")))
	require.Len(t, onA.payloads, 2)
	assert.Equal(t, []string{"Row7"}, onA.payloads[1].ChangeSet.Removed)
	assert.Len(t, onB.payloads, 2, "no echo back to the publishing target")
	assert.Len(t, onC.payloads, 1)
}

func TestMappingExpandsSourceSelection(t *testing.T) {
	store := NewStore(nil)
	require.NoError(t, store.RegisterSelectionTranslator("map", Translator{
		SourceID:  "A",
		TargetIDs: []string{"B"},
		Mapping:   map[string][]string{"g1": {"t1", "t2"}},
	}))
	onB := &recorder{}
	require.NoError(t, store.AddSubscriber("selection-B", onB.subscriber()))

	require.NoError(t, store.Publish("selection-A", added("g1")))

	require.Len(t, onB.payloads, 1)
	assert.Equal(t, &ChangeSet{Added: []string{"t1", "t2"}}, onB.payloads[0].ChangeSet)
}

func TestMappingIgnoresUnmappedSourceKeys(t *testing.T) {
	store := NewStore(nil)
	require.NoError(t, store.RegisterSelectionTranslator("map", Translator{
		SourceID:  "A",
		TargetIDs: []string{"B"},
		Mapping:   map[string][]string{"g1": {"t1", "t2"}, "g2": {"t2", "t3"}},
	}))
	onB := &recorder{}
	require.NoError(t, store.AddSubscriber("selection-B", onB.subscriber()))

	require.NoError(t, store.Publish("selection-A", added("unknown")))
	assert.Empty(t, onB.payloads)

	require.NoError(t, store.Publish("selection-A", added("g1", "unknown", "g2")))
	require.Len(t, onB.payloads, 1)
	assert.Equal(t, []string{"t1", "t2", "t3"}, onB.payloads[0].ChangeSet.Added)
}

func TestMappingPartialMembershipRoundTrip(t *testing.T) {
	store := NewStore(nil)
	require.NoError(t, store.RegisterSelectionTranslator("map", Translator{
		SourceID:  "source",
		TargetIDs: []string{"target"},
		Mapping:   map[string][]string{"wibble": {"wobble", "wubble", "flob"}},
	}))
	onSource := &recorder{}
	require.NoError(t, store.AddSubscriber(SelectionChannel("source"), onSource.subscriber()))
	target := SelectionChannel("target")

	require.NoError(t, store.Publish(target, added("wobble")))
	require.Len(t, onSource.payloads, 1)
	assert.Equal(t, &ChangeSet{PartialAdded: []string{"wibble"}}, onSource.payloads[0].ChangeSet)

	require.NoError(t, store.Publish(target, added("wubble")))
	assert.Len(t, onSource.payloads, 1, "partial to partial publishes nothing")

	require.NoError(t, store.Publish(target, added("flob")))
	require.Len(t, onSource.payloads, 2)
	assert.Equal(t, &ChangeSet{Added: []string{"wibble"}, PartialRemoved: []string{"wibble"}}, onSource.payloads[1].ChangeSet)

	require.NoError(t, store.Publish(target, removed("wobble")))
	require.Len(t, onSource.payloads, 3)
	assert.Equal(t, &ChangeSet{Removed: []string{"wibble"}, PartialAdded: []string{"wibble"}}, onSource.payloads[2].ChangeSet)

	require.NoError(t, store.Publish(target, removed("wubble")))
	assert.Len(t, onSource.payloads, 3)

	require.NoError(t, store.Publish(target, removed("flob")))
	require.Len(t, onSource.payloads, 4)
	assert.Equal(t, &ChangeSet{PartialRemoved: []string{"wibble"}}, onSource.payloads[3].ChangeSet)

	require.NoError(t, store.Publish(target, removed("flob")))
	assert.Len(t, onSource.payloads, 4, "already empty group publishes nothing")
}

func TestMappingTransitionsFromNoneAndFull(t *testing.T) {
	store := NewStore(nil)
	require.NoError(t, store.RegisterSelectionTranslator("map", Translator{
		SourceID:  "source",
		TargetIDs: []string{"target"},
		Mapping:   map[string][]string{"g": {"a", "b"}},
	}))
	onSource := &recorder{}
	require.NoError(t, store.AddSubscriber(SelectionChannel("source"), onSource.subscriber()))
	target := SelectionChannel("target")

	require.NoError(t, store.Publish(target, added("a", "b", "untracked")))
	require.Len(t, onSource.payloads, 1)
	assert.Equal(t, &ChangeSet{Added: []string{"g"}}, onSource.payloads[0].ChangeSet)

	require.NoError(t, store.Publish(target, removed("a", "b")))
	require.Len(t, onSource.payloads, 2)
	assert.Equal(t, &ChangeSet{Removed: []string{"g"}}, onSource.payloads[1].ChangeSet)
}

func TestMappingSourcePublishUpdatesGroupState(t *testing.T) {
	store := NewStore(nil)
	require.NoError(t, store.RegisterSelectionTranslator("map", Translator{
		SourceID:  "source",
		TargetIDs: []string{"target"},
		Mapping:   map[string][]string{"g": {"a", "b"}},
	}))
	onSource := &recorder{}
	require.NoError(t, store.AddSubscriber(SelectionChannel("source"), onSource.subscriber()))

	require.NoError(t, store.Publish(SelectionChannel("source"), added("g")))
	require.Len(t, onSource.payloads, 1, "expansion is not echoed back to the source")

	require.NoError(t, store.Publish(SelectionChannel("target"), removed("a")))
	require.Len(t, onSource.payloads, 2)
	assert.Equal(t, &ChangeSet{Removed: []string{"g"}, PartialAdded: []string{"g"}}, onSource.payloads[1].ChangeSet)
}

func TestMappingRejectsMalformedChangeSet(t *testing.T) {
	store := NewStore(nil)
	require.NoError(t, store.RegisterSelectionTranslator("map", Translator{
		SourceID:  "source",
		TargetIDs: []string{"target"},
		Mapping:   map[string][]string{"g": {"a"}},
	}))

	for _, p := range []Payload{{}, {ChangeSet: &ChangeSet{}}, {Data: "x"}} {
		assert.ErrorIs(t, store.Publish(SelectionChannel("target"), p), errspkg.ErrMalformedChangeSet)
		assert.ErrorIs(t, store.Publish(SelectionChannel("source"), p), errspkg.ErrMalformedChangeSet)
	}
	assert.NoError(t, store.Publish(SelectionChannel("target"), Payload{ChangeSet: &ChangeSet{PartialAdded: []string{"g"}}}))
}

func TestTranslatorsSharingATargetEachTrackTheirGroups(t *testing.T) {
	store := NewStore(nil)
	for _, id := range []string{"one", "two"} {
		require.NoError(t, store.RegisterSelectionTranslator(id, Translator{
			SourceID:  "src-" + id,
			TargetIDs: []string{"shared"},
			Mapping:   map[string][]string{"g": {"x", "y"}},
		}))
	}
	one, two := &recorder{}, &recorder{}
	require.NoError(t, store.AddSubscriber(SelectionChannel("src-one"), one.subscriber()))
	require.NoError(t, store.AddSubscriber(SelectionChannel("src-two"), two.subscriber()))

	require.NoError(t, store.Publish(SelectionChannel("src-one"), added("g")))
	require.NoError(t, store.Publish(SelectionChannel("shared"), removed("x")))

	require.Len(t, one.payloads, 2)
	assert.Equal(t, &ChangeSet{Removed: []string{"g"}, PartialAdded: []string{"g"}}, one.payloads[1].ChangeSet)
	require.Len(t, two.payloads, 2)
	assert.Equal(t, &ChangeSet{Added: []string{"g"}}, two.payloads[0].ChangeSet)
	assert.Equal(t, &ChangeSet{Removed: []string{"g"}, PartialAdded: []string{"g"}}, two.payloads[1].ChangeSet)
}

func TestReregisterReplacesTranslator(t *testing.T) {
	store := NewStore(nil)
	fwd := Translator{SourceID: "a", TargetIDs: []string{"b"}, Forward: true}
	require.NoError(t, store.RegisterSelectionTranslator("t", fwd))
	require.NoError(t, store.RegisterSelectionTranslator("t", fwd))
	assert.Equal(t, 1, store.SubscriberCount(SelectionChannel("a")))
	assert.Equal(t, []string{"t"}, store.Translators())

	assert.True(t, store.UnregisterSelectionTranslator("t"))
	assert.False(t, store.UnregisterSelectionTranslator("t"))
	assert.Empty(t, store.Snapshot())
}
