package interactivity

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	errspkg "github.com/drblury/viewbridge/internal/runtime/errors"
	"github.com/drblury/viewbridge/internal/runtime/logging"
)

// SelectionPrefix is prepended to view ids to form selection channel ids.
const SelectionPrefix = "selection-"

// SelectionChannel returns the selection channel id of a view.
func SelectionChannel(viewID string) string {
	return SelectionPrefix + viewID
}

// Translator links the selection channel of a source view to the selection
// channels of its targets. Forward relays change-sets unchanged in both
// directions; Mapping expands each source key to a group of target keys.
type Translator struct {
	SourceID  string              `json:"sourceID"`
	TargetIDs []string            `json:"targetIDs"`
	Forward   bool                `json:"forward,omitempty"`
	Mapping   map[string][]string `json:"mapping,omitempty"`
}

// Validate checks that exactly one of Forward or Mapping is in use.
func (t Translator) Validate() error {
	if t.SourceID == "" || len(t.TargetIDs) == 0 {
		return errspkg.ErrInvalidTranslator
	}
	for _, id := range t.TargetIDs {
		if id == "" {
			return errspkg.ErrInvalidTranslator
		}
	}
	if t.Forward == (len(t.Mapping) > 0) {
		return errspkg.ErrInvalidTranslator
	}
	return nil
}

type membership int

const (
	memberNone membership = iota
	memberPartial
	memberFull
)

type translatorState struct {
	id         string
	translator Translator
	store      *Store

	// groups holds the deduplicated mapping; groupsOf is its reverse index.
	groups   map[string][]string
	groupsOf map[string][]string
	// sourceKeys is the sorted key set of groups.
	sourceKeys []string

	mu sync.Mutex
	// selected[targetID][sourceKey] is the set of target keys of that group
	// currently known to be selected on the target channel.
	selected map[string]map[string]map[string]struct{}

	sourceSub  *Subscriber
	targetSubs map[string]*Subscriber
}

// RegisterSelectionTranslator installs translator under translatorID,
// replacing any translator previously registered with the same id. Invalid
// translators are rejected without changing the store.
func (s *Store) RegisterSelectionTranslator(translatorID string, translator Translator) error {
	if translatorID == "" {
		return fmt.Errorf("%w: translator id is empty", errspkg.ErrInvalidTranslator)
	}
	if err := translator.Validate(); err != nil {
		return err
	}

	state := newTranslatorState(s, translatorID, translator)

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.translators[translatorID]; ok {
		old.detachLocked()
	}
	state.attachLocked()
	s.translators[translatorID] = state

	s.log.Debug("Registered selection translator", logging.LogFields{
		"translator_id": translatorID,
		"source_id":     translator.SourceID,
		"target_ids":    translator.TargetIDs,
		"forward":       translator.Forward,
	})
	return nil
}

// UnregisterSelectionTranslator removes the translator and its derived
// subscribers. It reports whether a translator was registered.
func (s *Store) UnregisterSelectionTranslator(translatorID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.translators[translatorID]
	if !ok {
		return false
	}
	state.detachLocked()
	delete(s.translators, translatorID)
	return true
}

func newTranslatorState(s *Store, id string, t Translator) *translatorState {
	state := &translatorState{
		id:         id,
		translator: t,
		store:      s,
		groups:     make(map[string][]string, len(t.Mapping)),
		groupsOf:   make(map[string][]string),
		selected:   make(map[string]map[string]map[string]struct{}, len(t.TargetIDs)),
		targetSubs: make(map[string]*Subscriber, len(t.TargetIDs)),
	}
	for key := range t.Mapping {
		state.sourceKeys = append(state.sourceKeys, key)
	}
	sort.Strings(state.sourceKeys)
	for _, key := range state.sourceKeys {
		group := dedupe(t.Mapping[key])
		state.groups[key] = group
		for _, target := range group {
			state.groupsOf[target] = append(state.groupsOf[target], key)
		}
	}
	for _, target := range t.TargetIDs {
		state.selected[target] = make(map[string]map[string]struct{})
	}

	if t.Forward {
		state.sourceSub = &Subscriber{Callback: state.forwardFromSource}
	} else {
		state.sourceSub = &Subscriber{Callback: state.expandFromSource}
	}
	for _, target := range t.TargetIDs {
		target := target
		if t.Forward {
			state.targetSubs[target] = &Subscriber{Callback: func(p Payload) error {
				return state.forwardFromTarget(target, p)
			}}
		} else {
			state.targetSubs[target] = &Subscriber{Callback: func(p Payload) error {
				return state.aggregateFromTarget(target, p)
			}}
		}
	}
	return state
}

func (t *translatorState) attachLocked() {
	s := t.store
	src := s.channelLocked(SelectionChannel(t.translator.SourceID))
	src.subscribers = append(src.subscribers, t.sourceSub)
	for _, target := range t.translator.TargetIDs {
		ch := s.channelLocked(SelectionChannel(target))
		ch.subscribers = append(ch.subscribers, t.targetSubs[target])
	}
}

func (t *translatorState) detachLocked() {
	s := t.store
	s.removeSubscriberLocked(SelectionChannel(t.translator.SourceID), t.sourceSub)
	for _, target := range t.translator.TargetIDs {
		s.removeSubscriberLocked(SelectionChannel(target), t.targetSubs[target])
	}
}

func (t *translatorState) forwardFromSource(p Payload) error {
	return t.publishToTargets(p)
}

// publishToTargets relays p to every target channel and joins the failures.
func (t *translatorState) publishToTargets(p Payload) error {
	var errs []error
	for _, target := range t.translator.TargetIDs {
		if err := t.store.publish(SelectionChannel(target), p, t.targetSubs[target]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *translatorState) forwardFromTarget(_ string, p Payload) error {
	return t.store.publish(SelectionChannel(t.translator.SourceID), p, t.sourceSub)
}

// expandFromSource replaces every source key by its target group and
// publishes the union to each target. Unmapped keys are ignored.
func (t *translatorState) expandFromSource(p Payload) error {
	if !p.ChangeSet.wellFormed() {
		return fmt.Errorf("translator %s: %w", t.id, errspkg.ErrMalformedChangeSet)
	}
	added := t.expand(p.ChangeSet.Added)
	removed := t.expand(p.ChangeSet.Removed)
	if len(added) == 0 && len(removed) == 0 {
		return nil
	}

	t.mu.Lock()
	for _, target := range t.translator.TargetIDs {
		t.applyLocked(target, added, removed)
	}
	t.mu.Unlock()

	out := Payload{
		ChangeSet:       &ChangeSet{Added: added, Removed: removed},
		SelectionMethod: p.SelectionMethod,
	}
	return t.publishToTargets(out)
}

// aggregateFromTarget folds a target-side delta into the group bookkeeping
// and publishes the resulting membership transitions on the source channel.
func (t *translatorState) aggregateFromTarget(target string, p Payload) error {
	if !p.ChangeSet.wellFormed() {
		return fmt.Errorf("translator %s: %w", t.id, errspkg.ErrMalformedChangeSet)
	}

	t.mu.Lock()
	affected := t.affectedGroups(p.ChangeSet.Added, p.ChangeSet.Removed)
	before := make(map[string]membership, len(affected))
	for _, key := range affected {
		before[key] = t.stateLocked(target, key)
	}
	t.applyLocked(target, p.ChangeSet.Added, p.ChangeSet.Removed)

	out := &ChangeSet{}
	for _, key := range affected {
		transition(out, key, before[key], t.stateLocked(target, key))
	}
	t.mu.Unlock()

	if out.empty() {
		return nil
	}
	return t.store.publish(
		SelectionChannel(t.translator.SourceID),
		Payload{ChangeSet: out, SelectionMethod: p.SelectionMethod},
		t.sourceSub,
	)
}

func transition(out *ChangeSet, key string, from, to membership) {
	switch {
	case from == to:
	case to == memberFull:
		out.Added = append(out.Added, key)
		if from == memberPartial {
			out.PartialRemoved = append(out.PartialRemoved, key)
		}
	case from == memberFull:
		out.Removed = append(out.Removed, key)
		if to == memberPartial {
			out.PartialAdded = append(out.PartialAdded, key)
		}
	case to == memberPartial:
		out.PartialAdded = append(out.PartialAdded, key)
	default:
		out.PartialRemoved = append(out.PartialRemoved, key)
	}
}

func (t *translatorState) expand(keys []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, key := range keys {
		for _, target := range t.groups[key] {
			if _, ok := seen[target]; ok {
				continue
			}
			seen[target] = struct{}{}
			out = append(out, target)
		}
	}
	return out
}

// affectedGroups returns the sorted source keys whose group contains any of
// the given target keys.
func (t *translatorState) affectedGroups(lists ...[]string) []string {
	hit := make(map[string]struct{})
	for _, keys := range lists {
		for _, key := range keys {
			for _, group := range t.groupsOf[key] {
				hit[group] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(hit))
	for _, key := range t.sourceKeys {
		if _, ok := hit[key]; ok {
			out = append(out, key)
		}
	}
	return out
}

func (t *translatorState) applyLocked(target string, added, removed []string) {
	groups := t.selected[target]
	for _, key := range added {
		for _, group := range t.groupsOf[key] {
			members, ok := groups[group]
			if !ok {
				members = make(map[string]struct{})
				groups[group] = members
			}
			members[key] = struct{}{}
		}
	}
	for _, key := range removed {
		for _, group := range t.groupsOf[key] {
			if members, ok := groups[group]; ok {
				delete(members, key)
				if len(members) == 0 {
					delete(groups, group)
				}
			}
		}
	}
}

func (t *translatorState) stateLocked(target, group string) membership {
	n := len(t.selected[target][group])
	switch {
	case n == 0:
		return memberNone
	case n >= len(t.groups[group]):
		return memberFull
	default:
		return memberPartial
	}
}

func dedupe(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
