package interactivity

// ChangeSet is a selection delta. Added and Removed carry full membership
// changes; the partial lists flag source keys whose group is only partly
// selected on the other side of a mapping translator.
type ChangeSet struct {
	Added          []string `json:"added,omitempty"`
	Removed        []string `json:"removed,omitempty"`
	PartialAdded   []string `json:"partialAdded,omitempty"`
	PartialRemoved []string `json:"partialRemoved,omitempty"`
}

// wellFormed reports whether the change-set carries at least one of its lists.
func (c *ChangeSet) wellFormed() bool {
	if c == nil {
		return false
	}
	return c.Added != nil || c.Removed != nil || c.PartialAdded != nil || c.PartialRemoved != nil
}

func (c *ChangeSet) empty() bool {
	return c == nil || len(c.Added)+len(c.Removed)+len(c.PartialAdded)+len(c.PartialRemoved) == 0
}

// Element is one referenced row, point or record of a view.
type Element struct {
	ID   string `json:"id"`
	Data any    `json:"data,omitempty"`
}

// Payload is the body published on an interactivity channel.
type Payload struct {
	ChangeSet       *ChangeSet `json:"changeSet,omitempty"`
	Elements        []Element  `json:"elements,omitempty"`
	SelectionMethod string     `json:"selectionMethod,omitempty"`
	Data            any        `json:"data,omitempty"`
}

// ReferencedIDs returns the element ids followed by every change-set key, in
// order of appearance and without duplicates.
func (p Payload) ReferencedIDs() []string {
	var ids []string
	seen := make(map[string]struct{})
	add := func(keys ...string) {
		for _, k := range keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			ids = append(ids, k)
		}
	}
	for _, el := range p.Elements {
		add(el.ID)
	}
	if cs := p.ChangeSet; cs != nil {
		add(cs.Added...)
		add(cs.Removed...)
		add(cs.PartialAdded...)
		add(cs.PartialRemoved...)
	}
	return ids
}

// matches reports whether a subscriber filtered on filterIDs should see p.
func (p Payload) matches(filterIDs []string) bool {
	if len(filterIDs) == 0 {
		return true
	}
	refs := p.ReferencedIDs()
	if len(refs) == 0 {
		return false
	}
	wanted := make(map[string]struct{}, len(filterIDs))
	for _, id := range filterIDs {
		wanted[id] = struct{}{}
	}
	for _, id := range refs {
		if _, ok := wanted[id]; ok {
			return true
		}
	}
	return false
}
