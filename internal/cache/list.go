// ABOUTME: Ordered, id-keyed entity list with upsert semantics
// ABOUTME: Replaces in place on id match, otherwise inserts per list position

package cache

import "encoding/json"

// Entity is one element of a cached list, keyed by ID. Data carries the
// raw entity snapshot as delivered by the server.
type Entity struct {
	ID   string
	Data json.RawMessage
}

// Position selects where a new entity lands in a list. Existing entries
// are always replaced in place regardless of position.
type Position int

const (
	// Prepend inserts new entities at the head (most-recent-first feeds).
	Prepend Position = iota
	// Append inserts new entities at the tail.
	Append
)

// List is an ordered, id-keyed sequence of entities.
type List struct {
	items []Entity
}

// Upsert replaces the entry with a matching ID in place, preserving the
// list's existing order. When the ID is absent the entity is inserted at
// the given position.
func (l *List) Upsert(e Entity, pos Position) {
	for i := range l.items {
		if l.items[i].ID == e.ID {
			l.items[i] = e
			return
		}
	}

	if pos == Prepend {
		l.items = append([]Entity{e}, l.items...)
		return
	}
	l.items = append(l.items, e)
}

// Len returns the number of entities in the list.
func (l *List) Len() int {
	return len(l.items)
}

// Items returns a copy of the list in order.
func (l *List) Items() []Entity {
	out := make([]Entity, len(l.items))
	copy(out, l.items)
	return out
}
