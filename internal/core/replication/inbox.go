package replication

import (
	"slices"

	"github.com/zeusync/meshsync/internal/core/protocol"
)

// Inbox holds the received items of one tick grouped by type id, in arrival
// order within each type.
type Inbox struct {
	byType map[protocol.TypeID][]protocol.Item
	count  int
}

func NewInbox() *Inbox {
	return &Inbox{byType: make(map[protocol.TypeID][]protocol.Item)}
}

func (b *Inbox) Add(items ...protocol.Item) {
	for _, item := range items {
		b.byType[item.TypeID] = append(b.byType[item.TypeID], item)
	}
	b.count += len(items)
}

// Take removes and returns the items of type id.
func (b *Inbox) Take(id protocol.TypeID) []protocol.Item {
	items := b.byType[id]
	delete(b.byType, id)
	b.count -= len(items)
	return items
}

func (b *Inbox) Len() int {
	return b.count
}

// Types returns the type ids still holding items, ascending.
func (b *Inbox) Types() []protocol.TypeID {
	ids := make([]protocol.TypeID, 0, len(b.byType))
	for id := range b.byType {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Clear drops everything left.
func (b *Inbox) Clear() {
	clear(b.byType)
	b.count = 0
}
