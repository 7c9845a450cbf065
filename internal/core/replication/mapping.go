package replication

import (
	"fmt"
	"math/rand/v2"

	"github.com/zeusync/meshsync/internal/core/models"
	"github.com/zeusync/meshsync/internal/core/protocol"
)

// Table is the bidirectional mapping between local entities and network
// entity ids. Both directions change together or not at all. It is used from
// the tick loop only and does no locking.
type Table struct {
	localToNetwork map[models.EntityID]protocol.NetworkID
	networkToLocal map[protocol.NetworkID]models.EntityID
	generate       func() uint64
}

// NewTable creates a table assigning random 64-bit ids.
func NewTable() *Table {
	return NewTableWithGenerator(rand.Uint64)
}

// NewTableWithGenerator creates a table drawing candidate ids from gen.
func NewTableWithGenerator(gen func() uint64) *Table {
	return &Table{
		localToNetwork: make(map[models.EntityID]protocol.NetworkID),
		networkToLocal: make(map[protocol.NetworkID]models.EntityID),
		generate:       gen,
	}
}

// Map pairs network and local. Neither side may be mapped already.
func (t *Table) Map(network protocol.NetworkID, local models.EntityID) error {
	if network == protocol.NoEntity {
		return fmt.Errorf("%w: reserved network id", ErrInvalidItem)
	}
	if n, ok := t.localToNetwork[local]; ok {
		return fmt.Errorf("%w: local %d is network %s", ErrDuplicateMapping, local, n)
	}
	if l, ok := t.networkToLocal[network]; ok {
		return fmt.Errorf("%w: network %s is local %d", ErrDuplicateMapping, network, l)
	}
	t.localToNetwork[local] = network
	t.networkToLocal[network] = local
	return nil
}

// Unmap removes the pair. Both directions must exist and point at each
// other.
func (t *Table) Unmap(network protocol.NetworkID, local models.EntityID) error {
	n, okLocal := t.localToNetwork[local]
	l, okNetwork := t.networkToLocal[network]
	if !okLocal || !okNetwork || n != network || l != local {
		return fmt.Errorf("%w: network %s, local %d", ErrMappingNotFound, network, local)
	}
	delete(t.localToNetwork, local)
	delete(t.networkToLocal, network)
	return nil
}

// UnmapLocal removes the pair local belongs to, if any.
func (t *Table) UnmapLocal(local models.EntityID) bool {
	n, ok := t.localToNetwork[local]
	if !ok {
		return false
	}
	delete(t.localToNetwork, local)
	delete(t.networkToLocal, n)
	return true
}

func (t *Table) LookupByNetwork(network protocol.NetworkID) (models.EntityID, bool) {
	l, ok := t.networkToLocal[network]
	return l, ok
}

func (t *Table) LookupByLocal(local models.EntityID) (protocol.NetworkID, bool) {
	n, ok := t.localToNetwork[local]
	return n, ok
}

// Assign maps local to a fresh network id. Candidates that are reserved or
// already mapped are re-rolled until a free one comes up.
func (t *Table) Assign(local models.EntityID) (protocol.NetworkID, error) {
	if n, ok := t.localToNetwork[local]; ok {
		return protocol.NoEntity, fmt.Errorf("%w: local %d is network %s", ErrDuplicateMapping, local, n)
	}
	for {
		candidate := protocol.NetworkID(t.generate())
		if candidate == protocol.NoEntity {
			continue
		}
		if _, taken := t.networkToLocal[candidate]; taken {
			continue
		}
		t.localToNetwork[local] = candidate
		t.networkToLocal[candidate] = local
		return candidate, nil
	}
}

func (t *Table) Len() int {
	return len(t.localToNetwork)
}
