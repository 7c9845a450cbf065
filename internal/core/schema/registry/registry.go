// Package registry maps wire type ids onto the Go types registered for
// replication.
package registry

import (
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/zeusync/meshsync/internal/core/protocol"
)

var (
	ErrDuplicateTypeID       = errors.New("type id already registered to a different type")
	ErrTypeAlreadyRegistered = errors.New("type already registered under a different id")
	ErrNilType               = errors.New("nil type")
)

// Registry is not safe for concurrent use; it is filled at startup and read
// from the tick loop.
type Registry struct {
	byID   map[protocol.TypeID]reflect.Type
	byType map[reflect.Type]protocol.TypeID
}

func New() *Registry {
	return &Registry{
		byID:   make(map[protocol.TypeID]reflect.Type),
		byType: make(map[reflect.Type]protocol.TypeID),
	}
}

// Register binds id to t. Registering the same pair again is a no-op.
func (r *Registry) Register(id protocol.TypeID, t reflect.Type) error {
	if t == nil {
		return ErrNilType
	}
	if existing, ok := r.byID[id]; ok {
		if existing == t {
			return nil
		}
		return fmt.Errorf("%w: id %d is %s, got %s", ErrDuplicateTypeID, id, existing, t)
	}
	if existing, ok := r.byType[t]; ok {
		return fmt.Errorf("%w: %s is id %d, got %d", ErrTypeAlreadyRegistered, t, existing, id)
	}
	r.byID[id] = t
	r.byType[t] = id
	return nil
}

// Resolve returns the type registered under id.
func (r *Registry) Resolve(id protocol.TypeID) (reflect.Type, bool) {
	t, ok := r.byID[id]
	return t, ok
}

// Lookup returns the id t is registered under.
func (r *Registry) Lookup(t reflect.Type) (protocol.TypeID, bool) {
	id, ok := r.byType[t]
	return id, ok
}

// IDs returns every registered id in ascending order.
func (r *Registry) IDs() []protocol.TypeID {
	ids := make([]protocol.TypeID, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (r *Registry) Len() int {
	return len(r.byID)
}
