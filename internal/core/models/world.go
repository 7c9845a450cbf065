package models

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
)

// EntityID is a process-local entity handle. It means nothing to other peers.
type EntityID uint64

var (
	ErrEntityNotFound = errors.New("entity not found")
	ErrNotPointer     = errors.New("component must be a non-nil pointer")
)

// World is the host entity/component store the replication layer drives.
// Components are keyed by their Go type and stored as pointers.
//
// Removing the last component of an entity destroys the entity; callers
// detect this through EntityExists.
type World interface {
	CreateEntity() EntityID
	EntityExists(EntityID) bool
	RemoveEntity(EntityID)

	Component(id EntityID, t reflect.Type) (any, bool)
	SetComponent(id EntityID, component any) error
	RemoveComponent(id EntityID, t reflect.Type) bool
	ComponentCount(id EntityID) int

	// Each calls fn for every entity carrying a component of type t, in
	// ascending id order, until fn returns false.
	Each(t reflect.Type, fn func(EntityID, any) bool)
}

var _ World = (*MemoryWorld)(nil)

// MemoryWorld is a map-backed World. It is not safe for concurrent use.
type MemoryWorld struct {
	nextID   EntityID
	entities map[EntityID]map[reflect.Type]any
	byType   map[reflect.Type]map[EntityID]struct{}
}

func NewWorld() *MemoryWorld {
	return &MemoryWorld{
		nextID:   1,
		entities: make(map[EntityID]map[reflect.Type]any),
		byType:   make(map[reflect.Type]map[EntityID]struct{}),
	}
}

func (w *MemoryWorld) CreateEntity() EntityID {
	id := w.nextID
	w.nextID++
	w.entities[id] = make(map[reflect.Type]any)
	return id
}

func (w *MemoryWorld) EntityExists(id EntityID) bool {
	_, ok := w.entities[id]
	return ok
}

func (w *MemoryWorld) RemoveEntity(id EntityID) {
	components, ok := w.entities[id]
	if !ok {
		return
	}
	for t := range components {
		w.unindex(t, id)
	}
	delete(w.entities, id)
}

func (w *MemoryWorld) Component(id EntityID, t reflect.Type) (any, bool) {
	components, ok := w.entities[id]
	if !ok {
		return nil, false
	}
	c, ok := components[t]
	return c, ok
}

func (w *MemoryWorld) SetComponent(id EntityID, component any) error {
	v := reflect.ValueOf(component)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return fmt.Errorf("%w: got %T", ErrNotPointer, component)
	}
	components, ok := w.entities[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrEntityNotFound, id)
	}

	t := v.Type().Elem()
	components[t] = component

	index, ok := w.byType[t]
	if !ok {
		index = make(map[EntityID]struct{})
		w.byType[t] = index
	}
	index[id] = struct{}{}
	return nil
}

func (w *MemoryWorld) RemoveComponent(id EntityID, t reflect.Type) bool {
	components, ok := w.entities[id]
	if !ok {
		return false
	}
	if _, ok = components[t]; !ok {
		return false
	}
	delete(components, t)
	w.unindex(t, id)
	if len(components) == 0 {
		delete(w.entities, id)
	}
	return true
}

func (w *MemoryWorld) ComponentCount(id EntityID) int {
	return len(w.entities[id])
}

func (w *MemoryWorld) Each(t reflect.Type, fn func(EntityID, any) bool) {
	index := w.byType[t]
	if len(index) == 0 {
		return
	}
	ids := make([]EntityID, 0, len(index))
	for id := range index {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		c, ok := w.Component(id, t)
		if !ok {
			continue
		}
		if !fn(id, c) {
			return
		}
	}
}

// Len returns the number of live entities.
func (w *MemoryWorld) Len() int {
	return len(w.entities)
}

func (w *MemoryWorld) unindex(t reflect.Type, id EntityID) {
	index, ok := w.byType[t]
	if !ok {
		return
	}
	delete(index, id)
	if len(index) == 0 {
		delete(w.byType, t)
	}
}
