package models

import "reflect"

// TypeOf returns the key under which components of type T are stored.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeFor[T]()
}

// Get returns the T component of entity id.
func Get[T any](w World, id EntityID) (*T, bool) {
	c, ok := w.Component(id, TypeOf[T]())
	if !ok {
		return nil, false
	}
	return c.(*T), true
}

// Add attaches v to entity id, replacing any existing T component.
func Add[T any](w World, id EntityID, v *T) error {
	return w.SetComponent(id, v)
}

// Ensure returns the T component of entity id, creating a zero value when
// the entity does not carry one yet. created reports which case happened.
func Ensure[T any](w World, id EntityID) (component *T, created bool, err error) {
	if c, ok := Get[T](w, id); ok {
		return c, false, nil
	}
	c := new(T)
	if err = w.SetComponent(id, c); err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// Remove detaches the T component of entity id. It reports whether there was
// one to remove.
func Remove[T any](w World, id EntityID) bool {
	return w.RemoveComponent(id, TypeOf[T]())
}

// CreateWith creates an entity carrying a zero T component.
func CreateWith[T any](w World) (EntityID, *T) {
	id := w.CreateEntity()
	c := new(T)
	// SetComponent cannot fail: the entity was just created and c is a
	// non-nil pointer.
	_ = w.SetComponent(id, c)
	return id, c
}

// Each calls fn for every entity carrying a T component.
func Each[T any](w World, fn func(EntityID, *T) bool) {
	w.Each(TypeOf[T](), func(id EntityID, c any) bool {
		return fn(id, c.(*T))
	})
}

// Query returns the ids of every entity carrying a T component, ascending.
func Query[T any](w World) []EntityID {
	var ids []EntityID
	Each[T](w, func(id EntityID, _ *T) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}
