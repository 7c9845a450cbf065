package session

import (
	"fmt"

	"github.com/zeusync/meshsync/internal/core/models"
	"github.com/zeusync/meshsync/internal/core/protocol"
	"github.com/zeusync/meshsync/internal/core/replication"
)

// RegisterComponent replicates component type T under id. A nil merge
// overwrites the live component with the received one.
func RegisterComponent[T any](s *Session, id protocol.TypeID, merge replication.MergeFunc[T]) error {
	return s.Register(replication.NewComponent(id, merge))
}

// RegisterEvent replicates event type T under id.
func RegisterEvent[T any](s *Session, id protocol.TypeID, merge replication.MergeFunc[T]) error {
	return s.Register(replication.NewEvent(id, merge))
}

// SendComponent queues the T component of entity for the next tick.
func SendComponent[T any](s *Session, entity models.EntityID) error {
	d, err := lookup[T](s, false)
	if err != nil {
		return err
	}
	s.enqueue(d, replication.Request{Entity: entity})
	return nil
}

// SendRemovedComponent announces on the next tick that entity lost its T
// component. The entity must have been replicated before.
func SendRemovedComponent[T any](s *Session, entity models.EntityID) error {
	d, err := lookup[T](s, false)
	if err != nil {
		return err
	}
	s.enqueue(d, replication.Request{Entity: entity, Removed: true})
	return nil
}

// SendEvent creates a local entity carrying a zero T and queues it for the
// next tick. Fill the returned value before ticking. The entity is
// destroyed once sent.
func SendEvent[T any](s *Session) (models.EntityID, *T, error) {
	d, err := lookup[T](s, true)
	if err != nil {
		return 0, nil, err
	}
	id, ev := models.CreateWith[T](s.world)
	s.enqueue(d, replication.Request{Entity: id})
	s.sentEvents = append(s.sentEvents, id)
	return id, ev, nil
}

func lookup[T any](s *Session, event bool) (replication.Dispatcher, error) {
	t := models.TypeOf[T]()
	if _, ok := s.registry.Lookup(t); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, t)
	}
	return s.dispatcherFor(t, event)
}
