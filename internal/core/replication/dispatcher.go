package replication

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/zeusync/meshsync/internal/core/models"
	"github.com/zeusync/meshsync/internal/core/observability/log"
	"github.com/zeusync/meshsync/internal/core/protocol"
	"github.com/zeusync/meshsync/pkg/encoding"
)

// Stager accepts outbound items. tcp.Retranslator implements it.
type Stager interface {
	StageComponent(item protocol.Item) error
}

// NewEntity reports a local entity created for a network entity seen for
// the first time.
type NewEntity struct {
	Local   models.EntityID    `json:"local"`
	Network protocol.NetworkID `json:"network"`
	TypeID  protocol.TypeID    `json:"type_id"`
}

// Env is what a dispatcher works against during one tick.
type Env struct {
	World      models.World
	Table      *Table
	Serializer encoding.Serializer
	Stager     Stager
	Logger     log.Log

	// OnNewEntity is called for every entity created from a component of an
	// unmapped network entity.
	OnNewEntity func(NewEntity)
	// OnEvent is called for every local entity created to carry a received
	// event.
	OnEvent func(models.EntityID)
}

func (e *Env) logger() log.Log {
	if e.Logger == nil {
		return log.Nop()
	}
	return e.Logger
}

// Request asks for the component of Entity to be sent, or for its removal
// to be announced.
type Request struct {
	Entity  models.EntityID
	Removed bool
}

// Dispatcher replicates one registered type. Prepare and Receive report
// every failing item; processing continues past failures.
type Dispatcher interface {
	TypeID() protocol.TypeID
	Type() reflect.Type
	IsEvent() bool

	// Enqueue records a prepare request for the next Prepare.
	Enqueue(Request)
	Pending() int

	// Prepare stages every pending request and clears them. It returns the
	// number of requests processed.
	Prepare(env *Env) (int, error)

	// Receive applies received items of this dispatcher's type.
	Receive(env *Env, items []protocol.Item) error
}

// MergeFunc copies the fields of a freshly deserialized value onto the live
// one.
type MergeFunc[T any] func(live, received *T)

// Overwrite replaces the live value entirely.
func Overwrite[T any](live, received *T) {
	*live = *received
}

type base[T any] struct {
	id      protocol.TypeID
	merge   MergeFunc[T]
	pending []Request
}

func newBase[T any](id protocol.TypeID, merge MergeFunc[T]) base[T] {
	if merge == nil {
		merge = Overwrite[T]
	}
	return base[T]{id: id, merge: merge}
}

func (b *base[T]) TypeID() protocol.TypeID { return b.id }
func (b *base[T]) Type() reflect.Type      { return models.TypeOf[T]() }
func (b *base[T]) Enqueue(req Request)     { b.pending = append(b.pending, req) }
func (b *base[T]) Pending() int            { return len(b.pending) }

func (b *base[T]) takePending() []Request {
	pending := b.pending
	b.pending = nil
	return pending
}

func (b *base[T]) decode(env *Env, item protocol.Item) (*T, error) {
	received := new(T)
	if err := env.Serializer.Deserialize(item.Payload, received); err != nil {
		return nil, fmt.Errorf("deserialize type %d: %w", b.id, err)
	}
	return received, nil
}

func (b *base[T]) encode(env *Env, v *T) ([]byte, error) {
	data, err := env.Serializer.Serialize(v)
	if err != nil {
		return nil, fmt.Errorf("serialize type %d: %w", b.id, err)
	}
	return data, nil
}

// ComponentDispatcher replicates a durable component type T.
type ComponentDispatcher[T any] struct {
	base[T]
}

// NewComponent creates the dispatcher for component type T. A nil merge
// overwrites the live value.
func NewComponent[T any](id protocol.TypeID, merge MergeFunc[T]) *ComponentDispatcher[T] {
	return &ComponentDispatcher[T]{base: newBase(id, merge)}
}

func (d *ComponentDispatcher[T]) IsEvent() bool { return false }

func (d *ComponentDispatcher[T]) Receive(env *Env, items []protocol.Item) error {
	var errs []error
	for _, item := range items {
		if err := d.receive(env, item); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *ComponentDispatcher[T]) receive(env *Env, item protocol.Item) error {
	if item.NetworkID == protocol.NoEntity {
		return fmt.Errorf("%w: component of type %d without entity", ErrInvalidItem, d.id)
	}

	local, mapped := env.Table.LookupByNetwork(item.NetworkID)

	if item.Flags.WasRemoved() {
		if !mapped {
			return fmt.Errorf("%w: %s (type %d)", ErrRemoveUnknownEntity, item.NetworkID, d.id)
		}
		models.Remove[T](env.World, local)
		if !env.World.EntityExists(local) {
			return env.Table.Unmap(item.NetworkID, local)
		}
		return nil
	}

	received, err := d.decode(env, item)
	if err != nil {
		return err
	}

	if mapped && !env.World.EntityExists(local) {
		// The host destroyed the entity without a remove request.
		env.logger().Debug("Dropping stale mapping",
			log.String("network_id", item.NetworkID.String()), log.Uint64("local", uint64(local)))
		if err = env.Table.Unmap(item.NetworkID, local); err != nil {
			return err
		}
		mapped = false
	}

	if mapped {
		live, _, err := models.Ensure[T](env.World, local)
		if err != nil {
			return err
		}
		d.merge(live, received)
		return nil
	}

	local = env.World.CreateEntity()
	live := new(T)
	d.merge(live, received)
	if err = env.World.SetComponent(local, live); err != nil {
		env.World.RemoveEntity(local)
		return err
	}
	if err = env.Table.Map(item.NetworkID, local); err != nil {
		env.World.RemoveEntity(local)
		return err
	}
	if env.OnNewEntity != nil {
		env.OnNewEntity(NewEntity{Local: local, Network: item.NetworkID, TypeID: d.id})
	}
	return nil
}

func (d *ComponentDispatcher[T]) Prepare(env *Env) (int, error) {
	pending := d.takePending()
	var errs []error
	for _, req := range pending {
		if err := d.prepare(env, req); err != nil {
			errs = append(errs, err)
		}
	}
	return len(pending), errors.Join(errs...)
}

func (d *ComponentDispatcher[T]) prepare(env *Env, req Request) error {
	network, mapped := env.Table.LookupByLocal(req.Entity)

	if req.Removed {
		if !mapped {
			return fmt.Errorf("%w: local %d (type %d)", ErrSendRemoveForUnmapped, req.Entity, d.id)
		}
		err := env.Stager.StageComponent(protocol.Item{
			NetworkID: network,
			TypeID:    d.id,
			Flags:     protocol.FlagRemoved,
		})
		if !env.World.EntityExists(req.Entity) {
			return errors.Join(err, env.Table.Unmap(network, req.Entity))
		}
		return err
	}

	live, ok := models.Get[T](env.World, req.Entity)
	if !ok {
		return fmt.Errorf("%w: local %d (type %d)", ErrComponentMissing, req.Entity, d.id)
	}
	payload, err := d.encode(env, live)
	if err != nil {
		return err
	}
	if !mapped {
		if network, err = env.Table.Assign(req.Entity); err != nil {
			return err
		}
	}
	err = env.Stager.StageComponent(protocol.Item{
		NetworkID: network,
		TypeID:    d.id,
		Payload:   payload,
	})
	if err != nil && !mapped {
		// The mesh never heard of this id.
		return errors.Join(err, env.Table.Unmap(network, req.Entity))
	}
	return err
}

// EventDispatcher replicates a one-shot event type T. Events carry no
// entity mapping.
type EventDispatcher[T any] struct {
	base[T]
}

// NewEvent creates the dispatcher for event type T. A nil merge copies the
// whole received value.
func NewEvent[T any](id protocol.TypeID, merge MergeFunc[T]) *EventDispatcher[T] {
	return &EventDispatcher[T]{base: newBase(id, merge)}
}

func (d *EventDispatcher[T]) IsEvent() bool { return true }

func (d *EventDispatcher[T]) Receive(env *Env, items []protocol.Item) error {
	var errs []error
	for _, item := range items {
		received, err := d.decode(env, item)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		id, ev := models.CreateWith[T](env.World)
		d.merge(ev, received)
		if env.OnEvent != nil {
			env.OnEvent(id)
		}
	}
	return errors.Join(errs...)
}

func (d *EventDispatcher[T]) Prepare(env *Env) (int, error) {
	pending := d.takePending()
	var errs []error
	for _, req := range pending {
		ev, ok := models.Get[T](env.World, req.Entity)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: event on local %d (type %d)", ErrComponentMissing, req.Entity, d.id))
			continue
		}
		payload, err := d.encode(env, ev)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		err = env.Stager.StageComponent(protocol.Item{
			NetworkID: protocol.NoEntity,
			TypeID:    d.id,
			Flags:     protocol.FlagEvent,
			Payload:   payload,
		})
		if err != nil {
			errs = append(errs, err)
		}
	}
	return len(pending), errors.Join(errs...)
}

var (
	_ Dispatcher = (*ComponentDispatcher[struct{}])(nil)
	_ Dispatcher = (*EventDispatcher[struct{}])(nil)
)
