// Package session drives replication one tick at a time.
//
// A tick runs five steps in a fixed order, each draining its input before
// the next starts:
//
//  1. start and stop requests against the transport;
//  2. connect and disconnect notifications, then outbound connect requests;
//  3. prepare requests of every dispatcher, then one flush;
//  4. received items, routed to the dispatcher of their type id;
//  5. entity removal requests.
package session

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/zeusync/meshsync/internal/config"
	"github.com/zeusync/meshsync/internal/core/events/bus"
	"github.com/zeusync/meshsync/internal/core/models"
	"github.com/zeusync/meshsync/internal/core/observability/log"
	"github.com/zeusync/meshsync/internal/core/protocol"
	"github.com/zeusync/meshsync/internal/core/protocol/tcp"
	"github.com/zeusync/meshsync/internal/core/replication"
	"github.com/zeusync/meshsync/internal/core/schema/registry"
	"github.com/zeusync/meshsync/pkg/encoding"
)

var (
	ErrUnhandledReceivedType = errors.New("received type has no registered dispatcher")
	ErrNotRegistered         = errors.New("type is not registered")
	ErrWrongKind             = errors.New("type registered with a different kind")
	ErrPrepareCountMismatch  = errors.New("prepare requests lost")
)

// Transport is the part of tcp.Retranslator the session drives.
type Transport interface {
	Start(address string, port uint16) error
	Stop() error
	Running() bool
	Connect(address string, port uint16) error
	DrainConnected() []tcp.PeerInfo
	DrainDisconnected() []tcp.PeerInfo
	StageComponent(item protocol.Item) error
	Flush() error
	DrainReceived() []protocol.Item
}

var _ Transport = (*tcp.Retranslator)(nil)

// Session is not safe for concurrent use: every method runs on the tick
// loop.
type Session struct {
	cfg       *config.Network
	logger    log.Log
	world     models.World
	transport Transport
	events    bus.EventBus
	source    string

	registry    *registry.Registry
	table       *replication.Table
	dispatchers map[reflect.Type]replication.Dispatcher
	order       []reflect.Type
	inbox       *replication.Inbox
	env         *replication.Env

	startRequested bool
	stopRequested  bool
	connects       []config.Peer
	removals       []models.EntityID
	prepared       int
	sentEvents     []models.EntityID

	// Snapshots of the latest tick.
	connected      []tcp.PeerInfo
	disconnected   []tcp.PeerInfo
	newEntities    []replication.NewEntity
	receivedEvents []models.EntityID
}

// New creates a session. events may be nil.
func New(
	cfg *config.Network,
	world models.World,
	transport Transport,
	serializer encoding.Serializer,
	events bus.EventBus,
	logger log.Log,
) *Session {
	if logger == nil {
		logger = log.Nop()
	}
	s := &Session{
		cfg:         cfg,
		logger:      logger.With(log.String("component", "session")),
		world:       world,
		transport:   transport,
		events:      events,
		source:      config.Peer{Address: cfg.LocalAddress, Port: cfg.LocalPort}.String(),
		registry:    registry.New(),
		table:       replication.NewTable(),
		dispatchers: make(map[reflect.Type]replication.Dispatcher),
		inbox:       replication.NewInbox(),
	}
	s.env = &replication.Env{
		World:      world,
		Table:      s.table,
		Serializer: serializer,
		Stager:     transport,
		Logger:     s.logger,
		OnNewEntity: func(e replication.NewEntity) {
			s.newEntities = append(s.newEntities, e)
		},
		OnEvent: func(id models.EntityID) {
			s.receivedEvents = append(s.receivedEvents, id)
		},
	}
	return s
}

func (s *Session) World() models.World          { return s.world }
func (s *Session) Table() *replication.Table    { return s.table }
func (s *Session) Registry() *registry.Registry { return s.registry }

// Register adds a dispatcher. Its type id and Go type must both be unused.
func (s *Session) Register(d replication.Dispatcher) error {
	if err := s.registry.Register(d.TypeID(), d.Type()); err != nil {
		return err
	}
	if _, ok := s.dispatchers[d.Type()]; ok {
		return nil
	}
	s.dispatchers[d.Type()] = d
	s.order = append(s.order, d.Type())
	s.logger.Debug("Type registered",
		log.Int16("type_id", int16(d.TypeID())), log.String("type", d.Type().String()), log.Bool("event", d.IsEvent()))
	return nil
}

// RequestStart asks the next tick to start the transport on the configured
// local endpoint.
func (s *Session) RequestStart() { s.startRequested = true }

// RequestStop asks the next tick to stop the transport.
func (s *Session) RequestStop() { s.stopRequested = true }

// RequestConnect asks the next tick to connect to a peer.
func (s *Session) RequestConnect(address string, port uint16) {
	s.connects = append(s.connects, config.Peer{Address: address, Port: port})
}

// RequestRemoveEntity asks the next tick to forget the network mapping of a
// local entity. Unmapped entities are ignored.
func (s *Session) RequestRemoveEntity(id models.EntityID) {
	s.removals = append(s.removals, id)
}

// Connected returns the peers connected during the latest tick.
func (s *Session) Connected() []tcp.PeerInfo { return s.connected }

// Disconnected returns the peers lost during the latest tick.
func (s *Session) Disconnected() []tcp.PeerInfo { return s.disconnected }

// NewEntities returns the entities created for unknown network entities
// during the latest tick.
func (s *Session) NewEntities() []replication.NewEntity { return s.newEntities }

// ReceivedEvents returns the entities carrying events received during the
// latest tick. They are destroyed at the start of the next tick.
func (s *Session) ReceivedEvents() []models.EntityID { return s.receivedEvents }

func (s *Session) enqueue(d replication.Dispatcher, req replication.Request) {
	d.Enqueue(req)
	s.prepared++
}

// ordered returns the dispatchers in registration order.
func (s *Session) ordered() []replication.Dispatcher {
	out := make([]replication.Dispatcher, len(s.order))
	for i, t := range s.order {
		out[i] = s.dispatchers[t]
	}
	return out
}

func (s *Session) dispatcherFor(t reflect.Type, event bool) (replication.Dispatcher, error) {
	d, ok := s.dispatchers[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, t)
	}
	if d.IsEvent() != event {
		return nil, fmt.Errorf("%w: %s", ErrWrongKind, d.Type())
	}
	return d, nil
}

// Destroy stops the transport if it runs.
func (s *Session) Destroy() error {
	if !s.transport.Running() {
		return nil
	}
	return s.transport.Stop()
}
