package session

import (
	"errors"
	"fmt"

	"github.com/zeusync/meshsync/internal/core/events/bus"
	"github.com/zeusync/meshsync/internal/core/observability/log"
	"github.com/zeusync/meshsync/internal/core/protocol"
)

// Tick runs one replication step. Peer I/O failures never surface here. In
// strict mode every other failure is returned, joined; otherwise it is
// logged and the offending item skipped.
func (s *Session) Tick() error {
	var errs []error
	fail := func(err error) {
		if err == nil {
			return
		}
		if s.cfg.Strict {
			errs = append(errs, err)
			return
		}
		s.logger.Warn("Skipped", log.Error(err))
	}

	s.resetSnapshots()

	s.processLifecycle(fail)
	s.processPeers(fail)
	s.processSend(fail)
	s.processReceived(fail)
	s.processRemovals()

	err := errors.Join(errs...)
	if err != nil {
		s.publish(bus.NewEvent(bus.TypeTickFailed, s.source, err.Error()))
	}
	return err
}

func (s *Session) resetSnapshots() {
	for _, id := range s.receivedEvents {
		s.world.RemoveEntity(id)
	}
	s.connected = nil
	s.disconnected = nil
	s.newEntities = nil
	s.receivedEvents = nil
}

func (s *Session) processLifecycle(fail func(error)) {
	if s.startRequested {
		s.startRequested = false
		if err := s.transport.Start(s.cfg.LocalAddress, s.cfg.LocalPort); err != nil {
			fail(fmt.Errorf("start: %w", err))
		}
	}
	if s.stopRequested {
		s.stopRequested = false
		if err := s.transport.Stop(); err != nil {
			fail(fmt.Errorf("stop: %w", err))
		}
	}
}

func (s *Session) processPeers(fail func(error)) {
	s.connected = s.transport.DrainConnected()
	s.disconnected = s.transport.DrainDisconnected()
	for _, p := range s.connected {
		s.publish(bus.NewEvent(bus.TypePeerConnected, s.source, p))
	}
	for _, p := range s.disconnected {
		s.publish(bus.NewEvent(bus.TypePeerDisconnected, s.source, p))
	}

	connects := s.connects
	s.connects = nil
	for _, p := range connects {
		err := s.transport.Connect(p.Address, p.Port)
		switch {
		case err == nil:
		case errors.Is(err, protocol.ErrNotRunning):
			fail(fmt.Errorf("connect %s: %w", p, err))
		default:
			// An already known peer is not a programming error. Dial
			// failures surface later, in the transport's own log.
			s.logger.Warn("Connect failed", log.String("peer", p.String()), log.Error(err))
		}
	}
}

func (s *Session) processSend(fail func(error)) {
	collected := s.prepared
	s.prepared = 0

	processed := 0
	for _, d := range s.ordered() {
		n, err := d.Prepare(s.env)
		processed += n
		fail(err)
	}
	if s.cfg.Strict && processed != collected {
		fail(fmt.Errorf("%w: collected %d, processed %d", ErrPrepareCountMismatch, collected, processed))
	}

	for _, id := range s.sentEvents {
		s.world.RemoveEntity(id)
	}
	s.sentEvents = nil

	fail(s.transport.Flush())
}

func (s *Session) processReceived(fail func(error)) {
	s.inbox.Add(s.transport.DrainReceived()...)

	for _, id := range s.registry.IDs() {
		items := s.inbox.Take(id)
		if len(items) == 0 {
			continue
		}
		t, _ := s.registry.Resolve(id)
		fail(s.dispatchers[t].Receive(s.env, items))
	}

	if s.inbox.Len() > 0 {
		fail(fmt.Errorf("%w: %d items of types %v", ErrUnhandledReceivedType, s.inbox.Len(), s.inbox.Types()))
		s.inbox.Clear()
	}

	for _, e := range s.newEntities {
		s.publish(bus.NewEvent(bus.TypeEntityReceived, s.source, e))
	}
	for _, id := range s.receivedEvents {
		s.publish(bus.NewEvent(bus.TypeEventReceived, s.source, id))
	}
}

func (s *Session) processRemovals() {
	removals := s.removals
	s.removals = nil
	for _, id := range removals {
		s.table.UnmapLocal(id)
	}
}

func (s *Session) publish(e bus.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(e); err != nil {
		s.logger.Warn("Event handler failed", log.String("type", e.Type()), log.Error(err))
	}
}
