package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

type position struct {
	X, Y int
}

type health struct {
	HP int
}

type chat struct {
	Text string
}

// fakeTransport records what the session asks of it.
type fakeTransport struct {
	running  bool
	connects []string
	staged   []protocol.Item
	flushed  [][]protocol.Item
	received []protocol.Item
	up, down []tcp.PeerInfo
	calls    []string
}

func (f *fakeTransport) Start(string, uint16) error {
	f.calls = append(f.calls, "start")
	if f.running {
		return protocol.ErrAlreadyRunning
	}
	f.running = true
	return nil
}

func (f *fakeTransport) Stop() error {
	f.calls = append(f.calls, "stop")
	if !f.running {
		return protocol.ErrNotRunning
	}
	f.running = false
	return nil
}

func (f *fakeTransport) Running() bool { return f.running }

func (f *fakeTransport) Connect(address string, port uint16) error {
	f.calls = append(f.calls, "connect")
	if !f.running {
		return protocol.ErrNotRunning
	}
	f.connects = append(f.connects, config.Peer{Address: address, Port: port}.String())
	return nil
}

func (f *fakeTransport) DrainConnected() []tcp.PeerInfo {
	f.calls = append(f.calls, "drain-connected")
	up := f.up
	f.up = nil
	return up
}

func (f *fakeTransport) DrainDisconnected() []tcp.PeerInfo {
	down := f.down
	f.down = nil
	return down
}

func (f *fakeTransport) StageComponent(item protocol.Item) error {
	f.staged = append(f.staged, item)
	return nil
}

func (f *fakeTransport) Flush() error {
	f.calls = append(f.calls, "flush")
	f.flushed = append(f.flushed, f.staged)
	f.staged = nil
	return nil
}

func (f *fakeTransport) DrainReceived() []protocol.Item {
	f.calls = append(f.calls, "drain-received")
	items := f.received
	f.received = nil
	return items
}

func newTestSession(t *testing.T, strict bool) (*Session, *fakeTransport, *models.MemoryWorld) {
	t.Helper()
	cfg := config.Default()
	cfg.Strict = strict
	ft := &fakeTransport{}
	world := models.NewWorld()
	s := New(cfg, world, ft, encoding.JSON{}, bus.New(), log.Nop())
	require.NoError(t, RegisterComponent[position](s, 7, nil))
	require.NoError(t, RegisterEvent[chat](s, 3, nil))
	return s, ft, world
}

func payload(t *testing.T, v any) []byte {
	t.Helper()
	data, err := encoding.JSON{}.Serialize(v)
	require.NoError(t, err)
	return data
}

func TestRegister(t *testing.T) {
	s, _, _ := newTestSession(t, true)

	require.NoError(t, RegisterComponent[position](s, 7, nil), "same pair twice is fine")
	require.ErrorIs(t, RegisterComponent[health](s, 7, nil), registry.ErrDuplicateTypeID)
	require.NoError(t, RegisterComponent[health](s, 8, nil))
	assert.Equal(t, []protocol.TypeID{3, 7, 8}, s.Registry().IDs())

	require.ErrorIs(t, SendComponent[struct{ Z int }](s, 1), ErrNotRegistered)
	require.ErrorIs(t, SendComponent[chat](s, 1), ErrWrongKind)
	_, _, err := SendEvent[position](s)
	require.ErrorIs(t, err, ErrWrongKind)
}

func TestTick_StepOrder(t *testing.T) {
	s, ft, _ := newTestSession(t, true)

	s.RequestStart()
	s.RequestConnect("127.0.0.1", 9001)
	require.NoError(t, s.Tick())

	assert.Equal(t, []string{"start", "drain-connected", "connect", "flush", "drain-received"}, ft.calls)
	assert.Equal(t, []string{"127.0.0.1:9001"}, ft.connects)
}

func TestTick_LifecycleErrors(t *testing.T) {
	s, ft, _ := newTestSession(t, true)

	s.RequestConnect("127.0.0.1", 9001)
	err := s.Tick()
	require.ErrorIs(t, err, protocol.ErrNotRunning)

	s.RequestStart()
	require.NoError(t, s.Tick())
	s.RequestStart()
	require.ErrorIs(t, s.Tick(), protocol.ErrAlreadyRunning)

	s.RequestStop()
	require.NoError(t, s.Tick())
	assert.False(t, ft.running)
	s.RequestStop()
	require.ErrorIs(t, s.Tick(), protocol.ErrNotRunning)

	lenient, _, _ := newTestSession(t, false)
	lenient.RequestStop()
	require.NoError(t, lenient.Tick(), "lenient sessions log and carry on")
}

func TestTick_PeerNotifications(t *testing.T) {
	s, ft, _ := newTestSession(t, true)

	var seen []string
	_, err := s.events.Subscribe(bus.Wildcard, func(e bus.Event) error {
		seen = append(seen, e.Type())
		return nil
	})
	require.NoError(t, err)

	ft.up = []tcp.PeerInfo{{Address: "127.0.0.1", Port: 9002}}
	ft.down = []tcp.PeerInfo{{Address: "127.0.0.1", Port: 9003}}
	require.NoError(t, s.Tick())
	require.Len(t, s.Connected(), 1)
	require.Len(t, s.Disconnected(), 1)
	assert.Equal(t, []string{bus.TypePeerConnected, bus.TypePeerDisconnected}, seen)

	require.NoError(t, s.Tick())
	assert.Empty(t, s.Connected(), "snapshots hold the latest tick only")
	assert.Empty(t, s.Disconnected())
}

func TestTick_SendComponent(t *testing.T) {
	s, ft, world := newTestSession(t, true)

	local, pos := models.CreateWith[position](world)
	pos.X, pos.Y = 1, 2
	require.NoError(t, SendComponent[position](s, local))
	require.NoError(t, s.Tick())

	require.Len(t, ft.flushed, 1)
	require.Len(t, ft.flushed[0], 1)
	item := ft.flushed[0][0]
	network, ok := s.Table().LookupByLocal(local)
	require.True(t, ok)
	assert.Equal(t, network, item.NetworkID)
	assert.Equal(t, protocol.TypeID(7), item.TypeID)
	assert.JSONEq(t, `{"X":1,"Y":2}`, string(item.Payload))
}

func TestTick_ReceiveCreatesAndNotifies(t *testing.T) {
	s, ft, world := newTestSession(t, true)

	var received []replication.NewEntity
	_, err := s.events.Subscribe(bus.TypeEntityReceived, func(e bus.Event) error {
		received = append(received, e.Data().(replication.NewEntity))
		return nil
	})
	require.NoError(t, err)

	ft.received = []protocol.Item{{NetworkID: 0x77, TypeID: 7, Payload: payload(t, position{X: 5})}}
	require.NoError(t, s.Tick())

	require.Len(t, s.NewEntities(), 1)
	ne := s.NewEntities()[0]
	assert.Equal(t, protocol.NetworkID(0x77), ne.Network)
	assert.Equal(t, []replication.NewEntity{ne}, received)

	pos, ok := models.Get[position](world, ne.Local)
	require.True(t, ok)
	assert.Equal(t, 5, pos.X)
}

func TestTick_ReceiveRoutesByRegisteredTypeID(t *testing.T) {
	s, ft, world := newTestSession(t, true)
	require.NoError(t, RegisterComponent[health](s, 5, nil))

	resolved, ok := s.Registry().Resolve(5)
	require.True(t, ok)
	assert.Equal(t, models.TypeOf[health](), resolved)

	ft.received = []protocol.Item{
		{NetworkID: 0x10, TypeID: 7, Payload: payload(t, position{X: 1})},
		{NetworkID: 0x20, TypeID: 5, Payload: payload(t, health{HP: 30})},
	}
	require.NoError(t, s.Tick())

	// Received types are processed in ascending type id order.
	require.Len(t, s.NewEntities(), 2)
	first, second := s.NewEntities()[0], s.NewEntities()[1]
	assert.Equal(t, protocol.TypeID(5), first.TypeID)
	assert.Equal(t, protocol.TypeID(7), second.TypeID)

	hp, ok := models.Get[health](world, first.Local)
	require.True(t, ok)
	assert.Equal(t, 30, hp.HP)
	_, ok = models.Get[position](world, second.Local)
	assert.True(t, ok)
}

func TestTick_RemovalScenario(t *testing.T) {
	s, ft, world := newTestSession(t, true)

	ft.received = []protocol.Item{{NetworkID: 0x77, TypeID: 7, Payload: payload(t, position{X: 5})}}
	require.NoError(t, s.Tick())
	local := s.NewEntities()[0].Local

	removal := protocol.Item{NetworkID: 0x77, TypeID: 7, Flags: protocol.FlagRemoved}
	ft.received = []protocol.Item{removal}
	require.NoError(t, s.Tick())
	assert.False(t, world.EntityExists(local))
	assert.Zero(t, s.Table().Len())

	ft.received = []protocol.Item{removal}
	require.ErrorIs(t, s.Tick(), replication.ErrRemoveUnknownEntity)
}

func TestTick_UnhandledReceivedType(t *testing.T) {
	s, ft, _ := newTestSession(t, true)

	ft.received = []protocol.Item{
		{NetworkID: 1, TypeID: 99, Payload: []byte("{}")},
		{NetworkID: 2, TypeID: 7, Payload: payload(t, position{})},
	}
	err := s.Tick()
	require.ErrorIs(t, err, ErrUnhandledReceivedType)
	assert.Len(t, s.NewEntities(), 1, "known types are still applied")
	assert.Zero(t, s.inbox.Len(), "the inbox never carries over")

	lenient, lft, _ := newTestSession(t, false)
	lft.received = []protocol.Item{{NetworkID: 1, TypeID: 99}}
	require.NoError(t, lenient.Tick())
}

func TestTick_Events(t *testing.T) {
	s, ft, world := newTestSession(t, true)

	id, ev, err := SendEvent[chat](s)
	require.NoError(t, err)
	ev.Text = "hello"
	require.NoError(t, s.Tick())

	assert.False(t, world.EntityExists(id), "sent events are destroyed after sending")
	require.Len(t, ft.flushed, 1)
	sent := ft.flushed[0]
	require.Len(t, sent, 1)
	assert.True(t, sent[0].Flags.IsEvent())
	assert.Equal(t, protocol.NoEntity, sent[0].NetworkID)
	assert.JSONEq(t, `{"Text":"hello"}`, string(sent[0].Payload))

	ft.received = sent
	require.NoError(t, s.Tick())
	require.Len(t, s.ReceivedEvents(), 1)
	got := s.ReceivedEvents()[0]
	c, ok := models.Get[chat](world, got)
	require.True(t, ok)
	assert.Equal(t, "hello", c.Text)

	require.NoError(t, s.Tick())
	assert.False(t, world.EntityExists(got), "received events live for one tick")
	assert.Empty(t, s.ReceivedEvents())
}

func TestTick_RemoveEntityRequests(t *testing.T) {
	s, _, world := newTestSession(t, true)

	local, _ := models.CreateWith[position](world)
	require.NoError(t, SendComponent[position](s, local))
	require.NoError(t, s.Tick())
	require.Equal(t, 1, s.Table().Len())

	s.RequestRemoveEntity(local)
	s.RequestRemoveEntity(12345)
	require.NoError(t, s.Tick())
	assert.Zero(t, s.Table().Len())
}

func TestTick_StrictReportsMisuse(t *testing.T) {
	s, _, world := newTestSession(t, true)

	bare := world.CreateEntity()
	require.NoError(t, SendComponent[position](s, bare))
	require.NoError(t, SendRemovedComponent[position](s, bare))
	err := s.Tick()
	require.ErrorIs(t, err, replication.ErrComponentMissing)
	require.ErrorIs(t, err, replication.ErrSendRemoveForUnmapped)

	lenient, _, lworld := newTestSession(t, false)
	require.NoError(t, SendComponent[position](lenient, lworld.CreateEntity()))
	require.NoError(t, lenient.Tick())
}

func TestDestroy(t *testing.T) {
	s, ft, _ := newTestSession(t, true)
	require.NoError(t, s.Destroy(), "nothing to stop")

	s.RequestStart()
	require.NoError(t, s.Tick())
	require.NoError(t, s.Destroy())
	assert.False(t, ft.running)
}
