package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/meshsync/internal/config"
	"github.com/zeusync/meshsync/internal/core/models"
	"github.com/zeusync/meshsync/internal/core/observability/log"
	"github.com/zeusync/meshsync/internal/core/protocol/tcp"
	"github.com/zeusync/meshsync/internal/core/replication"
	"github.com/zeusync/meshsync/pkg/encoding"
)

type node struct {
	session   *Session
	transport *tcp.Retranslator
	world     *models.MemoryWorld

	connected    []tcp.PeerInfo
	disconnected []tcp.PeerInfo
	newEntities  []replication.NewEntity
	events       []string
}

func startMeshNode(t *testing.T) *node {
	t.Helper()
	cfg := config.Default()
	cfg.LocalPort = 0
	cfg.Strict = true

	n := &node{world: models.NewWorld(), transport: tcp.New(cfg, log.Nop())}
	n.session = New(cfg, n.world, n.transport, encoding.JSON{}, nil, log.Nop())
	require.NoError(t, RegisterComponent[position](n.session, 7, nil))
	require.NoError(t, RegisterEvent[chat](n.session, 3, nil))

	n.session.RequestStart()
	require.NoError(t, n.tick())
	require.True(t, n.transport.Running())
	t.Cleanup(func() { _ = n.session.Destroy() })
	return n
}

func (n *node) tick() error {
	if err := n.session.Tick(); err != nil {
		return err
	}
	n.connected = append(n.connected, n.session.Connected()...)
	n.disconnected = append(n.disconnected, n.session.Disconnected()...)
	n.newEntities = append(n.newEntities, n.session.NewEntities()...)
	for _, id := range n.session.ReceivedEvents() {
		if c, ok := models.Get[chat](n.world, id); ok {
			n.events = append(n.events, c.Text)
		}
	}
	return nil
}

// tickUntil ticks every node until cond holds.
func tickUntil(t *testing.T, cond func() bool, nodes ...*node) {
	t.Helper()
	var tickErr error
	require.Eventually(t, func() bool {
		for _, n := range nodes {
			if err := n.tick(); err != nil {
				tickErr = err
				return true
			}
		}
		return cond()
	}, 3*time.Second, 5*time.Millisecond)
	require.NoError(t, tickErr)
}

func TestMesh_ReplicatesComponentLifecycle(t *testing.T) {
	a := startMeshNode(t)
	b := startMeshNode(t)

	a.session.RequestConnect("127.0.0.1", b.transport.Local().Port)
	tickUntil(t, func() bool { return len(a.connected) == 1 && len(b.connected) == 1 }, a, b)
	assert.Equal(t, b.transport.Local().Port, a.connected[0].Port)

	// Create.
	aLocal, pos := models.CreateWith[position](a.world)
	pos.X, pos.Y = 1, 2
	require.NoError(t, SendComponent[position](a.session, aLocal))
	tickUntil(t, func() bool { return len(b.newEntities) == 1 }, a, b)

	network, ok := a.session.Table().LookupByLocal(aLocal)
	require.True(t, ok)
	created := b.newEntities[0]
	assert.Equal(t, network, created.Network)
	bLocal, ok := b.session.Table().LookupByNetwork(network)
	require.True(t, ok)
	assert.Equal(t, created.Local, bLocal)

	bPos, ok := models.Get[position](b.world, bLocal)
	require.True(t, ok)
	assert.Equal(t, position{X: 1, Y: 2}, *bPos)

	// Update.
	pos.X = 10
	require.NoError(t, SendComponent[position](a.session, aLocal))
	tickUntil(t, func() bool { return bPos.X == 10 }, a, b)
	assert.Len(t, b.newEntities, 1, "updates reuse the mapped entity")

	// Remove.
	require.True(t, models.Remove[position](a.world, aLocal))
	require.NoError(t, SendRemovedComponent[position](a.session, aLocal))
	tickUntil(t, func() bool { return b.session.Table().Len() == 0 }, a, b)
	assert.Zero(t, a.session.Table().Len())
	assert.False(t, b.world.EntityExists(bLocal))
}

func TestMesh_EventsAndDisconnect(t *testing.T) {
	a := startMeshNode(t)
	b := startMeshNode(t)

	b.session.RequestConnect("127.0.0.1", a.transport.Local().Port)
	tickUntil(t, func() bool { return len(a.connected) == 1 && len(b.connected) == 1 }, a, b)

	_, ev, err := SendEvent[chat](b.session)
	require.NoError(t, err)
	ev.Text = "ping"
	tickUntil(t, func() bool { return len(a.events) == 1 }, a, b)
	assert.Equal(t, []string{"ping"}, a.events)
	assert.Empty(t, b.events, "senders do not receive their own events")

	require.NoError(t, b.session.Destroy())
	tickUntil(t, func() bool { return len(a.disconnected) == 1 }, a)
	assert.Equal(t, b.transport.Local().Port, a.disconnected[0].Port)
}
