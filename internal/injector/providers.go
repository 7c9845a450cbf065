// Package injector assembles a mesh node from its configuration.
package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/meshsync/internal/config"
	"github.com/zeusync/meshsync/internal/core/events/bus"
	"github.com/zeusync/meshsync/internal/core/models"
	"github.com/zeusync/meshsync/internal/core/observability/log"
	"github.com/zeusync/meshsync/internal/core/protocol/tcp"
	"github.com/zeusync/meshsync/internal/core/session"
	"github.com/zeusync/meshsync/internal/server"
	"github.com/zeusync/meshsync/pkg/encoding"
)

// Node is a fully wired retranslator with its session. Monitor is nil when
// no monitor address is configured.
type Node struct {
	Config    *config.Network
	Logger    *log.Logger
	Events    bus.EventBus
	Transport *tcp.Retranslator
	Session   *session.Session
	Monitor   *server.Monitor
}

var ProviderSet = wire.NewSet(
	ProvideLogger,
	wire.Bind(new(log.Log), new(*log.Logger)),
	ProvideSerializer,
	models.NewWorld,
	wire.Bind(new(models.World), new(*models.MemoryWorld)),
	tcp.New,
	wire.Bind(new(session.Transport), new(*tcp.Retranslator)),
	wire.Bind(new(server.PeerSource), new(*tcp.Retranslator)),
	bus.New,
	session.New,
	ProvideMonitor,
	wire.Struct(new(Node), "*"),
)

func ProvideLogger(cfg *config.Network) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return log.New(level), nil
}

func ProvideSerializer(cfg *config.Network) (encoding.Serializer, error) {
	return encoding.ByName(cfg.Serializer)
}

func ProvideMonitor(cfg *config.Network, peers server.PeerSource, events bus.EventBus, logger log.Log) *server.Monitor {
	if cfg.MonitorAddr == "" {
		return nil
	}
	return server.NewMonitor(server.Config{
		ListenAddr: cfg.MonitorAddr,
		Token:      cfg.MonitorToken,
	}, peers, events, logger)
}
