// Command meshsync runs one retranslator node. It replicates a demo
// Position component for an entity it owns and a Chat event every few
// seconds, logging what it receives from the mesh.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zeusync/meshsync/internal/config"
	"github.com/zeusync/meshsync/internal/core/models"
	"github.com/zeusync/meshsync/internal/core/observability/log"
	"github.com/zeusync/meshsync/internal/core/session"
	"github.com/zeusync/meshsync/internal/injector"
)

const (
	positionTypeID = 1
	chatTypeID     = 2

	chatEvery = 5 * time.Second
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Chat struct {
	From string `json:"from"`
	Text string `json:"text"`
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error loading config:", err)
		os.Exit(1)
	}

	node, err := injector.InitializeNode(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error building node:", err)
		os.Exit(1)
	}
	defer func() { _ = node.Logger.Sync() }()

	if err = run(node); err != nil {
		node.Logger.Error("Node stopped with error", log.Error(err))
		os.Exit(1)
	}
}

func run(node *injector.Node) error {
	s, logger := node.Session, node.Logger

	if err := session.RegisterComponent[Position](s, positionTypeID, nil); err != nil {
		return err
	}
	if err := session.RegisterEvent[Chat](s, chatTypeID, nil); err != nil {
		return err
	}

	if node.Monitor != nil {
		if err := node.Monitor.Start(); err != nil {
			return err
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = node.Monitor.Stop(ctx)
		}()
	}

	s.RequestStart()
	for _, p := range node.Config.Peers {
		s.RequestConnect(p.Address, p.Port)
	}

	self := fmt.Sprintf("%s:%d", node.Config.LocalAddress, node.Config.LocalPort)
	own, pos := models.CreateWith[Position](s.World())

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(node.Config.TickInterval)
	defer ticker.Stop()
	lastChat := time.Now()

	for {
		select {
		case <-stopCh:
			logger.Info("Shutting down")
			s.RequestStop()
			if err := s.Tick(); err != nil {
				logger.Warn("Final tick failed", log.Error(err))
			}
			return s.Destroy()
		case now := <-ticker.C:
			pos.X++
			pos.Y = float64(now.Second())
			if err := session.SendComponent[Position](s, own); err != nil {
				logger.Warn("Send position failed", log.Error(err))
			}
			if now.Sub(lastChat) >= chatEvery {
				lastChat = now
				if _, chat, err := session.SendEvent[Chat](s); err == nil {
					chat.From, chat.Text = self, "hello from "+self
				}
			}

			if err := s.Tick(); err != nil {
				logger.Warn("Tick failed", log.Error(err))
			}
			report(s, logger)
		}
	}
}

func report(s *session.Session, logger log.Log) {
	for _, p := range s.Connected() {
		logger.Info("Peer connected", log.String("peer", p.Key()))
	}
	for _, p := range s.Disconnected() {
		logger.Info("Peer disconnected", log.String("peer", p.Key()))
	}
	for _, e := range s.NewEntities() {
		logger.Info("Remote entity appeared",
			log.Uint64("local", uint64(e.Local)),
			log.Uint64("network", uint64(e.Network)))
	}
	for _, id := range s.ReceivedEvents() {
		if chat, ok := models.Get[Chat](s.World(), id); ok {
			logger.Info("Chat", log.String("from", chat.From), log.String("text", chat.Text))
		}
	}
}
