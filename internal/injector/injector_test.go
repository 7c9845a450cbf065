package injector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/meshsync/internal/config"
)

func TestInitializeNode(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "error"

	node, err := InitializeNode(cfg)
	require.NoError(t, err)
	assert.Same(t, cfg, node.Config)
	assert.NotNil(t, node.Session)
	assert.NotNil(t, node.Transport)
	assert.NotNil(t, node.Events)
	assert.Nil(t, node.Monitor)
	assert.False(t, node.Transport.Running())
}

func TestInitializeNode_Monitor(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "error"
	cfg.MonitorAddr = "127.0.0.1:0"

	node, err := InitializeNode(cfg)
	require.NoError(t, err)
	assert.NotNil(t, node.Monitor)
}

func TestInitializeNode_BadSerializer(t *testing.T) {
	cfg := config.Default()
	cfg.Serializer = "xml"

	_, err := InitializeNode(cfg)
	require.Error(t, err)
}
