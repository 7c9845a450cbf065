package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
local_address: 10.0.0.5
local_port: 9101
tick_interval: 20ms
connect_timeout: 2s
strict: true
peer_queue: 64
peers:
  - address: 10.0.0.6
    port: 9102
  - address: 10.0.0.7
    port: 9103
`

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadYAML(t *testing.T) {
	c, err := LoadYAML(strings.NewReader(sample))
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5", c.LocalAddress)
	assert.Equal(t, uint16(9101), c.LocalPort)
	assert.Equal(t, 20*time.Millisecond, c.TickInterval)
	assert.Equal(t, 2*time.Second, c.ConnectTimeout)
	assert.True(t, c.Strict)
	assert.Equal(t, 64, c.PeerQueue)
	assert.Equal(t, Default().MaxPayload, c.MaxPayload, "unset keys keep defaults")
	require.Len(t, c.Peers, 2)
	assert.Equal(t, "10.0.0.7:9103", c.Peers[1].String())
}

func TestLoadYAML_Empty(t *testing.T) {
	c, err := LoadYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestValidate(t *testing.T) {
	c := Default()
	c.LocalAddress = ""
	c.PeerQueue = 0
	c.ConnectTimeout = 0
	c.MaxPayload = 1 << 20
	c.Peers = []Peer{{Address: "", Port: 0}}
	c.Serializer = "xml"
	c.LogLevel = "loud"

	err := c.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	for _, want := range []string{"local_address", "connect_timeout", "peer_queue", "max_payload", "peers[0]: address", "peers[0]: port", "xml", "loud"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meshsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	t.Setenv("MESHSYNC_LOCAL_PORT", "9200")
	t.Setenv("MESHSYNC_LOG_LEVEL", "debug")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", c.LocalAddress)
	assert.Equal(t, uint16(9200), c.LocalPort)
	assert.Equal(t, "debug", c.LogLevel)
	assert.Equal(t, 20*time.Millisecond, c.TickInterval)
	assert.Equal(t, 2*time.Second, c.ConnectTimeout)
	require.Len(t, c.Peers, 2)
	assert.Equal(t, uint16(9102), c.Peers[0].Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
