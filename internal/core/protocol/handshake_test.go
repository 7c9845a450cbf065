package protocol

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandshake_RoundTrip(t *testing.T) {
	for _, h := range []Handshake{
		{Address: "127.0.0.1", Port: 9001},
		{Address: "mesh-node.local", Port: 65000},
	} {
		var buf bytes.Buffer
		require.NoError(t, WriteHandshake(&buf, h))
		require.Equal(t, 1+len(h.Address)+2, buf.Len())

		got, err := ReadHandshake(NewReader(&buf))
		require.NoError(t, err)
		require.Equal(t, h, got)
	}
}

func TestHandshake_Layout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHandshake(&buf, Handshake{Address: "ab", Port: 0x2329}))
	require.Equal(t, []byte{2, 'a', 'b', 0x29, 0x23}, buf.Bytes())
}

func TestHandshake_Invalid(t *testing.T) {
	require.ErrorIs(t, WriteHandshake(&bytes.Buffer{}, Handshake{}), ErrInvalidHandshake)
	require.ErrorIs(t, WriteHandshake(&bytes.Buffer{}, Handshake{Address: strings.Repeat("a", 256)}), ErrInvalidHandshake)

	_, err := ReadHandshake(NewReader(bytes.NewReader([]byte{0})))
	require.ErrorIs(t, err, ErrInvalidHandshake)

	_, err = ReadHandshake(NewReader(bytes.NewReader([]byte{4, 'a'})))
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestHandshake_Key(t *testing.T) {
	require.Equal(t, "127.0.0.1:9001", Handshake{Address: "127.0.0.1", Port: 9001}.Key())
	require.Equal(t, "[::1]:80", Handshake{Address: "::1", Port: 80}.Key())
}
