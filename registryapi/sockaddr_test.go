package registryapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSocketAddrIPv4(t *testing.T) {
	addr, err := ParseSocketAddr("10.0.0.1:8080")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", addr.Host)
	assert.Equal(t, uint16(8080), addr.Port)
	assert.Equal(t, "10.0.0.1:8080", addr.String())
}

func TestParseSocketAddrIPv6(t *testing.T) {
	addr, err := ParseSocketAddr("[::1]:9090")
	require.NoError(t, err)
	assert.Equal(t, "::1", addr.Host)
	assert.Equal(t, "[::1]:9090", addr.String())
}

func TestParseSocketAddrMalformed(t *testing.T) {
	_, err := ParseSocketAddr("not-an-address")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid socket address")
}

func TestSocketAddrJSONRoundTrip(t *testing.T) {
	addr := SocketAddr{Host: "192.168.1.1", Port: 443}

	data, err := json.Marshal(addr)
	require.NoError(t, err)
	assert.Equal(t, `"192.168.1.1:443"`, string(data))

	var decoded SocketAddr
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, addr, decoded)
}

func TestSocketAddrUnmarshalRejectsMalformed(t *testing.T) {
	var addr SocketAddr
	err := json.Unmarshal([]byte(`"garbage"`), &addr)
	require.Error(t, err)
}
