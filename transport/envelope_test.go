package transport

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xbusio/xbus-go/xbuserr"
)

func TestEnvelopeResolveOK(t *testing.T) {
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(`{"ok":true,"result":{"lease_id":1},"error":null}`), &env))

	result, err := env.resolve()
	require.NoError(t, err)
	assert.JSONEq(t, `{"lease_id":1}`, string(result))
}

func TestEnvelopeResolveRequestError(t *testing.T) {
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(`{"ok":false,"result":null,"error":{"code":"NOT_FOUND","message":"missing"}}`), &env))

	_, err := env.resolve()
	require.Error(t, err)

	var xe *xbuserr.Error
	require.ErrorAs(t, err, &xe)
	assert.True(t, xe.IsNotFound())
	assert.False(t, xe.CanRetry())
}

func TestEnvelopeResolveNotPermitted(t *testing.T) {
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(`{"ok":false,"result":null,"error":{"code":"NOT_PERMITTED","message":"nope","keys":["svcB"]}}`), &env))

	_, err := env.resolve()
	require.Error(t, err)

	var xe *xbuserr.Error
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, []string{"svcB"}, xe.Keys())
	assert.False(t, xe.CanRetry())
}

func TestEnvelopeResolveRetryableCode(t *testing.T) {
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(`{"ok":false,"result":null,"error":{"code":"SYSTEM_ERROR","message":"oops"}}`), &env))

	_, err := env.resolve()
	var xe *xbuserr.Error
	require.ErrorAs(t, err, &xe)
	assert.True(t, xe.CanRetry())
}

func TestEnvelopeResolveMissingError(t *testing.T) {
	var env envelope
	require.NoError(t, json.Unmarshal([]byte(`{"ok":false,"result":null,"error":null}`), &env))

	_, err := env.resolve()
	require.Error(t, err)
}
