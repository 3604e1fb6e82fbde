package transport

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormNullBecomesEmptyString(t *testing.T) {
	f := NewForm()
	var nilPtr *string
	require.NoError(t, f.Set("config", nilPtr))

	values, err := url.ParseQuery(f.Encode())
	require.NoError(t, err)
	assert.Equal(t, "", values.Get("config"))
}

func TestFormRoundTripsJSONString(t *testing.T) {
	f := NewForm()
	require.NoError(t, f.Set("desc", map[string]string{"service": "svcA", "zone": "default"}))

	values, err := url.ParseQuery(f.Encode())
	require.NoError(t, err)
	assert.JSONEq(t, `{"service":"svcA","zone":"default"}`, values.Get("desc"))
}

func TestFormIntValue(t *testing.T) {
	f := NewForm()
	require.NoError(t, f.Set("ttl", 60))

	values, err := url.ParseQuery(f.Encode())
	require.NoError(t, err)
	assert.Equal(t, "60", values.Get("ttl"))
}
