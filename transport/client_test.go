package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xbusio/xbus-go/config"
	"github.com/xbusio/xbus-go/xbuserr"
)

func TestClientSendOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{"lease_id":42,"ttl":60},"error":null}`))
	}))
	defer srv.Close()

	c, err := NewClient(config.New(srv.URL))
	require.NoError(t, err)
	defer c.Close()

	result, err := c.Send(context.Background(), http.MethodPost, "/api/leases", nil, nil, 0)
	require.NoError(t, err)
	assert.JSONEq(t, `{"lease_id":42,"ttl":60}`, string(result))
}

func TestClientSendRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":false,"result":null,"error":{"code":"NOT_FOUND","message":"missing"}}`))
	}))
	defer srv.Close()

	c, err := NewClient(config.New(srv.URL))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Send(context.Background(), http.MethodGet, "/api/configs/missing", nil, nil, 0)
	require.Error(t, err)

	var xe *xbuserr.Error
	require.ErrorAs(t, err, &xe)
	assert.True(t, xe.IsNotFound())
}

func TestClientSendTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`{"ok":true,"result":null,"error":null}`))
	}))
	defer srv.Close()

	cfg := config.New(srv.URL).WithRequestTimeout(10 * time.Millisecond)
	c, err := NewClient(cfg)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Send(context.Background(), http.MethodGet, "/api/configs/slow", nil, nil, 0)
	require.Error(t, err)

	var xe *xbuserr.Error
	require.ErrorAs(t, err, &xe)
	assert.True(t, xe.IsTimeout())
}

func TestClientDevAppHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "my-test-app", r.Header.Get("Dev-App"))
		w.Write([]byte(`{"ok":true,"result":null,"error":null}`))
	}))
	defer srv.Close()

	cfg := config.New(srv.URL).WithDevApp("my-test-app")
	c, err := NewClient(cfg)
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, "my-test-app", c.AppName())

	_, err = c.Send(context.Background(), http.MethodGet, "/api/configs/x", nil, nil, 0)
	require.NoError(t, err)
}

func TestClientFormBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "60", r.FormValue("ttl"))
		w.Write([]byte(`{"ok":true,"result":null,"error":null}`))
	}))
	defer srv.Close()

	c, err := NewClient(config.New(srv.URL))
	require.NoError(t, err)
	defer c.Close()

	form := NewForm()
	require.NoError(t, form.Set("ttl", 60))

	_, err = c.Send(context.Background(), http.MethodPost, "/api/leases", nil, form, 0)
	require.NoError(t, err)
}
