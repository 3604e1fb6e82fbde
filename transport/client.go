// Package transport issues HTTPS requests against the registry and
// parses its response envelope, per spec §6. It owns TLS/mTLS setup
// (including Common Name extraction for the client's app name),
// request-id stamping, outbound rate limiting, and hot-reloading of
// certificate material — the external collaborator spec.md treats as a
// given.
package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/xbusio/xbus-go/config"
	"github.com/xbusio/xbus-go/internal/xlog"
	"github.com/xbusio/xbus-go/xbuserr"
)

const defaultMaxIdleConnsPerHost = 20

// roundTripper delegates to an atomically-swappable *http.Transport so a
// certWatcher reload can replace the active TLS configuration without
// the caller's *http.Client needing to change.
type roundTripper struct {
	current atomic.Pointer[http.Transport]
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt.current.Load().RoundTrip(req)
}

// Client issues requests against one registry endpoint.
type Client struct {
	httpClient     *http.Client
	rt             *roundTripper
	endpoint       string
	devApp         string
	appName        string
	requestTimeout time.Duration
	limiter        *rate.Limiter
	certWatcher    *certWatcher
}

// NewClient builds a Client from cfg, performing TLS/mTLS setup and CN
// extraction (§6) up front. The returned Client owns its connection pool
// and, if cfg names cert/key/CA files, a background watcher that
// hot-reloads them.
func NewClient(cfg *config.Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tlsCfg, appName, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}

	maxIdle := cfg.MaxIdleConnections
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdleConnsPerHost
	}

	rt := &roundTripper{}
	rt.current.Store(newHTTPTransport(tlsCfg, maxIdle))

	c := &Client{
		httpClient:     &http.Client{Transport: rt},
		rt:             rt,
		endpoint:       strings.TrimSuffix(cfg.Endpoint, "/"),
		devApp:         cfg.DevApp,
		appName:        appName,
		requestTimeout: cfg.RequestTimeout,
		limiter:        rate.NewLimiter(rate.Limit(maxIdle), maxIdle),
	}

	cw, err := newCertWatcher(cfg, c.reloadTLS)
	if err != nil {
		return nil, xbuserr.TLSError(err)
	}
	c.certWatcher = cw

	return c, nil
}

func newHTTPTransport(tlsCfg *tls.Config, maxIdleConnsPerHost int) *http.Transport {
	return &http.Transport{
		TLSClientConfig:     tlsCfg,
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

func (c *Client) reloadTLS(tlsCfg *tls.Config, appName string) {
	maxIdle := defaultMaxIdleConnsPerHost
	if old := c.rt.current.Load(); old != nil && old.MaxIdleConnsPerHost > 0 {
		maxIdle = old.MaxIdleConnsPerHost
	}
	c.rt.current.Store(newHTTPTransport(tlsCfg, maxIdle))
	if appName != "" {
		c.appName = appName
	}
}

// AppName returns the client's app name, resolved from dev_app or from
// the client certificate's Common Name (§6).
func (c *Client) AppName() string {
	return c.appName
}

// Close stops the certificate watcher, if one is running, and shuts down
// idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	if c.certWatcher != nil {
		return c.certWatcher.Stop()
	}
	return nil
}

// Send issues an HTTP request against path with the given method, query
// parameters, and (optional) form body, and resolves the response
// envelope. timeout, when non-zero, is a long-poll's own wait and is
// added to the client's base request_timeout to form the transport
// deadline per spec §5. The returned bytes are the envelope's raw
// "result" field; callers unmarshal into their own type.
func (c *Client) Send(ctx context.Context, method, path string, query url.Values, form *Form, timeout time.Duration) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, xbuserr.Transport(err)
	}

	deadline := c.requestTimeout + timeout
	reqCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	u := c.endpoint + path
	var body io.Reader
	contentType := ""
	if form != nil {
		body = strings.NewReader(form.Encode())
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(reqCtx, method, u, body)
	if err != nil {
		return nil, xbuserr.Transport(err)
	}
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.devApp != "" {
		req.Header.Set("Dev-App", c.devApp)
	}
	requestID := uuid.New().String()
	req.Header.Set("X-Request-Id", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			xlog.Debugw("transport: request timed out", "request_id", requestID, "path", path)
			return nil, xbuserr.Timeout(err)
		}
		xlog.Warnw("transport: request failed", "request_id", requestID, "path", path, "error", err)
		return nil, xbuserr.Transport(err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, xbuserr.Serialization(err)
	}

	result, err := env.resolve()
	if err != nil {
		xlog.Debugw("transport: request returned error envelope", "request_id", requestID, "path", path, "error", err)
		return nil, err
	}
	return result, nil
}
