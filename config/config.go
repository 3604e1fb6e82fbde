// Package config loads and validates the transport configuration for the
// xbus client: the registry endpoint, TLS material, and connection
// limits described in spec §6/§9.
package config

import (
	"time"

	"github.com/xbusio/xbus-go/xbuserr"
)

const defaultRequestTimeout = 5 * time.Second

// CertKeyFile names a PEM client certificate and its private key,
// together enabling mutual TLS.
type CertKeyFile struct {
	CertFile string
	KeyFile  string
}

// Config is the resolved configuration a transport.Client is built from.
type Config struct {
	Endpoint            string
	Insecure            bool
	DevApp              string
	CAFile              string
	CertKeyFile         *CertKeyFile
	MaxIdleConnections  int
	RequestTimeout      time.Duration
}

// New builds a Config for endpoint with the defaults spec §9 assumes: no
// TLS material, a 5-second request timeout, and no idle-connection cap
// override.
func New(endpoint string) *Config {
	return &Config{
		Endpoint:       endpoint,
		RequestTimeout: defaultRequestTimeout,
	}
}

// WithInsecure accepts any server certificate without verification.
// Dangerous; intended for local development only.
func (c *Config) WithInsecure(insecure bool) *Config {
	c.Insecure = insecure
	return c
}

// WithDevApp sets the client's app name directly, bypassing CN
// extraction from a client certificate. Mutually exclusive with
// WithCertKeyFile (§6).
func (c *Config) WithDevApp(devApp string) *Config {
	c.DevApp = devApp
	return c
}

// WithCAFile sets a PEM file of trusted CA certificates, added to the
// system root pool.
func (c *Config) WithCAFile(path string) *Config {
	c.CAFile = path
	return c
}

// WithCertKeyFile enables mutual TLS using the given PEM certificate and
// key files. The certificate's Common Name becomes the client's app
// name (§6). Mutually exclusive with WithDevApp.
func (c *Config) WithCertKeyFile(certFile, keyFile string) *Config {
	c.CertKeyFile = &CertKeyFile{CertFile: certFile, KeyFile: keyFile}
	return c
}

// WithMaxIdleConnections overrides the default idle-connection-per-host
// cap (§5 default 20).
func (c *Config) WithMaxIdleConnections(n int) *Config {
	c.MaxIdleConnections = n
	return c
}

// WithRequestTimeout overrides the base HTTP request timeout added to a
// long-poll's own timeout to form the transport deadline (§5).
func (c *Config) WithRequestTimeout(d time.Duration) *Config {
	c.RequestTimeout = d
	return c
}

// Validate enforces the constraints spec §6 states for Config
// construction.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return xbuserr.Other("config: endpoint is required")
	}
	if c.DevApp != "" && c.CertKeyFile != nil {
		return xbuserr.Other("config: dev_app and cert_key_file are mutually exclusive")
	}
	if c.RequestTimeout <= 0 {
		return xbuserr.Other("config: request_timeout must be positive")
	}
	return nil
}
