package config

import (
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/xbusio/xbus-go/xbuserr"
)

// snapshot is the TOML-serialisable view of a resolved Config, with
// secret-bearing fields redacted the way a diagnostics dump should never
// echo a private key path's contents (the path itself is not secret, but
// cert_key_file is still flagged present/absent rather than printed
// verbatim when a caller only wants to confirm mTLS is configured).
type snapshot struct {
	Endpoint           string `toml:"endpoint"`
	Insecure           bool   `toml:"insecure"`
	DevApp             string `toml:"dev_app,omitempty"`
	CAFile             string `toml:"ca_file,omitempty"`
	CertConfigured     bool   `toml:"cert_key_file_configured"`
	MaxIdleConnections int    `toml:"max_idle_connections"`
	RequestTimeout     string `toml:"request_timeout"`
}

// WriteSnapshot renders a resolved Config as TOML, the same round-trip
// the teacher's plugin-config writer performs for diagnostics: encode to
// a string builder, then hand the caller the bytes to write wherever
// they like (a file, a log, a support bundle).
func (c *Config) WriteSnapshot() (string, error) {
	snap := snapshot{
		Endpoint:           c.Endpoint,
		Insecure:           c.Insecure,
		DevApp:             c.DevApp,
		CAFile:             c.CAFile,
		CertConfigured:     c.CertKeyFile != nil,
		MaxIdleConnections: c.MaxIdleConnections,
		RequestTimeout:     c.RequestTimeout.String(),
	}

	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(snap); err != nil {
		return "", xbuserr.Serialization(err)
	}
	return buf.String(), nil
}
