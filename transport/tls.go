package transport

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/xbusio/xbus-go/config"
	"github.com/xbusio/xbus-go/xbuserr"
)

// buildTLSConfig assembles the *tls.Config for cfg and resolves the
// client's app name per spec §6: dev_app overrides everything; otherwise,
// if a client certificate is configured, its Common Name is extracted
// and becomes the app name.
//
// Go's crypto/x509 already parses the certificate subject, so CN
// extraction here is a field read rather than a hand-rolled DER/OID
// walk.
func buildTLSConfig(cfg *config.Config) (*tls.Config, string, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.Insecure,
	}

	if cfg.CAFile != "" {
		pool, err := loadCAPool(cfg.CAFile)
		if err != nil {
			return nil, "", err
		}
		tlsCfg.RootCAs = pool
	}

	appName := cfg.DevApp

	if cfg.CertKeyFile != nil {
		cert, err := tls.LoadX509KeyPair(cfg.CertKeyFile.CertFile, cfg.CertKeyFile.KeyFile)
		if err != nil {
			return nil, "", xbuserr.TLSError(err)
		}
		if cert.Leaf == nil {
			leaf, err := x509.ParseCertificate(cert.Certificate[0])
			if err != nil {
				return nil, "", xbuserr.TLSError(err)
			}
			cert.Leaf = leaf
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
		if appName == "" {
			appName = cert.Leaf.Subject.CommonName
		}
	}

	return tlsCfg, appName, nil
}

func loadCAPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, xbuserr.TLSError(err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, xbuserr.TLSError(xbuserr.Other("no certificates found in " + path))
	}
	return pool, nil
}
