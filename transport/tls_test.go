package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xbusio/xbus-go/config"
)

// writeSelfSignedCert generates a self-signed certificate with the given
// Common Name and writes the PEM cert/key pair to dir, returning their
// paths.
func writeSelfSignedCert(t *testing.T, dir, commonName string) (certPath, keyPath string) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &priv.PublicKey, priv)
	require.NoError(t, err)

	certPath = filepath.Join(dir, "client.pem")
	keyPath = filepath.Join(dir, "client-key.pem")

	certOut, err := os.Create(certPath)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(certOut, &pem.Block{Type: "CERTIFICATE", Bytes: der}))
	require.NoError(t, certOut.Close())

	keyBytes, err := x509.MarshalECPrivateKey(priv)
	require.NoError(t, err)

	keyOut, err := os.Create(keyPath)
	require.NoError(t, err)
	require.NoError(t, pem.Encode(keyOut, &pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes}))
	require.NoError(t, keyOut.Close())

	return certPath, keyPath
}

func TestBuildTLSConfigExtractsCommonName(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedCert(t, dir, "my-service")

	cfg := config.New("https://registry.example.com").WithCertKeyFile(certPath, keyPath)

	tlsCfg, appName, err := buildTLSConfig(cfg)
	require.NoError(t, err)
	require.NotNil(t, tlsCfg)
	require.Equal(t, "my-service", appName)
}

func TestBuildTLSConfigDevAppOverridesCommonName(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedCert(t, dir, "my-service")

	cfg := config.New("https://registry.example.com").
		WithCertKeyFile(certPath, keyPath)
	cfg.DevApp = "override-app"

	_, appName, err := buildTLSConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, "override-app", appName)
}

func TestBuildTLSConfigNoCertMeansNoAppName(t *testing.T) {
	cfg := config.New("https://registry.example.com")
	_, appName, err := buildTLSConfig(cfg)
	require.NoError(t, err)
	require.Equal(t, "", appName)
}
