package transport

import (
	"crypto/tls"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xbusio/xbus-go/config"
)

func TestCertWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedCert(t, dir, "first-app")

	cfg := config.New("https://registry.example.com").WithCertKeyFile(certPath, keyPath)

	reloaded := make(chan string, 1)
	cw, err := newCertWatcher(cfg, func(_ *tls.Config, appName string) {
		reloaded <- appName
	})
	require.NoError(t, err)
	require.NotNil(t, cw)
	defer cw.Stop()

	newCertPath, newKeyPath := writeSelfSignedCert(t, t.TempDir(), "second-app")
	certBytes, err := os.ReadFile(newCertPath)
	require.NoError(t, err)
	keyBytes, err := os.ReadFile(newKeyPath)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(certPath, certBytes, 0o600))
	require.NoError(t, os.WriteFile(keyPath, keyBytes, 0o600))

	select {
	case appName := <-reloaded:
		require.Equal(t, "second-app", appName)
	case <-time.After(3 * time.Second):
		t.Fatal("cert watcher did not reload within timeout")
	}
}

func TestNewCertWatcherNilWhenNothingToWatch(t *testing.T) {
	cfg := config.New("https://registry.example.com")
	cw, err := newCertWatcher(cfg, func(*tls.Config, string) {})
	require.NoError(t, err)
	require.Nil(t, cw)
}

func TestWatchedPathsIncludesCAAndCertKey(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := writeSelfSignedCert(t, dir, "app")
	caPath := filepath.Join(dir, "ca.pem")
	require.NoError(t, os.WriteFile(caPath, []byte("dummy"), 0o600))

	cfg := config.New("https://registry.example.com").
		WithCAFile(caPath).
		WithCertKeyFile(certPath, keyPath)

	paths := watchedPaths(cfg)
	require.ElementsMatch(t, []string{caPath, certPath, keyPath}, paths)
}
