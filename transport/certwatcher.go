package transport

import (
	"crypto/tls"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/xbusio/xbus-go/config"
	"github.com/xbusio/xbus-go/internal/xlog"
)

// certWatcher hot-reloads the configured client certificate/key and CA
// file on disk change so a long-running process doesn't need restarting
// to pick up a rotated credential. Adapted from the config-file watcher
// idiom (fsnotify + debounce, ignore-own-write guard not needed here
// since this package never writes the watched files itself).
type certWatcher struct {
	cfg            *config.Config
	watcher        *fsnotify.Watcher
	onReload       func(tlsCfg *tls.Config, appName string)
	mu             sync.Mutex
	debounceTimer  *time.Timer
	debouncePeriod time.Duration
	done           chan struct{}
}

// newCertWatcher watches the cert/key/CA files named by cfg, if any, and
// calls onReload with a freshly built TLS config whenever one changes.
// Returns (nil, nil) if cfg configures no watchable files.
func newCertWatcher(cfg *config.Config, onReload func(*tls.Config, string)) (*certWatcher, error) {
	paths := watchedPaths(cfg)
	if len(paths) == 0 {
		return nil, nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if err := fsw.Add(p); err != nil {
			fsw.Close()
			return nil, err
		}
	}

	cw := &certWatcher{
		cfg:            cfg,
		watcher:        fsw,
		onReload:       onReload,
		debouncePeriod: 500 * time.Millisecond,
		done:           make(chan struct{}),
	}
	go cw.watchLoop()
	return cw, nil
}

func watchedPaths(cfg *config.Config) []string {
	var paths []string
	if cfg.CAFile != "" {
		paths = append(paths, cfg.CAFile)
	}
	if cfg.CertKeyFile != nil {
		paths = append(paths, cfg.CertKeyFile.CertFile, cfg.CertKeyFile.KeyFile)
	}
	return paths
}

func (cw *certWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				xlog.Debugw("transport: cert material changed", "file", event.Name, "op", event.Op.String())
				cw.scheduleReload()
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			xlog.Warnw("transport: cert watcher error", "error", err)
		case <-cw.done:
			return
		}
	}
}

func (cw *certWatcher) scheduleReload() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.debounceTimer != nil {
		cw.debounceTimer.Stop()
	}
	cw.debounceTimer = time.AfterFunc(cw.debouncePeriod, cw.reload)
}

func (cw *certWatcher) reload() {
	tlsCfg, appName, err := buildTLSConfig(cw.cfg)
	if err != nil {
		xlog.Errorw("transport: failed to rebuild tls config after cert change", "error", err)
		return
	}
	xlog.Infow("transport: tls config reloaded", "app_name", appName)
	cw.onReload(tlsCfg, appName)
}

// Stop ends the watch loop and releases the underlying fsnotify watcher.
func (cw *certWatcher) Stop() error {
	close(cw.done)
	return cw.watcher.Close()
}
