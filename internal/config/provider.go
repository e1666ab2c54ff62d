package config

import (
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Provider hands out the current Config and supports live replacement, so
// selector patches take effect without restarting a logged-in browser
// session.
type Provider struct {
	cur atomic.Pointer[Config]
}

// NewProvider wraps an initial config.
func NewProvider(cfg Config) *Provider {
	p := &Provider{}
	p.cur.Store(&cfg)
	return p
}

// Get returns the current config snapshot.
func (p *Provider) Get() Config {
	return *p.cur.Load()
}

// Replace swaps in a new config.
func (p *Provider) Replace(cfg Config) {
	p.cur.Store(&cfg)
}

// Watch reloads the config file whenever it changes on disk. Returns a stop
// function. Reload failures keep the previous config.
func (p *Provider) Watch(path string, log *zap.Logger) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		// The file may not exist yet; nothing to watch then.
		watcher.Close()
		return func() {}, nil
	}

	done := make(chan struct{})
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-done:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					log.Warn("config reload failed, keeping previous", zap.Error(err))
					continue
				}
				p.Replace(cfg)
				log.Info("config reloaded", zap.String("path", path))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("config watcher error", zap.Error(err))
			}
		}
	}()

	return func() { close(done) }, nil
}
