package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the configuration when its file changes. The directory is
// watched rather than the file, so editors that replace the file on save
// are seen.
type Watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	current  atomic.Pointer[Config]
	debounce time.Duration
	onReload func(*Config)
	onError  func(error)
	overlay  func(*Config) error

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long the file must be quiet before it is reloaded.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d >= 0 {
			w.debounce = d
		}
	}
}

// WithOverlay sets a function applied to every reloaded configuration
// before it is published, such as command line flags that take precedence
// over the file.
func WithOverlay(fn func(*Config) error) WatcherOption {
	return func(w *Watcher) { w.overlay = fn }
}

// OnReload registers a callback for successfully reloaded configurations.
func OnReload(fn func(*Config)) WatcherOption {
	return func(w *Watcher) { w.onReload = fn }
}

// OnError registers a callback for failed reloads. The previous
// configuration stays current.
func OnError(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onError = fn }
}

// NewWatcher watches the file at path. initial is the configuration loaded
// from it at startup.
func NewWatcher(path string, initial *Config, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(absPath)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(absPath), err)
	}

	w := &Watcher{
		path:     absPath,
		fsw:      fsw,
		debounce: 100 * time.Millisecond,
		onReload: func(*Config) {},
		onError:  func(error) {},
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.current.Store(initial)

	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Current returns the latest successfully loaded configuration.
func (w *Watcher) Current() *Config {
	return w.current.Load()
}

// Close stops watching.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.onError(fmt.Errorf("watch config: %w", err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err == nil && w.overlay != nil {
		err = w.overlay(cfg)
	}
	if err != nil {
		w.onError(err)
		return
	}
	w.current.Store(cfg)
	w.onReload(cfg)
}
