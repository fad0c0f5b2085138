// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package wdconfig

import (
	"context"
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/wavetermdev/wavedom/pkg/panichandler"
)

type UpdateHandler func(settings SettingsType)

type Watcher struct {
	lock      sync.Mutex
	configDir string
	watcher   *fsnotify.Watcher
	settings  SettingsType
	handlers  []UpdateHandler
}

// MakeWatcher reads the current settings and watches configDir. A bad
// settings file is logged and the defaults are used.
func MakeWatcher(configDir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	err = fsw.Add(configDir)
	if err != nil {
		fsw.Close()
		return nil, err
	}
	w := &Watcher{configDir: configDir, watcher: fsw}
	w.settings, err = ReadSettings(configDir)
	if err != nil {
		log.Printf("[config] %v\n", err)
	}
	return w, nil
}

func (w *Watcher) GetSettings() SettingsType {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.settings
}

func (w *Watcher) RegisterUpdateHandler(fn UpdateHandler) {
	w.lock.Lock()
	defer w.lock.Unlock()
	w.handlers = append(w.handlers, fn)
}

// Run delivers settings changes to the registered handlers until ctx is done
// or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		panichandler.PanicHandler("wdconfig:Watcher.Run", recover())
	}()
	w.lock.Lock()
	fsw := w.watcher
	w.lock.Unlock()
	if fsw == nil {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Printf("[config] watcher error: %v\n", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}
	if filepath.Base(event.Name) != SettingsFile {
		return
	}
	settings, err := ReadSettings(w.configDir)
	if err != nil {
		log.Printf("[config] keeping previous settings: %v\n", err)
		return
	}
	w.lock.Lock()
	if settings == w.settings {
		w.lock.Unlock()
		return
	}
	w.settings = settings
	handlers := append([]UpdateHandler{}, w.handlers...)
	w.lock.Unlock()
	log.Printf("[config] settings updated\n")
	for _, fn := range handlers {
		fn(settings)
	}
}

func (w *Watcher) Close() {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.watcher != nil {
		w.watcher.Close()
		w.watcher = nil
	}
}
