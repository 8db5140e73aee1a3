// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/AleutianAI/clocktree/pkg/logging"
	"github.com/AleutianAI/clocktree/services/clocktree/board"
)

// fileChangeHandler is called with the watched files that changed during
// one debounce window.
type fileChangeHandler func(ctx context.Context, paths []string)

// fileWatcher watches a fixed set of files and reports changes after a
// quiet period.
//
// # Description
//
// fsnotify watches directories, so the parent directory of every file is
// added and events for other names are dropped. Editors and os.WriteFile
// produce bursts of write, create and rename events; they are collected
// until debounce passes without another one and then handed over in one
// call.
//
// # Thread Safety
//
// Start and Stop are safe for concurrent use. The handler is called from
// a single goroutine.
type fileWatcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool
	handler  fileChangeHandler
	debounce time.Duration
	log      *logging.Logger

	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	watching bool
}

// newFileWatcher creates a watcher for files. Paths are made absolute.
func newFileWatcher(files []string, debounce time.Duration, log *logging.Logger, handler fileChangeHandler) (*fileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	fw := &fileWatcher{
		watcher:  w,
		files:    make(map[string]bool, len(files)),
		handler:  handler,
		debounce: debounce,
		log:      log,
		done:     make(chan struct{}),
	}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			w.Close()
			return nil, err
		}
		fw.files[abs] = true
	}
	return fw, nil
}

// Start adds the watched directories and begins delivering changes until
// ctx is done or Stop is called.
func (w *fileWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watching {
		return nil
	}
	dirs := map[string]bool{}
	for f := range w.files {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			return err
		}
	}
	w.watching = true
	go w.loop(ctx)
	return nil
}

// Stop ends watching. It is safe to call more than once.
func (w *fileWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
	})
}

// relevant reports whether ev touches a watched file in a way that can
// change its contents.
func (w *fileWatcher) relevant(ev fsnotify.Event) bool {
	if !w.files[filepath.Clean(ev.Name)] {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}

func (w *fileWatcher) loop(ctx context.Context) {
	pending := map[string]bool{}
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(pending) > 0 && w.handler != nil {
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			sort.Strings(paths)
			w.handler(ctx, paths)
		}
		clear(pending)
		timerC = nil
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			pending[filepath.Clean(ev.Name)] = true
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case <-timerC:
			flush()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("file watcher error", "error", err)
		}
	}
}

// watch starts reloading the clock graph whenever the config file, the
// register image or the vote file changes on disk.
func (a *app) watch(ctx context.Context) (*fileWatcher, error) {
	a.mu.RLock()
	files := []string{a.configFile, a.cfg.Registers, votesPath(a.cfg)}
	a.mu.RUnlock()

	w, err := newFileWatcher(files, 100*time.Millisecond, a.log, a.reload)
	if err != nil {
		return nil, err
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return nil, err
	}
	return w, nil
}

// reload rebuilds the clock graph from the files on disk and swaps it in.
// On any failure the running graph is kept.
func (a *app) reload(ctx context.Context, paths []string) {
	a.mu.RLock()
	cfg := a.cfg
	a.mu.RUnlock()

	for _, p := range paths {
		if p != a.configFile {
			continue
		}
		next, _, err := a.loadConfig()
		if err != nil {
			a.log.Warn("config reload failed, keeping the running tree", "path", p, "error", err)
			return
		}
		cfg = next
	}
	if _, err := os.Stat(cfg.Registers); err != nil {
		a.log.Warn("register image unavailable, keeping the running tree", "path", cfg.Registers, "error", err)
		return
	}

	topo, err := board.Load(cfg.Board)
	if err != nil {
		a.log.Warn("board reload failed, keeping the running tree", "board", cfg.Board, "error", err)
		return
	}
	mem, _, err := a.loadImage(cfg)
	if err != nil {
		a.log.Warn("register image reload failed, keeping the running tree", "error", err)
		return
	}
	plat, g, err := a.buildGraph(ctx, cfg, topo, mem)
	if err != nil {
		a.log.Warn("clock tree rebuild failed, keeping the running tree", "error", err)
		return
	}

	a.mu.Lock()
	a.cfg, a.topo, a.mem, a.plat, a.g = cfg, topo, mem, plat, g
	a.mu.Unlock()
	a.log.Info("clock tree reloaded", "changed", paths, "clocks", len(g.Clocks()))
}
