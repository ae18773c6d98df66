package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debouncer coalesces rapid event bursts (a PDF written in many small
// chunks, a directory copy) into a single trigger.
type debouncer struct {
	mu    sync.Mutex
	timer *time.Timer
	delay time.Duration
	fire  func()
}

func newDebouncer(delay time.Duration, fire func()) *debouncer {
	return &debouncer{delay: delay, fire: fire}
}

func (d *debouncer) trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Reset(d.delay)
		return
	}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		d.timer = nil
		d.mu.Unlock()
		d.fire()
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// watchAndReingest watches rootPath for new or modified PDFs and re-runs
// reingest on each debounced burst, until ctx is canceled or SIGINT/SIGTERM
// arrives. It runs reingest once immediately before entering the loop.
func watchAndReingest(ctx context.Context, rootPath string, reingest func(context.Context) error) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := watchRecursive(w, rootPath); err != nil {
		return fmt.Errorf("watch %s: %w", rootPath, err)
	}
	fmt.Printf("watching %s for new PDFs (ctrl-c to stop)\n", rootPath)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := reingest(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "doodledoc: initial index:", err)
	}

	db := newDebouncer(2*time.Second, func() {
		if err := reingest(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "doodledoc: reindex:", err)
		}
	})
	defer db.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !strings.EqualFold(filepath.Ext(ev.Name), ".pdf") {
				if ev.Has(fsnotify.Create) {
					if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
						_ = watchRecursive(w, ev.Name)
					}
				}
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				db.trigger()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(os.Stderr, "doodledoc: watcher error:", err)
		}
	}
}

func watchRecursive(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
