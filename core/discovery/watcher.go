package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"hlswatch/core/registry"
	"hlswatch/logger"

	"github.com/fsnotify/fsnotify"
)

// Options configures discovery.
type Options struct {
	// Pattern is matched case-insensitively against base names. Default "*.m3u8".
	Pattern string
	// ScanExisting launches monitors for matching files present at startup.
	ScanExisting bool
}

// Watcher discovers playlists anywhere under root and hands each one to the supervisor.
type Watcher struct {
	root    string
	pattern string
	scan    bool
	sup     *registry.Supervisor
	run     registry.RunFunc
	ready   chan struct{}
}

// New validates root. A missing or non-directory root is a startup error.
func New(root string, sup *registry.Supervisor, run registry.RunFunc, opts Options) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root %q: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", abs)
	}

	pattern := opts.Pattern
	if pattern == "" {
		pattern = "*.m3u8"
	}
	pattern = strings.ToLower(pattern)
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid playlist pattern %q: %w", opts.Pattern, err)
	}

	return &Watcher{
		root:    abs,
		pattern: pattern,
		scan:    opts.ScanExisting,
		sup:     sup,
		run:     run,
		ready:   make(chan struct{}),
	}, nil
}

func (w *Watcher) Root() string { return w.root }

// Ready is closed once the initial tree is being watched.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run watches until ctx is cancelled, then waits for every monitor to drain.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := w.addTree(ctx, fsw, w.root, w.scan); err != nil {
		fsw.Close()
		return err
	}
	close(w.ready)
	logger.Info("watching directory tree",
		logger.Path(w.root),
		logger.String("pattern", w.pattern),
		logger.Int("maxMonitors", w.sup.Size()))

	defer func() {
		fsw.Close()
		logger.Info("directory watcher stopping, draining monitors",
			logger.Int("active", w.sup.Registry().Len()))
		w.sup.Wait()
		logger.Info("directory watcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, fsw, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("directory watcher error", logger.ErrorField(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, fsw *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		// Gone already; a later event will bring it back if it reappears.
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) {
			// Files may land in the directory before its watch exists.
			if err := w.addTree(ctx, fsw, event.Name, true); err != nil {
				logger.Warn("watch new directory failed", logger.Path(event.Name), logger.ErrorField(err))
			}
		}
		return
	}
	w.consider(ctx, event.Name)
}

func (w *Watcher) consider(ctx context.Context, name string) {
	if !w.matches(name) {
		return
	}
	path := filepath.Clean(name)
	if h, ok := w.sup.Launch(ctx, path, w.run); ok {
		logger.Info("playlist discovered", logger.Path(path), logger.String("monitor", h.ID))
	}
}

func (w *Watcher) matches(name string) bool {
	ok, _ := filepath.Match(w.pattern, strings.ToLower(filepath.Base(name)))
	return ok
}

// addTree watches dir and every directory below it. With launch set, matching
// files already present are handed to the supervisor.
func (w *Watcher) addTree(ctx context.Context, fsw *fsnotify.Watcher, dir string, launch bool) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != dir && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("walk %s: %w", path, err)
		}
		if d.IsDir() {
			if err := fsw.Add(path); err != nil {
				return fmt.Errorf("watch %s: %w", path, err)
			}
			return nil
		}
		if launch {
			w.consider(ctx, path)
		}
		return nil
	})
}
