// Package dropzone uploads files as they appear in a directory, the way a
// drop onto the folder view would.
package dropzone

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jason-riddle/vault-go"
	"github.com/jason-riddle/vault-go/internal/upload"
)

// Dropper receives dropped files. *upload.Pipeline implements it.
type Dropper interface {
	DragEnter()
	Drop(files ...upload.File)
	Submit(ctx context.Context) (*vault.Document, error)
}

// Result is what happened to one file.
type Result struct {
	Path     string
	Document *vault.Document
	Err      error
}

// Option configures Watch.
type Option func(*watcher)

func WithLogger(l *slog.Logger) Option {
	return func(w *watcher) {
		w.logger = l
	}
}

// WithSettle sets how long a file must stay unchanged before it is uploaded.
func WithSettle(d time.Duration) Option {
	return func(w *watcher) {
		w.settle = d
	}
}

// WithResults sends the outcome of every file to ch. Sends block.
func WithResults(ch chan<- Result) Option {
	return func(w *watcher) {
		w.results = ch
	}
}

type watcher struct {
	dir     string
	target  Dropper
	logger  *slog.Logger
	settle  time.Duration
	results chan<- Result
}

// Watch uploads every regular file created in dir through target until ctx
// is done. Upload failures are logged and do not stop the watch. Hidden
// files are ignored.
func Watch(ctx context.Context, dir string, target Dropper, opts ...Option) error {
	w := &watcher{
		dir:    dir,
		target: target,
		logger: slog.Default(),
		settle: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(w)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fw.Close() }()
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.InfoContext(ctx, "watching for dropped files", "dir", dir)

	// Writers usually create a file then write it in several steps, so each
	// path waits for the settle delay after its last event.
	pending := make(map[string]*time.Timer)
	ready := make(chan string)
	defer func() {
		for _, t := range pending {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if strings.HasPrefix(filepath.Base(event.Name), ".") {
				continue
			}
			name := event.Name
			if t, ok := pending[name]; ok {
				// A timer that already fired is on its way to ready.
				if t.Stop() {
					t.Reset(w.settle)
				}
				continue
			}
			pending[name] = time.AfterFunc(w.settle, func() {
				select {
				case ready <- name:
				case <-ctx.Done():
				}
			})
		case name := <-ready:
			delete(pending, name)
			w.drop(ctx, name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WarnContext(ctx, "error watching drop zone", "err", err)
		}
	}
}

func (w *watcher) drop(ctx context.Context, path string) {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	res := Result{Path: path}
	f, err := upload.ReadFile(path)
	if err != nil {
		res.Err = err
	} else {
		w.target.DragEnter()
		w.target.Drop(f)
		res.Document, res.Err = w.target.Submit(ctx)
	}
	if res.Err != nil {
		w.logger.ErrorContext(ctx, "dropped file not uploaded", "path", path, "err", res.Err)
	} else {
		w.logger.InfoContext(ctx, "dropped file uploaded", "path", path, "document", res.Document.ID)
	}
	if w.results != nil {
		select {
		case w.results <- res:
		case <-ctx.Done():
		}
	}
}
