// Package download fetches document content and saves it under a derived
// file name.
package download

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/jason-riddle/vault-go"
	"github.com/jason-riddle/vault-go/internal/metrics"
	"github.com/jason-riddle/vault-go/internal/notify"
)

// FileName is the name a document is saved under: its stored name plus the
// extension of the stored file reference, unless the name already ends with
// that extension.
func FileName(doc vault.Document) string {
	ref := doc.File
	if u, err := url.Parse(doc.File); err == nil {
		ref = u.Path
	}
	name := doc.Name
	if name == "" {
		name = path.Base(ref)
	}
	ext := path.Ext(ref)
	if ext == "" || strings.HasSuffix(name, ext) {
		return name
	}
	return name + ext
}

// Saver stores downloaded content under name and returns where it went.
type Saver interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// DirSaver saves files into Dir. A file appears under its final name only
// once it has been written completely.
type DirSaver struct {
	Dir string
}

// Save implements Saver.
func (s DirSaver) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	base := filepath.Base(filepath.FromSlash(name))
	if base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	dir := s.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, ".vgo-download-*")
	if err != nil {
		return "", err
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, ctxReader{ctx, r}); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", err
	}

	dst := filepath.Join(dir, base)
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return "", err
	}
	return dst, nil
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Gateway fetches document content.
type Gateway interface {
	DownloadDocument(ctx context.Context, id int) (io.ReadCloser, error)
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(p *Pipeline) {
		p.notifier = n
	}
}

// WithUnauthorized sets the hook called when the server rejects the
// credential.
func WithUnauthorized(fn func(error)) Option {
	return func(p *Pipeline) {
		p.onUnauthorized = fn
	}
}

// Pipeline downloads documents through a Saver.
type Pipeline struct {
	gw             Gateway
	saver          Saver
	logger         *slog.Logger
	notifier       notify.Notifier
	onUnauthorized func(error)
}

// New returns a Pipeline.
func New(gw Gateway, saver Saver, opts ...Option) *Pipeline {
	p := &Pipeline{
		gw:       gw,
		saver:    saver,
		logger:   slog.Default(),
		notifier: notify.Discard,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Download saves the content of doc and returns the saved location. Progress
// is reported through one notification that is updated in place.
func (p *Pipeline) Download(ctx context.Context, doc vault.Document) (string, error) {
	name := FileName(doc)
	id := p.notifier.Show(notify.Loading, fmt.Sprintf("Downloading %q...", name))

	saved, err := p.save(ctx, doc.ID, name)
	if err != nil {
		metrics.DownloadsFailed.Add(1)
		p.logger.WarnContext(ctx, "download failed", "document", doc.ID, "err", err)
		if vault.IsUnauthorized(err) {
			p.notifier.Dismiss(id)
			if p.onUnauthorized != nil {
				p.onUnauthorized(err)
			}
		} else {
			p.notifier.Update(id, notify.Error, "Download failed.")
		}
		return "", fmt.Errorf("download %s: %w", name, err)
	}

	metrics.DownloadsTotal.Add(1)
	p.logger.InfoContext(ctx, "downloaded document", "document", doc.ID, "path", saved)
	p.notifier.Update(id, notify.Success, fmt.Sprintf("Saved %q.", name))
	return saved, nil
}

func (p *Pipeline) save(ctx context.Context, id int, name string) (string, error) {
	body, err := p.gw.DownloadDocument(ctx, id)
	if err != nil {
		return "", err
	}
	defer body.Close()
	return p.saver.Save(ctx, name, body)
}
