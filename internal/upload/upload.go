// Package upload collects a file, a name and tags for a new document and
// submits them to the folder being viewed.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jason-riddle/vault-go"
	"github.com/jason-riddle/vault-go/internal/metrics"
	"github.com/jason-riddle/vault-go/internal/notify"
	"github.com/jason-riddle/vault-go/internal/store"
	"github.com/jason-riddle/vault-go/internal/tagging"
)

// ErrUploading is returned by Submit while an upload is in flight.
var ErrUploading = errors.New("upload already in progress")

// ValidationError is a local rejection. No request was made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

const msgMissingInput = "Both a file and document name are required."

// File is a file chosen for upload.
type File struct {
	Name string
	Data []byte
}

// ReadFile loads the file at path.
func ReadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, err
	}
	return File{Name: filepath.Base(path), Data: data}, nil
}

// DefaultName is the document name suggested for a file name: the name with
// its last extension removed. Names without an extension, or whose only dot
// is the leading one, are kept as they are.
func DefaultName(fileName string) string {
	i := strings.LastIndexByte(fileName, '.')
	if i <= 0 {
		return fileName
	}
	return fileName[:i]
}

// ContentType sniffs the media type of data, without parameters.
func ContentType(data []byte) string {
	mt, _, _ := strings.Cut(mimetype.Detect(data).String(), ";")
	return strings.TrimSpace(mt)
}

// Gateway uploads documents.
type Gateway interface {
	UploadDocument(ctx context.Context, doc vault.NewDocument) (*vault.Document, error)
}

// Refresher refetches after a successful upload. *store.Store implements it.
type Refresher interface {
	AfterMutation(ctx context.Context, m store.Mutation) error
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
// credential. Those failures are not notified.
func WithUnauthorized(fn func(error)) Option {
	return func(p *Pipeline) {
		p.onUnauthorized = fn
	}
}

// Pipeline holds the pending upload for one folder.
type Pipeline struct {
	gw        Gateway
	folder    int
	refresher Refresher
	logger    *slog.Logger
	notifier  notify.Notifier
	tags      *tagging.Selection

	onUnauthorized func(error)

	mu        sync.Mutex
	file      *File
	name      string
	dragging  bool
	uploading bool
}

// New returns a Pipeline uploading into folder.
func New(gw Gateway, folder int, refresher Refresher, opts ...Option) *Pipeline {
	p := &Pipeline{
		gw:        gw,
		folder:    folder,
		refresher: refresher,
		logger:    slog.Default(),
		notifier:  notify.Discard,
		tags:      &tagging.Selection{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Folder returns the target folder id.
func (p *Pipeline) Folder() int {
	return p.folder
}

// Tags is the tag selection sent with the upload.
func (p *Pipeline) Tags() *tagging.Selection {
	return p.tags
}

func (p *Pipeline) DragEnter() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dragging = true
}

func (p *Pipeline) DragLeave() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dragging = false
}

// Dragging reports whether a drag is hovering over the drop zone.
func (p *Pipeline) Dragging() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dragging
}

// Drop ends a drag. The first of files, if any, replaces the pending file.
func (p *Pipeline) Drop(files ...File) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dragging = false
	p.chooseLocked(files)
}

// Pick chooses a file without dragging. Only the first of files is used.
func (p *Pipeline) Pick(files ...File) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chooseLocked(files)
}

func (p *Pipeline) chooseLocked(files []File) {
	if len(files) == 0 {
		return
	}
	if len(files) > 1 {
		p.logger.Debug("ignoring extra files", "count", len(files)-1)
	}
	f := files[0]
	p.file = &f
	p.name = DefaultName(f.Name)
}

// SetName overrides the document name.
func (p *Pipeline) SetName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
}

func (p *Pipeline) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

// File returns the pending file.
func (p *Pipeline) File() (File, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return File{}, false
	}
	return *p.file, true
}

// Uploading reports whether Submit is in flight.
func (p *Pipeline) Uploading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uploading
}

// Submit uploads the pending file. On success the pending input is cleared;
// on failure it is kept so the upload can be retried as is.
func (p *Pipeline) Submit(ctx context.Context) (*vault.Document, error) {
	p.mu.Lock()
	if p.uploading {
		p.mu.Unlock()
		return nil, ErrUploading
	}
	name := strings.TrimSpace(p.name)
	if p.file == nil || name == "" {
		p.mu.Unlock()
		p.notifier.Show(notify.Error, msgMissingInput)
		return nil, &ValidationError{Message: msgMissingInput}
	}
	file := *p.file
	p.uploading = true
	p.mu.Unlock()

	doc, err := p.gw.UploadDocument(ctx, vault.NewDocument{
		Name:     name,
		Folder:   p.folder,
		FileName: file.Name,
		FileType: ContentType(file.Data),
		Content:  bytes.NewReader(file.Data),
		Tags:     p.tags.IDs(),
	})

	p.mu.Lock()
	p.uploading = false
	if err == nil {
		p.file = nil
		p.name = ""
		p.tags.Clear()
	}
	p.mu.Unlock()

	if err != nil {
		metrics.UploadsFailed.Add(1)
		p.logger.WarnContext(ctx, "upload failed", "file", file.Name, "folder", p.folder, "err", err)
		if !p.unauthorized(err) {
			p.notifier.Show(notify.Error, "Upload failed. Please try again.")
		}
		return nil, fmt.Errorf("upload %s: %w", file.Name, err)
	}

	metrics.UploadsTotal.Add(1)
	p.logger.InfoContext(ctx, "uploaded document", "id", doc.ID, "name", doc.Name, "folder", p.folder)
	p.notifier.Show(notify.Success, "Document uploaded successfully!")
	if p.refresher != nil {
		if err := p.refresher.AfterMutation(ctx, store.Mutation{Kind: store.DocumentUploaded, FolderID: p.folder}); err != nil && !errors.Is(err, store.ErrStale) {
			p.logger.WarnContext(ctx, "refresh after upload failed", "err", err)
		}
	}
	return doc, nil
}

func (p *Pipeline) unauthorized(err error) bool {
	if !vault.IsUnauthorized(err) {
		return false
	}
	if p.onUnauthorized != nil {
		p.onUnauthorized(err)
	}
	return true
}
