// Package modal drives the create, edit and delete dialogs for folders and
// documents. At most one dialog is open at a time and opening another one
// replaces it directly, dropping any unsaved input.
//
// Constructive dialogs (create and edit) stay open when the server rejects
// them so the input can be corrected. Destructive dialogs (delete) close
// whatever the outcome and report failures as notifications.
package modal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jason-riddle/vault-go"
	"github.com/jason-riddle/vault-go/internal/notify"
	"github.com/jason-riddle/vault-go/internal/store"
	"github.com/jason-riddle/vault-go/internal/tagging"
)

var (
	// ErrSubmitting is returned by Confirm while the same dialog is already
	// being submitted.
	ErrSubmitting = errors.New("modal is already submitting")

	// ErrNoModal is returned by Confirm when no dialog is open.
	ErrNoModal = errors.New("no modal is open")
)

// ValidationError is a local rejection. No request was made.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Kind identifies a dialog.
type Kind int

const (
	None Kind = iota
	CreateFolder
	EditFolder
	DeleteFolder
	EditDocument
	DeleteDocument
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case CreateFolder:
		return "create-folder"
	case EditFolder:
		return "edit-folder"
	case DeleteFolder:
		return "delete-folder"
	case EditDocument:
		return "edit-document"
	case DeleteDocument:
		return "delete-document"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// State is the open dialog. Folder is set for the folder edit and delete
// dialogs, Document for the document ones.
type State struct {
	Kind     Kind
	Folder   *vault.Folder
	Document *vault.Document

	// Name is the name being edited.
	Name string
	// Err is the inline error shown inside the dialog.
	Err        string
	Submitting bool
}

// Gateway is the write side of the API used by the dialogs.
type Gateway interface {
	CreateFolder(ctx context.Context, name string) (*vault.Folder, error)
	UpdateFolder(ctx context.Context, id int, name string) (*vault.Folder, error)
	DeleteFolder(ctx context.Context, id int) error
	UpdateDocument(ctx context.Context, id int, u vault.DocumentUpdate) (*vault.Document, error)
	DeleteDocument(ctx context.Context, id int) error
}

// Refresher refetches after a successful change. *store.Store implements it.
type Refresher interface {
	AfterMutation(ctx context.Context, m store.Mutation) error
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) {
		c.notifier = n
	}
}

// WithObserver registers fn to be called on every transition between
// dialogs. fn runs with the controller locked and must not call back into it.
func WithObserver(fn func(from, to State)) Option {
	return func(c *Controller) {
		c.observers = append(c.observers, fn)
	}
}

// WithUnauthorized sets the hook called instead of a failure notification
// when the server rejects the credential.
func WithUnauthorized(fn func(error)) Option {
	return func(c *Controller) {
		c.onUnauthorized = fn
	}
}

// Controller is the dialog state machine.
type Controller struct {
	gw             Gateway
	refresher      Refresher
	logger         *slog.Logger
	notifier       notify.Notifier
	observers      []func(from, to State)
	onUnauthorized func(error)

	mu    sync.Mutex
	state State
	sel   *tagging.Selection
	// instance changes on every open and close, so a submission that
	// finishes late can tell the dialog it belonged to is gone.
	instance uint64
}

// New returns a Controller with no dialog open.
func New(gw Gateway, refresher Refresher, opts ...Option) *Controller {
	c := &Controller{
		gw:        gw,
		refresher: refresher,
		logger:    slog.Default(),
		notifier:  notify.Discard,
		sel:       &tagging.Selection{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the open dialog.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Selection returns the tag selection of the edit-document dialog.
func (c *Controller) Selection() *tagging.Selection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sel
}

func (c *Controller) OpenCreateFolder() {
	c.open(State{Kind: CreateFolder}, nil)
}

func (c *Controller) OpenEditFolder(f vault.Folder) {
	c.open(State{Kind: EditFolder, Folder: &f, Name: f.Name}, nil)
}

func (c *Controller) OpenDeleteFolder(f vault.Folder) {
	c.open(State{Kind: DeleteFolder, Folder: &f}, nil)
}

// OpenEditDocument opens the document editor with tags preselected.
func (c *Controller) OpenEditDocument(d vault.Document, tags []vault.Tag) {
	d.Tags = append([]int(nil), d.Tags...)
	c.open(State{Kind: EditDocument, Document: &d, Name: d.Name}, tagging.NewSelection(tags...))
}

func (c *Controller) OpenDeleteDocument(d vault.Document) {
	c.open(State{Kind: DeleteDocument, Document: &d}, nil)
}

// Cancel closes the open dialog, discarding its input.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Kind == None {
		return
	}
	c.transitionLocked(State{})
}

// SetName updates the name being edited.
func (c *Controller) SetName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Name = name
}

func (c *Controller) open(to State, sel *tagging.Selection) {
	if sel == nil {
		sel = &tagging.Selection{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sel = sel
	c.transitionLocked(to)
}

func (c *Controller) transitionLocked(to State) {
	from := c.state
	c.state = to
	c.instance++
	for _, fn := range c.observers {
		fn(from, to)
	}
}

// Confirm submits the open dialog.
func (c *Controller) Confirm(ctx context.Context) error {
	c.mu.Lock()
	st := c.state
	inst := c.instance
	sel := c.sel
	switch {
	case st.Kind == None:
		c.mu.Unlock()
		return ErrNoModal
	case st.Submitting:
		c.mu.Unlock()
		return ErrSubmitting
	}

	name := strings.TrimSpace(st.Name)
	if name == "" && (st.Kind == CreateFolder || st.Kind == EditFolder || st.Kind == EditDocument) {
		msg := "Folder name cannot be empty."
		if st.Kind == EditDocument {
			msg = "Document name cannot be empty."
		}
		c.state.Err = msg
		c.mu.Unlock()
		return &ValidationError{Message: msg}
	}
	c.state.Submitting = true
	c.state.Err = ""
	c.mu.Unlock()

	switch st.Kind {
	case CreateFolder, EditFolder:
		return c.saveFolder(ctx, inst, st, name)
	case DeleteFolder:
		return c.deleteFolder(ctx, inst, *st.Folder)
	case EditDocument:
		return c.saveDocument(ctx, inst, *st.Document, name, sel.IDs())
	case DeleteDocument:
		return c.deleteDocument(ctx, inst, *st.Document)
	}
	return fmt.Errorf("unknown modal kind %v", st.Kind)
}

func (c *Controller) saveFolder(ctx context.Context, inst uint64, st State, name string) error {
	var (
		f   *vault.Folder
		err error
	)
	verb, done, kind := "create", "Folder created successfully!", store.FolderCreated
	if st.Kind == CreateFolder {
		f, err = c.gw.CreateFolder(ctx, name)
	} else {
		verb, done, kind = "update", "Folder updated successfully!", store.FolderUpdated
		f, err = c.gw.UpdateFolder(ctx, st.Folder.ID, name)
	}
	if err != nil {
		c.logger.WarnContext(ctx, "folder save failed", "op", verb, "err", err)
		msg := fmt.Sprintf("Failed to %s folder.", verb)
		if c.unauthorized(err) {
			msg = ""
		}
		c.finish(inst, false, msg)
		return err
	}

	c.finish(inst, true, "")
	c.notifier.Show(notify.Success, done)
	c.refresh(ctx, store.Mutation{Kind: kind, FolderID: f.ID})
	return nil
}

func (c *Controller) deleteFolder(ctx context.Context, inst uint64, f vault.Folder) error {
	err := c.gw.DeleteFolder(ctx, f.ID)
	c.finish(inst, true, "")
	if err != nil {
		c.logger.WarnContext(ctx, "folder delete failed", "folder", f.ID, "err", err)
		c.fail(err, "Failed to delete folder.")
		return err
	}
	c.notifier.Show(notify.Success, "Folder deleted successfully!")
	c.refresh(ctx, store.Mutation{Kind: store.FolderDeleted, FolderID: f.ID})
	return nil
}

func (c *Controller) saveDocument(ctx context.Context, inst uint64, d vault.Document, name string, tags []int) error {
	_, err := c.gw.UpdateDocument(ctx, d.ID, vault.DocumentUpdate{Name: &name, Tags: tags})
	if err != nil {
		c.logger.WarnContext(ctx, "document update failed", "document", d.ID, "err", err)
		c.unauthorized(err)
		c.finish(inst, false, "")
		return err
	}
	c.finish(inst, true, "")
	c.notifier.Show(notify.Success, "Document updated!")
	c.refresh(ctx, store.Mutation{Kind: store.DocumentUpdated, FolderID: d.Folder})
	return nil
}

func (c *Controller) deleteDocument(ctx context.Context, inst uint64, d vault.Document) error {
	err := c.gw.DeleteDocument(ctx, d.ID)
	c.finish(inst, true, "")
	if err != nil {
		c.logger.WarnContext(ctx, "document delete failed", "document", d.ID, "err", err)
		c.fail(err, "Failed to delete document.")
		return err
	}
	c.notifier.Show(notify.Success, "Document deleted successfully!")
	c.refresh(ctx, store.Mutation{Kind: store.DocumentDeleted, FolderID: d.Folder})
	return nil
}

// finish ends the submission of instance inst, either closing the dialog or
// leaving it open with inline error msg. It does nothing if the dialog has
// been replaced or closed since.
func (c *Controller) finish(inst uint64, closeModal bool, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.instance != inst {
		c.logger.Debug("dropping result of a replaced modal", "kind", c.state.Kind)
		return
	}
	c.state.Submitting = false
	if closeModal {
		c.transitionLocked(State{})
		return
	}
	c.state.Err = msg
}

func (c *Controller) fail(err error, msg string) {
	if c.unauthorized(err) {
		return
	}
	c.notifier.Show(notify.Error, msg)
}

func (c *Controller) unauthorized(err error) bool {
	if !vault.IsUnauthorized(err) {
		return false
	}
	if c.onUnauthorized != nil {
		c.onUnauthorized(err)
	}
	return true
}

func (c *Controller) refresh(ctx context.Context, m store.Mutation) {
	if c.refresher == nil {
		return
	}
	if err := c.refresher.AfterMutation(ctx, m); err != nil && !errors.Is(err, store.ErrStale) {
		c.logger.WarnContext(ctx, "refresh after change failed", "err", err)
	}
}
