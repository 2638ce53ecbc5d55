// Package session wires the document management core around one gateway.
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jason-riddle/vault-go/internal/download"
	"github.com/jason-riddle/vault-go/internal/modal"
	"github.com/jason-riddle/vault-go/internal/notify"
	"github.com/jason-riddle/vault-go/internal/search"
	"github.com/jason-riddle/vault-go/internal/store"
	"github.com/jason-riddle/vault-go/internal/tagging"
	"github.com/jason-riddle/vault-go/internal/upload"
)

// Gateway is everything the core needs from the API. *vault.Client
// implements it.
type Gateway interface {
	store.Gateway
	modal.Gateway
	tagging.Creator
	upload.Gateway
	download.Gateway
	search.Gateway
}

// Option configures a Session.
type Option func(*Session)

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Session) {
		s.notifier = n
	}
}

// WithSaver sets where downloads go. The default saves into the working
// directory.
func WithSaver(sv download.Saver) Option {
	return func(s *Session) {
		s.saver = sv
	}
}

// WithUnauthorized sets the hook called when the server rejects the
// credential.
func WithUnauthorized(fn func(error)) Option {
	return func(s *Session) {
		s.onUnauthorized = fn
	}
}

// Session is the core of one signed-in user.
type Session struct {
	Store    *store.Store
	Modal    *modal.Controller
	Tags     *tagging.Reconciler
	Search   *search.Engine
	Download *download.Pipeline

	gw             Gateway
	logger         *slog.Logger
	notifier       notify.Notifier
	saver          download.Saver
	onUnauthorized func(error)

	mu     sync.Mutex
	upload *upload.Pipeline
}

// New builds a Session starting at route. Nothing is fetched until the
// first Refresh or Navigate.
func New(gw Gateway, route store.Scope, opts ...Option) *Session {
	s := &Session{
		gw:       gw,
		logger:   slog.Default(),
		notifier: notify.Discard,
		saver:    download.DirSaver{Dir: "."},
	}
	for _, opt := range opts {
		opt(s)
	}
	unauthorized := s.unauthorized

	s.Store = store.New(gw, route,
		store.WithLogger(s.logger),
		store.WithNotifier(s.notifier),
		store.WithUnauthorized(unauthorized))
	s.Modal = modal.New(gw, s.Store,
		modal.WithLogger(s.logger),
		modal.WithNotifier(s.notifier),
		modal.WithUnauthorized(unauthorized))
	s.Tags = tagging.New(gw, s.Store,
		tagging.WithLogger(s.logger),
		tagging.WithNotifier(s.notifier),
		tagging.WithRefresher(s.Store),
		tagging.WithUnauthorized(unauthorized))
	s.Search = search.New(gw,
		search.WithLogger(s.logger),
		search.WithNotifier(s.notifier),
		search.WithUnauthorized(unauthorized))
	s.Download = download.New(gw, s.saver,
		download.WithLogger(s.logger),
		download.WithNotifier(s.notifier),
		download.WithUnauthorized(unauthorized))
	return s
}

func (s *Session) unauthorized(err error) {
	if s.onUnauthorized != nil {
		s.onUnauthorized(err)
		return
	}
	s.logger.Error("credential rejected by the server", "err", err)
}

// Navigate moves to scope and refreshes it.
func (s *Session) Navigate(ctx context.Context, scope store.Scope) error {
	s.Store.Navigate(scope)
	s.Modal.Cancel()
	return s.Store.Refresh(ctx)
}

// Refresh refetches the current route.
func (s *Session) Refresh(ctx context.Context) error {
	return s.Store.Refresh(ctx)
}

// Upload returns the upload pipeline of the current folder. ok is false on
// the dashboard, which has no upload target. Moving to another folder
// starts a new pipeline with empty input.
func (s *Session) Upload() (p *upload.Pipeline, ok bool) {
	route := s.Store.Route()
	if !route.IsFolder() {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upload == nil || s.upload.Folder() != route.FolderID {
		s.upload = upload.New(s.gw, route.FolderID, s.Store,
			upload.WithLogger(s.logger.With("folder", route.FolderID)),
			upload.WithNotifier(s.notifier),
			upload.WithUnauthorized(s.unauthorized))
	}
	return s.upload, true
}
