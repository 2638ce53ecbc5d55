// Package store holds the latest fetched snapshot of folders, documents and
// tags for the active view.
//
// The snapshot is never patched after a mutation: every change is followed
// by a full refetch of the route, and a refresh either replaces the whole
// snapshot or leaves it untouched. Refreshes are stamped with a sequence
// number; a response older than the applied snapshot, or for a scope that is
// no longer the route, is discarded.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jason-riddle/vault-go"
	"github.com/jason-riddle/vault-go/internal/metrics"
	"github.com/jason-riddle/vault-go/internal/notify"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrFetch is reported when any part of a refresh fails.
	ErrFetch = errors.New("failed to fetch data")

	// ErrStale is returned when a response was discarded because it is older
	// than the applied snapshot or targets a scope that is no longer active.
	ErrStale = errors.New("stale response discarded")
)

// Gateway is the read side of the API the store needs.
type Gateway interface {
	ListFolders(ctx context.Context) ([]vault.Folder, error)
	GetFolder(ctx context.Context, id int) (*vault.Folder, error)
	ListTags(ctx context.Context) ([]vault.Tag, error)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithNotifier sets where fetch failures are reported.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Store) {
		s.notifier = n
	}
}

// WithUnauthorized sets the hook called when the gateway rejects the
// credential. The authentication layer owns what happens next.
func WithUnauthorized(fn func(error)) Option {
	return func(s *Store) {
		s.onUnauthorized = fn
	}
}

// Store caches the snapshot of the active route.
type Store struct {
	gw             Gateway
	logger         *slog.Logger
	notifier       notify.Notifier
	onUnauthorized func(error)

	mu       sync.Mutex
	route    Scope
	snap     Snapshot
	hasSnap  bool
	seq      uint64
	applied  uint64
	inflight map[uint64]Scope
}

// New returns a Store whose route starts at route.
func New(gw Gateway, route Scope, opts ...Option) *Store {
	s := &Store{
		gw:       gw,
		logger:   slog.Default(),
		notifier: notify.Discard,
		route:    route,
		inflight: make(map[uint64]Scope),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Navigate makes scope the active route. The snapshot of the previous route
// stops being visible through View until scope is refreshed.
func (s *Store) Navigate(scope Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.route = scope
}

// Route returns the active route.
func (s *Store) Route() Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

// Loading reports whether a refresh of the active route is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadingLocked()
}

func (s *Store) loadingLocked() bool {
	for _, scope := range s.inflight {
		if scope == s.route {
			return true
		}
	}
	return false
}

// View returns the snapshot of the active route. ok is false while the
// route is loading or has not been fetched yet; callers then show a loading
// state instead of anything derived from an older snapshot.
func (s *Store) View() (snap Snapshot, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasSnap || s.snap.Scope != s.route || s.loadingLocked() {
		return Snapshot{}, false
	}
	return s.snap, true
}

// Snapshot returns the last applied snapshot regardless of route or loading.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Refresh refetches the active route.
func (s *Store) Refresh(ctx context.Context) error {
	return s.RefreshScope(ctx, s.Route())
}

// AfterMutation refetches the scope chosen by ScopeAfter, moving the route
// there first when it differs.
func (s *Store) AfterMutation(ctx context.Context, m Mutation) error {
	s.mu.Lock()
	next := ScopeAfter(s.route, m)
	if next != s.route {
		s.logger.DebugContext(ctx, "route invalidated by mutation", "from", s.route, "to", next)
		s.route = next
	}
	s.mu.Unlock()
	return s.RefreshScope(ctx, next)
}

// RefreshScope fetches scope and, if the response is still current, replaces
// the snapshot with it.
func (s *Store) RefreshScope(ctx context.Context, scope Scope) error {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.inflight[seq] = scope
	s.mu.Unlock()
	metrics.RefreshesTotal.Add(1)

	folders, tags, err := s.fetch(ctx, scope)

	s.mu.Lock()
	delete(s.inflight, seq)
	current := scope == s.route && seq > s.applied
	if err == nil && current {
		s.snap = newSnapshot(scope, folders, tags, seq, s.logger)
		s.hasSnap = true
		s.applied = seq
	}
	s.mu.Unlock()

	switch {
	case err != nil && vault.IsUnauthorized(err):
		if s.onUnauthorized != nil {
			s.onUnauthorized(err)
		}
		return err
	case !current:
		metrics.StaleDiscarded.Add(1)
		s.logger.DebugContext(ctx, "discarded stale refresh", "scope", scope, "seq", seq, "err", err)
		return ErrStale
	case err != nil:
		metrics.RefreshesFailed.Add(1)
		s.logger.WarnContext(ctx, "refresh failed", "scope", scope, "err", err)
		s.notifier.Show(notify.Error, "Failed to fetch data.")
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}
	return nil
}

// fetch loads folders and tags of scope concurrently. Either both succeed or
// the refresh fails as a whole.
func (s *Store) fetch(ctx context.Context, scope Scope) ([]vault.Folder, []vault.Tag, error) {
	var (
		folders []vault.Folder
		tags    []vault.Tag
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if scope.IsFolder() {
			f, err := s.gw.GetFolder(gctx, scope.FolderID)
			if err != nil {
				return err
			}
			folders = []vault.Folder{*f}
			return nil
		}
		fs, err := s.gw.ListFolders(gctx)
		folders = fs
		return err
	})
	g.Go(func() error {
		ts, err := s.gw.ListTags(gctx)
		tags = ts
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return folders, tags, nil
}

// LookupTag finds a tag of the applied snapshot by exact name.
func (s *Store) LookupTag(name string) (vault.Tag, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.TagByName(name)
}

// AddTag appends a freshly created tag to the applied snapshot so it can be
// selected before the next refresh lands.
func (s *Store) AddTag(tag vault.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.snap.Tags {
		if t.ID == tag.ID {
			return
		}
	}
	tags := make([]vault.Tag, len(s.snap.Tags), len(s.snap.Tags)+1)
	copy(tags, s.snap.Tags)
	s.snap.Tags = append(tags, tag)
}

// Snapshot is a consistent view of the entities of one scope as of one
// successful fetch.
type Snapshot struct {
	Scope      Scope
	Folders    []vault.Folder
	Tags       []vault.Tag
	Generation uint64
	FetchedAt  time.Time
}

func newSnapshot(scope Scope, folders []vault.Folder, tags []vault.Tag, gen uint64, logger *slog.Logger) Snapshot {
	snap := Snapshot{
		Scope:      scope,
		Folders:    make([]vault.Folder, 0, len(folders)),
		Tags:       append([]vault.Tag(nil), tags...),
		Generation: gen,
		FetchedAt:  time.Now(),
	}
	for _, f := range folders {
		docs := make([]vault.Document, 0, len(f.Documents))
		for _, d := range f.Documents {
			if d.Folder != f.ID {
				logger.Warn("dropping document embedded in the wrong folder", "document", d.ID, "folder", f.ID, "claims", d.Folder)
				continue
			}
			docs = append(docs, d)
		}
		f.Documents = docs
		snap.Folders = append(snap.Folders, f)
	}
	return snap
}

// Folder returns the folder of a folder-scoped snapshot.
func (s Snapshot) Folder() (vault.Folder, bool) {
	if !s.Scope.IsFolder() || len(s.Folders) == 0 {
		return vault.Folder{}, false
	}
	return s.Folders[0], true
}

// Documents returns every document of the snapshot in folder order.
func (s Snapshot) Documents() []vault.Document {
	var docs []vault.Document
	for _, f := range s.Folders {
		docs = append(docs, f.Documents...)
	}
	return docs
}

// Document finds a document by id.
func (s Snapshot) Document(id int) (vault.Document, bool) {
	for _, f := range s.Folders {
		for _, d := range f.Documents {
			if d.ID == id {
				return d, true
			}
		}
	}
	return vault.Document{}, false
}

// FolderByID finds a folder by id.
func (s Snapshot) FolderByID(id int) (vault.Folder, bool) {
	for _, f := range s.Folders {
		if f.ID == id {
			return f, true
		}
	}
	return vault.Folder{}, false
}

// TagByName finds a tag by exact, case-sensitive name.
func (s Snapshot) TagByName(name string) (vault.Tag, bool) {
	for _, t := range s.Tags {
		if t.Name == name {
			return t, true
		}
	}
	return vault.Tag{}, false
}

// TagNames resolves tag ids to names. Unknown ids render as "unknown(<id>)".
func (s Snapshot) TagNames(ids []int) []string {
	byID := make(map[int]string, len(s.Tags))
	for _, t := range s.Tags {
		byID[t.ID] = t.Name
	}
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := byID[id]; ok {
			names = append(names, name)
		} else {
			names = append(names, fmt.Sprintf("unknown(%d)", id))
		}
	}
	return names
}

// TagsByID resolves ids to tags, skipping ids not in the snapshot.
func (s Snapshot) TagsByID(ids []int) []vault.Tag {
	tags := make([]vault.Tag, 0, len(ids))
	for _, id := range ids {
		for _, t := range s.Tags {
			if t.ID == id {
				tags = append(tags, t)
				break
			}
		}
	}
	return tags
}
