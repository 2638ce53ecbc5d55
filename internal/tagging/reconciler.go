// Package tagging turns tag names typed by the user into tags, creating the
// ones that do not exist yet.
package tagging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jason-riddle/vault-go"
	"github.com/jason-riddle/vault-go/internal/metrics"
	"github.com/jason-riddle/vault-go/internal/notify"
	"github.com/jason-riddle/vault-go/internal/store"
	"golang.org/x/sync/singleflight"
)

// ErrEmptyName is returned when the name is blank.
var ErrEmptyName = errors.New("tag name cannot be empty")

// Creator creates tags on the server.
type Creator interface {
	CreateTag(ctx context.Context, name string) (*vault.Tag, error)
}

// Catalog is the canonical set of known tags. *store.Store implements it.
type Catalog interface {
	LookupTag(name string) (vault.Tag, bool)
	AddTag(tag vault.Tag)
}

// Refresher is told about tag creations. *store.Store implements it.
type Refresher interface {
	AfterMutation(ctx context.Context, m store.Mutation) error
}

// Option configures a Reconciler.
type Option func(*Reconciler)

func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = l
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(r *Reconciler) {
		r.notifier = n
	}
}

// WithRefresher makes the reconciler refresh after every creation.
func WithRefresher(f Refresher) Option {
	return func(r *Reconciler) {
		r.refresher = f
	}
}

// WithUnauthorized sets the hook called when the server rejects the
// credential. Those failures are not notified.
func WithUnauthorized(fn func(error)) Option {
	return func(r *Reconciler) {
		r.onUnauthorized = fn
	}
}

// Reconciler resolves tag names against a Catalog.
type Reconciler struct {
	gw        Creator
	catalog   Catalog
	refresher Refresher
	logger    *slog.Logger
	notifier  notify.Notifier

	onUnauthorized func(error)

	group singleflight.Group

	mu      sync.Mutex
	created map[string]vault.Tag
}

// New returns a Reconciler creating missing tags through gw.
func New(gw Creator, catalog Catalog, opts ...Option) *Reconciler {
	r := &Reconciler{
		gw:       gw,
		catalog:  catalog,
		logger:   slog.Default(),
		notifier: notify.Discard,
		created:  make(map[string]vault.Tag),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the tag named exactly name and adds it to target when
// target is not nil. A missing tag is created once no matter how many
// callers ask for it at the same time; the creation does not stop when the
// first caller's ctx is cancelled. On failure target is left unchanged.
func (r *Reconciler) Resolve(ctx context.Context, name string, target *Selection) (vault.Tag, error) {
	if strings.TrimSpace(name) == "" {
		return vault.Tag{}, ErrEmptyName
	}

	tag, ok := r.lookup(name)
	if !ok {
		v, err, shared := r.group.Do(name, func() (interface{}, error) {
			if tag, ok := r.lookup(name); ok {
				return tag, nil
			}
			return r.create(context.WithoutCancel(ctx), name)
		})
		if err != nil {
			return vault.Tag{}, err
		}
		if shared {
			r.logger.DebugContext(ctx, "joined pending tag creation", "name", name)
		}
		tag = v.(vault.Tag)
	}

	if target != nil {
		target.Add(tag)
	}
	return tag, nil
}

// ResolveAll resolves names in order and stops at the first failure. Tags
// resolved before the failure stay in target.
func (r *Reconciler) ResolveAll(ctx context.Context, names []string, target *Selection) ([]vault.Tag, error) {
	tags := make([]vault.Tag, 0, len(names))
	for _, name := range names {
		tag, err := r.Resolve(ctx, name, target)
		if err != nil {
			return tags, fmt.Errorf("resolve tag %q: %w", name, err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

func (r *Reconciler) lookup(name string) (vault.Tag, bool) {
	if tag, ok := r.catalog.LookupTag(name); ok {
		return tag, true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	tag, ok := r.created[name]
	return tag, ok
}

func (r *Reconciler) create(ctx context.Context, name string) (vault.Tag, error) {
	id := r.notifier.Show(notify.Loading, fmt.Sprintf("Creating tag %q...", name))

	created, err := r.gw.CreateTag(ctx, name)
	if err != nil {
		r.logger.WarnContext(ctx, "tag creation failed", "name", name, "err", err)
		if vault.IsUnauthorized(err) {
			r.notifier.Dismiss(id)
			if r.onUnauthorized != nil {
				r.onUnauthorized(err)
			}
			return vault.Tag{}, err
		}
		r.notifier.Update(id, notify.Error, "Failed to create tag.")
		return vault.Tag{}, err
	}
	tag := *created

	r.mu.Lock()
	r.created[name] = tag
	r.mu.Unlock()
	r.catalog.AddTag(tag)
	metrics.TagsCreated.Add(1)
	r.notifier.Update(id, notify.Success, fmt.Sprintf("Tag %q created!", name))
	r.logger.InfoContext(ctx, "created tag", "id", tag.ID, "name", tag.Name)

	if r.refresher != nil {
		if err := r.refresher.AfterMutation(ctx, store.Mutation{Kind: store.TagCreated}); err != nil && !errors.Is(err, store.ErrStale) {
			r.logger.WarnContext(ctx, "refresh after tag creation failed", "err", err)
		}
	}
	return tag, nil
}
