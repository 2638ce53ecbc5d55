// Package search runs document searches by free text and tags. Results are
// kept apart from the store snapshot and only replace the folder view while
// they are non-empty.
package search

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jason-riddle/vault-go"
	"github.com/jason-riddle/vault-go/internal/metrics"
	"github.com/jason-riddle/vault-go/internal/notify"
)

// ErrSuperseded is returned when a newer search resolved first.
var ErrSuperseded = errors.New("search superseded by a newer one")

const msgNoResults = "No documents found matching your query."

// Gateway lists documents.
type Gateway interface {
	ListDocuments(ctx context.Context, q *vault.DocumentQuery) ([]vault.Document, error)
}

// ViewMode is what the main area shows.
type ViewMode int

const (
	ModeFolders ViewMode = iota
	ModeResults
)

func (m ViewMode) String() string {
	if m == ModeResults {
		return "results"
	}
	return "folders"
}

// Mode returns ModeResults when there are results to show.
func Mode(results []vault.Document) ViewMode {
	if len(results) == 0 {
		return ModeFolders
	}
	return ModeResults
}

// Outcome is the result of a search.
type Outcome struct {
	Query     string
	Tags      []int
	Documents []vault.Document
}

// NoResults reports whether the search matched nothing. That is a valid
// answer, not a failure.
func (o Outcome) NoResults() bool {
	return len(o.Documents) == 0
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithUnauthorized sets the hook called when the server rejects the
// credential. Those failures are not notified.
func WithUnauthorized(fn func(error)) Option {
	return func(e *Engine) {
		e.onUnauthorized = fn
	}
}

// Engine runs searches and holds the latest applied results.
type Engine struct {
	gw       Gateway
	logger   *slog.Logger
	notifier notify.Notifier

	onUnauthorized func(error)

	mu      sync.Mutex
	seq     uint64
	applied uint64
	results []vault.Document
}

// New returns an Engine.
func New(gw Gateway, opts ...Option) *Engine {
	e := &Engine{
		gw:       gw,
		logger:   slog.Default(),
		notifier: notify.Discard,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search lists documents matching query and carrying the tags. Either may
// be empty. When a newer search has already been applied the outcome is
// dropped and ErrSuperseded returned.
func (e *Engine) Search(ctx context.Context, query string, tags []int) (Outcome, error) {
	e.mu.Lock()
	e.seq++
	seq := e.seq
	e.mu.Unlock()
	metrics.SearchesTotal.Add(1)

	docs, err := e.gw.ListDocuments(ctx, &vault.DocumentQuery{Search: query, Tags: tags})

	e.mu.Lock()
	current := seq > e.applied
	if err == nil && current {
		e.applied = seq
		e.results = docs
	}
	e.mu.Unlock()

	if !current {
		e.logger.DebugContext(ctx, "dropping superseded search", "query", query, "seq", seq)
		return Outcome{}, ErrSuperseded
	}
	if err != nil {
		e.logger.WarnContext(ctx, "search failed", "query", query, "err", err)
		switch {
		case !vault.IsUnauthorized(err):
			e.notifier.Show(notify.Error, "Search failed.")
		case e.onUnauthorized != nil:
			e.onUnauthorized(err)
		}
		return Outcome{}, err
	}

	out := Outcome{Query: query, Tags: append([]int(nil), tags...), Documents: docs}
	if out.NoResults() {
		e.notifier.Show(notify.Success, msgNoResults)
	}
	return out, nil
}

// Results returns the latest applied results.
func (e *Engine) Results() []vault.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]vault.Document(nil), e.results...)
}

// Mode is Mode of the latest applied results.
func (e *Engine) Mode() ViewMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Mode(e.results)
}

// Clear empties the results without searching again. Searches still in
// flight are superseded.
func (e *Engine) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = nil
	e.applied = e.seq
}
