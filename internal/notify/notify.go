// Package notify is the transient notification stream shown to the user.
// A notification can be updated in place, so a long operation reports
// pending and then success or failure through a single entry.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind is the severity of a notification.
type Kind int

const (
	Loading Kind = iota
	Success
	Error
)

func (k Kind) String() string {
	switch k {
	case Loading:
		return "loading"
	case Success:
		return "success"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// ID identifies a notification for later updates.
type ID string

// Notifier shows and updates notifications. Dismiss withdraws one that no
// longer has anything to report.
type Notifier interface {
	Show(kind Kind, msg string) ID
	Update(id ID, kind Kind, msg string)
	Dismiss(id ID)
}

// Notification is one entry of the stream.
type Notification struct {
	ID      ID
	Kind    Kind
	Message string
	At      time.Time
}

func newID() ID {
	return ID(uuid.NewString())
}

// Log writes notifications to a logger.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a Notifier backed by l. A nil l uses slog.Default().
func NewLog(l *slog.Logger) *Log {
	if l == nil {
		l = slog.Default()
	}
	return &Log{logger: l}
}

// Show implements Notifier.
func (n *Log) Show(kind Kind, msg string) ID {
	id := newID()
	n.emit(id, kind, msg)
	return id
}

// Update implements Notifier.
func (n *Log) Update(id ID, kind Kind, msg string) {
	n.emit(id, kind, msg)
}

// Dismiss implements Notifier.
func (n *Log) Dismiss(id ID) {
	n.logger.Debug("notification dismissed", "notification", string(id))
}

func (n *Log) emit(id ID, kind Kind, msg string) {
	level := slog.LevelInfo
	if kind == Error {
		level = slog.LevelError
	}
	n.logger.Log(context.Background(), level, msg, "notification", string(id), "kind", kind.String())
}

// Recorder keeps notifications in memory, most recent state per ID.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
	index map[ID]int
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{index: make(map[ID]int)}
}

// Show implements Notifier.
func (r *Recorder) Show(kind Kind, msg string) ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := newID()
	r.index[id] = len(r.items)
	r.items = append(r.items, Notification{ID: id, Kind: kind, Message: msg, At: time.Now()})
	return id
}

// Update implements Notifier. Unknown IDs are added as new entries.
func (r *Recorder) Update(id ID, kind Kind, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := Notification{ID: id, Kind: kind, Message: msg, At: time.Now()}
	if i, ok := r.index[id]; ok {
		r.items[i] = n
		return
	}
	r.index[id] = len(r.items)
	r.items = append(r.items, n)
}

// Dismiss implements Notifier. Unknown IDs are ignored.
func (r *Recorder) Dismiss(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[id]
	if !ok {
		return
	}
	r.items = append(r.items[:i], r.items[i+1:]...)
	delete(r.index, id)
	for j := i; j < len(r.items); j++ {
		r.index[r.items[j].ID] = j
	}
}

// All returns a copy of the stream in display order.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.items...)
}

// Last returns the most recently shown notification.
func (r *Recorder) Last() (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return Notification{}, false
	}
	return r.items[len(r.items)-1], true
}

// Count returns the number of notifications of the given kind.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := 0
	for _, n := range r.items {
		if n.Kind == kind {
			c++
		}
	}
	return c
}

// Tee forwards every notification to all of ns under a shared ID.
type Tee []Notifier

// Show implements Notifier.
func (t Tee) Show(kind Kind, msg string) ID {
	id := newID()
	t.Update(id, kind, msg)
	return id
}

// Update implements Notifier.
func (t Tee) Update(id ID, kind Kind, msg string) {
	for _, n := range t {
		n.Update(id, kind, msg)
	}
}

// Dismiss implements Notifier.
func (t Tee) Dismiss(id ID) {
	for _, n := range t {
		n.Dismiss(id)
	}
}

type discard struct{}

func (discard) Show(Kind, string) ID     { return newID() }
func (discard) Update(ID, Kind, string) {}
func (discard) Dismiss(ID)              {}

// Discard drops every notification.
var Discard Notifier = discard{}
