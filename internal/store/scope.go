package store

import (
	"fmt"
	"strconv"
	"strings"
)

// ScopeKind is the kind of data a refresh targets.
type ScopeKind int

const (
	// KindDashboard is all folders plus all tags.
	KindDashboard ScopeKind = iota
	// KindFolder is one folder's detail with its documents plus all tags.
	KindFolder
)

// Scope is the unit of data a refresh targets. It doubles as the route.
type Scope struct {
	Kind     ScopeKind
	FolderID int
}

// Dashboard returns the dashboard scope.
func Dashboard() Scope {
	return Scope{Kind: KindDashboard}
}

// FolderScope returns the scope of a single folder.
func FolderScope(id int) Scope {
	return Scope{Kind: KindFolder, FolderID: id}
}

// IsFolder reports whether s is a folder scope.
func (s Scope) IsFolder() bool {
	return s.Kind == KindFolder
}

// String returns "dashboard" or "folder:<id>".
func (s Scope) String() string {
	if s.Kind == KindFolder {
		return "folder:" + strconv.Itoa(s.FolderID)
	}
	return "dashboard"
}

// ParseScope parses the form produced by String.
func ParseScope(s string) (Scope, error) {
	if s == "dashboard" || s == "" {
		return Dashboard(), nil
	}
	rest, ok := strings.CutPrefix(s, "folder:")
	if !ok {
		return Scope{}, fmt.Errorf("invalid scope %q", s)
	}
	id, err := strconv.Atoi(rest)
	if err != nil || id <= 0 {
		return Scope{}, fmt.Errorf("invalid folder id in scope %q", s)
	}
	return FolderScope(id), nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Scope) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scope) UnmarshalText(text []byte) error {
	parsed, err := ParseScope(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MutationKind is the kind of a successful server-side change.
type MutationKind int

const (
	FolderCreated MutationKind = iota
	FolderUpdated
	FolderDeleted
	DocumentUploaded
	DocumentUpdated
	DocumentDeleted
	TagCreated
)

// Mutation describes a successful change that invalidates the snapshot.
type Mutation struct {
	Kind     MutationKind
	FolderID int
}

// ScopeAfter returns the scope to refetch after m succeeded while route was
// active. The current route is always refetched in full; the only exception
// is deleting the folder being viewed, which leaves nothing to show but the
// dashboard.
func ScopeAfter(route Scope, m Mutation) Scope {
	if m.Kind == FolderDeleted && route.IsFolder() && route.FolderID == m.FolderID {
		return Dashboard()
	}
	return route
}
