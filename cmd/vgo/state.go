package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jason-riddle/vault-go/internal/store"
)

// RouteState is the route persisted between invocations.
type RouteState struct {
	Route   store.Scope `json:"route"`
	SavedAt time.Time   `json:"saved_at"`
}

// getStateDir returns the state directory path, preferring XDG_STATE_HOME
func getStateDir(getenv func(string) string) (string, error) {
	if stateHome := getenv("XDG_STATE_HOME"); stateHome != "" {
		return filepath.Join(stateHome, "vault-go"), nil
	}

	// Fall back to ~/.local/state
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}

	return filepath.Join(home, ".local", "state", "vault-go"), nil
}

// getRouteFilePath returns the full path to the route file
func getRouteFilePath(getenv func(string) string) (string, error) {
	dir, err := getStateDir(getenv)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "route.json"), nil
}

// routeStore loads and saves the route. When the file cannot be written it
// keeps the route in memory for the rest of the invocation.
type routeStore struct {
	path     string
	inMemory bool
	current  *RouteState
	logger   *slog.Logger
}

func newRouteStore(getenv func(string) string, inMemory bool, logger *slog.Logger) *routeStore {
	s := &routeStore{inMemory: inMemory, logger: logger}
	if inMemory {
		return s
	}
	path, err := getRouteFilePath(getenv)
	if err != nil {
		logger.Warn("Could not determine route path, using in-memory route", "err", err)
		s.inMemory = true
		return s
	}
	s.path = path
	return s
}

// Load returns the saved route. A missing or unreadable file is the
// dashboard.
func (s *routeStore) Load() store.Scope {
	if s.current != nil {
		return s.current.Route
	}
	if s.inMemory {
		return store.Dashboard()
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("Could not read route file", "path", s.path, "err", err)
		}
		return store.Dashboard()
	}

	var state RouteState
	if err := json.Unmarshal(data, &state); err != nil {
		// Invalid route file - treat as non-existent
		s.logger.Warn("Ignoring invalid route file", "path", s.path, "err", err)
		return store.Dashboard()
	}
	s.current = &state
	return state.Route
}

// Save records route. Errors are non-fatal.
func (s *routeStore) Save(route store.Scope) {
	state := RouteState{Route: route, SavedAt: time.Now()}
	s.current = &state
	if s.inMemory {
		return
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		s.logger.Warn("Could not marshal route", "err", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.fallback(err)
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.fallback(err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		s.fallback(err)
	}
}

func (s *routeStore) fallback(err error) {
	s.logger.Warn("Could not write route file, using in-memory route", "path", s.path, "err", err)
	s.inMemory = true
}
