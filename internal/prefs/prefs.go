// Package prefs holds user-interface preferences shared by every request,
// restored from a JSON file at startup and written back on change.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// MaskedAmount replaces monetary values while masking is on.
const MaskedAmount = "R$ •••••"

type state struct {
	Masked bool `json:"masked"`
}

// Store is the preference cell. Create it with Load and pass it to the
// components that read it.
type Store struct {
	mu     sync.RWMutex
	path   string
	state  state
	nextID int
	subs   map[int]func(masked bool)
}

// Load restores the store from path. A missing file yields defaults; an
// empty path keeps the store in memory only.
func Load(path string) (*Store, error) {
	s := &Store{path: path, subs: map[int]func(bool){}}
	if path == "" {
		return s, nil
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	if err := json.Unmarshal(b, &s.state); err != nil {
		return nil, fmt.Errorf("decode preferences %s: %w", path, err)
	}
	return s, nil
}

// Masked reports whether monetary values should be hidden.
func (s *Store) Masked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Masked
}

// Toggle flips masking, persists it and notifies subscribers with the new
// value. On a write failure the value is left unchanged.
func (s *Store) Toggle() (bool, error) {
	s.mu.Lock()
	next := state{Masked: !s.state.Masked}
	if err := s.persist(next); err != nil {
		s.mu.Unlock()
		return s.Masked(), err
	}
	s.state = next
	subs := make([]func(bool), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next.Masked)
	}
	return next.Masked, nil
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn func(masked bool)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// persist writes st atomically. Caller holds mu.
func (s *Store) persist(st state) error {
	if s.path == "" {
		return nil
	}
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create preferences dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace preferences: %w", err)
	}
	return nil
}

// Amount returns formatted unless masking is on.
func (s *Store) Amount(formatted string) string {
	if s.Masked() {
		return MaskedAmount
	}
	return formatted
}
