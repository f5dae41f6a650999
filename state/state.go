// Package state persists a bot's key/value state between runs.
//
// A Store is opened once at startup, mutated freely while the bot runs and
// flushed with Save. There is no autosave: changes made after the last Save
// are lost if the process dies. Each Namespace must be used by one process
// at a time.
package state

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/blacktop/polybot/internal/logutil"
)

// Namespace identifies one bot instance: a bot name plus optional profile.
type Namespace struct {
	Bot     string
	Profile string
}

func (n Namespace) String() string {
	if n.Profile == "" {
		return n.Bot
	}
	return n.Bot + "-" + n.Profile
}

// State maps keys to JSON-representable values. Loaded numbers are int64
// when integral and float64 otherwise, whatever the backend.
type State map[string]any

// Backend loads and saves whole State records.
type Backend interface {
	// Load returns an empty State when nothing was saved yet.
	Load(ns Namespace) (State, error)
	Save(ns Namespace, s State) error
}

// IOError reports a failure to read or write persisted state.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("state %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Store is the in-memory state of a running bot.
type Store struct {
	mu      sync.Mutex
	saving  sync.Mutex
	backend Backend
	ns      Namespace
	data    State
}

// Open loads the namespace's state from backend.
func Open(backend Backend, ns Namespace) (*Store, error) {
	data, err := backend.Load(ns)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = State{}
	}
	logutil.Debugf("loaded state %s: %d keys", ns, len(data))
	return &Store{backend: backend, ns: ns, data: data}, nil
}

// Namespace returns the namespace the store was opened for.
func (s *Store) Namespace() Namespace { return s.ns }

// Get returns the raw value stored under key.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

// Set stores value under key. The value must be JSON-representable.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Delete removes key.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Decode copies the value under key into v, which should be a pointer.
// It reports false when the key is absent.
func (s *Store) Decode(key string, v any) (bool, error) {
	raw, ok := s.Get(key)
	if !ok {
		return false, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return true, fmt.Errorf("decode %q: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// Snapshot returns a shallow copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(State, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Save flushes the state to the backend.
func (s *Store) Save() error {
	s.saving.Lock()
	defer s.saving.Unlock()
	snapshot := s.Snapshot()
	if err := s.backend.Save(s.ns, snapshot); err != nil {
		return err
	}
	logutil.Debugf("saved state %s: %d keys", s.ns, len(snapshot))
	return nil
}
