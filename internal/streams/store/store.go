// Package store persists stream definitions as a single JSON document
// written atomically. The document is a flat map of stream id to
// definition plus two reserved keys: "_order" (display order) and
// "_version" (schema version). Reserved keys this code does not
// recognize survive a load/save cycle untouched.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/renameio/v2"
)

const (
	// DefaultFile is the store file name under the data directory.
	DefaultFile = "streams.json"

	currentVersion = 1

	keyOrder   = "_order"
	keyVersion = "_version"
)

// Store is a JSON-file-backed stream repository. All methods are safe
// for concurrent use; every mutation saves synchronously so the file
// never lags the in-memory state.
type Store struct {
	path string

	mu      sync.RWMutex
	version int
	order   []string
	streams map[string]Stream
	extra   map[string]json.RawMessage
}

// New creates a store over the given file path.
func New(path string) *Store {
	return &Store{
		path:    path,
		version: currentVersion,
		streams: make(map[string]Stream),
		extra:   make(map[string]json.RawMessage),
	}
}

// Load reads the document from disk. A missing file yields an empty
// store, not an error.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading streams file: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing streams file: %w", err)
	}

	s.version = currentVersion
	s.order = nil
	s.streams = make(map[string]Stream)
	s.extra = make(map[string]json.RawMessage)

	for key, val := range raw {
		switch {
		case key == keyVersion:
			var v int
			if err := json.Unmarshal(val, &v); err == nil && v > 0 {
				s.version = v
			}
		case key == keyOrder:
			var order []string
			if err := json.Unmarshal(val, &order); err == nil {
				s.order = order
			}
		case strings.HasPrefix(key, "_"):
			// Reserved key from a newer schema; carry it through.
			s.extra[key] = val
		default:
			var st Stream
			if err := json.Unmarshal(val, &st); err != nil {
				return fmt.Errorf("parsing stream %q: %w", key, err)
			}
			st.ID = key
			s.streams[key] = st
		}
	}

	s.reconcileOrder()
	return nil
}

// reconcileOrder makes _order cover exactly the stored streams:
// unknown ids drop out, missing ids append sorted by position then id.
func (s *Store) reconcileOrder() {
	seen := make(map[string]bool, len(s.order))
	var order []string
	for _, id := range s.order {
		if _, ok := s.streams[id]; ok && !seen[id] {
			order = append(order, id)
			seen[id] = true
		}
	}

	var missing []string
	for id := range s.streams {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	sort.Slice(missing, func(i, j int) bool {
		a, b := s.streams[missing[i]], s.streams[missing[j]]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		return missing[i] < missing[j]
	})

	s.order = append(order, missing...)
	for i, id := range s.order {
		st := s.streams[id]
		st.Position = i
		s.streams[id] = st
	}
}

// saveLocked writes the document atomically. Callers hold s.mu.
func (s *Store) saveLocked() error {
	doc := make(map[string]any, len(s.streams)+len(s.extra)+2)
	doc[keyVersion] = s.version
	doc[keyOrder] = s.order
	for key, val := range s.extra {
		doc[key] = val
	}
	for id, st := range s.streams {
		doc[id] = st
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding streams file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}
	if err := renameio.WriteFile(s.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing streams file: %w", err)
	}
	return nil
}

// List returns all streams in display order.
func (s *Store) List() []Stream {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Stream, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.streams[id])
	}
	return out
}

// Get retrieves one stream by id.
func (s *Store) Get(id string) (Stream, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.streams[id]
	return st, ok
}

// Count returns the number of stored streams.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.streams)
}

// Put inserts or replaces a stream definition and persists. New
// streams append to the order; existing ones keep their slot.
func (s *Store) Put(st Stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.streams[st.ID]; !exists {
		st.Position = len(s.order)
		s.order = append(s.order, st.ID)
	}
	s.streams[st.ID] = st
	return s.saveLocked()
}

// Remove deletes a stream and compacts positions.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.streams[id]; !exists {
		return nil
	}
	delete(s.streams, id)

	order := s.order[:0]
	for _, existing := range s.order {
		if existing != id {
			order = append(order, existing)
		}
	}
	s.order = order
	for i, sid := range s.order {
		st := s.streams[sid]
		st.Position = i
		s.streams[sid] = st
	}
	return s.saveLocked()
}

// SetOrder replaces the display order. Every stored stream must appear
// exactly once in ids.
func (s *Store) SetOrder(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) != len(s.streams) {
		return fmt.Errorf("order lists %d ids, store has %d streams", len(ids), len(s.streams))
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.streams[id]; !ok {
			return fmt.Errorf("unknown stream id %q in order", id)
		}
		if seen[id] {
			return fmt.Errorf("duplicate stream id %q in order", id)
		}
		seen[id] = true
	}

	s.order = append([]string(nil), ids...)
	for i, id := range s.order {
		st := s.streams[id]
		st.Position = i
		s.streams[id] = st
	}
	return s.saveLocked()
}
