// Package profile persists per-driver threshold overrides and adaptive EAR baselines.
package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// baselineWeight is the weight of the previous baseline in the EAR moving average.
const baselineWeight = 0.9

// Profile is the stored record for one driver. Nil fields fall back to the
// global configuration.
type Profile struct {
	EARThresh     *float64 `json:"ear_thresh,omitempty"`
	PERCLOSThresh *float64 `json:"perclos_thresh,omitempty"`
	YawnThresh    *float64 `json:"yawn_thresh,omitempty"`
	EARBaseline   *float64 `json:"ear_baseline,omitempty"`
}

// Clone returns a deep copy of p.
func (p Profile) Clone() Profile {
	return Profile{
		EARThresh:     clonePtr(p.EARThresh),
		PERCLOSThresh: clonePtr(p.PERCLOSThresh),
		YawnThresh:    clonePtr(p.YawnThresh),
		EARBaseline:   clonePtr(p.EARBaseline),
	}
}

// Store is the profile storage interface used by the pipeline.
type Store interface {
	// Get returns the profile for identity, or an empty profile when the
	// identity is empty or unknown.
	Get(identity string) Profile

	// Adapt folds earAvg into the identity's baseline and persists the store.
	// It is a no-op for an empty identity.
	Adapt(identity string, earAvg float64)

	// All returns a copy of every stored profile keyed by identity.
	All() map[string]Profile
}

// JSONStore implements Store on a single JSON file that is rewritten whole on
// every mutation.
type JSONStore struct {
	path     string
	profiles map[string]Profile
	logger   *slog.Logger
	mu       sync.RWMutex

	// OnWriteError is called after a failed persist, if set.
	OnWriteError func(err error)
}

// Open loads the store at path. A missing file is created empty; an unreadable
// or corrupt file is treated as empty. Neither is fatal.
func Open(path string, logger *slog.Logger) *JSONStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &JSONStore{
		path:     path,
		profiles: make(map[string]Profile),
		logger:   logger.With("component", "profile.store"),
	}

	if err := s.load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := s.save(); err != nil {
				s.logger.Warn("failed to create profile store", "path", path, "error", err)
			}
		} else {
			s.logger.Warn("profile store unreadable, starting empty", "path", path, "error", err)
		}
		s.profiles = make(map[string]Profile)
	}

	return s
}

// load reads the store from disk.
func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var stored map[string]Profile
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	if stored != nil {
		s.profiles = stored
	}
	return nil
}

// save writes the store to disk through a temp file and rename.
func (s *JSONStore) save() error {
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	data, err := json.MarshalIndent(s.profiles, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Get returns the profile for identity.
func (s *JSONStore) Get(identity string) Profile {
	if identity == "" {
		return Profile{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[identity]
	if !ok {
		return Profile{}
	}
	return p.Clone()
}

// Adapt updates the identity's EAR baseline as an exponential moving average
// seeded by the first observed value, then persists the whole store. Write
// failures are logged and dropped; later mutations still attempt to write.
// An earAvg of exactly 0 means no data and leaves the baseline unchanged.
func (s *JSONStore) Adapt(identity string, earAvg float64) {
	if identity == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.profiles[identity]
	if earAvg != 0 {
		prev := earAvg
		if p.EARBaseline != nil {
			prev = *p.EARBaseline
		}
		next := baselineWeight*prev + (1-baselineWeight)*earAvg
		p.EARBaseline = &next
	}
	s.profiles[identity] = p

	if err := s.save(); err != nil {
		s.logger.Warn("failed to persist profiles", "path", s.path, "error", err)
		if s.OnWriteError != nil {
			s.OnWriteError(err)
		}
	}
}

// All returns a copy of every stored profile.
func (s *JSONStore) All() map[string]Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Profile, len(s.profiles))
	for id, p := range s.profiles {
		out[id] = p.Clone()
	}
	return out
}

// Identities returns the stored identities in sorted order.
func (s *JSONStore) Identities() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Path returns the file path of the store.
func (s *JSONStore) Path() string {
	return s.path
}

func clonePtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Verify JSONStore implements Store at compile time.
var _ Store = (*JSONStore)(nil)
