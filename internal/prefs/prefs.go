// Package prefs persists user preferences: bucket-list filters and the
// favorite bucket set.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/awss/awss/internal/logging"
)

// Filters controls which buckets the list view shows.
type Filters struct {
	HideNoView     bool `json:"hide_no_view"`
	HideNoDownload bool `json:"hide_no_download"`
	HideEmpty      bool `json:"hide_empty"`
	OnlyFavorites  bool `json:"only_favorites"`
}

// Store reads and writes the preferences file. Unknown keys written by
// other versions are preserved across saves.
type Store struct {
	mu        sync.Mutex
	path      string
	filters   Filters
	favorites map[string]struct{}
	foreign   map[string]json.RawMessage
}

// NewStore loads preferences from path. A missing or unreadable file
// yields empty defaults.
func NewStore(path string) *Store {
	s := &Store{
		path:      path,
		favorites: make(map[string]struct{}),
		foreign:   make(map[string]json.RawMessage),
	}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logging.Warn("preferences unreadable", zap.String("path", s.path), zap.Error(err))
		}
		return
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		logging.Warn("preferences corrupt, starting fresh", zap.String("path", s.path), zap.Error(err))
		return
	}
	for key, value := range raw {
		switch key {
		case "filters":
			if err := json.Unmarshal(value, &s.filters); err != nil {
				logging.Warn("invalid filters in preferences", zap.Error(err))
			}
		case "favorites":
			var names []string
			if err := json.Unmarshal(value, &names); err != nil {
				logging.Warn("invalid favorites in preferences", zap.Error(err))
				continue
			}
			for _, name := range names {
				s.favorites[name] = struct{}{}
			}
		default:
			s.foreign[key] = value
		}
	}
}

// Filters returns the current filter state.
func (s *Store) Filters() Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

// SetFilters replaces the filter state and persists it.
func (s *Store) SetFilters(filters Filters) error {
	s.mu.Lock()
	s.filters = filters
	s.mu.Unlock()
	return s.save()
}

// IsFavorite reports whether the bucket is marked favorite.
func (s *Store) IsFavorite(bucket string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.favorites[bucket]
	return ok
}

// ToggleFavorite flips the favorite mark on a bucket, persists, and
// returns the new state.
func (s *Store) ToggleFavorite(bucket string) (bool, error) {
	s.mu.Lock()
	_, was := s.favorites[bucket]
	if was {
		delete(s.favorites, bucket)
	} else {
		s.favorites[bucket] = struct{}{}
	}
	s.mu.Unlock()
	return !was, s.save()
}

// Favorites returns the favorite bucket names, sorted.
func (s *Store) Favorites() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.favorites))
	for name := range s.favorites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) save() error {
	s.mu.Lock()
	out := make(map[string]json.RawMessage, len(s.foreign)+2)
	for key, value := range s.foreign {
		out[key] = value
	}
	filters, err := json.Marshal(s.filters)
	if err == nil {
		out["filters"] = filters
	}
	names := make([]string, 0, len(s.favorites))
	for name := range s.favorites {
		names = append(names, name)
	}
	sort.Strings(names)
	favorites, err := json.Marshal(names)
	if err == nil {
		out["favorites"] = favorites
	}
	path := s.path
	s.mu.Unlock()

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create preferences directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*")
	if err != nil {
		return fmt.Errorf("create temp preferences file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write preferences: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close preferences: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace preferences: %w", err)
	}
	return nil
}
