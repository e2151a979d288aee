package config

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/asetapen/picinplace/internal/models"
)

const configFileName = "config.json"

// JSONStore is an atomic JSON file store for the frame configuration.
// Saves are synchronous: the config survives a crash the moment Save returns.
type JSONStore struct {
	mu   sync.Mutex
	path string
}

// NewJSONStore creates a new JSON store in the given config directory.
func NewJSONStore(configDir string) *JSONStore {
	return &JSONStore{
		path: filepath.Join(configDir, configFileName),
	}
}

// Path returns the file path used by this store.
func (s *JSONStore) Path() string { return s.path }

// Load reads the config from disk. Returns DefaultConfig on ENOENT or parse
// errors, so a corrupt file never prevents startup.
func (s *JSONStore) Load() (models.Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.DefaultConfig(), nil
		}
		return models.Config{}, err
	}

	cfg := models.DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		slog.Warn("config: corrupt JSON config, using defaults", "path", s.path, "err", err)
		return models.DefaultConfig(), nil
	}
	if appErr := cfg.Validate(); appErr != nil {
		slog.Warn("config: persisted config out of range, using defaults", "path", s.path, "field", appErr.Field)
		return models.DefaultConfig(), nil
	}
	return cfg, nil
}

// Save writes the config to disk immediately.
func (s *JSONStore) Save(cfg models.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	// Write to temp file, then rename (atomic on Linux)
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.path)
}

// Watch reloads the config whenever config.json is modified out-of-band
// (hand-edited over SSH, synced by another tool) and passes it to onChange.
// Blocks until ctx is cancelled. Watch failures disable reload, not startup.
func (s *JSONStore) Watch(ctx context.Context, onChange func(models.Config)) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("config: could not create fsnotify watcher", "err", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		slog.Warn("config: could not watch config dir", "err", err)
		return
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Name != s.path {
				continue
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			cfg, err := s.Load()
			if err != nil {
				slog.Warn("config: reload after external change failed", "err", err)
				continue
			}
			slog.Info("config: reloaded after external change", "path", s.path)
			onChange(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config: watcher error", "err", err)
		case <-ctx.Done():
			return
		}
	}
}
